package core

import "calendarcore/pkg/domain"

// NewRulesEngine constructs an engine without rules.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in meeting
// invariants. They restate what the transaction guard already enforces so a
// faulty store or a restored snapshot cannot commit a broken meeting.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(MeetingShapeRule())
	engine.Register(MeetingTransitionRule())
	engine.Register(IdentityIndexRule())
	return engine
}
