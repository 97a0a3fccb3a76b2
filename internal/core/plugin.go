package core

import (
	"errors"
	"fmt"
	"sort"
)

// Plugin contributes rules to the service's rules engine.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules []Rule
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// RegisterRule adds an in-transaction rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Rules   []string
}

// ErrRulesUnavailable is returned by InstallPlugin when the store does not
// expose its rules engine.
var ErrRulesUnavailable = errors.New("store does not expose a rules engine")

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

// InstallPlugin registers plugin's rules with the store's engine. Plugins
// must be installed before the service handles operations; the engine is not
// safe for registration concurrent with transactions.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	provider, ok := s.store.(rulesEngineProvider)
	if !ok || provider.RulesEngine() == nil {
		return PluginMetadata{}, ErrRulesUnavailable
	}
	if s.plugins == nil {
		s.plugins = make(map[string]PluginMetadata)
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version()}
	engine := provider.RulesEngine()
	for _, rule := range registry.Rules() {
		engine.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}
	s.plugins[plugin.Name()] = meta
	s.logger.Info("plugin installed", "plugin", meta.Name, "version", meta.Version, "rules", len(meta.Rules))
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by
// name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		meta.Rules = append([]string(nil), meta.Rules...)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OverlapWarningsPlugin installs OrganizerOverlapRule.
type OverlapWarningsPlugin struct{}

// Name implements Plugin.
func (OverlapWarningsPlugin) Name() string { return "overlap-warnings" }

// Version implements Plugin.
func (OverlapWarningsPlugin) Version() string { return "1.0.0" }

// Register implements Plugin.
func (OverlapWarningsPlugin) Register(registry *PluginRegistry) error {
	registry.RegisterRule(OrganizerOverlapRule())
	return nil
}
