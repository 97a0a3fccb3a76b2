package domain

import "sync/atomic"

// IDAllocator issues strictly increasing meeting identifiers starting at 1.
// Next is safe for concurrent use and never hands out the same value twice.
type IDAllocator struct {
	last atomic.Uint64
}

// NewIDAllocator returns an allocator whose next identifier is last+1.
func NewIDAllocator(last MeetingID) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(uint64(last))
	return a
}

// Next reserves and returns the next identifier.
func (a *IDAllocator) Next() MeetingID {
	return MeetingID(a.last.Add(1))
}

// Last returns the most recently issued identifier, or 0 if none.
func (a *IDAllocator) Last() MeetingID {
	return MeetingID(a.last.Load())
}

// Restore raises the allocator floor to last. It never moves backwards, so an
// identifier that was already issued cannot be reissued after a reload.
func (a *IDAllocator) Restore(last MeetingID) {
	for {
		cur := a.last.Load()
		if uint64(last) <= cur {
			return
		}
		if a.last.CompareAndSwap(cur, uint64(last)) {
			return
		}
	}
}

// Rewind moves the allocator back to last, releasing every identifier issued
// after it. The caller must own all of those identifiers and hold the lock that
// serializes Next, otherwise a concurrently issued id could be handed out twice.
func (a *IDAllocator) Rewind(last MeetingID) {
	a.last.Store(uint64(last))
}
