package domain

import (
	"sync"
	"testing"
)

func TestIDAllocatorConcurrentNext(t *testing.T) {
	a := NewIDAllocator(0)
	const workers, per = 8, 250
	var mu sync.Mutex
	seen := make(map[MeetingID]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := a.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("expected %d unique ids, got %d", workers*per, len(seen))
	}
	if a.Last() != MeetingID(workers*per) {
		t.Fatalf("expected last %d, got %d", workers*per, a.Last())
	}
	if _, ok := seen[0]; ok {
		t.Fatalf("id 0 must never be issued")
	}
}

func TestIDAllocatorRestoreNeverLowers(t *testing.T) {
	a := NewIDAllocator(5)
	a.Restore(3)
	if a.Next() != 6 {
		t.Fatalf("restore lowered the allocator")
	}
	a.Restore(10)
	if a.Next() != 11 {
		t.Fatalf("restore did not raise the allocator")
	}
}

func TestIDAllocatorRewindReleasesIDs(t *testing.T) {
	a := NewIDAllocator(2)
	floor := a.Last()
	a.Next()
	a.Next()
	a.Rewind(floor)
	if got := a.Next(); got != 3 {
		t.Fatalf("expected 3 after rewind, got %d", got)
	}
	if a.Last() != 3 {
		t.Fatalf("expected last 3, got %d", a.Last())
	}
}
