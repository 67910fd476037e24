package callflow

import (
	"sync"
	"testing"
	"time"
)

func TestStateStore_AcquireCreatesOnce(t *testing.T) {
	s := NewStateStore()

	conv, release := s.Acquire("C1")
	if conv.CallID != "C1" {
		t.Errorf("CallID = %q, want C1", conv.CallID)
	}
	if conv.TurnIndex != 0 {
		t.Errorf("TurnIndex = %d, want 0", conv.TurnIndex)
	}
	conv.TurnIndex = 3
	release()

	again, release2 := s.Acquire("C1")
	defer release2()
	if again != conv {
		t.Error("second Acquire returned a different conversation")
	}
	if again.TurnIndex != 3 {
		t.Errorf("TurnIndex = %d, want 3", again.TurnIndex)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStateStore_SerializesSameCall(t *testing.T) {
	s := NewStateStore()

	conv, release := s.Acquire("C1")
	conv.TurnIndex = 1

	acquired := make(chan struct{})
	go func() {
		c2, r2 := s.Acquire("C1")
		c2.TurnIndex = 2
		r2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire proceeded while first turn held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded after release")
	}
}

func TestStateStore_DifferentCallsRunInParallel(t *testing.T) {
	s := NewStateStore()

	_, release1 := s.Acquire("C1")
	defer release1()

	done := make(chan struct{})
	go func() {
		_, release2 := s.Acquire("C2")
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent call blocked behind another call's lock")
	}
}

func TestStateStore_Remove(t *testing.T) {
	s := NewStateStore()
	_, release := s.Acquire("C1")
	release()

	s.Remove("C1")
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	conv, release2 := s.Acquire("C1")
	defer release2()
	if conv.TurnIndex != 0 {
		t.Error("state survived Remove")
	}
}

func TestStateStore_SweepIdle(t *testing.T) {
	s := NewStateStore()
	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	_, release := s.Acquire("old")
	release()

	clock = clock.Add(15 * time.Minute)
	_, release = s.Acquire("fresh")
	release()

	if removed := s.SweepIdle(10 * time.Minute); removed != 1 {
		t.Errorf("SweepIdle() = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	// The busy entry must be skipped even when idle.
	_, holdRelease := s.Acquire("fresh")
	clock = clock.Add(time.Hour)
	if removed := s.SweepIdle(10 * time.Minute); removed != 0 {
		t.Errorf("SweepIdle() = %d, want 0 while entry is mid-turn", removed)
	}
	holdRelease()
}

func TestStateStore_ConcurrentMutationIsSerialized(t *testing.T) {
	s := NewStateStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, release := s.Acquire("C1")
			conv.TurnIndex++
			release()
		}()
	}
	wg.Wait()

	conv, release := s.Acquire("C1")
	defer release()
	if conv.TurnIndex != 50 {
		t.Errorf("TurnIndex = %d, want 50", conv.TurnIndex)
	}
}
