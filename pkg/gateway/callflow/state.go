package callflow

import (
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/pkg/core/llm"
)

// Conversation is the per-call accumulated context. It only exists inside
// the state store; the store's locking discipline is the sole guard on it.
type Conversation struct {
	CallID       string
	TurnIndex    int
	History      []llm.Exchange
	Terminated   bool
	LastActivity time.Time
}

type stateEntry struct {
	mu   sync.Mutex
	conv *Conversation
}

// StateStore holds conversation state keyed by call ID. Access is
// single-writer-per-key: Acquire locks the call's entry until release is
// called, so a retried webhook can never interleave with the live turn.
type StateStore struct {
	mu    sync.Mutex
	calls map[string]*stateEntry
	now   func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		calls: make(map[string]*stateEntry),
		now:   time.Now,
	}
}

// Acquire returns the conversation for callID, creating it on first use,
// with its per-key lock held. The caller must invoke release exactly once.
func (s *StateStore) Acquire(callID string) (*Conversation, func()) {
	s.mu.Lock()
	entry, ok := s.calls[callID]
	if !ok {
		entry = &stateEntry{conv: &Conversation{
			CallID:       callID,
			LastActivity: s.now(),
		}}
		s.calls[callID] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	release := func() {
		entry.conv.LastActivity = s.now()
		entry.mu.Unlock()
	}
	return entry.conv, release
}

// Remove drops the conversation for callID. A turn currently holding the
// entry keeps its reference; the state is simply no longer findable.
func (s *StateStore) Remove(callID string) {
	s.mu.Lock()
	delete(s.calls, callID)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// SweepIdle removes conversations idle for longer than ttl and returns how
// many were dropped. Entries mid-turn are skipped.
func (s *StateStore) SweepIdle(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.calls {
		if !entry.mu.TryLock() {
			continue
		}
		idle := entry.conv.LastActivity.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.calls, id)
			removed++
		}
	}
	return removed
}
