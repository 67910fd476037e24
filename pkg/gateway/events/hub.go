// Package events broadcasts per-turn call events to in-process observers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindGreeting  = "greeting"
	KindContinued = "continued"
	KindConfirmed = "confirmed"
	KindFailed    = "failed"
)

// TurnEvent describes one processed callback.
type TurnEvent struct {
	CallID     string    `json:"call_id"`
	Turn       int       `json:"turn"`
	Kind       string    `json:"kind"`
	Transcript string    `json:"transcript,omitempty"`
	Reply      string    `json:"reply,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Hub fans turn events out to subscribers. Publishing never blocks the
// turn path: a subscriber that cannot keep up loses events.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan TurnEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan TurnEvent)}
}

// Subscribe registers an observer. The returned cancel function must be
// called exactly once; it closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan TurnEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan TurnEvent, buffer)
	id := uuid.NewString()

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *Hub) Publish(ev TurnEvent) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
