// Package projection builds bounded local timelines from routed messages.
// Handles ordering and capacity. Does not emit events or touch the network.
package projection

import (
	"chat-relay/domain"
	"sync"
)

// Timeline holds the last `capacity` messages, oldest first.
type Timeline struct {
	mu       sync.RWMutex
	capacity int
	messages []domain.Message
}

func NewTimeline(capacity int) *Timeline {
	if capacity <= 0 {
		capacity = 100
	}
	return &Timeline{
		capacity: capacity,
		messages: make([]domain.Message, 0, capacity),
	}
}

// Append adds a message and evicts the oldest one once the capacity is reached.
// It returns a copy of the timeline after the append.
func (t *Timeline) Append(msg domain.Message) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, msg)
	if overflow := len(t.messages) - t.capacity; overflow > 0 {
		t.messages = append(t.messages[:0:0], t.messages[overflow:]...)
	}
	return t.copyLocked()
}

// Replace loads messages, keeping only the newest `capacity`.
func (t *Timeline) Replace(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if overflow := len(messages) - t.capacity; overflow > 0 {
		messages = messages[overflow:]
	}
	t.messages = append(make([]domain.Message, 0, t.capacity), messages...)
}

// Last returns up to limit of the newest messages matching keep, oldest first.
func (t *Timeline) Last(limit int, keep func(domain.Message) bool) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var res []domain.Message
	for i := len(t.messages) - 1; i >= 0 && (limit <= 0 || len(res) < limit); i-- {
		if keep == nil || keep(t.messages[i]) {
			res = append(res, t.messages[i])
		}
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) copyLocked() []domain.Message {
	return append([]domain.Message(nil), t.messages...)
}
