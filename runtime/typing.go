package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"

	"github.com/samber/lo"
)

var _ contract.ITypingAggregator = (*TypingAggregator)(nil)

// TypingAggregator keeps flat "currently typing" flags.
// Last write wins per key; there are no timers here, debouncing belongs to the client.
type TypingAggregator struct {
	mu       sync.RWMutex
	registry contract.IRegistry
	public   map[domain.ConnectionID]struct{}
	private  map[domain.TypingPair]struct{}
}

func NewTypingAggregator(registry contract.IRegistry) *TypingAggregator {
	return &TypingAggregator{
		registry: registry,
		public:   make(map[domain.ConnectionID]struct{}),
		private:  make(map[domain.TypingPair]struct{}),
	}
}

// SetPublicTyping applies the flag and returns the usernames currently typing.
func (t *TypingAggregator) SetPublicTyping(id domain.ConnectionID, isTyping bool) []string {
	t.mu.Lock()
	if isTyping {
		t.public[id] = struct{}{}
	} else {
		delete(t.public, id)
	}
	t.mu.Unlock()
	return t.PublicTyping()
}

func (t *TypingAggregator) SetPrivateTyping(from, to domain.ConnectionID, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair := domain.TypingPair{From: from, To: to}
	if isTyping {
		t.private[pair] = struct{}{}
	} else {
		delete(t.private, pair)
	}
}

func (t *TypingAggregator) IsPrivateTyping(from, to domain.ConnectionID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.private[domain.TypingPair{From: from, To: to}]
	return ok
}

// PublicTyping resolves typing connections to usernames, in join order.
// Connections without a presence record are skipped.
func (t *TypingAggregator) PublicTyping() []string {
	records := t.registry.List()

	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.FilterMap(records, func(item domain.PresenceRecord, _ int) (string, bool) {
		_, typing := t.public[item.ConnectionID]
		return item.Username, typing
	})
}

// ClearPublic reports whether the connection was flagged as typing.
func (t *TypingAggregator) ClearPublic(id domain.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, typing := t.public[id]
	delete(t.public, id)
	return typing
}

// ClearAll removes the connection from public typing and from every private pair it belongs to.
func (t *TypingAggregator) ClearAll(id domain.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.public, id)
	for pair := range t.private {
		if pair.From == id || pair.To == id {
			delete(t.private, pair)
		}
	}
}
