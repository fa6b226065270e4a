package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type presenceEntry struct {
	record domain.PresenceRecord
	seq    uint64
}

// Registry maps live connections to their presence record.
// It never emits events; the Coordinator decides what to broadcast.
type Registry struct {
	mu      sync.RWMutex
	nextSeq uint64
	entries map[domain.ConnectionID]presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.ConnectionID]presenceEntry),
	}
}

// Add inserts or overwrites the presence record of a connection.
// An overwrite keeps the original join position.
func (r *Registry) Add(id domain.ConnectionID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		r.nextSeq++
		entry.seq = r.nextSeq
	}
	entry.record = domain.PresenceRecord{ConnectionID: id, Username: username}
	r.entries[id] = entry
}

// Remove deletes the connection and returns its last record.
// The boolean is false when the connection never joined.
func (r *Registry) Remove(id domain.ConnectionID) (domain.PresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.PresenceRecord{}, false
	}
	delete(r.entries, id)
	return entry.record, true
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.PresenceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	return entry.record, ok
}

// List returns a snapshot ordered by join time.
func (r *Registry) List() []domain.PresenceRecord {
	r.mu.RLock()
	entries := lo.Values(r.entries)
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return lo.Map(entries, func(item presenceEntry, _ int) domain.PresenceRecord {
		return item.record
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
