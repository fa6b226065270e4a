package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/projection"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DegradedCapacity = 100

var _ contract.MessageStore = (*DegradedStore)(nil)

// DegradedStore keeps the last DegradedCapacity messages in memory and rewrites
// a JSON snapshot of them after every append, so a restart in degraded mode
// finds the last known buffer. The snapshot is best-effort, not crash-safe.
type DegradedStore struct {
	mu           sync.Mutex
	log          *slog.Logger
	timeline     *projection.Timeline
	snapshotPath string
	now          func() time.Time
}

// NewDegradedStore builds the store and reloads snapshotPath when it exists.
// An empty snapshotPath disables the snapshot.
func NewDegradedStore(log *slog.Logger, snapshotPath string) *DegradedStore {
	s := &DegradedStore{
		log:          log,
		timeline:     projection.NewTimeline(DegradedCapacity),
		snapshotPath: snapshotPath,
		now:          time.Now,
	}
	s.load()
	return s
}

func (s *DegradedStore) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.timeline.Append(msg)
	if err := s.writeSnapshot(snapshot); err != nil {
		s.log.Warn("Unable to write degraded snapshot", "path", s.snapshotPath, "error", err)
	}
	return msg, nil
}

func (s *DegradedStore) RecentPublic(_ context.Context, limit int) ([]domain.Message, error) {
	return s.timeline.Last(limit, func(m domain.Message) bool { return !m.IsPrivate }), nil
}

func (s *DegradedStore) PrivateHistory(_ context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error) {
	return s.timeline.Last(limit, func(m domain.Message) bool { return m.Involves(a, b) }), nil
}

func (s *DegradedStore) Ping(context.Context) error { return nil }

func (s *DegradedStore) Mode() string { return ModeDegraded }

func (s *DegradedStore) Close() error { return nil }

func (s *DegradedStore) load() {
	if s.snapshotPath == "" {
		return
	}
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Unable to read degraded snapshot", "path", s.snapshotPath, "error", err)
		}
		return
	}
	var messages []domain.Message
	if err = json.Unmarshal(data, &messages); err != nil {
		s.log.Warn("Ignoring corrupted degraded snapshot", "path", s.snapshotPath, "error", err)
		return
	}
	s.timeline.Replace(messages)
	s.log.Info(fmt.Sprintf("%d messages recovered from degraded snapshot", s.timeline.Len()))
}

// writeSnapshot overwrites the whole file through a temp file and a rename.
func (s *DegradedStore) writeSnapshot(messages []domain.Message) error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.snapshotPath)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".messages-*.json")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.snapshotPath)
}
