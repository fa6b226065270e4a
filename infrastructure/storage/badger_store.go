package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	publicPrefix  = "msg:pub:"
	privatePrefix = "msg:prv:"
)

var _ contract.MessageStore = (*BadgerStore)(nil)

type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log, now: time.Now}
}

// OpenBadgerStore opens the database at path and wraps it.
func OpenBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return NewBadgerStore(db, log), nil
}

// Append persists a message.
// Public keys are "msg:pub:{timestamp_padded}:{uuid}" and private keys
// "msg:prv:{pair}:{timestamp_padded}:{uuid}" so that:
//  1. Both histories are prefix scans sorted chronologically (19-digit zero padding).
//  2. Two messages arriving at the same nanosecond never collide.
func (s *BadgerStore) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	bytes, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return msg, nil
}

func (s *BadgerStore) RecentPublic(ctx context.Context, limit int) ([]domain.Message, error) {
	return s.scanNewest(ctx, []byte(publicPrefix), limit)
}

func (s *BadgerStore) PrivateHistory(ctx context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error) {
	return s.scanNewest(ctx, privatePairPrefix(a, b), limit)
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", errors.ErrStoreUnavailable)
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func (s *BadgerStore) Mode() string { return ModeDurable }

func (s *BadgerStore) Close() error { return s.db.Close() }

// DB exposes the underlying database for inspection tools.
func (s *BadgerStore) DB() *badger.DB { return s.db }

// scanNewest walks the prefix backwards, collects up to limit values
// and returns them oldest first.
func (s *BadgerStore) scanNewest(ctx context.Context, prefix []byte, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// 0xFF sorts after every digit, so the seek lands on the newest key.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				s.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func messageKey(msg domain.Message) []byte {
	if msg.IsPrivate && msg.Recipient != nil {
		prefix := privatePairPrefix(msg.SenderConnectionID, *msg.Recipient)
		return append(prefix, []byte(fmt.Sprintf("%019d:%s", msg.CreatedAt.UnixNano(), msg.ID))...)
	}
	return []byte(fmt.Sprintf("%s%019d:%s", publicPrefix, msg.CreatedAt.UnixNano(), msg.ID))
}

// privatePairPrefix hex-encodes the pair so connection ids never clash with separators.
func privatePairPrefix(a, b domain.ConnectionID) []byte {
	return []byte(privatePrefix + hex.EncodeToString([]byte(domain.PairKey(a, b))) + ":")
}
