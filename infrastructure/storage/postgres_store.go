package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id                      TEXT PRIMARY KEY,
	sender                  TEXT NOT NULL,
	sender_connection_id    TEXT NOT NULL,
	body                    TEXT NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_private              BOOLEAN NOT NULL DEFAULT false,
	recipient_connection_id TEXT NULL,
	CHECK (is_private = (recipient_connection_id IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS messages_public_created_idx ON messages (created_at) WHERE NOT is_private;
CREATE INDEX IF NOT EXISTS messages_private_pair_idx ON messages (sender_connection_id, recipient_connection_id, created_at) WHERE is_private;
`

const insertMessage = `
INSERT INTO messages (id, sender, sender_connection_id, body, created_at, is_private, recipient_connection_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`

const selectRecentPublic = `
SELECT id, sender, sender_connection_id, body, created_at, is_private, recipient_connection_id FROM (
	SELECT * FROM messages WHERE NOT is_private ORDER BY created_at DESC, id DESC LIMIT $1
) recent ORDER BY created_at ASC, id ASC`

const selectPrivateHistory = `
SELECT id, sender, sender_connection_id, body, created_at, is_private, recipient_connection_id FROM (
	SELECT * FROM messages
	WHERE is_private
	  AND ((sender_connection_id = $1 AND recipient_connection_id = $2)
	    OR (sender_connection_id = $2 AND recipient_connection_id = $1))
	ORDER BY created_at DESC, id DESC LIMIT $3
) recent ORDER BY created_at ASC, id ASC`

var _ contract.MessageStore = (*PostgresStore)(nil)

type PostgresStore struct {
	pool    *pgxpool.Pool
	log     *slog.Logger
	timeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration, log *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log, timeout: timeout}
}

// OpenPostgresStore connects, pings and creates the schema when missing.
func OpenPostgresStore(ctx context.Context, cfg PostgresConfig, timeout time.Duration, log *slog.Logger) (*PostgresStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	store := NewPostgresStore(pool, timeout, log)
	if err = store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var recipient *string
	if msg.Recipient != nil {
		r := msg.Recipient.String()
		recipient = &r
	}

	err := s.pool.QueryRow(ctx, insertMessage,
		msg.ID,
		msg.Sender,
		msg.SenderConnectionID.String(),
		msg.Body,
		msg.CreatedAt,
		msg.IsPrivate,
		recipient,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (s *PostgresStore) RecentPublic(ctx context.Context, limit int) ([]domain.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.query(ctx, selectRecentPublic, limit)
}

func (s *PostgresStore) PrivateHistory(ctx context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.query(ctx, selectPrivateHistory, a.String(), b.String(), limit)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Mode() string { return ModeDurable }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return messages, nil
}

func scanMessage(row pgx.CollectableRow) (domain.Message, error) {
	var (
		msg          domain.Message
		senderConnID string
		recipient    *string
	)
	err := row.Scan(&msg.ID, &msg.Sender, &senderConnID, &msg.Body, &msg.CreatedAt, &msg.IsPrivate, &recipient)
	if err != nil {
		return domain.Message{}, err
	}
	msg.SenderConnectionID = domain.ConnectionID(senderConnID)
	msg.CreatedAt = msg.CreatedAt.UTC()
	if recipient != nil {
		to := domain.ConnectionID(*recipient)
		msg.Recipient = &to
	}
	return msg, nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
