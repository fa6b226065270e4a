// Package storage holds the message store backends: Postgres and Badger for the
// durable mode, a bounded in-memory buffer with a JSON snapshot for the degraded one.
package storage

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

const (
	ModeDurable  = "durable"
	ModeDegraded = "degraded"
)

const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

type Options struct {
	Backend      string
	BadgerPath   string
	SnapshotPath string
	Postgres     PostgresConfig
	Timeout      time.Duration
}

// Open picks the store once at startup. Any failure to reach the durable
// backend falls back to the degraded store, which never fails to open.
func Open(ctx context.Context, opts Options, log *slog.Logger) contract.MessageStore {
	switch opts.Backend {
	case BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout(opts.Timeout))
		defer cancel()
		store, err := OpenPostgresStore(connectCtx, opts.Postgres, opts.Timeout, log)
		if err == nil {
			log.Info("Message store ready", "backend", BackendPostgres, "mode", ModeDurable)
			return store
		}
		log.Warn("Postgres unreachable, falling back to degraded mode", "error", err)
	case BackendBadger:
		store, err := OpenBadgerStore(opts.BadgerPath, log)
		if err == nil {
			log.Info("Message store ready", "backend", BackendBadger, "mode", ModeDurable, "path", opts.BadgerPath)
			return store
		}
		log.Warn("Badger unavailable, falling back to degraded mode", "error", err)
	case BackendMemory:
	default:
		log.Warn("Unknown store backend, using degraded mode", "backend", opts.Backend)
	}
	log.Info("Message store ready", "backend", BackendMemory, "mode", ModeDegraded, "snapshot", opts.SnapshotPath)
	return NewDegradedStore(log, opts.SnapshotPath)
}

func connectTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 5 * time.Second
	}
	return 2 * timeout
}
