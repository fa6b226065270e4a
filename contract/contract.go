//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound half of one connection.
// Deliver must not block: a full buffer is reported as an error.
type EventSink interface {
	Deliver(evt event.Outbound) error
}

type IRegistry interface {
	Add(id domain.ConnectionID, username string)
	Remove(id domain.ConnectionID) (domain.PresenceRecord, bool)
	Lookup(id domain.ConnectionID) (domain.PresenceRecord, bool)
	List() []domain.PresenceRecord
	Len() int
}

type ITypingAggregator interface {
	SetPublicTyping(id domain.ConnectionID, isTyping bool) []string
	SetPrivateTyping(from, to domain.ConnectionID, isTyping bool)
	IsPrivateTyping(from, to domain.ConnectionID) bool
	PublicTyping() []string
	ClearPublic(id domain.ConnectionID) bool
	ClearAll(id domain.ConnectionID)
}

// MessageStore persists messages. Implementations are chosen once at startup.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	RecentPublic(ctx context.Context, limit int) ([]domain.Message, error)
	PrivateHistory(ctx context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error)
	Ping(ctx context.Context) error
	Mode() string
	Close() error
}

type ICoordinator interface {
	Connect(ctx context.Context, id domain.ConnectionID, sink EventSink)
	Handle(ctx context.Context, id domain.ConnectionID, evt event.Inbound) error
	Presence() []domain.PresenceRecord
	Connections() int
}
