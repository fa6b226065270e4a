package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"time"
)

type IChatService interface {
	GetRecentPublicMessages(ctx context.Context, limit int) ([]domain.Message, error)
	GetPrivateHistory(ctx context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error)
	GetLivePresence() []domain.PresenceRecord
	Health(ctx context.Context) observability.HealthStats
}

// ChatService answers read-only queries for the HTTP layer.
// It never mutates the room; the coordinator does.
type ChatService struct {
	coordinator  contract.ICoordinator
	store        contract.MessageStore
	monitor      *observability.Monitor
	historyLimit int
	timeout      time.Duration
}

func NewChatService(coordinator contract.ICoordinator, store contract.MessageStore,
	monitor *observability.Monitor, historyLimit int, timeout time.Duration) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &ChatService{
		coordinator:  coordinator,
		store:        store,
		monitor:      monitor,
		historyLimit: historyLimit,
		timeout:      timeout,
	}
}

// GetRecentPublicMessages clamps limit to (0, historyLimit] and returns oldest first.
func (s *ChatService) GetRecentPublicMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	messages, err := s.store.RecentPublic(ctx, s.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("recent public messages: %w", err)
	}
	return orEmpty(messages), nil
}

func (s *ChatService) GetPrivateHistory(ctx context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	messages, err := s.store.PrivateHistory(ctx, a, b, s.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("private history: %w", err)
	}
	return orEmpty(messages), nil
}

func (s *ChatService) GetLivePresence() []domain.PresenceRecord {
	presence := s.coordinator.Presence()
	if presence == nil {
		return []domain.PresenceRecord{}
	}
	return presence
}

// Health pings the store now and merges the result with the last sample of the health worker.
func (s *ChatService) Health(ctx context.Context) observability.HealthStats {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.store.Ping(ctx)
	presence := s.coordinator.Presence()
	s.monitor.RecordCheck(err, s.coordinator.Connections(), len(presence), nil)

	stats := s.monitor.GetLatest()
	stats.StoreMode = s.store.Mode()
	stats.StoreReachable = err == nil
	stats.StoreError = ""
	if err != nil {
		stats.StoreError = err.Error()
	}
	stats.Connections = s.coordinator.Connections()
	stats.Joined = len(presence)
	return stats
}

func (s *ChatService) clamp(limit int) int {
	if limit <= 0 || limit > s.historyLimit {
		return s.historyLimit
	}
	return limit
}

func orEmpty(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}
