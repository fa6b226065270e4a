package server

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	messages  []domain.Message
	presence  []domain.PresenceRecord
	stats     observability.HealthStats
	err       error
	lastLimit int
	lastPair  [2]domain.ConnectionID
}

func (f *fakeChatService) GetRecentPublicMessages(_ context.Context, limit int) ([]domain.Message, error) {
	f.lastLimit = limit
	return f.messages, f.err
}

func (f *fakeChatService) GetPrivateHistory(_ context.Context, a, b domain.ConnectionID, limit int) ([]domain.Message, error) {
	f.lastLimit = limit
	f.lastPair = [2]domain.ConnectionID{a, b}
	return f.messages, f.err
}

func (f *fakeChatService) GetLivePresence() []domain.PresenceRecord { return f.presence }

func (f *fakeChatService) Health(context.Context) observability.HealthStats { return f.stats }

func serve(service *fakeChatService, method, target string) *httptest.ResponseRecorder {
	mux := SetupRoutes(logs.GetLoggerFromLevel(slog.LevelDebug), service, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandlers_RecentMessages(t *testing.T) {
	req := require.New(t)
	service := &fakeChatService{messages: []domain.Message{{ID: "m1", Sender: "alice", Body: "hi"}}}

	rec := serve(service, http.MethodGet, "/api/messages?limit=20")

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("application/json", rec.Header().Get("Content-Type"))
	req.Equal(20, service.lastLimit)
	var messages []domain.Message
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &messages))
	req.Equal("hi", messages[0].Body)
}

func TestHandlers_RecentMessages_BadLimit(t *testing.T) {
	req := require.New(t)

	req.Equal(http.StatusBadRequest, serve(&fakeChatService{}, http.MethodGet, "/api/messages?limit=abc").Code)
	req.Equal(http.StatusBadRequest, serve(&fakeChatService{}, http.MethodGet, "/api/messages?limit=-1").Code)
}

func TestHandlers_RecentMessages_StoreDown(t *testing.T) {
	req := require.New(t)
	service := &fakeChatService{err: fmt.Errorf("%w: timeout", errors.ErrStoreUnavailable)}

	rec := serve(service, http.MethodGet, "/api/messages")

	req.Equal(http.StatusServiceUnavailable, rec.Code)
	req.Equal(0, service.lastLimit)
}

func TestHandlers_PrivateHistory(t *testing.T) {
	req := require.New(t)
	service := &fakeChatService{messages: []domain.Message{}}

	req.Equal(http.StatusBadRequest, serve(service, http.MethodGet, "/api/messages/private?a=x").Code)

	rec := serve(service, http.MethodGet, "/api/messages/private?a=x&b=y&limit=3")
	req.Equal(http.StatusOK, rec.Code)
	req.Equal([2]domain.ConnectionID{"x", "y"}, service.lastPair)
	req.JSONEq(`[]`, rec.Body.String())
}

func TestHandlers_Users(t *testing.T) {
	req := require.New(t)
	service := &fakeChatService{presence: []domain.PresenceRecord{{ConnectionID: "c1", Username: "alice"}}}

	rec := serve(service, http.MethodGet, "/api/users")

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`[{"connectionId":"c1","username":"alice"}]`, rec.Body.String())
}

func TestHandlers_Health(t *testing.T) {
	req := require.New(t)

	rec := serve(&fakeChatService{stats: observability.HealthStats{StoreMode: "durable", StoreReachable: true}}, http.MethodGet, "/healthz")
	req.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("ok", body["status"])
	req.Equal("durable", body["storeMode"])

	rec = serve(&fakeChatService{stats: observability.HealthStats{StoreMode: "durable", StoreError: "refused"}}, http.MethodGet, "/healthz")
	req.Equal(http.StatusServiceUnavailable, rec.Code)
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("db-disconnected", body["status"])
	req.Equal("refused", body["storeError"])
}

func TestHandlers_Index(t *testing.T) {
	req := require.New(t)

	rec := serve(&fakeChatService{}, http.MethodGet, "/")
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "running")

	req.Equal(http.StatusNotFound, serve(&fakeChatService{}, http.MethodGet, "/nope").Code)
}
