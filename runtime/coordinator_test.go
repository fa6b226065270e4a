package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Outbound
	err    error
}

func (s *recordingSink) Deliver(evt event.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) All() []event.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Outbound(nil), s.events...)
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func eventsOf[T event.Outbound](sink *recordingSink) []T {
	var res []T
	for _, e := range sink.All() {
		if v, ok := e.(T); ok {
			res = append(res, v)
		}
	}
	return res
}

type harness struct {
	coordinator *Coordinator
	registry    *Registry
	store       contract.MessageStore
	monitor     *observability.Monitor
}

func newHarness(store contract.MessageStore) *harness {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	if store == nil {
		store = storage.NewDegradedStore(log, "")
	}
	registry := NewRegistry()
	monitor := observability.NewMonitor(store.Mode())
	coordinator := NewCoordinator(log, registry, NewTypingAggregator(registry), store, monitor, CoordinatorConfig{
		StoreTimeout:      time.Second,
		HistoryLimit:      100,
		MaxMessageLength:  2000,
		MaxUsernameLength: 32,
	})
	return &harness{coordinator: coordinator, registry: registry, store: store, monitor: monitor}
}

func (h *harness) connect(id domain.ConnectionID) *recordingSink {
	sink := &recordingSink{}
	h.coordinator.Connect(context.Background(), id, sink)
	return sink
}

func (h *harness) join(t *testing.T, id domain.ConnectionID, username string) *recordingSink {
	sink := h.connect(id)
	require.NoError(t, h.coordinator.Handle(context.Background(), id, event.Join{Username: username}))
	return sink
}

func (h *harness) handle(id domain.ConnectionID, evt event.Inbound) error {
	return h.coordinator.Handle(context.Background(), id, evt)
}

func TestCoordinator_Connect_SendsWelcomePresenceAndHistory(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	req.NoError(h.handle("a", event.SendPublic{Body: "earlier"}))

	// When a new connection opens
	sink := h.connect("b")

	// Then it gets its id, the room and the recent history, in that order
	events := sink.All()
	req.Len(events, 3)
	req.Equal(event.Welcome{ConnectionID: "b"}, events[0])
	req.Equal(event.NewPresenceSnapshot([]domain.PresenceRecord{{ConnectionID: "a", Username: "alice"}}), events[1])
	history := events[2].(event.InitialMessages)
	req.Len(history.Messages, 1)
	req.Equal("earlier", history.Messages[0].Body)
	req.Equal(2, h.coordinator.Connections())
}

func TestCoordinator_Join_BroadcastsToOthers(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	observer := h.connect("o")
	alice := h.connect("a")
	observer.Reset()
	alice.Reset()

	// When alice joins
	req.NoError(h.handle("a", event.Join{Username: "  alice  "}))

	// Then everybody else hears about it, including connections that never joined
	req.Equal([]event.UserJoined{{ConnectionID: "a", Username: "alice"}}, eventsOf[event.UserJoined](observer))
	req.Empty(eventsOf[event.UserJoined](alice))

	// And every session gets the new presence snapshot
	expected := event.NewPresenceSnapshot([]domain.PresenceRecord{{ConnectionID: "a", Username: "alice"}})
	req.Equal([]event.PresenceSnapshot{expected}, eventsOf[event.PresenceSnapshot](observer))
	req.Equal([]event.PresenceSnapshot{expected}, eventsOf[event.PresenceSnapshot](alice))
}

func TestCoordinator_Join_RejectsEmptyUsername(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	observer := h.connect("o")
	sink := h.connect("a")
	observer.Reset()

	err := h.handle("a", event.Join{Username: "   "})

	req.ErrorIs(err, errors.ErrInvalidJoin)
	req.Len(eventsOf[event.JoinRejected](sink), 1)
	req.Empty(observer.All())
	req.Zero(h.registry.Len())
	req.Equal(uint64(1), h.monitor.GetLatest().JoinRejected)
}

func TestCoordinator_Join_TwiceOverwritesWithoutNewUserJoined(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	observer := h.connect("o")
	h.join(t, "a", "alice")
	observer.Reset()

	// When alice renames herself
	req.NoError(h.handle("a", event.Join{Username: "alicia"}))

	// Then the record is overwritten and only a presence snapshot is sent
	req.Empty(eventsOf[event.UserJoined](observer))
	req.Equal([]domain.PresenceRecord{{ConnectionID: "a", Username: "alicia"}}, h.coordinator.Presence())
	req.Len(eventsOf[event.PresenceSnapshot](observer), 1)
}

func TestCoordinator_Presence_MatchesJoinDisconnectSequences(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	rng := rand.New(rand.NewSource(42))

	live := map[domain.ConnectionID]bool{}
	expected := map[domain.ConnectionID]string{}
	next := 0
	for step := 0; step < 500; step++ {
		if len(live) < 5 {
			id := domain.ConnectionID(fmt.Sprintf("c%d", next))
			next++
			h.connect(id)
			live[id] = true
		}
		ids := lo.Keys(live)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		id := ids[rng.Intn(len(ids))]

		if rng.Intn(3) == 0 {
			req.NoError(h.handle(id, event.Disconnect{Reason: "random"}))
			delete(live, id)
			delete(expected, id)
			continue
		}
		username := fmt.Sprintf("user-%d", rng.Intn(3))
		req.NoError(h.handle(id, event.Join{Username: username}))
		expected[id] = username
	}

	actual := lo.SliceToMap(h.coordinator.Presence(), func(r domain.PresenceRecord) (domain.ConnectionID, string) {
		return r.ConnectionID, r.Username
	})
	req.Equal(expected, actual)
	req.Len(h.coordinator.Presence(), len(expected))
}

func TestCoordinator_SendPublic_ReachesEveryJoinedConnectionOnce(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	carol := h.join(t, "c", "carol")
	lurker := h.connect("l")

	req.NoError(h.handle("a", event.SendPublic{Body: " hello room "}))

	for _, sink := range []*recordingSink{alice, bob, carol} {
		messages := eventsOf[event.PublicMessage](sink)
		req.Len(messages, 1)
		req.Equal("hello room", messages[0].Message.Body)
		req.Equal("alice", messages[0].Message.Sender)
		req.False(messages[0].Message.IsPrivate)
		req.NotEmpty(messages[0].Message.ID)
	}
	req.Empty(eventsOf[event.PublicMessage](lurker))

	stored, err := h.store.RecentPublic(context.Background(), 1)
	req.NoError(err)
	req.Equal(eventsOf[event.PublicMessage](alice)[0].Message, stored[0])
}

func TestCoordinator_SendPublic_Rejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.connect("x")
	alice := h.join(t, "a", "alice")

	req.ErrorIs(h.handle("x", event.SendPublic{Body: "not joined"}), errors.ErrNotJoined)
	req.ErrorIs(h.handle("a", event.SendPublic{Body: "   "}), errors.ErrInvalidMessage)
	req.ErrorIs(h.handle("a", event.SendPublic{Body: strings.Repeat("x", 2001)}), errors.ErrInvalidMessage)
	req.ErrorIs(h.handle("ghost", event.SendPublic{Body: "boo"}), errors.ErrUnknownConnection)

	req.Empty(eventsOf[event.PublicMessage](alice))
}

func TestCoordinator_SendPublic_ClearsSenderTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	h.join(t, "b", "bob")
	carol := h.join(t, "c", "carol")

	// Given alice and bob typing
	req.NoError(h.handle("a", event.SetTyping{IsTyping: true}))
	req.NoError(h.handle("b", event.SetTyping{IsTyping: true}))
	lists := eventsOf[event.PublicTypingList](carol)
	req.Equal([]string{"alice", "bob"}, lists[len(lists)-1].Usernames)
	carol.Reset()

	// When alice sends a message
	req.NoError(h.handle("a", event.SendPublic{Body: "done typing"}))

	// Then the next typing list only contains bob
	lists = eventsOf[event.PublicTypingList](carol)
	req.Len(lists, 1)
	req.Equal([]string{"bob"}, lists[0].Usernames)
}

func TestCoordinator_SendPublic_WithoutTypingSendsNoTypingList(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	bob.Reset()

	// When alice sends without having typed
	req.NoError(h.handle("a", event.SendPublic{Body: "hi"}))

	// Then bob receives the message and no typing list
	req.Len(eventsOf[event.PublicMessage](bob), 1)
	req.Empty(eventsOf[event.PublicTypingList](bob))
}

func TestCoordinator_SendPublic_KeepsPrivateTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")

	// Given alice whispering to bob
	req.NoError(h.handle("a", event.SetPrivateTyping{To: "b", IsTyping: true}))
	bob.Reset()

	// When alice talks to the room
	req.NoError(h.handle("a", event.SendPublic{Body: "brb"}))

	// Then the private indicator toward bob is untouched
	req.True(h.coordinator.typing.IsPrivateTyping("a", "b"))
	req.Empty(eventsOf[event.PrivateTyping](bob))
}

func TestCoordinator_SetTyping_ExcludesSender(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	alice.Reset()

	req.NoError(h.handle("a", event.SetTyping{IsTyping: true}))
	req.Equal([]event.PublicTypingList{{Usernames: []string{"alice"}}}, eventsOf[event.PublicTypingList](bob))
	req.Empty(eventsOf[event.PublicTypingList](alice))

	bob.Reset()
	req.NoError(h.handle("a", event.SetTyping{IsTyping: false}))
	req.Equal([]event.PublicTypingList{{Usernames: []string{}}}, eventsOf[event.PublicTypingList](bob))
}

func TestCoordinator_SendPrivate_AliceToBob(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	carol := h.join(t, "c", "carol")

	req.NoError(h.handle("a", event.SendPrivate{To: "b", Body: "hi"}))

	received := eventsOf[event.PrivateMessage](bob)
	req.Len(received, 1)
	req.Equal("alice", received[0].Message.Sender)
	req.Equal("hi", received[0].Message.Body)
	req.True(received[0].Message.IsPrivate)
	req.Equal(domain.ConnectionID("b"), *received[0].Message.Recipient)

	echo := eventsOf[event.PrivateMessage](alice)
	req.Len(echo, 1)
	req.Equal(received[0].Message, echo[0].Message)

	req.Empty(eventsOf[event.PrivateMessage](carol))
	req.Empty(eventsOf[event.PublicMessage](carol))
}

func TestCoordinator_SendPrivate_UnknownRecipient(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")

	req.NoError(h.handle("a", event.SendPrivate{To: "nobody", Body: "anyone there?"}))

	// Then only the sender sees it
	req.Len(eventsOf[event.PrivateMessage](alice), 1)
	req.Empty(eventsOf[event.PrivateMessage](bob))

	// And it is still stored for the pair
	history, err := h.store.PrivateHistory(context.Background(), "a", "nobody", 10)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("anyone there?", history[0].Body)
}

func TestCoordinator_SendPrivate_ClearsPairTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")

	req.NoError(h.handle("a", event.SetPrivateTyping{To: "b", IsTyping: true}))
	req.Equal([]event.PrivateTyping{{From: "a", Username: "alice", IsTyping: true}}, eventsOf[event.PrivateTyping](bob))
	bob.Reset()

	req.NoError(h.handle("a", event.SendPrivate{To: "b", Body: "there"}))

	req.Equal([]event.PrivateTyping{{From: "a", Username: "alice", IsTyping: false}}, eventsOf[event.PrivateTyping](bob))
	events := bob.All()
	req.IsType(event.PrivateTyping{}, events[0])
	req.IsType(event.PrivateMessage{}, events[len(events)-1])
}

func TestCoordinator_SetPrivateTyping_OnlyReachesTarget(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	carol := h.join(t, "c", "carol")

	req.NoError(h.handle("a", event.SetPrivateTyping{To: "b", IsTyping: true}))
	req.NoError(h.handle("a", event.SetPrivateTyping{To: "gone", IsTyping: true}))

	req.Len(eventsOf[event.PrivateTyping](bob), 1)
	req.Empty(eventsOf[event.PrivateTyping](alice))
	req.Empty(eventsOf[event.PrivateTyping](carol))
}

func TestCoordinator_Disconnect_CleansUpAndBroadcasts(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	req.NoError(h.handle("a", event.SetTyping{IsTyping: true}))
	req.NoError(h.handle("a", event.SetPrivateTyping{To: "b", IsTyping: true}))
	bob.Reset()

	// When alice goes away
	req.NoError(h.handle("a", event.Disconnect{Reason: "closed"}))

	// Then bob learns it, in order
	events := bob.All()
	req.Equal([]event.Outbound{
		event.UserLeft{ConnectionID: "a", Username: "alice"},
		event.NewPresenceSnapshot([]domain.PresenceRecord{{ConnectionID: "b", Username: "bob"}}),
		event.NewPublicTypingList(nil),
	}, events)
	req.Equal(1, h.coordinator.Connections())

	// And a second disconnect is a no-op
	bob.Reset()
	req.NoError(h.handle("a", event.Disconnect{Reason: "again"}))
	req.Empty(bob.All())

	// And the disconnected id cannot talk anymore
	req.ErrorIs(h.handle("a", event.SendPublic{Body: "ghost"}), errors.ErrUnknownConnection)
	req.ErrorIs(h.handle("a", event.Join{Username: "alice"}), errors.ErrUnknownConnection)
}

func TestCoordinator_Disconnect_BeforeJoinIsSilent(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	bob := h.join(t, "b", "bob")
	h.connect("x")
	bob.Reset()

	req.NoError(h.handle("x", event.Disconnect{Reason: "closed"}))

	req.Empty(bob.All())
	req.Equal(1, h.coordinator.Connections())
}

func TestCoordinator_StoreOutage_DeliversWithLocalID(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().Mode().Return(storage.ModeDurable).AnyTimes()
	store.EXPECT().RecentPublic(gomock.Any(), 100).Return(nil, fmt.Errorf("%w: timeout", errors.ErrStoreUnavailable)).AnyTimes()
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(domain.Message{}, fmt.Errorf("connection reset")).Times(2)

	h := newHarness(store)
	alice := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")

	// Initial history failure still yields an empty list
	req.Equal([]event.InitialMessages{{Messages: []domain.Message{}}}, eventsOf[event.InitialMessages](alice))

	// When the store refuses both messages
	req.NoError(h.handle("a", event.SendPublic{Body: "still here"}))
	req.NoError(h.handle("a", event.SendPrivate{To: "b", Body: "psst"}))

	// Then they are delivered anyway with a local id
	public := eventsOf[event.PublicMessage](bob)
	req.Len(public, 1)
	req.True(domain.IsSynthesized(public[0].Message.ID))
	private := eventsOf[event.PrivateMessage](bob)
	req.Len(private, 1)
	req.True(domain.IsSynthesized(private[0].Message.ID))
	req.Equal(uint64(2), h.monitor.GetLatest().StoreFailures)
}

func TestCoordinator_FailingSinkDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	broken := h.join(t, "a", "alice")
	bob := h.join(t, "b", "bob")
	broken.err = errors.ErrSinkFull

	// When bob, who was not typing, talks to the room
	req.NoError(h.handle("b", event.SendPublic{Body: "anyone?"}))

	// Then bob still gets the message and only the broken delivery is counted
	req.Len(eventsOf[event.PublicMessage](bob), 1)
	req.Equal(uint64(1), h.monitor.GetLatest().DeliveryFailures)
}

func TestCoordinator_Handle_UnknownEvent(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	h.connect("a")

	req.ErrorIs(h.handle("a", nil), errors.ErrUnknownEvent)
}

func TestCoordinator_ConcurrentSendersKeepPerSenderOrder(t *testing.T) {
	req := require.New(t)
	h := newHarness(nil)
	observer := h.join(t, "o", "observer")
	senders := []domain.ConnectionID{"s1", "s2", "s3"}
	for _, id := range senders {
		h.join(t, id, string(id))
	}

	var wg sync.WaitGroup
	for _, id := range senders {
		wg.Add(1)
		go func(id domain.ConnectionID) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = h.handle(id, event.SendPublic{Body: fmt.Sprintf("%d", i)})
			}
		}(id)
	}
	wg.Wait()

	received := eventsOf[event.PublicMessage](observer)
	req.Len(received, 60)
	last := map[domain.ConnectionID]int{}
	for _, m := range received {
		var n int
		_, err := fmt.Sscanf(m.Message.Body, "%d", &n)
		req.NoError(err)
		if prev, ok := last[m.Message.SenderConnectionID]; ok {
			req.Greater(n, prev)
		}
		last[m.Message.SenderConnectionID] = n
	}
}
