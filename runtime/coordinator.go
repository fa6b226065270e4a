// Package runtime owns the live state of the relay: who is connected, who is typing,
// and how one inbound event turns into outbound deliveries.
// It orchestrates the system without containing transport or storage details.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ contract.ICoordinator = (*Coordinator)(nil)

type CoordinatorConfig struct {
	StoreTimeout      time.Duration
	HistoryLimit      int
	MaxMessageLength  int
	MaxUsernameLength int
}

// Coordinator is the single writer of the Registry, the TypingAggregator and the MessageStore.
// Every inbound event runs its mutations and broadcasts inside mu, so other connections
// never observe a mutation without the broadcast it produced.
// Store appends run outside mu and the fan-out re-enters it once the store has answered.
type Coordinator struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry contract.IRegistry
	typing   contract.ITypingAggregator
	store    contract.MessageStore
	monitor  *observability.Monitor
	sessions map[domain.ConnectionID]contract.EventSink
	cfg      CoordinatorConfig
	now      func() time.Time
}

func NewCoordinator(log *slog.Logger, registry contract.IRegistry, typing contract.ITypingAggregator,
	store contract.MessageStore, monitor *observability.Monitor, cfg CoordinatorConfig) *Coordinator {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &Coordinator{
		log:      log,
		registry: registry,
		typing:   typing,
		store:    store,
		monitor:  monitor,
		sessions: make(map[domain.ConnectionID]contract.EventSink),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Connect registers the outbound sink of a fresh transport session.
// The connection gets its id, the current presence and the recent public history,
// but nothing is broadcast until it joins.
func (c *Coordinator) Connect(ctx context.Context, id domain.ConnectionID, sink contract.EventSink) {
	history, err := c.recentPublic(ctx)
	if err != nil {
		c.log.Warn("Unable to load initial history", "connection_id", id, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[id] = sink
	c.deliver(id, sink, event.Welcome{ConnectionID: id})
	c.deliver(id, sink, event.NewPresenceSnapshot(c.registry.List()))
	c.deliver(id, sink, event.NewInitialMessages(history))
	c.log.Debug("Connection opened", "connection_id", id, "connections", len(c.sessions))
}

// Handle dispatches one inbound event for the given connection.
// Returned errors are informational for the transport; none of them is fatal.
func (c *Coordinator) Handle(ctx context.Context, id domain.ConnectionID, evt event.Inbound) error {
	switch e := evt.(type) {
	case event.Join:
		return c.join(id, e)
	case event.SendPublic:
		return c.sendPublic(ctx, id, e)
	case event.SendPrivate:
		return c.sendPrivate(ctx, id, e)
	case event.SetTyping:
		return c.setTyping(id, e)
	case event.SetPrivateTyping:
		return c.setPrivateTyping(id, e)
	case event.Disconnect:
		c.disconnect(id, e.Reason)
		return nil
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownEvent, evt)
	}
}

func (c *Coordinator) Presence() []domain.PresenceRecord {
	return c.registry.List()
}

func (c *Coordinator) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) join(id domain.ConnectionID, e event.Join) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sink, ok := c.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConnection, id)
	}

	username, err := domain.NormalizeUsername(e.Username, c.cfg.MaxUsernameLength)
	if err != nil {
		c.monitor.IncrJoinRejected()
		c.deliver(id, sink, event.JoinRejected{Reason: err.Error()})
		c.log.Debug("Join rejected", "connection_id", id, "error", err)
		return err
	}

	_, rejoin := c.registry.Lookup(id)
	c.registry.Add(id, username)
	if !rejoin {
		c.broadcastExcept(id, event.UserJoined{ConnectionID: id, Username: username})
		c.log.Info(fmt.Sprintf("%s joined", username), "connection_id", id)
	}
	c.broadcast(event.NewPresenceSnapshot(c.registry.List()))
	return nil
}

func (c *Coordinator) sendPublic(ctx context.Context, id domain.ConnectionID, e event.SendPublic) error {
	c.mu.Lock()
	sender, err := c.joined(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	msg := domain.NewPublicMessage(sender, e.Body, c.now())
	if err = msg.Validate(c.cfg.MaxMessageLength); err != nil {
		c.mu.Unlock()
		c.log.Debug("Public message dropped", "connection_id", id, "error", err)
		return err
	}
	// Sending implies the sender stopped typing in the room.
	// Private typing pairs are left as they are.
	if c.typing.ClearPublic(id) {
		c.broadcastExcept(id, event.NewPublicTypingList(c.typing.PublicTyping()))
	}
	c.mu.Unlock()

	stored := c.persist(ctx, msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.registry.List() {
		if sink, ok := c.sessions[record.ConnectionID]; ok {
			c.deliver(record.ConnectionID, sink, event.PublicMessage{Message: stored})
		}
	}
	c.monitor.IncrMessagesRouted()
	c.log.Debug("Public message routed", "connection_id", id, "message_id", stored.ID)
	return nil
}

func (c *Coordinator) sendPrivate(ctx context.Context, id domain.ConnectionID, e event.SendPrivate) error {
	c.mu.Lock()
	sender, err := c.joined(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	msg := domain.NewPrivateMessage(sender, e.To, e.Body, c.now())
	if err = msg.Validate(c.cfg.MaxMessageLength); err != nil {
		c.mu.Unlock()
		c.log.Debug("Private message dropped", "connection_id", id, "error", err)
		return err
	}
	if c.typing.IsPrivateTyping(id, e.To) {
		c.typing.SetPrivateTyping(id, e.To, false)
		c.unicastJoined(e.To, event.PrivateTyping{From: id, Username: sender.Username, IsTyping: false})
	}
	c.mu.Unlock()

	stored := c.persist(ctx, msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if sink, ok := c.sessions[id]; ok {
		c.deliver(id, sink, event.PrivateMessage{Message: stored})
	}
	if e.To != id && !c.unicastJoined(e.To, event.PrivateMessage{Message: stored}) {
		// The message still exists, only the sender sees it.
		c.log.Debug("Private recipient is offline",
			"connection_id", id, "to", e.To, "error", errors.ErrUnknownConnection)
	}
	c.monitor.IncrMessagesRouted()
	return nil
}

func (c *Coordinator) setTyping(id domain.ConnectionID, e event.SetTyping) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.joined(id); err != nil {
		return err
	}
	usernames := c.typing.SetPublicTyping(id, e.IsTyping)
	c.broadcastExcept(id, event.NewPublicTypingList(usernames))
	return nil
}

func (c *Coordinator) setPrivateTyping(id domain.ConnectionID, e event.SetPrivateTyping) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender, err := c.joined(id)
	if err != nil {
		return err
	}
	c.typing.SetPrivateTyping(id, e.To, e.IsTyping)
	if !c.unicastJoined(e.To, event.PrivateTyping{From: id, Username: sender.Username, IsTyping: e.IsTyping}) {
		c.log.Debug("Private typing target is offline", "connection_id", id, "to", e.To)
	}
	return nil
}

// disconnect is unconditional cleanup. It never fails and never rolls back.
func (c *Coordinator) disconnect(id domain.ConnectionID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[id]; !ok {
		return
	}
	delete(c.sessions, id)
	c.typing.ClearAll(id)
	record, joined := c.registry.Remove(id)
	if !joined {
		c.log.Debug("Connection closed before joining", "connection_id", id, "reason", reason)
		return
	}

	c.broadcast(event.UserLeft{ConnectionID: id, Username: record.Username})
	c.broadcast(event.NewPresenceSnapshot(c.registry.List()))
	c.broadcast(event.NewPublicTypingList(c.typing.PublicTyping()))
	c.log.Info(fmt.Sprintf("%s disconnected", record.Username), "connection_id", id, "reason", reason)
}

// joined resolves the presence record of a connection that is allowed to talk.
// Callers must hold mu.
func (c *Coordinator) joined(id domain.ConnectionID) (domain.PresenceRecord, error) {
	if _, ok := c.sessions[id]; !ok {
		return domain.PresenceRecord{}, fmt.Errorf("%w: %s", errors.ErrUnknownConnection, id)
	}
	record, ok := c.registry.Lookup(id)
	if !ok {
		return domain.PresenceRecord{}, fmt.Errorf("%w: %s", errors.ErrNotJoined, id)
	}
	return record, nil
}

// persist writes the message through to the store.
// On failure the room stays responsive: the message is delivered with a local id.
func (c *Coordinator) persist(ctx context.Context, msg domain.Message) domain.Message {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	stored, err := c.store.Append(ctx, msg)
	if err == nil {
		return stored
	}
	c.monitor.IncrStoreFailures()
	if !goerrors.Is(err, errors.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	msg.ID = domain.SynthesizeID()
	c.log.Warn("Message not persisted, delivering with a local id",
		"connection_id", msg.SenderConnectionID, "message_id", msg.ID, "error", err)
	return msg
}

func (c *Coordinator) recentPublic(ctx context.Context) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()
	return c.store.RecentPublic(ctx, c.cfg.HistoryLimit)
}

// unicastJoined delivers to a joined connection and reports whether it exists.
// Callers must hold mu.
func (c *Coordinator) unicastJoined(id domain.ConnectionID, evt event.Outbound) bool {
	if _, ok := c.registry.Lookup(id); !ok {
		return false
	}
	sink, ok := c.sessions[id]
	if !ok {
		return false
	}
	c.deliver(id, sink, evt)
	return true
}

// Callers must hold mu.
func (c *Coordinator) broadcast(evt event.Outbound) {
	for id, sink := range c.sessions {
		c.deliver(id, sink, evt)
	}
}

// Callers must hold mu.
func (c *Coordinator) broadcastExcept(except domain.ConnectionID, evt event.Outbound) {
	for id, sink := range c.sessions {
		if id == except {
			continue
		}
		c.deliver(id, sink, evt)
	}
}

func (c *Coordinator) deliver(id domain.ConnectionID, sink contract.EventSink, evt event.Outbound) {
	if err := sink.Deliver(evt); err != nil {
		c.monitor.IncrDeliveryFailures()
		c.log.Warn("Delivery failed", "connection_id", id, "event", evt.Kind(), "error", err)
	}
}
