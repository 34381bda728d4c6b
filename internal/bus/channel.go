package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultChannelBuffer = 1000

var errBusClosed = errors.New("bus is closed")

// ChannelBus is the in-process bus. Each subscriber owns a buffered inbox
// drained by its own goroutine; publishers never block.
type ChannelBus struct {
	mu      sync.RWMutex
	inbox   int
	routes  map[string][]*channelSubscription // tenant:topic
	closed  bool
	dropped atomic.Int64
	turn    atomic.Uint64
}

type channelSubscription struct {
	id      string
	route   string
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus gives every subscriber an inbox of inbox messages.
func NewChannelBus(inbox int) *ChannelBus {
	if inbox <= 0 {
		inbox = defaultChannelBuffer
	}
	return &ChannelBus{
		inbox:  inbox,
		routes: make(map[string][]*channelSubscription),
	}
}

func route(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Publish fans msg out to the tenant's subscribers and AnyTenant subscribers.
// On a work topic a single subscriber, picked round-robin, receives it.
// A full inbox drops the message for that subscriber and counts it in Dropped.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := validTenant(tenantID); err != nil {
		return err
	}
	msg := newMessage(ctx, tenantID, topic, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}

	targets := b.routes[route(tenantID, topic)]
	if tenantID != AnyTenant {
		targets = append(targets[:len(targets):len(targets)], b.routes[route(AnyTenant, topic)]...)
	}
	if domain.IsWorkTopic(topic) && len(targets) > 1 {
		pick := b.turn.Add(1) % uint64(len(targets))
		targets = targets[pick : pick+1]
	}

	for _, sub := range targets {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("event bus subscriber full, message dropped",
				"topic", topic,
				"tenant_id", tenantID,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe starts a delivery goroutine that lives until ctx is done or
// the subscription is removed.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := validTenant(tenantID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		route:   route(tenantID, topic),
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.inbox),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}
	b.routes[sub.route] = append(b.routes[sub.route], sub)
	go sub.run()

	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.handler(deliveryContext(s.ctx, msg), msg); err != nil {
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}
	return nil
}

// Close stops every subscriber. Later calls are no-ops.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.routes {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.routes = make(map[string][]*channelSubscription)
	return nil
}

// Dropped returns how many deliveries were skipped because an inbox was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.routes[s.route]
	for i, other := range subs {
		if other.id == s.id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.routes, s.route)
	} else {
		b.routes[s.route] = subs
	}
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}

var _ domain.EventBus = (*ChannelBus)(nil)
