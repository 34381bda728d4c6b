package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Header names set on every published NATS message.
const (
	HeaderTenant    = "Kestrel-Tenant"
	HeaderMessageID = "Kestrel-Message-Id"
)

// DefaultQueueGroup shares work topics between replicas.
const DefaultQueueGroup = "kestrel-workers"

// NATSBus publishes on <topic>.<tenant> subjects, e.g. kestrel.alert.acme.
// Work topics are consumed through a queue group so one replica handles each request.
type NATSBus struct {
	mu    sync.Mutex
	conn  *nats.Conn
	queue string
	subs  map[*natsSubscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

func natsOptions(cfg domain.EventBusConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.NATSReconnectWait) * time.Second),
		nats.ReconnectBufSize(8 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("NATS async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// NewNATSBus dials cfg.NATSUrl, retrying the initial connect NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	if cfg.NATSQueueGroup == "" {
		cfg.NATSQueueGroup = DefaultQueueGroup
	}

	opts := natsOptions(cfg)
	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; ; attempt++ {
		if conn, err = nats.Connect(cfg.NATSUrl, opts...); err == nil {
			break
		}
		if attempt == cfg.NATSMaxReconnects {
			return nil, fmt.Errorf("connect to NATS at %s (%d attempts): %w", cfg.NATSUrl, attempt, err)
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		time.Sleep(time.Duration(cfg.NATSReconnectWait) * time.Second)
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{
		conn:  conn,
		queue: cfg.NATSQueueGroup,
		subs:  make(map[*natsSubscription]struct{}),
	}, nil
}

// subject appends the tenant token. AnyTenant maps to the single-token wildcard.
func subject(tenantID, topic string) string {
	if tenantID == AnyTenant {
		return topic + ".*"
	}
	return topic + "." + tenantID
}

func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := validTenant(tenantID); err != nil {
		return err
	}
	if tenantID == AnyTenant {
		return errors.New("cannot publish to the wildcard tenant")
	}

	msg := newMessage(ctx, tenantID, topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	out := nats.NewMsg(subject(tenantID, topic))
	out.Header.Set(HeaderTenant, tenantID)
	out.Header.Set(HeaderMessageID, msg.ID)
	out.Data = data
	return b.conn.PublishMsg(out)
}

// Subscribe listens on the tenant's subject. Work topics join the queue group.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := validTenant(tenantID); err != nil {
		return nil, err
	}

	deliver := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable NATS message", "subject", m.Subject, "error", err)
			return
		}
		if msg.TenantID == "" {
			msg.TenantID = m.Header.Get(HeaderTenant)
		}
		if err := handler(deliveryContext(ctx, &msg), &msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if domain.IsWorkTopic(topic) {
		ns, err = b.conn.QueueSubscribe(subject(tenantID, topic), b.queue, deliver)
	} else {
		ns, err = b.conn.Subscribe(subject(tenantID, topic), deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &natsSubscription{topic: topic, sub: ns, bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (%s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending deliveries before closing the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

var _ domain.EventBus = (*NATSBus)(nil)
