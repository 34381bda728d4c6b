// Package bus moves detection requests and outcomes between Kestrel
// components, in process over channels or across replicas over NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// AnyTenant subscribes to a topic across every tenant.
const AnyTenant = domain.GlobalTenantID

// New builds the bus selected by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %q", cfg.Type)
	}
}

// PublishEvent JSON-encodes event and publishes it for tenantID.
func PublishEvent(ctx context.Context, b domain.EventBus, tenantID, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// newMessage wraps payload in an envelope carrying ctx's trace.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	return msg
}

// deliveryContext continues the publisher's trace under the subscriber's ctx.
func deliveryContext(ctx context.Context, msg *domain.Message) context.Context {
	if len(msg.Metadata) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))
}

// validTenant rejects tenant IDs that are empty or would split a subject token.
func validTenant(tenantID string) error {
	if tenantID == "" {
		return domain.ErrTenantRequired
	}
	if tenantID != AnyTenant && strings.ContainsAny(tenantID, ".*> \t") {
		return fmt.Errorf("tenantID %q is not a valid subject token", tenantID)
	}
	return nil
}
