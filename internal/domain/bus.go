package domain

import (
	"context"
)

// EventBus carries detection requests and outcomes between the API, the
// async worker and downstream consumers. Topics are partitioned by tenant.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers tenantID's messages on topic to handler until the
	// subscription is cancelled. Work topics hand each message to one subscriber.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler consumes one message. The context carries the publisher's trace.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus delivers. Metadata holds the
// propagated trace headers.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects the bus: "channel" in process or "nats".
type EventBusConfig struct {
	Type string `json:"type"`

	ChannelBufferSize int `json:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl"`
	NATSToken         string `json:"-"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances work topics across replicas.
	NATSQueueGroup string `json:"natsQueueGroup"`
}

// Standard topic names for the detection pipeline.
const (
	TopicDetectionRequested = "kestrel.detection.requested"
	TopicDetectionCompleted = "kestrel.detection.completed"
	TopicAlert              = "kestrel.alert"
)

// IsWorkTopic reports whether each message on topic must be handled exactly once
// across subscribers rather than broadcast.
func IsWorkTopic(topic string) bool {
	return topic == TopicDetectionRequested
}

// DetectionRequest is the payload accepted on TopicDetectionRequested.
// Exactly one of Transaction or Transactions should be set.
type DetectionRequest struct {
	RequestID    string             `json:"requestId"`
	TenantID     string             `json:"tenantId,omitempty"`
	Transaction  *TransactionInput  `json:"transaction,omitempty"`
	Transactions []TransactionInput `json:"transactions,omitempty"`
}

// DetectionEvent is published on TopicDetectionCompleted and TopicAlert.
type DetectionEvent struct {
	RequestID string                `json:"requestId"`
	TenantID  string                `json:"tenantId"`
	Result    *FraudDetectionResult `json:"result,omitempty"`
	Batch     *BatchResult          `json:"batch,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}
