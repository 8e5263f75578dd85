package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Publish is fire-and-forget; delivery is at-least-once and consumers
// must tolerate duplicates. Key is a partitioning hint (account id for
// transaction events) for deployments that serialize per account.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages. A non-nil error signals the
// bus that handling failed; redelivery is the transport's concern.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Key       string `json:"key,omitempty"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Default topic names for the decision pipeline. Overridable via
// configuration.
const (
	TopicTransactions = "peregrine.transactions"
	TopicDecisions    = "peregrine.decisions"
	TopicAlerts       = "peregrine.alerts"
)
