package queue

import "context"

const (
	// DeliveryQueue carries one message per webhook delivery attempt request.
	DeliveryQueue = "webhooks"
	// DeliveryDLQ receives malformed messages and messages that failed a
	// redelivery; due log rows are re-enqueued by the sweep regardless.
	DeliveryDLQ = "dlq.webhooks"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
