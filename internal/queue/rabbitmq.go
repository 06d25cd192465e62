package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "bifrost.dlx"
	dlxRoutingKey    = "webhooks"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns the broker connection and declares the delivery topology
// on every fresh channel. Channels are cheap; connections are shared.
type RabbitMQ struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.redialLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel hands out a fresh channel with the delivery topology declared,
// redialing the connection if the previous one died.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		if err := r.redialLocked(ctx); err != nil {
			return nil, err
		}
	}

	ch, err := r.conn.Channel()
	if err != nil {
		// The connection may have died between the IsClosed check and the
		// channel open; one redial covers that window.
		if err := r.redialLocked(ctx); err != nil {
			return nil, err
		}
		if ch, err = r.conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
		}
	}

	if err := declareDeliveryTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// redialLocked dials with exponential backoff until it connects or ctx ends.
// Caller must hold r.mu.
func (r *RabbitMQ) redialLocked(ctx context.Context) error {
	wait := reconnectBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			if r.conn != nil && !r.conn.IsClosed() {
				_ = r.conn.Close()
			}
			r.conn = conn
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq dial canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		if wait *= 2; wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

// declareDeliveryTopology sets up the delivery queue with its dead-letter
// exchange so poisoned messages end up inspectable instead of looping.
func declareDeliveryTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(DeliveryDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", DeliveryDLQ, err)
	}
	if err := ch.QueueBind(DeliveryDLQ, dlxRoutingKey, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", DeliveryDLQ, err)
	}

	deadLetterArgs := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": dlxRoutingKey,
	}
	if _, err := ch.QueueDeclare(DeliveryQueue, true, false, false, false, deadLetterArgs); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", DeliveryQueue, err)
	}
	return nil
}
