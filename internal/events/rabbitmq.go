package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// EventQueueName is the broker queue carrying raw app events.
	EventQueueName = "app.events"
	// EventDLQName receives events that could not be decoded.
	EventDLQName = "dlq.app.events"

	dlxExchangeName  = "notifyd.dlx"
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ manages broker connectivity and topology declaration.
type RabbitMQ struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.ensureConnected(ctx); err != nil {
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

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		if err := r.ensureConnected(ctx); err != nil {
			return nil, err
		}
		r.mu.RLock()
		conn = r.conn
		r.mu.RUnlock()
	}

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := r.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		r.mu.RLock()
		conn = r.conn
		r.mu.RUnlock()

		ch, err = conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return r.reconnectWithBackoff(ctx)
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			oldConn := r.conn
			r.conn = newConn
			r.mu.Unlock()

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		dlxExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		EventDLQName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", EventDLQName, err)
	}

	if err := ch.QueueBind(EventDLQName, EventQueueName, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", EventDLQName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": EventQueueName,
	}
	if _, err := ch.QueueDeclare(
		EventQueueName,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", EventQueueName, err)
	}

	return nil
}

// RabbitMQSource consumes app events from the broker with reconnect backoff.
type RabbitMQSource struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQSource(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQSource {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQSource{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

func (s *RabbitMQSource) Subscribe(ctx context.Context, handler Handler) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("event source is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := reconnectBackoff
	for {
		err := s.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		s.logger.Warn("event consume loop ended, reconnecting",
			zap.String("queue", EventQueueName),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *RabbitMQSource) consumeOnce(ctx context.Context, handler Handler) error {
	ch, err := s.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(EventQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %q: %w", EventQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %q", EventQueueName)
			}

			var event DomainEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				s.logger.Warn("dropping undecodable event",
					zap.String("queue", EventQueueName),
					zap.Error(err),
				)
				_ = delivery.Nack(false, false)
				continue
			}
			if err := event.Validate(); err != nil {
				s.logger.Warn("dropping invalid event", zap.Error(err))
				_ = delivery.Nack(false, false)
				continue
			}

			// Handler errors never requeue: the mapper drops bad events
			// instead of interrupting the stream.
			if err := handler(ctx, event); err != nil {
				s.logger.Warn("event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err),
				)
			}
			_ = delivery.Ack(false)
		}
	}
}

func (s *RabbitMQSource) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
