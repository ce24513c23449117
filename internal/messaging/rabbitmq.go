package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ReleaseQueue holds released evidence refs until the file store collaborator removes them.
	ReleaseQueue = "report.refs.release"

	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
)

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	PublishAttempts uint
	RetryDelay      time.Duration
}

type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	cfg       RabbitMQConfig
	logger    *charmLog.Logger
	dial      func() (*amqp.Connection, *amqp.Channel, error)
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewRabbitMQ(cfg RabbitMQConfig, logger *charmLog.Logger) (*RabbitMQ, error) {
	if cfg.PublishAttempts == 0 {
		cfg.PublishAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	rmq := &RabbitMQ{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	rmq.dial = rmq.connect

	conn, channel, err := rmq.dial()
	if err != nil {
		return nil, err
	}
	rmq.conn, rmq.channel = conn, channel

	go rmq.handleReconnect()

	return rmq, nil
}

// connect dials the broker and declares the topology. It touches no shared state.
func (r *RabbitMQ) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel, r.cfg.Exchange); err != nil {
		conn.Close()
		return nil, nil, err
	}

	r.logger.Info("rabbitmq connected", "exchange", r.cfg.Exchange)
	return conn, channel, nil
}

func declareTopology(channel *amqp.Channel, exchange string) error {
	err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Released refs must survive a file store outage, so their queue is declared here
	// rather than left to the consumer.
	_, err = channel.QueueDeclare(
		ReleaseQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(ReleaseQueue, EventRefsReleased, exchange, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind queue with key %s: %w", EventRefsReleased, err)
	}
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		r.mu.RLock()
		closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
		r.mu.RUnlock()

		select {
		case <-r.done:
			return
		case err := <-closed:
			if err != nil {
				r.logger.Warn("rabbitmq connection lost, reconnecting", "err", err)
			}
			if !r.reconnect() {
				return
			}
		}
	}
}

// reconnect dials until it succeeds or Close is called. The lock is held only to
// swap in the new connection, so publishers fail fast instead of waiting on the dial.
func (r *RabbitMQ) reconnect() bool {
	for {
		conn, channel, err := r.dial()
		if err == nil {
			r.mu.Lock()
			defer r.mu.Unlock()
			select {
			case <-r.done:
				channel.Close()
				conn.Close()
				return false
			default:
			}
			r.conn, r.channel = conn, channel
			return true
		}

		r.logger.Error("rabbitmq reconnect failed", "err", err, "retry_in", reconnectDelay)
		select {
		case <-r.done:
			return false
		case <-time.After(reconnectDelay):
		}
	}
}

// Publish sends the event to the topic exchange keyed by its type, retrying with backoff.
func (r *RabbitMQ) Publish(ctx context.Context, event ReportEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error { return r.publish(ctx, event.Type, msg) },
		retry.Context(ctx),
		retry.Attempts(r.cfg.PublishAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("rabbitmq publish retry", "attempt", n+1, "routing_key", event.Type, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("publish %s for report %s: %w", event.Type, event.ReportID, err)
	}

	r.logger.Debug("published event", "routing_key", event.Type, "report_id", event.ReportID)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil || r.channel.IsClosed() {
		return fmt.Errorf("channel not available")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		r.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func newPublishing(event ReportEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

func (r *RabbitMQ) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}

	r.logger.Info("rabbitmq connection closed")
}
