package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshu-sajeev/transcribeq/common"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitBroker implements Broker on RabbitMQ. The connection is opened on
// first use and reopened on the next call after it drops; publishers share
// one confirm-mode channel, each consumer gets its own channel.
type RabbitBroker struct {
	url        string
	retryDelay time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

var _ Broker = (*RabbitBroker)(nil)

func NewRabbitBroker(url string, retryDelay time.Duration, logger *zap.Logger) *RabbitBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitBroker{url: url, retryDelay: retryDelay, logger: logger}
}

// connection returns a live connection, dialing a new one if needed.
// Caller holds b.mu.
func (b *RabbitBroker) connection() (*amqp.Connection, error) {
	if b.closed {
		return nil, fmt.Errorf("broker closed: %w", common.ErrBrokerUnavailable)
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", errors.Join(common.ErrBrokerUnavailable, err))
	}
	b.conn = conn
	b.pubCh = nil
	b.logger.Info("rabbitmq connected")
	return conn, nil
}

// openChannel opens a channel on the shared connection and declares the
// topology on it. Declarations are idempotent.
func (b *RabbitBroker) openChannel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openChannelLocked()
}

func (b *RabbitBroker) openChannelLocked() (*amqp.Channel, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", errors.Join(common.ErrBrokerUnavailable, err))
	}
	if err := DeclareTopology(ch, b.retryDelay); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// DeclareTopology asserts the exchange, the three durable queues and their
// bindings. The retry queue parks messages for retryDelay and then
// dead-letters them back to the jobs routing key.
func DeclareTopology(ch *amqp.Channel, retryDelay time.Duration) error {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	queues := []struct {
		name string
		key  string
		args amqp.Table
	}{
		{name: JobsQueue, key: JobsKey},
		{name: RetryQueue, key: RetryKey, args: amqp.Table{
			"x-message-ttl":             retryDelay.Milliseconds(),
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": JobsKey,
		}},
		{name: DLQQueue, key: DLQKey},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.key, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.name, err)
		}
	}
	return nil
}

func (b *RabbitBroker) publisher() (*amqp.Channel, error) {
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		return b.pubCh, nil
	}
	ch, err := b.openChannelLocked()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", errors.Join(common.ErrBrokerUnavailable, err))
	}
	b.pubCh = ch
	return ch, nil
}

// publish sends a persistent message and waits for the broker to confirm it.
func (b *RabbitBroker) publish(ctx context.Context, key, jobID string) error {
	body, err := EncodeMessage(jobID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.publisher()
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		b.pubCh = nil
		return fmt.Errorf("publish %s: %w", key, errors.Join(common.ErrBrokerUnavailable, err))
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: await confirm: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: broker nacked message for job %s", key, jobID)
	}
	return nil
}

func (b *RabbitBroker) PublishJob(ctx context.Context, jobID string) error {
	return b.publish(ctx, JobsKey, jobID)
}

func (b *RabbitBroker) PublishRetry(ctx context.Context, jobID string) error {
	return b.publish(ctx, RetryKey, jobID)
}

func (b *RabbitBroker) PublishDlq(ctx context.Context, jobID string) error {
	return b.publish(ctx, DLQKey, jobID)
}

// ConsumeJobs subscribes to the jobs queue with manual acknowledgement and a
// prefetch of one, so each consumer holds at most one unsettled message.
func (b *RabbitBroker) ConsumeJobs(ctx context.Context, handler Handler) error {
	ch, err := b.openChannel()
	if err != nil {
		return fmt.Errorf("consume %s: %w", JobsQueue, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("consume %s: set qos: %w", JobsQueue, errors.Join(common.ErrBrokerUnavailable, err))
	}

	deliveries, err := ch.Consume(JobsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", JobsQueue, errors.Join(common.ErrBrokerUnavailable, err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consume %s: delivery channel closed: %w", JobsQueue, common.ErrBrokerUnavailable)
			}
			if err := handleDelivery(ctx, d.Body, d, handler, b.logger); err != nil {
				return fmt.Errorf("consume %s: settle message: %w", JobsQueue, errors.Join(common.ErrBrokerUnavailable, err))
			}
		}
	}
}

func (b *RabbitBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	var errs []error
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		errs = append(errs, b.pubCh.Close())
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	b.pubCh, b.conn = nil, nil
	return errors.Join(errs...)
}
