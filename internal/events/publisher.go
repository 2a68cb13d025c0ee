// Package events publishes ledger events to an AMQP broker.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/mmynk/sharedledger/internal/models"
)

// RoutingKeyMaterialized routes EntryMaterializedMessage.
const RoutingKeyMaterialized = "entry.materialized"

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Publisher sends ledger events to a topic exchange. The connection is
// re-established lazily after a failure; repeated failures open a circuit
// breaker so callers fail fast while the broker is down.
type Publisher struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
	logger       *slog.Logger
}

// NewPublisher connects to url and declares the exchange and a durable
// queue bound to materialization events.
func NewPublisher(url, exchangeName, queueName string) (*Publisher, error) {
	p := &Publisher{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       slog.Default().With("component", "events"),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials and declares the topology. Callers hold p.mu.
func (p *Publisher) connect() error {
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, p.exchangeName, p.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if queueName == "" {
		return nil
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, RoutingKeyMaterialized, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishMaterialized publishes an EntryMaterializedMessage for entry.
func (p *Publisher) PublishMaterialized(ctx context.Context, entry *models.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isCircuitOpen() {
		return fmt.Errorf("publish entry %s: %w", entry.ID, ErrCircuitOpen)
	}

	body, err := NewEntryMaterializedMessage(entry, time.Now().UTC()).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := p.publish(ctx, RoutingKeyMaterialized, body); err != nil {
		p.recordFailure()
		return err
	}
	p.recordSuccess()

	p.logger.DebugContext(ctx, "Published materialized entry",
		"entry_id", entry.ID,
		"template_id", entry.RecurringTemplateID,
		"exchange", p.exchangeName,
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			p.dropConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Consume delivers materialization messages from the publisher's queue to
// handler until ctx is done. Messages the handler fails on are requeued;
// malformed ones are dropped.
func (p *Publisher) Consume(ctx context.Context, handler func(context.Context, *EntryMaterializedMessage) error) error {
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()
	if ch == nil {
		return errors.New("consume: not connected")
	}

	msgs, err := ch.Consume(
		p.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			switch dispatch(ctx, p.logger, delivery.Body, handler) {
			case outcomeAck:
				delivery.Ack(false)
			case outcomeRequeue:
				delivery.Nack(false, true)
			default:
				delivery.Nack(false, false)
			}
		}
	}
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

// dispatch decodes one delivery and runs handler on it.
func dispatch(ctx context.Context, logger *slog.Logger, body []byte, handler func(context.Context, *EntryMaterializedMessage) error) outcome {
	msg, err := EntryMaterializedMessageFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
		return outcomeDrop
	}
	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message", "error", err, "entry_id", msg.EntryID)
		return outcomeRequeue
	}
	return outcomeAck
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// dropConnection forgets a broken connection so the next publish redials.
// Callers hold p.mu.
func (p *Publisher) dropConnection() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.channel = nil
}

func (p *Publisher) isCircuitOpen() bool {
	switch atomic.LoadInt32(&p.state) {
	case StateOpen:
		p.mu.Lock()
		last := p.lastFailure
		p.mu.Unlock()
		if time.Since(last) < openTimeout {
			return true
		}
		atomic.CompareAndSwapInt32(&p.state, StateOpen, StateHalfOpen)
		return false
	default:
		return false
	}
}

func (p *Publisher) recordFailure() {
	p.mu.Lock()
	p.lastFailure = time.Now()
	p.mu.Unlock()

	n := atomic.AddInt64(&p.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&p.state) == StateHalfOpen {
		if atomic.SwapInt32(&p.state, StateOpen) != StateOpen {
			p.logger.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

// exponentialBackoff is the wait before reconnect attempt n, doubling from
// one second and capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// DialWithRetry calls NewPublisher until it succeeds, ctx is done or
// attempts run out.
func DialWithRetry(ctx context.Context, url, exchangeName, queueName string, attempts int) (*Publisher, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		p, err := NewPublisher(url, exchangeName, queueName)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if !isConnectionError(err) {
			return nil, err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP connection failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect to AMQP after %d attempts: %w", attempts, lastErr)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
