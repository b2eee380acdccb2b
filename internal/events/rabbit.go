package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// QueueName is the durable queue marketplace events are published to.
const QueueName = "marketplace.events"

// RabbitSink publishes events to a durable RabbitMQ queue as persistent JSON
// messages. Publish failures are logged and the event is dropped, so the
// caller's transition is never disturbed by a dead broker.
type RabbitSink struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitSink connects to the broker and declares the event queue.
func NewRabbitSink(url string, log *zap.Logger) (*RabbitSink, error) {
	if log == nil {
		log = zap.L()
	}
	s := &RabbitSink{url: url, log: log}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RabbitSink) connect() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	s.conn = conn
	s.ch = ch
	return nil
}

func (s *RabbitSink) Append(ctx context.Context, e Event) {
	body, err := json.Marshal(struct {
		Kind      string `json:"kind"`
		ListingID uint64 `json:"listing_id"`
		Payload   Event  `json:"payload"`
	}{e.Kind(), e.Correlation(), e})
	if err != nil {
		s.log.Error("event marshal failed", zap.String("kind", e.Kind()), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.publish(ctx, body); err != nil {
		// One reconnect attempt; a dead broker must not fail the operation.
		if rerr := s.connect(); rerr != nil {
			s.log.Warn("event publish failed, broker unreachable",
				zap.String("kind", e.Kind()), zap.Error(err))
			return
		}
		if err := s.publish(ctx, body); err != nil {
			s.log.Warn("event publish failed after reconnect",
				zap.String("kind", e.Kind()), zap.Error(err))
		}
	}
}

func (s *RabbitSink) publish(ctx context.Context, body []byte) error {
	return s.ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// Close tears down the channel and connection.
func (s *RabbitSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
