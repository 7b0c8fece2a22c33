// Package eventbus implements the outbound event sink adapter (component C):
// an AMQP 0-9-1 publisher with a reconnecting channel so a broker blip does
// not permanently wedge the outbox drainer.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/traffic-tacos/reservation-core/internal/common/events"
	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

const envelopeSource = "reservation-core"

// AMQPSink publishes outbox events to a durable topic exchange. The
// underlying connection and channel are re-established lazily whenever a
// publish observes them closed, so callers never need to manage reconnects.
type AMQPSink struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPSink(url, exchange string) *AMQPSink {
	return &AMQPSink{url: url, exchange: exchange}
}

// Publish serializes payload into an event envelope and submits it to the
// exchange, with event_type and trace_id mirrored into AMQP headers for
// broker-side routing and observability without deserializing the body.
func (s *AMQPSink) Publish(ctx context.Context, eventType string, payload []byte, traceID types.TraceID) error {
	env := events.NewEnvelope(envelopeSource, eventType, payload, traceID)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	ch, err := s.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers: amqp.Table{
			"event_type": eventType,
			"trace_id":   traceID.String(),
		},
	}

	routingKey := "reservation." + strings.ToLower(eventType)
	if err := ch.PublishWithContext(ctx, s.exchange, routingKey, false, false, pub); err != nil {
		s.invalidate()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the current channel, dialing a fresh connection and
// declaring the exchange if the previous one is closed or absent.
func (s *AMQPSink) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	s.conn = conn
	s.ch = ch
	return ch, nil
}

// invalidate drops the cached connection/channel after a publish error so
// the next call re-dials rather than retrying a broken channel.
func (s *AMQPSink) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.ch = nil
	s.conn = nil
}

// Close releases the underlying connection, if any.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.ch = nil
	return err
}

var _ domain.EventSink = (*AMQPSink)(nil)
