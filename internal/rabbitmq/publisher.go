package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-engine/internal/observability"
	"chat-engine/internal/telemetry"
)

// Publisher publishes audit and gateway events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

var errPublisherClosed = errors.New("publisher closed")

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is
// disabled or unreachable at startup. A connection lost later is redialed
// on the next publish.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Printf("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}
	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

func declareTopic(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// amqpPublisher serializes publishes from every session onto one channel.
type amqpPublisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// connect must be called with mu held or before the publisher is shared.
func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := declareTopic(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	eventType, requestID := envelopeMeta(event)
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Type:          eventType,
		CorrelationId: requestID,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPublisherClosed
	}
	if p.ch == nil || p.ch.IsClosed() {
		p.drop()
		if err := p.connect(); err != nil {
			log.Printf("rabbitmq reconnect failed routing_key=%s: %v", routingKey, err)
			return err
		}
		log.Printf("rabbitmq reconnected exchange=%s", p.exchange)
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s event_type=%s: %v", routingKey, eventType, err)
		p.drop()
		return err
	}
	return nil
}

func (p *amqpPublisher) drop() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.drop()
	return nil
}

// envelopeMeta extracts the event type and request id of known envelopes.
func envelopeMeta(event any) (string, string) {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType, envelope.RequestID
	case observability.EventEnvelope:
		return envelope.EventType + "." + envelope.EventName, envelope.RequestID
	default:
		return "", ""
	}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	eventType, requestID := envelopeMeta(event)
	log.Printf("rabbitmq noop publish routing_key=%s event_type=%s request_id=%s", routingKey, eventType, requestID)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
