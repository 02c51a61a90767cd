package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

// DeliveryHandler routes a live notification and returns how many
// sessions took it.
type DeliveryHandler func(models.NotificationDelivery) int

// NotificationConsumer feeds live notifications from a topic exchange.
type NotificationConsumer struct {
	url        string
	exchange   string
	queue      string
	bindingKey string
	handle     DeliveryHandler
	retry      time.Duration
}

func NewNotificationConsumer(amqpURL, exchange, queue string, handle DeliveryHandler) *NotificationConsumer {
	return &NotificationConsumer{
		url:        amqpURL,
		exchange:   exchange,
		queue:      queue,
		bindingKey: "notifications.#",
		handle:     handle,
		retry:      5 * time.Second,
	}
}

// Run consumes until ctx is cancelled, reconnecting after failures.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("rabbitmq notification feed: empty amqp url")
	}
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			log.Printf("rabbitmq notification consumer stopped queue=%s", c.queue)
			return nil
		}
		log.Printf("rabbitmq notification consumer error queue=%s retry_in=%s err=%v", c.queue, c.retry, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retry):
		}
	}
}

func (c *NotificationConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareTopic(ch, c.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, c.bindingKey, c.exchange, false, nil); err != nil {
		return err
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Printf("rabbitmq notification consumer started exchange=%s queue=%s", c.exchange, q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.process(d.Body)
			if err := d.Ack(false); err != nil {
				log.Printf("rabbitmq ack failed delivery_tag=%d err=%v", d.DeliveryTag, err)
			}
		}
	}
}

func (c *NotificationConsumer) process(body []byte) {
	delivery, err := models.ParseNotificationDelivery(body)
	if err != nil {
		log.Printf("rabbitmq notification dropped: %v", err)
		observability.IncNotificationDelivery("amqp", "invalid")
		return
	}
	if n := c.handle(delivery); n == 0 {
		observability.IncNotificationDelivery("amqp", "no_session")
		return
	}
	observability.IncNotificationDelivery("amqp", "delivered")
}
