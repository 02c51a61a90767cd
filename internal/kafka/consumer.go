// Package kafka feeds live notifications from a Kafka topic.
package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

// DeliveryHandler routes a live notification and returns how many
// sessions took it.
type DeliveryHandler func(models.NotificationDelivery) int

type Consumer struct {
	reader *kafka.Reader
	handle DeliveryHandler
}

func NewConsumer(brokers []string, groupID, topic string, handle DeliveryHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
		handle: handle,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	cfg := c.reader.Config()
	log.Printf("kafka notification consumer started group=%s topic=%s brokers=%v", cfg.GroupID, cfg.Topic, cfg.Brokers)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("kafka notification consumer stopped topic=%s", cfg.Topic)
				return nil
			}
			log.Printf("kafka fetch error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		Process(m.Value, c.handle)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("kafka commit error offset=%d err=%v", m.Offset, err)
		}
	}
}

// Process decodes one record and hands it to handle. Invalid records are
// logged and dropped.
func Process(value []byte, handle DeliveryHandler) {
	delivery, err := models.ParseNotificationDelivery(value)
	if err != nil {
		log.Printf("kafka notification dropped: %v", err)
		observability.IncNotificationDelivery("kafka", "invalid")
		return
	}
	if handle(delivery) == 0 {
		observability.IncNotificationDelivery("kafka", "no_session")
		return
	}
	observability.IncNotificationDelivery("kafka", "delivered")
}
