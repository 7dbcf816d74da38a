package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a consumer for paid-order events arriving over the
// commerce event bus instead of the webhook.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes paid-order events until ctx is cancelled. Issuance is
// idempotent, so an order delivered over both the webhook and the bus still
// yields one set of tickets.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, order models.OrderPayload)) {
	c.logger.LogKafka("START", c.reader.Config().Topic, "Order event consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var order models.OrderPayload
		if err := json.Unmarshal(msg.Value, &order); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal order event: %v", err))
			continue
		}

		c.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("Paid-order event for order %s", order.ID))
		handler(ctx, order)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
