package kafka

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// MessageHandler receives every message of a claim. The offset is marked
// once it returns, so it should hand slow work off and return quickly.
type MessageHandler func(context.Context, *sarama.ConsumerMessage)

// Consumer is one consumer group subscribed to a single topic.
type Consumer struct {
	Client sarama.ConsumerGroup
	Name   string
}

func NewConsumer(groupID, name string) (*Consumer, error) {
	client, err := createConsumerGroup(groupID, name)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client: client,
		Name:   name,
	}, nil
}

// Consume blocks until ctx is canceled.
func (c *Consumer) Consume(ctx context.Context, topic string, messageHandler MessageHandler) {
	runConsumerLoop(ctx, c.Client, topic, &consumerGroupHandler{messageHandler: messageHandler}, c.Name)
}

func (c *Consumer) Close() error {
	err := c.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka consumer",
			zap.String("consumer", c.Name),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("Kafka consumer closed successfully", zap.String("consumer", c.Name))

	return nil
}

type consumerGroupHandler struct {
	messageHandler MessageHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.messageHandler(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
