package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

const (
	ActionAcquire = "acquire"
	ActionPublish = "publish"
)

type MessageHandler func(ctx context.Context, msg *CurationMessage) error

// CurationMessage mirrors the producer-side contract in api/kafka.
type CurationMessage struct {
	TaskID    string   `json:"task_id"`
	TraceID   string   `json:"trace_id"`
	WorkerID  string   `json:"worker_id"`
	Action    string   `json:"action"`
	Selected  []string `json:"selected,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
}

type Consumer struct {
	consumer sarama.ConsumerGroup
}

func NewConsumer(brokers []string, groupID string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

type consumerHandler struct {
	fn  MessageHandler
	ctx context.Context
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var curationMsg CurationMessage
		if err := json.Unmarshal(msg.Value, &curationMsg); err != nil {
			session.MarkMessage(msg, "")
			continue
		}
		h.fn(h.ctx, &curationMsg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) Consume(ctx context.Context, topic string, handler MessageHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx}
	return c.consumer.Consume(ctx, []string{topic}, h)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
