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

type Producer interface {
	SendCurationMessage(ctx context.Context, topic string, message *CurationMessage) error
	Close() error
}

// CurationMessage is the fire-and-forget job submission for the pipeline
// worker. The worker re-validates task ownership itself; the message only
// says which task, which worker, and which stage to run.
type CurationMessage struct {
	TaskID    string   `json:"task_id"`
	TraceID   string   `json:"trace_id"`
	WorkerID  string   `json:"worker_id"`
	Action    string   `json:"action"`
	Selected  []string `json:"selected,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
}

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

func (p *producer) SendCurationMessage(ctx context.Context, topic string, message *CurationMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(message.TaskID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
