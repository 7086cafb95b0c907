// Package kafka publishes job events to a Kafka topic. Events for one job
// are keyed by job id, so per-job ordering holds within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/soulprintco/imprint/pkg/eventstream"
)

type Config struct {
	Brokers []string
	Topic   string
}

type Publisher struct {
	writer *kafkago.Writer
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafkago.Hash{},
		},
	}, nil
}

func (p *Publisher) PublishJob(ctx context.Context, event *eventstream.JobEvent) error {
	if event == nil {
		return eventstream.ErrNilJobEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding job event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.JobID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing job event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
