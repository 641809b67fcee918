package kafka

import (
	"context"
	"fmt"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/config"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/segmentio/kafka-go"
)

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// JobPublisher publishes new-job events to the jobs topic.
type JobPublisher struct {
	writer *kafka.Writer
	Topic  string
}

// NewJobPublisher creates a new Kafka publisher for job events.
func NewJobPublisher(cfg config.Config) *JobPublisher {
	return &JobPublisher{writer: newWriter(cfg.KafkaBrokers, cfg.KafkaTopicJobs), Topic: cfg.KafkaTopicJobs}
}

// PublishJob sends a JobEvent keyed by master account, so a master's jobs
// stay ordered within a partition.
func (p *JobPublisher) PublishJob(ctx context.Context, ev domain.JobEvent) error {
	value, err := EncodeJobEvent(ev)
	if err != nil {
		return err
	}
	key := []byte(ev.MasterAccountID)
	if len(key) == 0 {
		key = []byte(ev.JobID)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *JobPublisher) Close() error {
	return p.writer.Close()
}

// ResultPublisher publishes terminal job outcomes to the results topic.
type ResultPublisher struct {
	writer *kafka.Writer
	Topic  string
}

func NewResultPublisher(cfg config.Config) *ResultPublisher {
	return &ResultPublisher{writer: newWriter(cfg.KafkaBrokers, cfg.KafkaTopicResults), Topic: cfg.KafkaTopicResults}
}

func (p *ResultPublisher) PublishResult(ctx context.Context, job domain.ReplicationJob) error {
	value, err := EncodeJobResult(job)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: value}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *ResultPublisher) Close() error {
	return p.writer.Close()
}
