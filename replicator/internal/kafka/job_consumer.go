package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/config"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// JobConsumer consumes replication job events from Kafka.
type JobConsumer struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

// NewJobConsumer creates a new Kafka consumer for replication job events.
func NewJobConsumer(cfg config.Config, logger zerolog.Logger) *JobConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaTopicJobs,
	})
	return &JobConsumer{reader: reader, logger: logger}
}

// Consume reads messages from Kafka and passes them to the provided handler.
// Messages that do not decode are logged and skipped.
func (c *JobConsumer) Consume(ctx context.Context, handler func(context.Context, domain.JobEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		ev, err := DecodeJobEvent(msg.Value)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("skipping malformed job event")
			continue
		}

		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *JobConsumer) Close() error {
	return c.reader.Close()
}
