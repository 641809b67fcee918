package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xRichardL/vibe-copy-trading/libs/go/routine"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/rs/zerolog"
)

// JobConsumer delivers job events until ctx is cancelled or the source fails.
type JobConsumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.JobEvent) error) error
}

// Processor is satisfied by ReplicationService.
type Processor interface {
	Process(ctx context.Context, ev domain.JobEvent) (*domain.ReplicationJob, error)
}

// JobWorker owns the background routine that consumes job events and runs
// each job on its own goroutine, keyed by job id.
type JobWorker struct {
	consumer  JobConsumer
	processor Processor
	logger    zerolog.Logger
}

func NewJobWorker(consumer JobConsumer, processor Processor, logger zerolog.Logger) *JobWorker {
	return &JobWorker{
		consumer:  consumer,
		processor: processor,
		logger:    logger,
	}
}

// Start consumes job events until ctx is cancelled. In-flight jobs are
// allowed to finish before Start returns.
func (w *JobWorker) Start(ctx context.Context) error {
	// Jobs run detached from ctx so shutdown does not abandon a claimed job
	// half-way; the manager waits for them instead.
	manager := routine.NewManager(context.WithoutCancel(ctx))
	defer manager.Wait()

	handler := func(ctx context.Context, ev domain.JobEvent) error {
		if ev.JobID == "" {
			w.logger.Warn().Msg("dropping job event without id")
			return nil
		}
		err := manager.RunTask(&routine.Task{
			ID:      ev.JobID,
			Handler: w.runJob(ev),
			OnError: func(id string, err error) {
				w.logger.Error().Err(err).Str("job_id", id).Msg("process replication job")
			},
		})
		switch {
		case errors.Is(err, routine.ErrRoutineExists):
			w.logger.Debug().Str("job_id", ev.JobID).Msg("job already in flight, dropping duplicate")
			return nil
		case err != nil:
			return fmt.Errorf("schedule job %s: %w", ev.JobID, err)
		}
		return nil
	}

	if err := w.consumer.Consume(ctx, handler); err != nil {
		return fmt.Errorf("consume job events: %w", err)
	}
	return nil
}

func (w *JobWorker) runJob(ev domain.JobEvent) routine.Handler {
	return func(ctx context.Context) error {
		_, err := w.processor.Process(ctx, ev)
		return err
	}
}
