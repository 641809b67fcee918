package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// JobStore is the slice of the job store the engine mutates.
type JobStore interface {
	Claim(ctx context.Context, id string) (domain.ReplicationJob, error)
	Finish(ctx context.Context, job domain.ReplicationJob) error
}

type RelationshipReader interface {
	ListActiveByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error)
}

type AccountsClient interface {
	GetAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error)
}

type ExecutionClient interface {
	ExecuteTrade(ctx context.Context, order domain.FollowerOrder) (domain.ExecutionReceipt, error)
}

// ResultPublisher announces terminal jobs to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, job domain.ReplicationJob) error
}

// Options tunes the per-job fan-out.
type Options struct {
	// FollowerTimeout bounds the snapshot fetch plus order submission of one follower.
	// Zero disables the per-follower deadline.
	FollowerTimeout time.Duration
	// MaxConcurrentFollowers caps in-flight followers per job; 0 means unbounded.
	MaxConcurrentFollowers int
}

// ReplicationService copies a master trade to every active follower of the master.
type ReplicationService struct {
	jobs          JobStore
	relationships RelationshipReader
	accounts      AccountsClient
	execution     ExecutionClient
	results       ResultPublisher
	opts          Options
	logger        zerolog.Logger
	now           func() time.Time
}

// NewReplicationService constructs a ReplicationService. results may be nil.
func NewReplicationService(
	jobs JobStore,
	relationships RelationshipReader,
	accounts AccountsClient,
	execution ExecutionClient,
	results ResultPublisher,
	opts Options,
	logger zerolog.Logger,
) *ReplicationService {
	return &ReplicationService{
		jobs:          jobs,
		relationships: relationships,
		accounts:      accounts,
		execution:     execution,
		results:       results,
		opts:          opts,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one replication job to a terminal status and returns the
// stored outcome. A job that is no longer pending yields (nil, nil) and is
// left untouched.
func (s *ReplicationService) Process(ctx context.Context, ev domain.JobEvent) (*domain.ReplicationJob, error) {
	log := s.logger.With().Str("job_id", ev.JobID).Logger()

	job, err := s.jobs.Claim(ctx, ev.JobID)
	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		log.Debug().Msg("job is not pending, skipping")
		metrics.JobSkipped()
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("claim job %s: %w", ev.JobID, err)
	}
	started := time.Now()
	log = log.With().Str("master_id", job.MasterAccountID).Logger()

	rels, err := s.relationships.ListActiveByMaster(ctx, job.MasterAccountID)
	if err != nil {
		return s.fail(ctx, log, job, started, fmt.Errorf("list relationships: %w", err))
	}
	if len(rels) == 0 {
		job.Status = domain.JobStatusCompletedNoFollowers
		return s.finish(ctx, log, job, started)
	}

	master, err := s.accounts.GetAccount(ctx, job.MasterAccountID)
	if err != nil {
		return s.fail(ctx, log, job, started, fmt.Errorf("%w: %v", domain.ErrMasterDataUnavailable, err))
	}

	job.Results = s.fanOut(ctx, log, job, master, rels)
	job.Status = domain.JobStatusCompleted
	return s.finish(ctx, log, job, started)
}

// fanOut replicates to every relationship concurrently. Results keep the
// order of rels regardless of completion order.
func (s *ReplicationService) fanOut(ctx context.Context, log zerolog.Logger, job domain.ReplicationJob, master domain.AccountSnapshot, rels []domain.CopyRelationship) []domain.FollowerResult {
	results := make([]domain.FollowerResult, len(rels))

	var g errgroup.Group
	if s.opts.MaxConcurrentFollowers > 0 {
		g.SetLimit(s.opts.MaxConcurrentFollowers)
	}
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			res := s.safeReplicateTo(ctx, job, master, rel)
			if res.Status == domain.ResultFailed {
				log.Warn().Str("follower_id", rel.FollowerAccountID).Str("reason", res.Error).Msg("follower replication failed")
			}
			metrics.FollowerResult(string(res.Status))
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// safeReplicateTo turns a panic while handling one follower into a failed
// result for that follower.
func (s *ReplicationService) safeReplicateTo(ctx context.Context, job domain.ReplicationJob, master domain.AccountSnapshot, rel domain.CopyRelationship) (res domain.FollowerResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.FollowerResult{
				FollowerID: rel.FollowerAccountID,
				Status:     domain.ResultFailed,
				Error:      fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	return s.replicateTo(ctx, job, master, rel)
}

func (s *ReplicationService) replicateTo(ctx context.Context, job domain.ReplicationJob, master domain.AccountSnapshot, rel domain.CopyRelationship) domain.FollowerResult {
	if s.opts.FollowerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FollowerTimeout)
		defer cancel()
	}
	res := domain.FollowerResult{FollowerID: rel.FollowerAccountID, Status: domain.ResultFailed}

	follower, err := s.accounts.GetAccount(ctx, rel.FollowerAccountID)
	if err != nil {
		res.Error = fmt.Errorf("%w: %v", domain.ErrFollowerDataUnavailable, err).Error()
		return res
	}

	res.Volume = ScaleVolume(job.Trade.Volume, master.Balance, follower.Balance, rel.RiskRatio)
	if res.Volume <= 0 {
		res.Error = domain.ErrNonPositiveVolume.Error()
		return res
	}

	_, err = s.execution.ExecuteTrade(ctx, domain.FollowerOrder{
		FollowerID: rel.FollowerAccountID,
		Symbol:     job.Trade.Symbol,
		Direction:  job.Trade.Direction,
		Volume:     res.Volume,
		StopLoss:   job.Trade.StopLoss,
		TakeProfit: job.Trade.TakeProfit,
		Comment:    "copy:" + job.ID,
	})
	if err != nil {
		res.Error = fmt.Errorf("%w: %v", domain.ErrOrderSubmissionFailed, err).Error()
		return res
	}
	res.Status = domain.ResultSuccess
	return res
}

func (s *ReplicationService) fail(ctx context.Context, log zerolog.Logger, job domain.ReplicationJob, started time.Time, cause error) (*domain.ReplicationJob, error) {
	log.Error().Err(cause).Msg("replication job failed")
	job.Status = domain.JobStatusFailed
	job.Error = cause.Error()
	job.Results = nil
	return s.finish(ctx, log, job, started)
}

func (s *ReplicationService) finish(ctx context.Context, log zerolog.Logger, job domain.ReplicationJob, started time.Time) (*domain.ReplicationJob, error) {
	processedAt := s.now()
	job.ProcessedAt = &processedAt
	if err := s.jobs.Finish(ctx, job); err != nil {
		return nil, fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	metrics.JobFinished(string(job.Status), time.Since(started))
	log.Info().Str("status", string(job.Status)).Int("followers", len(job.Results)).Msg("replication job finished")

	if s.results != nil {
		if err := s.results.PublishResult(ctx, job); err != nil {
			log.Warn().Err(err).Msg("publish job result")
		}
	}
	return &job, nil
}
