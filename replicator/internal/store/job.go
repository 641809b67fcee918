package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

// transitionScript moves a job hash from ARGV[1] to whatever ARGV[2..] sets,
// but only when the current status is exactly ARGV[1].
// Returns -1 when the job does not exist, 0 when the status did not match, 1 on success.
var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// createScript writes the job hash only if the key does not exist yet.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// ErrJobExists is returned by Create when the job id is already taken.
var ErrJobExists = errors.New("replication job already exists")

// JobStore keeps replication jobs as Redis hashes, one key per job.
// Status changes go through compare-and-set scripts so a job is claimed once.
type JobStore struct {
	client *redis.Client
	prefix string
}

func NewJobStore(client *redis.Client, prefix string) *JobStore {
	return &JobStore{client: client, prefix: prefix}
}

func (s *JobStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

// Create stores a new job. The job's status is written as given, normally pending.
func (s *JobStore) Create(ctx context.Context, job domain.ReplicationJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	trade, err := json.Marshal(job.Trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	created, err := createScript.Run(ctx, s.client, []string{s.key(job.ID)},
		"id", job.ID,
		"master_account_id", job.MasterAccountID,
		"trade", string(trade),
		"status", string(job.Status),
		"created_at", job.CreatedAt.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("redis create job %s: %w", job.ID, err)
	}
	if created == 0 {
		return ErrJobExists
	}
	return nil
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (domain.ReplicationJob, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return domain.ReplicationJob{}, fmt.Errorf("redis HGETALL %s: %w", s.key(id), err)
	}
	if len(fields) == 0 {
		return domain.ReplicationJob{}, domain.ErrJobNotFound
	}
	return decodeJob(fields)
}

// Claim atomically moves a pending job to processing and returns it.
// Jobs in any other status yield domain.ErrAlreadyProcessed.
func (s *JobStore) Claim(ctx context.Context, id string) (domain.ReplicationJob, error) {
	if err := s.transition(ctx, id, domain.JobStatusPending, "status", string(domain.JobStatusProcessing)); err != nil {
		return domain.ReplicationJob{}, err
	}
	return s.Get(ctx, id)
}

// Finish writes the terminal status, results, error and processed_at of a
// job previously claimed with Claim.
func (s *JobStore) Finish(ctx context.Context, job domain.ReplicationJob) error {
	if !job.Status.Terminal() {
		return fmt.Errorf("finish job %s: status %q is not terminal", job.ID, job.Status)
	}
	results := []byte("[]")
	if len(job.Results) > 0 {
		var err error
		if results, err = json.Marshal(job.Results); err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}
	processedAt := ""
	if job.ProcessedAt != nil {
		processedAt = job.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}

	return s.transition(ctx, job.ID, domain.JobStatusProcessing,
		"status", string(job.Status),
		"results", string(results),
		"error", job.Error,
		"processed_at", processedAt,
	)
}

func (s *JobStore) transition(ctx context.Context, id string, from domain.JobStatus, fields ...any) error {
	args := append([]any{string(from)}, fields...)
	res, err := transitionScript.Run(ctx, s.client, []string{s.key(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis transition job %s: %w", id, err)
	}
	switch res {
	case -1:
		return domain.ErrJobNotFound
	case 0:
		return domain.ErrAlreadyProcessed
	default:
		return nil
	}
}

func decodeJob(fields map[string]string) (domain.ReplicationJob, error) {
	job := domain.ReplicationJob{
		ID:              fields["id"],
		MasterAccountID: fields["master_account_id"],
		Status:          domain.JobStatus(fields["status"]),
		Error:           fields["error"],
	}
	if raw := fields["trade"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Trade); err != nil {
			return domain.ReplicationJob{}, fmt.Errorf("unmarshal trade of job %s: %w", job.ID, err)
		}
	}
	if raw := fields["results"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Results); err != nil {
			return domain.ReplicationJob{}, fmt.Errorf("unmarshal results of job %s: %w", job.ID, err)
		}
	}
	if raw := fields["created_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.ReplicationJob{}, fmt.Errorf("parse created_at of job %s: %w", job.ID, err)
		}
		job.CreatedAt = t
	}
	if raw := fields["processed_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.ReplicationJob{}, fmt.Errorf("parse processed_at of job %s: %w", job.ID, err)
		}
		job.ProcessedAt = &t
	}
	return job, nil
}
