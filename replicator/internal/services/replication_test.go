package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]domain.ReplicationJob
	claimErr error
	finished []domain.ReplicationJob
}

func newFakeJobStore(jobs ...domain.ReplicationJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]domain.ReplicationJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Claim(_ context.Context, id string) (domain.ReplicationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return domain.ReplicationJob{}, s.claimErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return domain.ReplicationJob{}, domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return domain.ReplicationJob{}, domain.ErrAlreadyProcessed
	}
	job.Status = domain.JobStatusProcessing
	s.jobs[id] = job
	return job, nil
}

func (s *fakeJobStore) Finish(_ context.Context, job domain.ReplicationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[job.ID].Status != domain.JobStatusProcessing {
		return domain.ErrAlreadyProcessed
	}
	s.jobs[job.ID] = job
	s.finished = append(s.finished, job)
	return nil
}

type fakeRelationships struct {
	rels map[string][]domain.CopyRelationship
	err  error
}

func (f fakeRelationships) ListActiveByMaster(_ context.Context, masterID string) ([]domain.CopyRelationship, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rels[masterID], nil
}

type fakeAccounts struct {
	balances map[string]float64
	errs     map[string]error
	// block makes GetAccount wait for ctx cancellation for the listed ids.
	block map[string]bool
}

func (f fakeAccounts) GetAccount(ctx context.Context, id string) (domain.AccountSnapshot, error) {
	if f.block[id] {
		<-ctx.Done()
		return domain.AccountSnapshot{}, ctx.Err()
	}
	if err := f.errs[id]; err != nil {
		return domain.AccountSnapshot{}, err
	}
	bal, ok := f.balances[id]
	if !ok {
		return domain.AccountSnapshot{}, errors.New("unknown account")
	}
	return domain.AccountSnapshot{AccountID: id, Balance: bal}, nil
}

type fakeExecution struct {
	mu     sync.Mutex
	orders []domain.FollowerOrder
	errs   map[string]error
	hook   func(domain.FollowerOrder)
}

func (f *fakeExecution) ExecuteTrade(_ context.Context, order domain.FollowerOrder) (domain.ExecutionReceipt, error) {
	if f.hook != nil {
		f.hook(order)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	if err := f.errs[order.FollowerID]; err != nil {
		return domain.ExecutionReceipt{}, err
	}
	return domain.ExecutionReceipt{Ticket: "t-" + order.FollowerID}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []domain.ReplicationJob
	err  error
}

func (f *fakePublisher) PublishResult(_ context.Context, job domain.ReplicationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pendingJob() domain.ReplicationJob {
	return domain.ReplicationJob{
		ID:              "job-1",
		MasterAccountID: "1001",
		Trade:           domain.MasterTrade{Symbol: "EURUSD", Direction: "BUY", Volume: 1, StopLoss: 1.05, TakeProfit: 1.2},
		Status:          domain.JobStatusPending,
	}
}

func active(follower string, ratio float64) domain.CopyRelationship {
	return domain.CopyRelationship{MasterAccountID: "1001", FollowerAccountID: follower, RiskRatio: ratio, Status: domain.RelationshipActive}
}

type harness struct {
	jobs      *fakeJobStore
	exec      *fakeExecution
	publisher *fakePublisher
	svc       *ReplicationService
}

func newHarness(rels fakeRelationships, accounts fakeAccounts, exec *fakeExecution, opts Options) *harness {
	h := &harness{
		jobs:      newFakeJobStore(pendingJob()),
		exec:      exec,
		publisher: &fakePublisher{},
	}
	h.svc = NewReplicationService(h.jobs, rels, accounts, exec, h.publisher, opts, zerolog.Nop())
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func event() domain.JobEvent {
	return domain.JobEvent{JobID: "job-1", MasterAccountID: "1001"}
}

func TestProcess_ScalesVolumeAndSubmits(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": 20000}},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.Equal(t, fixedNow, *job.ProcessedAt)
	assert.Equal(t, []domain.FollowerResult{{FollowerID: "2002", Status: domain.ResultSuccess, Volume: 2}}, job.Results)

	require.Len(t, h.exec.orders, 1)
	assert.Equal(t, domain.FollowerOrder{
		FollowerID: "2002",
		Symbol:     "EURUSD",
		Direction:  "BUY",
		Volume:     2,
		StopLoss:   1.05,
		TakeProfit: 1.2,
		Comment:    "copy:job-1",
	}, h.exec.orders[0])

	assert.Equal(t, *job, h.jobs.jobs["job-1"])
	require.Len(t, h.publisher.jobs, 1)
	assert.Equal(t, domain.JobStatusCompleted, h.publisher.jobs[0].Status)
}

func TestProcess_FollowerFetchFailureIsIsolated(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1), active("3003", 0.5)}}},
		fakeAccounts{
			balances: map[string]float64{"1001": 10000, "3003": 10000},
			errs:     map[string]error{"2002": errors.New("connection refused")},
		},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.FollowerResult{
		FollowerID: "2002",
		Status:     domain.ResultFailed,
		Error:      "follower account data unavailable: connection refused",
	}, job.Results[0])
	assert.Equal(t, domain.FollowerResult{FollowerID: "3003", Status: domain.ResultSuccess, Volume: 0.5}, job.Results[1])
	require.Len(t, h.exec.orders, 1)
	assert.Equal(t, "3003", h.exec.orders[0].FollowerID)
}

func TestProcess_NoFollowers(t *testing.T) {
	h := newHarness(fakeRelationships{}, fakeAccounts{}, &fakeExecution{}, Options{})

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompletedNoFollowers, job.Status)
	assert.Empty(t, job.Results)
	assert.NotNil(t, job.ProcessedAt)
	assert.Empty(t, h.exec.orders)
}

func TestProcess_SecondInvocationIsNoop(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": 10000}},
		&fakeExecution{},
		Options{},
	)

	_, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)
	stored := h.jobs.jobs["job-1"]

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Len(t, h.exec.orders, 1)
	assert.Len(t, h.jobs.finished, 1)
	assert.Equal(t, stored, h.jobs.jobs["job-1"])
}

func TestProcess_MissingJob(t *testing.T) {
	h := newHarness(fakeRelationships{}, fakeAccounts{}, &fakeExecution{}, Options{})

	_, err := h.svc.Process(context.Background(), domain.JobEvent{JobID: "nope"})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestProcess_ClaimErrorLeavesJobAlone(t *testing.T) {
	h := newHarness(fakeRelationships{}, fakeAccounts{}, &fakeExecution{}, Options{})
	h.jobs.claimErr = errors.New("redis down")

	_, err := h.svc.Process(context.Background(), event())
	assert.ErrorContains(t, err, "redis down")
	assert.Empty(t, h.jobs.finished)
	assert.Equal(t, domain.JobStatusPending, h.jobs.jobs["job-1"].Status)
}

func TestProcess_MasterUnavailableFailsJob(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1)}}},
		fakeAccounts{
			balances: map[string]float64{"2002": 10000},
			errs:     map[string]error{"1001": errors.New("timeout")},
		},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "master account data unavailable: timeout", job.Error)
	assert.Empty(t, job.Results)
	assert.Empty(t, h.exec.orders)
	require.Len(t, h.publisher.jobs, 1)
}

func TestProcess_RelationshipLookupFailureFailsJob(t *testing.T) {
	h := newHarness(fakeRelationships{err: errors.New("pg unavailable")}, fakeAccounts{}, &fakeExecution{}, Options{})

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "pg unavailable")
}

func TestProcess_ZeroMasterBalance(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 0, "2002": 10000}},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, []domain.FollowerResult{{FollowerID: "2002", Status: domain.ResultFailed, Error: "non-positive computed volume"}}, job.Results)
	assert.Empty(t, h.exec.orders)
}

func TestProcess_NegativeRiskRatio(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", -1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": 10000}},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	assert.Equal(t, domain.ResultFailed, job.Results[0].Status)
	assert.Equal(t, "non-positive computed volume", job.Results[0].Error)
	assert.Empty(t, h.exec.orders)
}

func TestProcess_SubmissionFailureIsIsolated(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1), active("3003", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": 10000, "3003": 5000}},
		&fakeExecution{errs: map[string]error{"2002": errors.New("market closed")}},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.FollowerResult{
		FollowerID: "2002",
		Status:     domain.ResultFailed,
		Volume:     1,
		Error:      "order submission failed: market closed",
	}, job.Results[0])
	assert.Equal(t, domain.FollowerResult{FollowerID: "3003", Status: domain.ResultSuccess, Volume: 0.5}, job.Results[1])
}

func TestProcess_FollowerTimeout(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1), active("3003", 1)}}},
		fakeAccounts{
			balances: map[string]float64{"1001": 10000, "3003": 10000},
			block:    map[string]bool{"2002": true},
		},
		&fakeExecution{},
		Options{FollowerTimeout: 50 * time.Millisecond},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.ResultFailed, job.Results[0].Status)
	assert.Contains(t, job.Results[0].Error, "follower account data unavailable")
	assert.Equal(t, domain.ResultSuccess, job.Results[1].Status)
}

func TestProcess_FollowersRunConcurrently(t *testing.T) {
	const followers = 3
	arrived := make(chan struct{}, followers)
	release := make(chan struct{})
	exec := &fakeExecution{hook: func(domain.FollowerOrder) {
		arrived <- struct{}{}
		<-release
	}}

	rels := make([]domain.CopyRelationship, 0, followers)
	balances := map[string]float64{"1001": 1000}
	for _, id := range []string{"a", "b", "c"} {
		rels = append(rels, active(id, 1))
		balances[id] = 1000
	}
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": rels}},
		fakeAccounts{balances: balances},
		exec,
		Options{},
	)

	done := make(chan *domain.ReplicationJob, 1)
	go func() {
		job, _ := h.svc.Process(context.Background(), event())
		done <- job
	}()

	for i := 0; i < followers; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("followers were not submitted concurrently")
		}
	}
	close(release)

	job := <-done
	require.NotNil(t, job)
	require.Len(t, job.Results, followers)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, job.Results[i].FollowerID)
		assert.Equal(t, domain.ResultSuccess, job.Results[i].Status)
	}
}

func TestProcess_PublishFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(fakeRelationships{}, fakeAccounts{}, &fakeExecution{}, Options{})
	h.publisher.err = errors.New("kafka down")

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompletedNoFollowers, job.Status)
}

func TestProcess_NonFiniteBalanceIsIsolated(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1), active("3003", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": math.NaN(), "3003": 10000}},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.FollowerResult{FollowerID: "2002", Status: domain.ResultFailed, Error: "non-positive computed volume"}, job.Results[0])
	assert.Equal(t, domain.FollowerResult{FollowerID: "3003", Status: domain.ResultSuccess, Volume: 1}, job.Results[1])
}

func TestProcess_NonFiniteMasterBalance(t *testing.T) {
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", math.NaN())}}},
		fakeAccounts{balances: map[string]float64{"1001": math.Inf(1), "2002": 10000}},
		&fakeExecution{},
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	assert.Equal(t, "non-positive computed volume", job.Results[0].Error)
	assert.Empty(t, h.exec.orders)
}

func TestProcess_FollowerPanicIsIsolated(t *testing.T) {
	exec := &fakeExecution{hook: func(o domain.FollowerOrder) {
		if o.FollowerID == "2002" {
			panic("boom")
		}
	}}
	h := newHarness(
		fakeRelationships{rels: map[string][]domain.CopyRelationship{"1001": {active("2002", 1), active("3003", 1)}}},
		fakeAccounts{balances: map[string]float64{"1001": 10000, "2002": 10000, "3003": 10000}},
		exec,
		Options{},
	)

	job, err := h.svc.Process(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.ResultFailed, job.Results[0].Status)
	assert.Contains(t, job.Results[0].Error, "boom")
	assert.Equal(t, domain.ResultSuccess, job.Results[1].Status)
	assert.Equal(t, domain.JobStatusCompleted, h.jobs.jobs["job-1"].Status)
}
