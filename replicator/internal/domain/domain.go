package domain

import "time"

// JobStatus is the lifecycle state of a ReplicationJob.
type JobStatus string

const (
	JobStatusPending              JobStatus = "pending"
	JobStatusProcessing           JobStatus = "processing"
	JobStatusCompleted            JobStatus = "completed"
	JobStatusCompletedNoFollowers JobStatus = "completed_no_followers"
	JobStatusFailed               JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are never touched again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedNoFollowers, JobStatusFailed:
		return true
	default:
		return false
	}
}

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

type RelationshipStatus string

const (
	RelationshipActive    RelationshipStatus = "active"
	RelationshipPaused    RelationshipStatus = "paused"
	RelationshipCancelled RelationshipStatus = "cancelled"
)

// DefaultRiskRatio applies when a relationship carries no ratio.
const DefaultRiskRatio = 1.0

// MasterTrade is the trade being copied.
type MasterTrade struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// ReplicationJob is one master trade event awaiting fan-out to followers.
type ReplicationJob struct {
	ID              string           `json:"id"`
	MasterAccountID string           `json:"master_account_id"`
	Trade           MasterTrade      `json:"trade"`
	Status          JobStatus        `json:"status"`
	Results         []FollowerResult `json:"results,omitempty"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// FollowerResult is the outcome of copying a job to one follower.
type FollowerResult struct {
	FollowerID string       `json:"follower_id"`
	Status     ResultStatus `json:"status"`
	Volume     float64      `json:"volume,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// CopyRelationship links a follower account to the master it copies.
type CopyRelationship struct {
	MasterAccountID   string             `json:"master_account_id"`
	FollowerAccountID string             `json:"follower_account_id"`
	RiskRatio         float64            `json:"risk_ratio"`
	Status            RelationshipStatus `json:"status"`
}

func (r CopyRelationship) Active() bool {
	return r.Status == RelationshipActive
}

// AccountSnapshot is a point-in-time balance read from the accounts service.
type AccountSnapshot struct {
	AccountID string
	Balance   float64
}

// FollowerOrder is the instruction sent to the execution service for one follower.
type FollowerOrder struct {
	FollowerID string
	Symbol     string
	Direction  string
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// ExecutionReceipt is what the execution service returns for an accepted order.
type ExecutionReceipt struct {
	Ticket string
}

// JobEvent is the new-job notification carried on the bus.
type JobEvent struct {
	JobID           string
	MasterAccountID string
	Trade           MasterTrade
}
