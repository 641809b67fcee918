package domain

import "errors"

var (
	ErrJobNotFound             = errors.New("replication job not found")
	ErrAlreadyProcessed        = errors.New("replication job already processed")
	ErrMasterDataUnavailable   = errors.New("master account data unavailable")
	ErrFollowerDataUnavailable = errors.New("follower account data unavailable")
	ErrOrderSubmissionFailed   = errors.New("order submission failed")
	ErrNonPositiveVolume       = errors.New("non-positive computed volume")
	ErrInvalidRelationship     = errors.New("invalid copy relationship")
)
