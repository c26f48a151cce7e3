package scans

import "errors"

var (
	// ErrNotFound is returned when a record does not exist for the tenant.
	ErrNotFound = errors.New("not found")

	// ErrScanInProgress is returned by BeginScan when the configuration holds a live lease.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrLeaseLost is returned by FinishScan when another run has taken over
	// the configuration since the caller's BeginScan.
	ErrLeaseLost = errors.New("scan lease lost")

	// ErrPersistence marks store write failures that must abort a run.
	ErrPersistence = errors.New("persistence failure")
)
