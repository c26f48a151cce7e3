package scans

import (
	"context"
	"time"
)

// ResultFilter narrows ListResults. Empty fields are ignored.
type ResultFilter struct {
	TenantID        string
	ConfigurationID string
	RunID           string
	Limit           int
}

// SummaryFilter narrows ListSummaries. Empty fields are ignored.
type SummaryFilter struct {
	TenantID        string
	ConfigurationID string
	Limit           int
}

// DefaultListLimit applies when a filter carries no limit.
const DefaultListLimit = 100

// Store is the persistence port for configurations, results and summaries.
// All methods are scoped by tenant and must be safe for concurrent use.
type Store interface {
	CreateConfiguration(ctx context.Context, c *Configuration) error
	GetConfiguration(ctx context.Context, tenant, id string) (*Configuration, error)
	// ListConfigurations returns newest first.
	ListConfigurations(ctx context.Context, tenant string) ([]*Configuration, error)

	// BeginScan moves the configuration to scanning and hands the lease to
	// runID, unless another run holds a lease younger than staleAfter, in
	// which case ErrScanInProgress is returned.
	BeginScan(ctx context.Context, tenant, id, runID string, now time.Time, staleAfter time.Duration) (*Configuration, error)
	// FinishScan records a terminal status and sets last_scan_at. It returns
	// ErrLeaseLost and changes nothing when runID no longer holds the lease.
	FinishScan(ctx context.Context, tenant, id, runID string, status Status, at time.Time) error

	SaveResult(ctx context.Context, r *Result) error
	SaveSummary(ctx context.Context, s *Summary) error

	// ListResults and ListSummaries return newest first.
	ListResults(ctx context.Context, f ResultFilter) ([]*Result, error)
	ListSummaries(ctx context.Context, f SummaryFilter) ([]*Summary, error)

	// MarkTracked sets added_to_tracking on a result.
	MarkTracked(ctx context.Context, tenant, resultID string) error
}

// LeaseExpired reports whether a scan started at startedAt may be taken over at now.
func LeaseExpired(startedAt *time.Time, now time.Time, staleAfter time.Duration) bool {
	if startedAt == nil {
		return true
	}
	if staleAfter <= 0 {
		return false
	}
	return now.Sub(*startedAt) >= staleAfter
}

// ClampLimit normalizes a list limit.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
