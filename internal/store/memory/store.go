// Package memory is an in-process scans.Store used by one-shot CLI scans and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aiscout/internal/domain/scans"
)

type Store struct {
	mu        sync.RWMutex
	configs   map[string]*scans.Configuration
	results   []*scans.Result
	summaries []*scans.Summary
}

var _ scans.Store = (*Store)(nil)

func New() *Store {
	return &Store{configs: make(map[string]*scans.Configuration)}
}

func (s *Store) CreateConfiguration(ctx context.Context, c *scans.Configuration) error {
	if c == nil || c.ID == "" || c.TenantID == "" {
		return fmt.Errorf("configuration requires id and tenant")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.configs[c.ID]; exists {
		return fmt.Errorf("configuration %s already exists", c.ID)
	}
	cp := *c
	if cp.Status == "" {
		cp.Status = scans.StatusIdle
	}
	s.configs[c.ID] = &cp
	return nil
}

func (s *Store) GetConfiguration(ctx context.Context, tenant, id string) (*scans.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok || c.TenantID != tenant {
		return nil, scans.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListConfigurations(ctx context.Context, tenant string) ([]*scans.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scans.Configuration
	for _, c := range s.configs {
		if c.TenantID == tenant {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) BeginScan(ctx context.Context, tenant, id, runID string, now time.Time, staleAfter time.Duration) (*scans.Configuration, error) {
	if runID == "" {
		return nil, fmt.Errorf("begin scan: run id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok || c.TenantID != tenant {
		return nil, scans.ErrNotFound
	}
	takeover := !c.Status.Terminal() && scans.LeaseExpired(c.ScanStartedAt, now, staleAfter)
	if !takeover && !c.Status.CanTransitionTo(scans.StatusScanning) {
		return nil, scans.ErrScanInProgress
	}
	started := now
	c.Status = scans.StatusScanning
	c.ScanStartedAt = &started
	c.RunID = runID
	cp := *c
	return &cp, nil
}

func (s *Store) FinishScan(ctx context.Context, tenant, id, runID string, status scans.Status, at time.Time) error {
	if !scans.StatusScanning.CanTransitionTo(status) {
		return fmt.Errorf("finish scan: %q is not a terminal status", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok || c.TenantID != tenant {
		return scans.ErrNotFound
	}
	if c.RunID != runID || !c.Status.CanTransitionTo(status) {
		return scans.ErrLeaseLost
	}
	finished := at
	c.Status = status
	c.LastScanAt = &finished
	c.ScanStartedAt = nil
	return nil
}

func (s *Store) SaveResult(ctx context.Context, r *scans.Result) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("result requires id")
	}
	cp := *r
	cp.AILibraries = append([]string(nil), r.AILibraries...)
	cp.AIFrameworks = append([]string(nil), r.AIFrameworks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, &cp)
	return nil
}

func (s *Store) SaveSummary(ctx context.Context, sum *scans.Summary) error {
	if sum == nil || sum.ID == "" {
		return fmt.Errorf("summary requires id")
	}
	if err := sum.Validate(); err != nil {
		return err
	}
	cp := *sum
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, &cp)
	return nil
}

func (s *Store) ListResults(ctx context.Context, f scans.ResultFilter) ([]*scans.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := scans.ClampLimit(f.Limit)
	var out []*scans.Result
	// Newest first: appends are chronological.
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.results[i]
		if r.TenantID != f.TenantID {
			continue
		}
		if f.ConfigurationID != "" && r.ConfigurationID != f.ConfigurationID {
			continue
		}
		if f.RunID != "" && r.RunID != f.RunID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListSummaries(ctx context.Context, f scans.SummaryFilter) ([]*scans.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := scans.ClampLimit(f.Limit)
	var out []*scans.Summary
	for i := len(s.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		sum := s.summaries[i]
		if sum.TenantID != f.TenantID {
			continue
		}
		if f.ConfigurationID != "" && sum.ConfigurationID != f.ConfigurationID {
			continue
		}
		cp := *sum
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MarkTracked(ctx context.Context, tenant, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.ID == resultID && r.TenantID == tenant {
			r.AddedToTracking = true
			return nil
		}
	}
	return scans.ErrNotFound
}
