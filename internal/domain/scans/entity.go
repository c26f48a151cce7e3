package scans

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a scan configuration.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusScanning  Status = "scanning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus returns the Status for s, or an error for unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusIdle, StatusScanning, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown scan status %q", s)
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
//
//	idle|completed|failed -> scanning
//	scanning              -> completed|failed
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusIdle, StatusCompleted, StatusFailed:
		return next == StatusScanning
	case StatusScanning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether no scan is running in this state.
func (s Status) Terminal() bool {
	return s != StatusScanning
}

// Configuration is a saved scan target owned by a tenant.
type Configuration struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Target        string     `json:"target"`
	AccessToken   string     `json:"-"`
	Status        Status     `json:"status"`
	LastScanAt    *time.Time `json:"last_scan_at,omitempty"`
	ScanStartedAt *time.Time `json:"scan_started_at,omitempty"`
	RunID         string     `json:"run_id,omitempty"` // lease holder, or the last run once finished
	CreatedAt     time.Time  `json:"created_at"`
}

// HasCredential reports whether scans of this configuration run authenticated.
func (c *Configuration) HasCredential() bool {
	return c != nil && c.AccessToken != ""
}

// MarshalJSON adds has_credential in place of the omitted token.
func (c Configuration) MarshalJSON() ([]byte, error) {
	type fields Configuration
	return json.Marshal(struct {
		fields
		HasCredential bool `json:"has_credential"`
	}{fields(c), c.HasCredential()})
}

// Result is the per-repository outcome of one scan run.
type Result struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ConfigurationID string    `json:"configuration_id"`
	RunID           string    `json:"run_id"`
	RepositoryName  string    `json:"repository_name"`
	RepositoryURL   string    `json:"repository_url"`
	HasAIUsage      bool      `json:"has_ai_usage"`
	AILibraries     []string  `json:"ai_libraries"`
	AIFrameworks    []string  `json:"ai_frameworks"`
	ConfidenceScore int       `json:"confidence_score"`
	DetectionType   string    `json:"detection_type"`
	AddedToTracking bool      `json:"added_to_tracking"`
	SkippedProbes   int       `json:"skipped_probes"`
	ScanDate        time.Time `json:"scan_date"`
}

// Summary is the aggregate outcome of one scan run.
type Summary struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	ConfigurationID    string    `json:"configuration_id"`
	RunID              string    `json:"run_id"`
	TotalRepositories  int       `json:"total_repositories"`
	RepositoriesWithAI int       `json:"repositories_with_ai"`
	Status             Status    `json:"status"`
	ScanDate           time.Time `json:"scan_date"`
}

// Validate checks the count invariant.
func (s *Summary) Validate() error {
	if s.TotalRepositories < 0 || s.RepositoriesWithAI < 0 {
		return fmt.Errorf("summary counts must be non-negative")
	}
	if s.RepositoriesWithAI > s.TotalRepositories {
		return fmt.Errorf("summary has %d repositories with AI out of %d", s.RepositoriesWithAI, s.TotalRepositories)
	}
	return nil
}
