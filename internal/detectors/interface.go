package detectors

import (
	"context"

	"aiscout/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// ContentSource is the read-only view of a repository's default branch that
// collectors probe. *fetcher.Fetcher implements it.
type ContentSource interface {
	ListDir(ctx context.Context, repo *github.Repository, path string) ([]fetcher.Entry, error)
	ReadFile(ctx context.Context, repo *github.Repository, path string) ([]byte, error)
}

type Collector interface {
	ID() string
	Title() string
	Description() string

	// Collect gathers evidence for one repository. Failures of individual
	// probes are counted in Findings.Skipped; a returned error means the
	// collector produced nothing usable.
	Collect(ctx context.Context, repo *github.Repository, src ContentSource) (Findings, error)
}

type Option struct {
	Name        string
	Description string
	Default     string
}

type ConfigurableCollector interface {
	Collector
	Options() []Option
	Configure(opts map[string]string) error
}
