package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aiscout/internal/detectors"
	"aiscout/internal/domain/scans"
	"aiscout/internal/fetcher"
	gh "aiscout/internal/github"
	"aiscout/internal/score"

	"github.com/google/go-github/v81/github"
	"github.com/google/uuid"
)

const finishTimeout = 10 * time.Second

// Job is one queued scan run.
type Job struct {
	TenantID        string
	ConfigurationID string
	RunID           string
	Target          string
	AccessToken     string
}

func (j Job) logAttrs() []any {
	return []any{
		slog.String("tenant", j.TenantID),
		slog.String("config_id", j.ConfigurationID),
		slog.String("run_id", j.RunID),
	}
}

// Settings tune the GitHub access of every run.
type Settings struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	Verbose          bool
	PerPage          int
	MaxPages         int
	RequestInterval  time.Duration
	Burst            int
	MaxRetries       int
	MaxRateLimitWait time.Duration
	MaxFileBytes     int
}

// ClientFactory builds the GitHub client of one run.
type ClientFactory func(ctx context.Context, token string) (*gh.Client, error)

// Report describes a finished run.
type Report struct {
	Job         Job
	Summary     *scans.Summary
	Results     []*scans.Result
	Err         error
	// Enumerated is set once RunStarted has been delivered.
	Enumerated  bool
	StartedAt   time.Time
	FinishedAt  time.Time
	APICalls    int64
	RateLimited int64
}

// Observer receives run progress. Implementations must not block.
type Observer interface {
	RunStarted(ctx context.Context, job Job, repositories int)
	RepositoryScanned(ctx context.Context, job Job, result *scans.Result)
	RunFinished(ctx context.Context, report Report)
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClientFactory(f ClientFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.newClient = f
		}
	}
}

// WithCollectors replaces the registered collector set.
func WithCollectors(cs []detectors.Collector) Option {
	return func(e *Engine) {
		e.collectors = cs
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine executes scan runs: enumerate, collect, aggregate, persist.
type Engine struct {
	store      scans.Store
	settings   Settings
	collectors []detectors.Collector
	enumerator *Enumerator
	newClient  ClientFactory
	observers  []Observer
	logger     *slog.Logger
	now        func() time.Time
}

func New(store scans.Store, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		settings:   settings,
		collectors: detectors.List(),
		enumerator: NewEnumerator(settings.PerPage, settings.MaxPages),
		logger:     slog.Default(),
		now:        time.Now,
	}
	e.newClient = e.defaultClient
	for _, apply := range opts {
		if apply != nil {
			apply(e)
		}
	}
	return e
}

func (e *Engine) defaultClient(ctx context.Context, token string) (*gh.Client, error) {
	var opts []gh.Option
	if e.settings.BaseURL != "" {
		opts = append(opts, gh.WithBaseURL(e.settings.BaseURL))
	}
	if e.settings.UserAgent != "" {
		opts = append(opts, gh.WithUserAgent(e.settings.UserAgent))
	}
	if e.settings.Timeout > 0 {
		opts = append(opts, gh.WithTimeout(e.settings.Timeout))
	}
	if e.settings.Verbose {
		opts = append(opts, gh.WithRequestLogger(e.logger))
	}
	return gh.NewClient(ctx, token, opts...)
}

func (e *Engine) newFetcher(client *gh.Client) *fetcher.Fetcher {
	budget := fetcher.NewRequestBudget(fetcher.WithPacing(e.settings.RequestInterval, e.settings.Burst))
	return fetcher.NewFetcher(client, budget, fetcher.Options{
		MaxRetries:       e.settings.MaxRetries,
		MaxRateLimitWait: e.settings.MaxRateLimitWait,
		MaxFileBytes:     e.settings.MaxFileBytes,
	})
}

// Run executes one scan run for a configuration already moved to scanning.
// The configuration always ends in completed or failed. Results are persisted
// one by one so a failing run keeps what it wrote.
func (e *Engine) Run(ctx context.Context, job Job) (*scans.Summary, error) {
	report := Report{Job: job, StartedAt: e.now()}
	log := e.logger.With(job.logAttrs()...)
	log.Info("scan started", slog.String("target", job.Target))

	summary, err := e.run(ctx, job, &report, log)
	report.Summary = summary
	report.Err = err
	report.FinishedAt = e.now()

	status := scans.StatusCompleted
	if err != nil {
		status = scans.StatusFailed
	}
	if ferr := e.finish(ctx, job, status); errors.Is(ferr, scans.ErrLeaseLost) {
		// A newer run took the configuration over; its status stands.
		log.Warn("scan lease lost before finish", slog.String("status", string(status)))
	} else if ferr != nil {
		log.Error("record scan status", slog.String("status", string(status)), slog.Any("error", ferr))
		if err == nil {
			err = fmt.Errorf("%w: finish scan: %v", scans.ErrPersistence, ferr)
			report.Err = err
		}
	}

	if err != nil {
		log.Error("scan failed", slog.String("error", DescribeError(err, false)), slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	} else {
		log.Info("scan completed",
			slog.Int("repositories", summary.TotalRepositories),
			slog.Int("with_ai", summary.RepositoriesWithAI),
			slog.Int64("api_calls", report.APICalls),
			slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	}
	for _, o := range e.observers {
		o.RunFinished(ctx, report)
	}
	return summary, err
}

func (e *Engine) run(ctx context.Context, job Job, report *Report, log *slog.Logger) (*scans.Summary, error) {
	client, err := e.newClient(ctx, job.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	f := e.newFetcher(client)
	defer func() {
		report.APICalls = f.Calls()
		report.RateLimited = f.RateLimited()
	}()

	repos, err := e.enumerator.List(ctx, f, job.Target)
	if err != nil {
		return nil, err
	}
	log.Info("repositories enumerated", slog.Int("count", len(repos)))
	report.Enumerated = true
	for _, o := range e.observers {
		o.RunStarted(ctx, job, len(repos))
	}

	withAI := 0
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return e.partialSummary(ctx, job, report, withAI, log), err
		}
		res := e.scanRepository(ctx, job, f, repo, log)
		if err := e.store.SaveResult(ctx, res); err != nil {
			perr := fmt.Errorf("%w: save result for %s: %v", scans.ErrPersistence, res.RepositoryName, err)
			return e.partialSummary(ctx, job, report, withAI, log), perr
		}
		report.Results = append(report.Results, res)
		if res.HasAIUsage {
			withAI++
		}
		for _, o := range e.observers {
			o.RepositoryScanned(ctx, job, res)
		}
	}

	summary := e.newSummary(job, len(report.Results), withAI, scans.StatusCompleted)
	if err := e.store.SaveSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("%w: save summary: %v", scans.ErrPersistence, err)
	}
	return summary, nil
}

// partialSummary records, best effort, the repositories written before an
// aborted run.
func (e *Engine) partialSummary(ctx context.Context, job Job, report *Report, withAI int, log *slog.Logger) *scans.Summary {
	summary := e.newSummary(job, len(report.Results), withAI, scans.StatusFailed)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := e.store.SaveSummary(wctx, summary); err != nil {
		log.Warn("save partial summary", slog.Any("error", err))
		return nil
	}
	return summary
}

func (e *Engine) newSummary(job Job, total, withAI int, status scans.Status) *scans.Summary {
	return &scans.Summary{
		ID:                 uuid.NewString(),
		TenantID:           job.TenantID,
		ConfigurationID:    job.ConfigurationID,
		RunID:              job.RunID,
		TotalRepositories:  total,
		RepositoriesWithAI: withAI,
		Status:             status,
		ScanDate:           e.now().UTC(),
	}
}

// finish writes the terminal status even if ctx is already canceled.
func (e *Engine) finish(ctx context.Context, job Job, status scans.Status) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	return e.store.FinishScan(wctx, job.TenantID, job.ConfigurationID, job.RunID, status, e.now().UTC())
}

// scanRepository runs every collector in registry order and aggregates their
// evidence. Collector failures only cost that collector's evidence.
func (e *Engine) scanRepository(ctx context.Context, job Job, src detectors.ContentSource, repo *github.Repository, log *slog.Logger) *scans.Result {
	name := detectors.RepoFullName(repo)
	var all detectors.Findings
	for _, c := range e.collectors {
		findings, err := c.Collect(ctx, repo, src)
		if err != nil {
			all.Skip()
			level := slog.LevelWarn
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				level = slog.LevelDebug
			}
			log.Log(ctx, level, "collector failed",
				slog.String("repository", name),
				slog.String("detector", c.ID()),
				slog.String("error", DescribeError(err, false)))
		}
		all.Merge(findings)
	}

	a := score.Aggregate(all.Signals, all.Libraries)
	res := &scans.Result{
		ID:              uuid.NewString(),
		TenantID:        job.TenantID,
		ConfigurationID: job.ConfigurationID,
		RunID:           job.RunID,
		RepositoryName:  name,
		RepositoryURL:   repo.GetHTMLURL(),
		HasAIUsage:      a.HasAIUsage,
		AILibraries:     nonNil(a.Libraries),
		AIFrameworks:    nonNil(a.Frameworks),
		ConfidenceScore: a.Score,
		DetectionType:   a.DetectionType,
		SkippedProbes:   all.Skipped,
		ScanDate:        e.now().UTC(),
	}
	log.Debug("repository scanned",
		slog.String("repository", name),
		slog.Int("score", res.ConfidenceScore),
		slog.String("detection_type", res.DetectionType),
		slog.Int("signals", len(all.Signals)),
		slog.Int("skipped", res.SkippedProbes))
	return res
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
