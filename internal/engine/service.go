package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aiscout/internal/domain/scans"

	"github.com/google/uuid"
)

// StartReceipt acknowledges a started scan.
type StartReceipt struct {
	ConfigurationID string       `json:"id"`
	RunID           string       `json:"run_id"`
	Status          scans.Status `json:"status"`
}

// Service is the tenant-facing entry point: configuration CRUD, scan
// triggering and result queries.
type Service struct {
	store        scans.Store
	engine       *Engine
	queue        *Queue
	leaseTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

type ServiceOption func(*Service)

// WithQueue makes Start asynchronous. Without a queue only RunNow can run scans.
func WithQueue(q *Queue) ServiceOption {
	return func(s *Service) { s.queue = q }
}

// WithLeaseTimeout allows taking over scans that started more than d ago.
// Zero disables takeover.
func WithLeaseTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.leaseTimeout = d }
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store scans.Store, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(s)
		}
	}
	return s
}

// RunJob adapts the engine to a queue RunFunc.
func (e *Engine) RunJob(ctx context.Context, job Job) error {
	_, err := e.Run(ctx, job)
	return err
}

func (s *Service) CreateConfiguration(ctx context.Context, tenant, target, token string) (*scans.Configuration, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return nil, errors.New("tenant is required")
	}
	name, err := scans.NormalizeTarget(target)
	if err != nil {
		return nil, err
	}
	c := &scans.Configuration{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Target:      name,
		AccessToken: strings.TrimSpace(token),
		Status:      scans.StatusIdle,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateConfiguration(ctx, c); err != nil {
		return nil, fmt.Errorf("create configuration: %w", err)
	}
	return c, nil
}

func (s *Service) GetConfiguration(ctx context.Context, tenant, id string) (*scans.Configuration, error) {
	return s.store.GetConfiguration(ctx, tenant, id)
}

func (s *Service) ListConfigurations(ctx context.Context, tenant string) ([]*scans.Configuration, error) {
	return s.store.ListConfigurations(ctx, tenant)
}

func (s *Service) ListResults(ctx context.Context, f scans.ResultFilter) ([]*scans.Result, error) {
	f.Limit = scans.ClampLimit(f.Limit)
	return s.store.ListResults(ctx, f)
}

func (s *Service) ListSummaries(ctx context.Context, f scans.SummaryFilter) ([]*scans.Summary, error) {
	f.Limit = scans.ClampLimit(f.Limit)
	return s.store.ListSummaries(ctx, f)
}

// Track flags a result as promoted to the risk register.
func (s *Service) Track(ctx context.Context, tenant, resultID string) error {
	return s.store.MarkTracked(ctx, tenant, resultID)
}

// Start moves the configuration to scanning and queues the run. It returns
// scans.ErrNotFound, scans.ErrScanInProgress or ErrQueueFull.
func (s *Service) Start(ctx context.Context, tenant, id string) (StartReceipt, error) {
	if s.queue == nil {
		return StartReceipt{}, errors.New("scan queue is not configured")
	}
	job, err := s.begin(ctx, tenant, id)
	if err != nil {
		return StartReceipt{}, err
	}
	if err := s.queue.Submit(job); err != nil {
		// Give the lease back so the caller can retry.
		if ferr := s.store.FinishScan(context.WithoutCancel(ctx), tenant, id, job.RunID, scans.StatusFailed, s.now().UTC()); ferr != nil {
			s.logger.Error("release scan lease", slog.String("config_id", id), slog.Any("error", ferr))
		}
		return StartReceipt{}, err
	}
	s.logger.Info("scan queued", job.logAttrs()...)
	return StartReceipt{ConfigurationID: id, RunID: job.RunID, Status: scans.StatusScanning}, nil
}

// RunNow starts a scan and runs it on the calling goroutine.
func (s *Service) RunNow(ctx context.Context, tenant, id string) (*scans.Summary, error) {
	job, err := s.begin(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Run(ctx, job)
}

func (s *Service) begin(ctx context.Context, tenant, id string) (Job, error) {
	runID := uuid.NewString()
	c, err := s.store.BeginScan(ctx, tenant, id, runID, s.now().UTC(), s.leaseTimeout)
	if err != nil {
		return Job{}, err
	}
	return Job{
		TenantID:        c.TenantID,
		ConfigurationID: c.ID,
		RunID:           runID,
		Target:          c.Target,
		AccessToken:     c.AccessToken,
	}, nil
}
