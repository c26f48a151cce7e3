package output

import (
	"context"
	"log/slog"

	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
)

// Observer streams engine progress into a Manager. Sink errors are logged;
// they never fail the run.
type Observer struct {
	m      *Manager
	logger *slog.Logger
}

var _ engine.Observer = (*Observer)(nil)

func NewObserver(m *Manager, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{m: m, logger: logger}
}

func (o *Observer) RunStarted(_ context.Context, job engine.Job, repositories int) {
	o.write(Event{Type: EventRunStarted, RunID: job.RunID, Target: job.Target, Repos: repositories})
}

func (o *Observer) RepositoryScanned(_ context.Context, _ engine.Job, r *scans.Result) {
	if r != nil {
		o.write(r)
	}
}

func (o *Observer) RunFinished(_ context.Context, rep engine.Report) {
	e := Event{
		Type:    EventRunFinished,
		RunID:   rep.Job.RunID,
		Target:  rep.Job.Target,
		Repos:   len(rep.Results),
		Summary: rep.Summary,
	}
	if rep.Err != nil {
		e.Error = engine.DescribeError(rep.Err, false)
	}
	o.write(e)
}

func (o *Observer) write(v any) {
	if err := o.m.Write(v); err != nil {
		o.logger.Warn("write output", slog.Any("error", err))
	}
}
