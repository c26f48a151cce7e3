// Package sqlstore persists scan configurations, results and summaries in
// Postgres or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"aiscout/internal/domain/scans"
)

const (
	tableConfigurations = "scan_configurations"
	tableResults        = "scan_results"
	tableSummaries      = "scan_summaries"
)

var (
	configurationColumns = []string{
		"id", "tenant_id", "target", "access_token", "status",
		"last_scan_at", "scan_started_at", "run_id", "created_at",
	}
	resultColumns = []string{
		"id", "tenant_id", "configuration_id", "run_id", "repository_name", "repository_url",
		"has_ai_usage", "ai_libraries", "ai_frameworks", "confidence_score", "detection_type",
		"added_to_tracking", "skipped_probes", "scan_date",
	}
	summaryColumns = []string{
		"id", "tenant_id", "configuration_id", "run_id",
		"total_repositories", "repositories_with_ai", "status", "scan_date",
	}
)

type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ scans.Store = (*Store)(nil)

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, sb: builder(d)}
}

func builder(d Dialect) sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateConfiguration(ctx context.Context, c *scans.Configuration) error {
	if c == nil || c.ID == "" || c.TenantID == "" {
		return fmt.Errorf("configuration requires id and tenant")
	}
	query, args, err := insertConfiguration(s.sb, c).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert configuration: %w", err)
	}
	return nil
}

func insertConfiguration(sb sq.StatementBuilderType, c *scans.Configuration) sq.InsertBuilder {
	status := c.Status
	if status == "" {
		status = scans.StatusIdle
	}
	return sb.Insert(tableConfigurations).
		Columns(configurationColumns...).
		Values(c.ID, c.TenantID, c.Target, c.AccessToken, string(status),
			nullTime(c.LastScanAt), nullTime(c.ScanStartedAt), c.RunID, c.CreatedAt.UTC())
}

func (s *Store) GetConfiguration(ctx context.Context, tenant, id string) (*scans.Configuration, error) {
	query, args, err := s.sb.Select(configurationColumns...).
		From(tableConfigurations).
		Where(sq.Eq{"tenant_id": tenant}).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	c, err := scanConfiguration(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scans.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return c, nil
}

func (s *Store) ListConfigurations(ctx context.Context, tenant string) ([]*scans.Configuration, error) {
	query, args, err := s.sb.Select(configurationColumns...).
		From(tableConfigurations).
		Where(sq.Eq{"tenant_id": tenant}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	var out []*scans.Configuration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) BeginScan(ctx context.Context, tenant, id, runID string, now time.Time, staleAfter time.Duration) (*scans.Configuration, error) {
	if runID == "" {
		return nil, fmt.Errorf("begin scan: run id required")
	}
	query, args, err := beginScan(s.sb, tenant, id, runID, now, staleAfter).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("begin scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("begin scan: %w", err)
	}
	if n == 0 {
		// Either the row is missing or a live lease blocked the update.
		if _, err := s.GetConfiguration(ctx, tenant, id); err != nil {
			return nil, err
		}
		return nil, scans.ErrScanInProgress
	}
	return s.GetConfiguration(ctx, tenant, id)
}

// beginScan is the single conditional update that takes the scan lease.
func beginScan(sb sq.StatementBuilderType, tenant, id, runID string, now time.Time, staleAfter time.Duration) sq.UpdateBuilder {
	free := sq.Or{
		sq.Eq{"status": startableStatuses()},
		sq.Eq{"scan_started_at": nil},
	}
	if staleAfter > 0 {
		free = append(free, sq.LtOrEq{"scan_started_at": now.Add(-staleAfter).UTC()})
	}
	return sb.Update(tableConfigurations).
		Set("status", string(scans.StatusScanning)).
		Set("scan_started_at", now.UTC()).
		Set("run_id", runID).
		Where(sq.Eq{"tenant_id": tenant}).
		Where(sq.Eq{"id": id}).
		Where(free)
}

func (s *Store) FinishScan(ctx context.Context, tenant, id, runID string, status scans.Status, at time.Time) error {
	if !scans.StatusScanning.CanTransitionTo(status) {
		return fmt.Errorf("finish scan: %q is not a terminal status", status)
	}
	query, args, err := finishScan(s.sb, tenant, id, runID, status, at).ToSql()
	if err != nil {
		return err
	}
	return s.execExisting(ctx, "finish scan", query, args, func() error {
		if _, err := s.GetConfiguration(ctx, tenant, id); err != nil {
			return err
		}
		return scans.ErrLeaseLost
	})
}

// finishScan only matches while runID still holds the lease, so a run that
// was taken over cannot overwrite its successor.
func finishScan(sb sq.StatementBuilderType, tenant, id, runID string, status scans.Status, at time.Time) sq.UpdateBuilder {
	return sb.Update(tableConfigurations).
		Set("status", string(status)).
		Set("last_scan_at", at.UTC()).
		Set("scan_started_at", nil).
		Where(sq.Eq{"tenant_id": tenant}).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(scans.StatusScanning)}).
		Where(sq.Eq{"run_id": runID})
}

// startableStatuses lists the statuses that may move straight to scanning.
func startableStatuses() []string {
	var out []string
	for _, st := range []scans.Status{scans.StatusIdle, scans.StatusScanning, scans.StatusCompleted, scans.StatusFailed} {
		if st.CanTransitionTo(scans.StatusScanning) {
			out = append(out, string(st))
		}
	}
	return out
}

func (s *Store) SaveResult(ctx context.Context, r *scans.Result) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("result requires id")
	}
	ins, err := insertResult(s.sb, r)
	if err != nil {
		return err
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func insertResult(sb sq.StatementBuilderType, r *scans.Result) (sq.InsertBuilder, error) {
	libs, err := encodeList(r.AILibraries)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	frameworks, err := encodeList(r.AIFrameworks)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sb.Insert(tableResults).
		Columns(resultColumns...).
		Values(r.ID, r.TenantID, r.ConfigurationID, r.RunID, r.RepositoryName, r.RepositoryURL,
			r.HasAIUsage, libs, frameworks, r.ConfidenceScore, r.DetectionType,
			r.AddedToTracking, r.SkippedProbes, r.ScanDate.UTC()), nil
}

func (s *Store) SaveSummary(ctx context.Context, sum *scans.Summary) error {
	if sum == nil || sum.ID == "" {
		return fmt.Errorf("summary requires id")
	}
	if err := sum.Validate(); err != nil {
		return err
	}
	query, args, err := s.sb.Insert(tableSummaries).
		Columns(summaryColumns...).
		Values(sum.ID, sum.TenantID, sum.ConfigurationID, sum.RunID,
			sum.TotalRepositories, sum.RepositoriesWithAI, string(sum.Status), sum.ScanDate.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, f scans.ResultFilter) ([]*scans.Result, error) {
	query, args, err := listResults(s.sb, f).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*scans.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func listResults(sb sq.StatementBuilderType, f scans.ResultFilter) sq.SelectBuilder {
	q := sb.Select(resultColumns...).
		From(tableResults).
		Where(sq.Eq{"tenant_id": f.TenantID})
	if f.ConfigurationID != "" {
		q = q.Where(sq.Eq{"configuration_id": f.ConfigurationID})
	}
	if f.RunID != "" {
		q = q.Where(sq.Eq{"run_id": f.RunID})
	}
	return q.OrderBy("scan_date DESC", "id DESC").
		Limit(uint64(scans.ClampLimit(f.Limit)))
}

func (s *Store) ListSummaries(ctx context.Context, f scans.SummaryFilter) ([]*scans.Summary, error) {
	query, args, err := listSummaries(s.sb, f).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []*scans.Summary
	for rows.Next() {
		var (
			sum    scans.Summary
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.TenantID, &sum.ConfigurationID, &sum.RunID,
			&sum.TotalRepositories, &sum.RepositoriesWithAI, &status, &sum.ScanDate); err != nil {
			return nil, err
		}
		if sum.Status, err = scans.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("summary %s: %w", sum.ID, err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

func listSummaries(sb sq.StatementBuilderType, f scans.SummaryFilter) sq.SelectBuilder {
	q := sb.Select(summaryColumns...).
		From(tableSummaries).
		Where(sq.Eq{"tenant_id": f.TenantID})
	if f.ConfigurationID != "" {
		q = q.Where(sq.Eq{"configuration_id": f.ConfigurationID})
	}
	return q.OrderBy("scan_date DESC", "id DESC").
		Limit(uint64(scans.ClampLimit(f.Limit)))
}

func (s *Store) MarkTracked(ctx context.Context, tenant, resultID string) error {
	query, args, err := s.sb.Update(tableResults).
		Set("added_to_tracking", true).
		Where(sq.Eq{"tenant_id": tenant}).
		Where(sq.Eq{"id": resultID}).
		ToSql()
	if err != nil {
		return err
	}
	return s.execExisting(ctx, "mark tracked", query, args, func() error {
		return s.resultExists(ctx, tenant, resultID)
	})
}

func (s *Store) resultExists(ctx context.Context, tenant, id string) error {
	query, args, err := s.sb.Select("1").
		From(tableResults).
		Where(sq.Eq{"tenant_id": tenant}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return scans.ErrNotFound
	}
	return err
}

// execExisting runs an update and, when no row changed, uses exists to tell
// a missing row apart from a no-op. MySQL reports changed rows, not matched.
func (s *Store) execExisting(ctx context.Context, op, query string, args []any, exists func() error) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return exists()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row rowScanner) (*scans.Configuration, error) {
	var (
		c                 scans.Configuration
		status            string
		lastScan, started sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Target, &c.AccessToken, &status,
		&lastScan, &started, &c.RunID, &c.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.Status, err = scans.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("configuration %s: %w", c.ID, err)
	}
	c.LastScanAt = timePtr(lastScan)
	c.ScanStartedAt = timePtr(started)
	return &c, nil
}

func scanResult(row rowScanner) (*scans.Result, error) {
	var (
		r                scans.Result
		libs, frameworks string
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.ConfigurationID, &r.RunID, &r.RepositoryName, &r.RepositoryURL,
		&r.HasAIUsage, &libs, &frameworks, &r.ConfidenceScore, &r.DetectionType,
		&r.AddedToTracking, &r.SkippedProbes, &r.ScanDate); err != nil {
		return nil, err
	}
	var err error
	if r.AILibraries, err = decodeList(libs); err != nil {
		return nil, fmt.Errorf("result %s ai_libraries: %w", r.ID, err)
	}
	if r.AIFrameworks, err = decodeList(frameworks); err != nil {
		return nil, fmt.Errorf("result %s ai_frameworks: %w", r.ID, err)
	}
	return &r, nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
