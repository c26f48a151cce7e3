// Package archive uploads finished run reports to S3-compatible object
// storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
)

const uploadTimeout = 30 * time.Second

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Document is the archived form of one run.
type Document struct {
	TenantID        string          `json:"tenant_id"`
	ConfigurationID string          `json:"configuration_id"`
	RunID           string          `json:"run_id"`
	Target          string          `json:"target"`
	Status          scans.Status    `json:"status"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	APICalls        int64           `json:"api_calls"`
	RateLimited     int64           `json:"rate_limited"`
	Summary         *scans.Summary  `json:"summary"`
	Results         []*scans.Result `json:"results"`
}

// Archiver is an engine.Observer that uploads one Document per finished run.
// Upload failures are logged and never affect the run.
type Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ engine.Observer = (*Archiver)(nil)

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Archiver, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newArchiver(cli, cfg.Bucket, cfg.Prefix, logger), nil
}

func newArchiver(client objectPutter, bucket, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (a *Archiver) RunStarted(context.Context, engine.Job, int) {}

func (a *Archiver) RepositoryScanned(context.Context, engine.Job, *scans.Result) {}

// RunFinished uploads in the background.
func (a *Archiver) RunFinished(ctx context.Context, rep engine.Report) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()
		if _, err := a.Upload(uctx, rep); err != nil {
			a.logger.Warn("archive run report",
				slog.String("run_id", rep.Job.RunID),
				slog.String("bucket", a.bucket),
				slog.Any("error", err))
		}
	}()
}

// Wait blocks until pending uploads are done.
func (a *Archiver) Wait() { a.wg.Wait() }

// Upload writes the report and returns its object key.
func (a *Archiver) Upload(ctx context.Context, rep engine.Report) (string, error) {
	body, err := json.MarshalIndent(NewDocument(rep), "", "  ")
	if err != nil {
		return "", err
	}
	key := ObjectKey(a.prefix, rep.Job)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("run report archived", slog.String("key", key), slog.Int("bytes", len(body)))
	return key, nil
}

// ObjectKey is {prefix}/{tenant}/{config}/{run}.json.
func ObjectKey(prefix string, job engine.Job) string {
	return path.Join(prefix, job.TenantID, job.ConfigurationID, job.RunID+".json")
}

func NewDocument(rep engine.Report) Document {
	doc := Document{
		TenantID:        rep.Job.TenantID,
		ConfigurationID: rep.Job.ConfigurationID,
		RunID:           rep.Job.RunID,
		Target:          rep.Job.Target,
		Status:          scans.StatusCompleted,
		StartedAt:       rep.StartedAt,
		FinishedAt:      rep.FinishedAt,
		APICalls:        rep.APICalls,
		RateLimited:     rep.RateLimited,
		Summary:         rep.Summary,
		Results:         rep.Results,
	}
	if rep.Err != nil {
		doc.Status = scans.StatusFailed
		doc.Error = engine.DescribeError(rep.Err, false)
	}
	if doc.Results == nil {
		doc.Results = []*scans.Result{}
	}
	return doc
}
