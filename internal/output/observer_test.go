package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"aiscout/internal/engine"
)

func TestObserver_StreamsRun(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsoleSink(&buf, "text")
	obs := NewObserver(NewManager(console), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	job := engine.Job{RunID: "run-1", Target: "acme"}

	obs.RunStarted(ctx, job, 1)
	r := aiResult("acme/ml")
	obs.RepositoryScanned(ctx, job, r)
	obs.RepositoryScanned(ctx, job, nil)
	obs.RunFinished(ctx, engine.Report{Job: job, Summary: finished(1, 1).Summary})

	got := buf.String()
	for _, want := range []string{"Scanning acme: 1 repositories", "acme/ml", "1 of 1 repositories use AI"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestObserver_FailedRun(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(NewManager(NewConsoleSink(&buf, "text")), nil)
	obs.RunFinished(context.Background(), engine.Report{Err: errors.New("boom")})
	if !strings.Contains(buf.String(), "Scan failed: boom") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

type failingSink struct{}

func (failingSink) Write(any) error { return errors.New("disk full") }
func (failingSink) Close() error    { return nil }

func TestObserver_SinkErrorsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	obs := NewObserver(NewManager(failingSink{}), slog.New(slog.NewTextHandler(&logs, nil)))
	obs.RepositoryScanned(context.Background(), engine.Job{}, aiResult("a/b"))
	if !strings.Contains(logs.String(), "disk full") {
		t.Fatalf("expected sink error in logs, got %q", logs.String())
	}
}
