package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"aiscout/internal/domain/scans"
)

func TestConsoleSink_Filtering(t *testing.T) {
	tests := []struct {
		name           string
		format         string
		filterStatuses []string
		input          *scans.Result
		shouldWrite    bool
	}{
		{"text - no filter - none", "text", nil, plainResult("acme/docs"), true},
		{"text - filter AI - input none", "text", []string{"AI"}, plainResult("acme/docs"), false},
		{"text - filter AI - input AI", "text", []string{"ai"}, aiResult("acme/ml"), true},
		{"text - filter AI,NONE - input none", "text", []string{"AI", "NONE"}, plainResult("acme/docs"), true},
		{"json - filter AI - input none", "json", []string{"AI"}, plainResult("acme/docs"), false},
		{"json - filter AI - input AI", "json", []string{"AI"}, aiResult("acme/ml"), true},
		{"ndjson - filter NONE - input AI", "ndjson", []string{"NONE"}, aiResult("acme/ml"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewConsoleSink(&buf, tt.format, tt.filterStatuses...)
			if err := sink.Write(tt.input); err != nil {
				t.Fatalf("Write error: %v", err)
			}
			if err := sink.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}

			written := strings.Contains(buf.String(), tt.input.RepositoryName)
			if written != tt.shouldWrite {
				t.Fatalf("shouldWrite=%v but output was %q", tt.shouldWrite, buf.String())
			}
		})
	}
}

func TestConsoleSink_Text(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text")

	_ = sink.Write(Event{Type: EventRunStarted, Target: "acme", Repos: 2})
	_ = sink.Write(aiResult("acme/ml"))
	skipped := plainResult("acme/docs")
	skipped.SkippedProbes = 2
	_ = sink.Write(skipped)
	_ = sink.Write(finished(2, 1))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	for _, want := range []string{
		"Scanning acme: 2 repositories",
		"[AI  95] acme/ml (Dependency File) libraries: openai@1.2.0, torch frameworks: openai, torch",
		"[--    ] acme/docs [2 probes skipped]",
		"1 of 2 repositories use AI",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in output:\n%s", want, got)
		}
	}
}

func TestConsoleSink_TextFailure(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text")
	_ = sink.Write(Event{Type: EventRunFinished, Error: "enumerate acme: not found"})
	if !strings.Contains(buf.String(), "Scan failed: enumerate acme: not found") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConsoleSink_JSONDocument(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json")
	_ = sink.Write(Event{Type: EventRunStarted})
	_ = sink.Write(aiResult("acme/ml"))
	_ = sink.Write(finished(1, 1))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(doc.Results) != 1 || doc.Results[0].RepositoryName != "acme/ml" {
		t.Fatalf("unexpected results %+v", doc.Results)
	}
	if doc.Summary == nil || doc.Summary.RepositoriesWithAI != 1 {
		t.Fatalf("unexpected summary %+v", doc.Summary)
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	sink := NewConsoleSink(&bytes.Buffer{}, "yaml")
	if err := sink.Write(aiResult("a/b")); err == nil {
		t.Fatal("expected error")
	}
	if err := sink.Close(); err == nil {
		t.Fatal("expected error on close")
	}
}
