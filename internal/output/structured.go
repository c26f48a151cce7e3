package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Structured output formats.
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// structured writes results either as one aggregate Document on Close (json)
// or as one Event per line as they arrive (ndjson).
type structured struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	agg    aggregate
}

func (s *structured) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == FormatNDJSON {
		return encodeEvent(s.w, v)
	}
	s.agg.add(v)
	return nil
}

// finish writes the aggregate document in json mode.
func (s *structured) finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == FormatJSON {
		return s.agg.encode(s.w)
	}
	return nil
}

func checkFormat(kind, format string) error {
	switch format {
	case FormatJSON, FormatNDJSON:
		return nil
	}
	return fmt.Errorf("unsupported %s format: %s", kind, format)
}

// formatForPath infers a structured format from a file extension.
func formatForPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

// createOutputFile creates path and any missing parent directories.
func createOutputFile(path, kind string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("%s path required", kind)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", kind, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s file: %w", kind, err)
	}
	return f, nil
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// EmitSink writes an additional structured stream, normally to stdout.
type EmitSink struct {
	structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if err := checkFormat("emit", format); err != nil {
		return nil, err
	}
	return &EmitSink{structured{w: w, format: format}}, nil
}

func (s *EmitSink) Close() error { return s.finish() }

// FileSink writes structured output to a file. An empty format is inferred
// from the file extension.
type FileSink struct {
	structured
	path string
	file *os.File
}

func NewFileSink(path, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		inferred, err := formatForPath(path)
		if err != nil {
			return nil, err
		}
		format = inferred
	}
	if err := checkFormat("output", format); err != nil {
		return nil, err
	}
	f, err := createOutputFile(path, "output")
	if err != nil {
		return nil, err
	}
	return &FileSink{structured: structured{w: f, format: format}, path: path, file: f}, nil
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Close() error {
	err := s.finish()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
