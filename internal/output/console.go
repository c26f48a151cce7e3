package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"aiscout/internal/domain/scans"
)

// Console filter values.
const (
	FilterAI   = "AI"
	FilterNone = "NONE"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	agg             aggregate
	allowedStatuses map[string]bool

	aiLabel   *color.Color
	noneLabel *color.Color
	heading   *color.Color
	failure   *color.Color
}

// NewConsoleSink writes to w (stdout when nil). filterStatuses keeps only
// results whose status is listed: AI or NONE.
func NewConsoleSink(w io.Writer, format string, filterStatuses ...string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer:    w,
		format:    format,
		aiLabel:   color.New(color.FgGreen, color.Bold),
		noneLabel: color.New(color.Faint),
		heading:   color.New(color.Bold),
		failure:   color.New(color.FgRed),
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(strings.TrimSpace(st))] = true
		}
	}

	return s
}

func resultStatus(r *scans.Result) string {
	if r.HasAIUsage {
		return FilterAI
	}
	return FilterNone
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	if r, ok := v.(*scans.Result); ok && len(s.allowedStatuses) > 0 {
		if !s.allowedStatuses[resultStatus(r)] {
			return nil
		}
	}

	switch s.format {
	case FormatJSON:
		s.agg.add(v)
		return nil
	case FormatNDJSON:
		return encodeEvent(s.writer, v)
	case "text":
		if err := s.writeText(v); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(v any) error {
	switch t := v.(type) {
	case *scans.Result:
		return s.writeResult(t)
	case Event:
		switch t.Type {
		case EventRunStarted:
			_, err := s.heading.Fprintf(s.writer, "Scanning %s: %d repositories\n", t.Target, t.Repos)
			return err
		case EventRunFinished:
			if t.Error != "" {
				_, err := s.failure.Fprintf(s.writer, "Scan failed: %s\n", t.Error)
				return err
			}
			if t.Summary != nil {
				_, err := s.heading.Fprintf(s.writer, "%d of %d repositories use AI\n",
					t.Summary.RepositoriesWithAI, t.Summary.TotalRepositories)
				return err
			}
		}
	}
	return nil
}

func (s *ConsoleSink) writeResult(r *scans.Result) error {
	var b strings.Builder
	if r.HasAIUsage {
		b.WriteString(s.aiLabel.Sprintf("[AI %3d]", r.ConfidenceScore))
	} else {
		b.WriteString(s.noneLabel.Sprint("[--    ]"))
	}
	b.WriteString(" ")
	b.WriteString(r.RepositoryName)
	if r.HasAIUsage {
		fmt.Fprintf(&b, " (%s)", r.DetectionType)
		if len(r.AILibraries) > 0 {
			fmt.Fprintf(&b, " libraries: %s", strings.Join(r.AILibraries, ", "))
		}
		if len(r.AIFrameworks) > 0 {
			fmt.Fprintf(&b, " frameworks: %s", strings.Join(r.AIFrameworks, ", "))
		}
	}
	if r.SkippedProbes > 0 {
		fmt.Fprintf(&b, " [%d probes skipped]", r.SkippedProbes)
	}
	b.WriteString("\n")
	_, err := io.WriteString(s.writer, b.String())
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		return s.agg.encode(s.writer)
	}
	if s.format != "text" && s.format != FormatNDJSON {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
