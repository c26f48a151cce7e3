package output

import (
	"encoding/json"
	"io"

	"aiscout/internal/domain/scans"
)

const (
	EventRunStarted  = "run.started"
	EventRepoResult  = "repo.result"
	EventRunFinished = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line):
// - run.started
// - repo.result (one per scanned repository)
// - run.finished (carries the summary)
//
// JSON mode remains an aggregate Document written on Close.
type Event struct {
	Type   string `json:"type"`
	RunID  string `json:"run_id,omitempty"`
	Target string `json:"target,omitempty"`
	*scans.Result
	Repos   int            `json:"repos,omitempty"`
	Summary *scans.Summary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func eventFromResult(r *scans.Result) Event {
	return Event{Type: EventRepoResult, RunID: r.RunID, Result: r}
}

// Document is the JSON-mode output of one run.
type Document struct {
	Summary *scans.Summary  `json:"summary"`
	Results []*scans.Result `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// aggregate collects what JSON-mode sinks write on Close.
type aggregate struct {
	doc Document
}

func (a *aggregate) add(v any) {
	switch t := v.(type) {
	case *scans.Result:
		a.doc.Results = append(a.doc.Results, t)
	case Event:
		if t.Type == EventRunFinished {
			a.doc.Summary = t.Summary
			a.doc.Error = t.Error
		}
	}
}

func (a *aggregate) encode(w io.Writer) error {
	doc := a.doc
	if doc.Results == nil {
		doc.Results = []*scans.Result{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// encodeEvent writes v as one NDJSON line. Values that are neither results
// nor events are ignored.
func encodeEvent(w io.Writer, v any) error {
	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case *scans.Result:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(w)
}
