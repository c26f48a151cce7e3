package detectors

import (
	"fmt"

	"github.com/google/go-github/v81/github"
)

// Detection type labels. The label of the strongest signal becomes the
// repository's detection type.
const (
	TypeRepositoryName        = "Repository Name"
	TypeRepositoryDescription = "Repository Description"
	TypeDependencyFile        = "Dependency File"
	TypeModelFile             = "Model File"
	TypeAIDirectory           = "AI Directory"
	TypeNotebookImport        = "Notebook Import"
	TypeAPIKeyConfiguration   = "API Key Configuration"
	TypeLibraryDetection      = "Library Detection"
)

// Signal is one piece of weighted evidence.
type Signal struct {
	Detector   string  `json:"detector"`
	Type       string  `json:"type"`
	Path       string  `json:"path,omitempty"`
	Details    string  `json:"details"`
	Confidence float64 `json:"confidence"`
}

// LibraryHit is an AI/ML library or framework found in a manifest or implied
// by a model artifact. Version is empty when unknown.
type LibraryHit struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// String renders the hit as name@version, or just name.
func (l LibraryHit) String() string {
	if l.Version == "" {
		return l.Name
	}
	return l.Name + "@" + l.Version
}

type Findings struct {
	Signals   []Signal
	Libraries []LibraryHit
	// Skipped counts probes that could not be completed.
	Skipped int
}

func (f *Findings) Add(s Signal) {
	f.Signals = append(f.Signals, s)
}

func (f *Findings) AddLibrary(name, version string) {
	f.Libraries = append(f.Libraries, LibraryHit{Name: name, Version: version})
}

func (f *Findings) Skip() {
	f.Skipped++
}

// Merge appends other into f.
func (f *Findings) Merge(other Findings) {
	f.Signals = append(f.Signals, other.Signals...)
	f.Libraries = append(f.Libraries, other.Libraries...)
	f.Skipped += other.Skipped
}

func (f Findings) Empty() bool {
	return len(f.Signals) == 0 && len(f.Libraries) == 0
}

func RepoFullName(repo *github.Repository) string {
	if repo == nil {
		return ""
	}
	if name := repo.GetFullName(); name != "" {
		return name
	}
	if owner := repo.GetOwner().GetLogin(); owner != "" {
		return owner + "/" + repo.GetName()
	}
	return repo.GetName()
}

func NewSignal(c Collector, typ, path string, confidence float64, format string, args ...any) Signal {
	return Signal{
		Detector:   c.ID(),
		Type:       typ,
		Path:       path,
		Details:    fmt.Sprintf(format, args...),
		Confidence: confidence,
	}
}
