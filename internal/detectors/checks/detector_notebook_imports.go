package checks

import (
	"context"
	"path"
	"strings"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

const (
	optMaxNotebooks     = "max-notebooks"
	defaultMaxNotebooks = 20
)

type NotebookImportsDetector struct {
	maxDrilldownDirs int
	maxNotebooks     int
}

func NewNotebookImportsDetector() *NotebookImportsDetector {
	return &NotebookImportsDetector{
		maxDrilldownDirs: defaultMaxDrilldownDirs,
		maxNotebooks:     defaultMaxNotebooks,
	}
}

func (d *NotebookImportsDetector) ID() string {
	return "notebook-imports"
}

func (d *NotebookImportsDetector) Title() string {
	return "Notebook Import Detection"
}

func (d *NotebookImportsDetector) Description() string {
	return "Reads Jupyter notebooks at the repository root and in top-level AI directories and reports import statements of known AI/ML libraries."
}

func (d *NotebookImportsDetector) Options() []detectors.Option {
	return []detectors.Option{
		{Name: optMaxDrilldownDirs, Description: "Top-level AI directories listed for notebooks", Default: "5"},
		{Name: optMaxNotebooks, Description: "Notebooks read per repository", Default: "20"},
	}
}

func (d *NotebookImportsDetector) Configure(opts map[string]string) error {
	dirs, err := parseNonNegative(opts, optMaxDrilldownDirs, d.maxDrilldownDirs)
	if err != nil {
		return err
	}
	notebooks, err := parseNonNegative(opts, optMaxNotebooks, d.maxNotebooks)
	if err != nil {
		return err
	}
	d.maxDrilldownDirs = dirs
	d.maxNotebooks = notebooks
	return nil
}

func (d *NotebookImportsDetector) Collect(ctx context.Context, repo *github.Repository, src detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	files, err := drilldown(ctx, src, repo, d.maxDrilldownDirs, &f)
	if err != nil {
		return f, err
	}

	read := 0
	for _, e := range files {
		if !strings.EqualFold(path.Ext(e.Name), ".ipynb") {
			continue
		}
		if read >= d.maxNotebooks {
			break
		}
		read++

		content, err := src.ReadFile(ctx, repo, entryPath(e))
		if err != nil {
			if abort := skipProbe(ctx, &f, err); abort != nil {
				return f, abort
			}
			continue
		}
		modules, err := notebookImports(content)
		if err != nil {
			f.Skip()
		}
		if len(modules) == 0 {
			continue
		}
		f.Add(detectors.NewSignal(d, detectors.TypeNotebookImport, entryPath(e), 0.95,
			"Notebook %s imports %s", entryPath(e), strings.Join(modules, ", ")))
	}
	return f, nil
}

func init() {
	detectors.Register(NewNotebookImportsDetector())
}
