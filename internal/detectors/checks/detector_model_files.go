package checks

import (
	"context"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type ModelFilesDetector struct {
	maxDrilldownDirs int
}

func NewModelFilesDetector() *ModelFilesDetector {
	return &ModelFilesDetector{maxDrilldownDirs: defaultMaxDrilldownDirs}
}

func (d *ModelFilesDetector) ID() string {
	return "model-files"
}

func (d *ModelFilesDetector) Title() string {
	return "Model File Detection"
}

func (d *ModelFilesDetector) Description() string {
	return "Reports serialized model artifacts (.pt, .h5, .onnx, .safetensors, .gguf, ...) at the repository root or inside top-level AI directories, and records the implied framework."
}

func (d *ModelFilesDetector) Options() []detectors.Option {
	return []detectors.Option{
		{Name: optMaxDrilldownDirs, Description: "Top-level AI directories listed for model files", Default: "5"},
	}
}

func (d *ModelFilesDetector) Configure(opts map[string]string) error {
	n, err := parseNonNegative(opts, optMaxDrilldownDirs, d.maxDrilldownDirs)
	if err != nil {
		return err
	}
	d.maxDrilldownDirs = n
	return nil
}

func (d *ModelFilesDetector) Collect(ctx context.Context, repo *github.Repository, src detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	files, err := drilldown(ctx, src, repo, d.maxDrilldownDirs, &f)
	if err != nil {
		return f, err
	}
	for _, e := range files {
		fw, ok := detectors.ModelFramework(e.Name)
		if !ok {
			continue
		}
		f.AddLibrary(fw, "")
		f.Add(detectors.NewSignal(d, detectors.TypeModelFile, entryPath(e), 0.9, "Model artifact %s (%s)", entryPath(e), fw))
	}
	return f, nil
}

func init() {
	detectors.Register(NewModelFilesDetector())
}
