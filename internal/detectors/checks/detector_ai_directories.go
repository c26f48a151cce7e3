package checks

import (
	"context"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type AIDirectoriesDetector struct{}

func (d *AIDirectoriesDetector) ID() string {
	return "ai-directories"
}

func (d *AIDirectoriesDetector) Title() string {
	return "AI Directory Detection"
}

func (d *AIDirectoriesDetector) Description() string {
	return "Reports top-level directories named like AI/ML folders (models/, ai/, ml/, llm/, ...)."
}

func (d *AIDirectoriesDetector) Collect(ctx context.Context, repo *github.Repository, src detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	root, err := listRoot(ctx, src, repo)
	if err != nil {
		return f, err
	}
	for _, dir := range aiDirectories(root, -1) {
		f.Add(detectors.NewSignal(d, detectors.TypeAIDirectory, entryPath(dir), 0.7, "AI/ML directory %s/", dir.Name))
	}
	return f, nil
}

func init() {
	detectors.Register(&AIDirectoriesDetector{})
}
