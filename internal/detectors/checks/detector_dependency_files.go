package checks

import (
	"context"
	"strings"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type DependencyFilesDetector struct{}

func (d *DependencyFilesDetector) ID() string {
	return "dependency-files"
}

func (d *DependencyFilesDetector) Title() string {
	return "Dependency File Scan"
}

func (d *DependencyFilesDetector) Description() string {
	return "Reads package.json, requirements*.txt and environment.yml at the repository root and reports known AI/ML libraries. Malformed manifests are skipped."
}

func (d *DependencyFilesDetector) Collect(ctx context.Context, repo *github.Repository, src detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	root, err := listRoot(ctx, src, repo)
	if err != nil {
		return f, err
	}

	for _, e := range root {
		if !e.IsFile() {
			continue
		}
		kind := classifyManifest(e.Name)
		if kind == manifestNone {
			continue
		}
		content, err := src.ReadFile(ctx, repo, entryPath(e))
		if err != nil {
			if abort := skipProbe(ctx, &f, err); abort != nil {
				return f, abort
			}
			continue
		}
		hits, err := parseManifest(kind, content)
		if err != nil {
			f.Skip()
			continue
		}
		if len(hits) == 0 {
			continue
		}
		names := make([]string, 0, len(hits))
		for _, h := range hits {
			f.AddLibrary(h.Name, h.Version)
			names = append(names, h.Name)
		}
		f.Add(detectors.NewSignal(d, detectors.TypeDependencyFile, entryPath(e), 0.9,
			"%s declares AI/ML libraries: %s", e.Name, strings.Join(names, ", ")))
	}
	return f, nil
}

func init() {
	detectors.Register(&DependencyFilesDetector{})
}
