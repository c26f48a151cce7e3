package checks

import (
	"context"
	"strings"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type ConfigAPIKeysDetector struct{}

func (d *ConfigAPIKeysDetector) ID() string {
	return "config-api-keys"
}

func (d *ConfigAPIKeysDetector) Title() string {
	return "Config / API Key Detection"
}

func (d *ConfigAPIKeysDetector) Description() string {
	return "Searches .env*, config.* and settings.py at the repository root for AI-provider API key markers. Only marker names are reported, never values."
}

func (d *ConfigAPIKeysDetector) Collect(ctx context.Context, repo *github.Repository, src detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	root, err := listRoot(ctx, src, repo)
	if err != nil {
		return f, err
	}
	for _, e := range root {
		if !e.IsFile() || !detectors.IsConfigFile(e.Name) {
			continue
		}
		content, err := src.ReadFile(ctx, repo, entryPath(e))
		if err != nil {
			if abort := skipProbe(ctx, &f, err); abort != nil {
				return f, abort
			}
			continue
		}
		markers := detectors.MatchAPIKeyMarkers(content)
		if len(markers) == 0 {
			continue
		}
		f.Add(detectors.NewSignal(d, detectors.TypeAPIKeyConfiguration, entryPath(e), 0.85,
			"%s references %s", e.Name, strings.Join(markers, ", ")))
	}
	return f, nil
}

func init() {
	detectors.Register(&ConfigAPIKeysDetector{})
}
