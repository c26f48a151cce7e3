package checks

import (
	"context"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type DescriptionKeywordDetector struct{}

func (d *DescriptionKeywordDetector) ID() string {
	return "description-keyword"
}

func (d *DescriptionKeywordDetector) Title() string {
	return "Repository Description Keyword"
}

func (d *DescriptionKeywordDetector) Description() string {
	return "Matches the repository description against known AI/ML keywords and phrases."
}

func (d *DescriptionKeywordDetector) Collect(ctx context.Context, repo *github.Repository, _ detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	if kw, ok := detectors.MatchKeyword(repo.GetDescription()); ok {
		f.Add(detectors.NewSignal(d, detectors.TypeRepositoryDescription, "", 0.5, "Repository description contains keyword %q", kw))
	}
	return f, nil
}

func init() {
	detectors.Register(&DescriptionKeywordDetector{})
}
