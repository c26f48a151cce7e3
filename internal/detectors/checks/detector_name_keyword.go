package checks

import (
	"context"

	"aiscout/internal/detectors"

	"github.com/google/go-github/v81/github"
)

type NameKeywordDetector struct{}

func (d *NameKeywordDetector) ID() string {
	return "name-keyword"
}

func (d *NameKeywordDetector) Title() string {
	return "Repository Name Keyword"
}

func (d *NameKeywordDetector) Description() string {
	return "Matches the repository name against known AI/ML keywords (ai, ml, llm, gpt, machine-learning, ...)."
}

func (d *NameKeywordDetector) Collect(ctx context.Context, repo *github.Repository, _ detectors.ContentSource) (detectors.Findings, error) {
	var f detectors.Findings
	if kw, ok := detectors.MatchKeyword(repo.GetName()); ok {
		f.Add(detectors.NewSignal(d, detectors.TypeRepositoryName, "", 0.6, "Repository name contains keyword %q", kw))
	}
	return f, nil
}

func init() {
	detectors.Register(&NameKeywordDetector{})
}
