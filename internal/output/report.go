package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"aiscout/internal/domain/scans"
)

// ReportSink renders a Markdown report of one run on Close.
type ReportSink struct {
	path     string
	file     *os.File
	mu       sync.Mutex
	target   string
	runID    string
	results  []*scans.Result
	summary  *scans.Summary
	errorMsg string
}

func NewReportSink(path string) (*ReportSink, error) {
	f, err := createOutputFile(path, "report")
	if err != nil {
		return nil, err
	}
	return &ReportSink{path: path, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case *scans.Result:
		s.results = append(s.results, t)
	case Event:
		if t.Target != "" {
			s.target = t.Target
		}
		if t.RunID != "" {
			s.runID = t.RunID
		}
		if t.Type == EventRunFinished {
			s.summary = t.Summary
			s.errorMsg = t.Error
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, werr := s.file.WriteString(s.render())
	cerr := s.file.Close()
	if werr != nil {
		return fmt.Errorf("failed to write report: %w", werr)
	}
	return cerr
}

func (s *ReportSink) render() string {
	var aiRepos, skipped []*scans.Result
	for _, r := range s.results {
		if r.HasAIUsage {
			aiRepos = append(aiRepos, r)
		}
		if r.SkippedProbes > 0 {
			skipped = append(skipped, r)
		}
	}
	sort.SliceStable(aiRepos, func(i, j int) bool {
		if aiRepos[i].ConfidenceScore != aiRepos[j].ConfidenceScore {
			return aiRepos[i].ConfidenceScore > aiRepos[j].ConfidenceScore
		}
		return aiRepos[i].RepositoryName < aiRepos[j].RepositoryName
	})
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].RepositoryName < skipped[j].RepositoryName
	})

	total := len(s.results)
	withAI := len(aiRepos)
	if s.summary != nil {
		total, withAI = s.summary.TotalRepositories, s.summary.RepositoriesWithAI
	}

	var b strings.Builder
	b.WriteString("# aiscout Scan Report\n\n")

	b.WriteString("## Summary\n\n")
	if s.target != "" {
		fmt.Fprintf(&b, "- **Target:** %s\n", s.target)
	}
	if s.runID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", s.runID)
	}
	if s.summary != nil {
		fmt.Fprintf(&b, "- **Status:** %s\n", s.summary.Status)
	}
	fmt.Fprintf(&b, "- **Repositories scanned:** %d\n", total)
	fmt.Fprintf(&b, "- **Repositories using AI:** %d (%s)\n", withAI, percent(withAI, total))
	if s.errorMsg != "" {
		fmt.Fprintf(&b, "\n> **Scan failed:** %s\n", escapeCell(s.errorMsg))
	}
	b.WriteString("\n")

	b.WriteString("## Repositories Using AI\n\n")
	if len(aiRepos) == 0 {
		b.WriteString("No AI usage found.\n\n")
	} else {
		b.WriteString("| Repository | Confidence | Detection | Libraries | Frameworks |\n")
		b.WriteString("| --- | ---: | --- | --- | --- |\n")
		for _, r := range aiRepos {
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n",
				repoLink(r), r.ConfidenceScore, escapeCell(r.DetectionType),
				joinOrDash(r.AILibraries), joinOrDash(r.AIFrameworks))
		}
		b.WriteString("\n")
	}

	libs := countTerms(aiRepos, func(r *scans.Result) []string { return r.AILibraries })
	frameworks := countTerms(aiRepos, func(r *scans.Result) []string { return r.AIFrameworks })
	if len(libs)+len(frameworks) > 0 {
		b.WriteString("## Libraries and Frameworks\n\n")
		b.WriteString("| Name | Kind | Repos |\n")
		b.WriteString("| --- | --- | ---: |\n")
		for _, tc := range libs {
			fmt.Fprintf(&b, "| %s | library | %d |\n", escapeCell(tc.term), tc.repos)
		}
		for _, tc := range frameworks {
			fmt.Fprintf(&b, "| %s | framework | %d |\n", escapeCell(tc.term), tc.repos)
		}
		b.WriteString("\n")
	}

	if detections := countTerms(aiRepos, func(r *scans.Result) []string { return []string{r.DetectionType} }); len(detections) > 0 {
		b.WriteString("## Detection Types\n\n")
		for _, tc := range detections {
			fmt.Fprintf(&b, "- **%s**: %d repos\n", tc.term, tc.repos)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Coverage\n\n")
	if len(skipped) == 0 {
		b.WriteString("All probes completed.\n")
	} else {
		names := make([]string, 0, len(skipped))
		for _, r := range skipped {
			names = append(names, fmt.Sprintf("%s (%d)", r.RepositoryName, r.SkippedProbes))
		}
		fmt.Fprintf(&b, "Some content could not be fetched or parsed; these repositories may under-report AI usage: %s\n",
			formatRepoList(names, 10))
	}
	return b.String()
}

type termCount struct {
	term  string
	repos int
}

// countTerms counts in how many results each term appears, most common first.
func countTerms(results []*scans.Result, terms func(*scans.Result) []string) []termCount {
	counts := map[string]int{}
	for _, r := range results {
		seen := map[string]bool{}
		for _, t := range terms(r) {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			counts[t]++
		}
	}
	out := make([]termCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, termCount{term: t, repos: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].repos != out[j].repos {
			return out[i].repos > out[j].repos
		}
		return out[i].term < out[j].term
	})
	return out
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}

func repoLink(r *scans.Result) string {
	if r.RepositoryURL == "" {
		return escapeCell(r.RepositoryName)
	}
	return fmt.Sprintf("[%s](%s)", escapeCell(r.RepositoryName), r.RepositoryURL)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return escapeCell(strings.Join(items, ", "))
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func formatRepoList(repos []string, max int) string {
	if len(repos) <= max {
		return strings.Join(repos, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(repos[:max], ", "), len(repos)-max)
}
