// Package score combines detector evidence into one confidence score per
// repository.
package score

import (
	"math"
	"sort"

	"aiscout/internal/detectors"
)

const (
	// LibraryOnlyScore is the score for library evidence without signals. It
	// is also the floor whenever libraries are present.
	LibraryOnlyScore = 85

	perExtraSignal = 5
	libraryBonus   = 10
	maxScore       = 100

	// MaxFrameworks bounds Assessment.Frameworks.
	MaxFrameworks = 10
)

// Assessment is the aggregate verdict for one repository.
type Assessment struct {
	HasAIUsage    bool
	Score         int
	DetectionType string
	// Libraries is the sorted, de-duplicated set of library names.
	Libraries []string
	// Frameworks holds up to MaxFrameworks name@version strings.
	Frameworks []string
}

// Aggregate scores signals and library hits. Signals are ranked by confidence;
// equal confidences keep their input order, so callers feed signals in
// collector order to make ties deterministic.
func Aggregate(signals []detectors.Signal, libraries []detectors.LibraryHit) Assessment {
	a := Assessment{
		Libraries:  libraryNames(libraries),
		Frameworks: frameworks(libraries),
	}
	hasLibraries := len(a.Libraries) > 0

	if len(signals) == 0 {
		if hasLibraries {
			a.Score = LibraryOnlyScore
			a.DetectionType = detectors.TypeLibraryDetection
			a.HasAIUsage = true
		}
		return a
	}

	ranked := make([]detectors.Signal, len(signals))
	copy(ranked, signals)
	sort.SliceStable(ranked, func(i, j int) bool {
		return clamp01(ranked[i].Confidence) > clamp01(ranked[j].Confidence)
	})

	top := ranked[0]
	score := int(math.Round(clamp01(top.Confidence) * 100))
	score = min(score+perExtraSignal*(len(ranked)-1), maxScore)
	if hasLibraries {
		score = min(score+libraryBonus, maxScore)
		score = max(score, LibraryOnlyScore)
	}

	a.Score = score
	a.DetectionType = top.Type
	a.HasAIUsage = score > 0 || hasLibraries
	return a
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func libraryNames(libraries []detectors.LibraryHit) []string {
	seen := make(map[string]bool, len(libraries))
	var names []string
	for _, l := range libraries {
		if l.Name == "" || seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}

// frameworks renders hits as name@version in first-seen order, de-duplicated.
func frameworks(libraries []detectors.LibraryHit) []string {
	seen := make(map[string]bool, len(libraries))
	var out []string
	for _, l := range libraries {
		if l.Name == "" {
			continue
		}
		s := l.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == MaxFrameworks {
			break
		}
	}
	return out
}
