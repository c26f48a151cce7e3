package score

import (
	"fmt"
	"math/rand"
	"testing"

	"aiscout/internal/detectors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalog = []detectors.Signal{
	{Detector: "name-keyword", Type: detectors.TypeRepositoryName, Confidence: 0.6},
	{Detector: "description-keyword", Type: detectors.TypeRepositoryDescription, Confidence: 0.5},
	{Detector: "dependency-files", Type: detectors.TypeDependencyFile, Confidence: 0.9},
	{Detector: "model-files", Type: detectors.TypeModelFile, Confidence: 0.9},
	{Detector: "ai-directories", Type: detectors.TypeAIDirectory, Confidence: 0.7},
	{Detector: "notebook-imports", Type: detectors.TypeNotebookImport, Confidence: 0.95},
	{Detector: "config-api-keys", Type: detectors.TypeAPIKeyConfiguration, Confidence: 0.85},
}

func randomInput(r *rand.Rand) ([]detectors.Signal, []detectors.LibraryHit) {
	var signals []detectors.Signal
	for i := r.Intn(6); i > 0; i-- {
		signals = append(signals, catalog[r.Intn(len(catalog))])
	}
	var libs []detectors.LibraryHit
	for i := r.Intn(3); i > 0; i-- {
		libs = append(libs, detectors.LibraryHit{Name: fmt.Sprintf("lib%d", r.Intn(4))})
	}
	return signals, libs
}

func TestAggregate_Scenarios(t *testing.T) {
	t.Run("A: manifest lists openai", func(t *testing.T) {
		signals := []detectors.Signal{catalog[2]}
		libs := []detectors.LibraryHit{{Name: "openai", Version: "^4.2.0"}}

		a := Aggregate(signals, libs)
		assert.True(t, a.HasAIUsage)
		assert.Contains(t, a.Libraries, "openai")
		assert.GreaterOrEqual(t, a.Score, 90)
		assert.Equal(t, 100, a.Score)
		assert.Equal(t, []string{"openai@^4.2.0"}, a.Frameworks)
	})

	t.Run("B: no evidence", func(t *testing.T) {
		a := Aggregate(nil, nil)
		assert.False(t, a.HasAIUsage)
		assert.Equal(t, 0, a.Score)
		assert.Empty(t, a.Libraries)
		assert.Equal(t, "", a.DetectionType)
	})

	t.Run("C: name keyword and dependency file", func(t *testing.T) {
		signals := []detectors.Signal{catalog[0], catalog[2]}
		libs := []detectors.LibraryHit{{Name: "torch", Version: "2.1.0"}}

		a := Aggregate(signals, libs)
		assert.Equal(t, 100, a.Score)
		assert.Equal(t, detectors.TypeDependencyFile, a.DetectionType)
	})

	t.Run("library only", func(t *testing.T) {
		a := Aggregate(nil, []detectors.LibraryHit{{Name: "pytorch"}})
		assert.True(t, a.HasAIUsage)
		assert.Equal(t, LibraryOnlyScore, a.Score)
		assert.Equal(t, detectors.TypeLibraryDetection, a.DetectionType)
	})

	t.Run("single weak signal", func(t *testing.T) {
		a := Aggregate([]detectors.Signal{catalog[1]}, nil)
		assert.Equal(t, 50, a.Score)
		assert.Equal(t, detectors.TypeRepositoryDescription, a.DetectionType)
	})

	t.Run("extra signals add five each", func(t *testing.T) {
		a := Aggregate([]detectors.Signal{catalog[1], catalog[0], catalog[4]}, nil)
		assert.Equal(t, 80, a.Score)
		assert.Equal(t, detectors.TypeAIDirectory, a.DetectionType)
	})

	t.Run("weak signal with library is floored", func(t *testing.T) {
		a := Aggregate([]detectors.Signal{catalog[1]}, []detectors.LibraryHit{{Name: "keras"}})
		assert.Equal(t, LibraryOnlyScore, a.Score)
		assert.Equal(t, detectors.TypeRepositoryDescription, a.DetectionType)
	})
}

func TestAggregate_TieKeepsInputOrder(t *testing.T) {
	a := Aggregate([]detectors.Signal{catalog[2], catalog[3]}, nil)
	assert.Equal(t, detectors.TypeDependencyFile, a.DetectionType)

	a = Aggregate([]detectors.Signal{catalog[3], catalog[2]}, nil)
	assert.Equal(t, detectors.TypeModelFile, a.DetectionType)
}

func TestAggregate_ClampsConfidence(t *testing.T) {
	a := Aggregate([]detectors.Signal{{Type: "x", Confidence: 7}}, nil)
	assert.Equal(t, 100, a.Score)

	a = Aggregate([]detectors.Signal{{Type: "x", Confidence: -1}}, nil)
	assert.Equal(t, 0, a.Score)
	assert.False(t, a.HasAIUsage)
}

func TestAggregate_LibrariesAndFrameworks(t *testing.T) {
	var libs []detectors.LibraryHit
	for i := 0; i < 15; i++ {
		libs = append(libs, detectors.LibraryHit{Name: fmt.Sprintf("lib%02d", 14-i), Version: "1.0"})
	}
	libs = append(libs, detectors.LibraryHit{Name: "lib00", Version: "1.0"})

	a := Aggregate(nil, libs)
	require.Len(t, a.Libraries, 15)
	assert.Equal(t, "lib00", a.Libraries[0])
	assert.Len(t, a.Frameworks, MaxFrameworks)
	assert.Equal(t, "lib14@1.0", a.Frameworks[0])
}

func TestAggregate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		signals, libs := randomInput(r)
		a := Aggregate(signals, libs)

		require.GreaterOrEqual(t, a.Score, 0)
		require.LessOrEqual(t, a.Score, 100)
		require.Equal(t, a.Score > 0 || len(a.Libraries) > 0, a.HasAIUsage, "consistency for %v %v", signals, libs)

		extra := catalog[r.Intn(len(catalog))]
		withSignal := Aggregate(append(append([]detectors.Signal(nil), signals...), extra), libs)
		require.GreaterOrEqual(t, withSignal.Score, a.Score, "adding %v to %v", extra, signals)

		withLib := Aggregate(signals, append(append([]detectors.LibraryHit(nil), libs...), detectors.LibraryHit{Name: "openai"}))
		require.GreaterOrEqual(t, withLib.Score, a.Score, "adding a library to %v %v", signals, libs)

		again := Aggregate(signals, libs)
		require.Equal(t, a, again)
	}
}
