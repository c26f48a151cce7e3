package checks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aiscout/internal/detectors"
	"aiscout/internal/fetcher"
)

const notebookTorch = `{
 "cells": [
  {"cell_type": "markdown", "source": ["import openai is just text here\n"]},
  {"cell_type": "code", "source": ["import numpy as np\n", "import torch, os\n", "from sklearn.model_selection import train_test_split\n"]}
 ],
 "nbformat": 4
}`

func TestRegisteredDetectors(t *testing.T) {
	want := []string{
		"ai-directories",
		"config-api-keys",
		"dependency-files",
		"description-keyword",
		"model-files",
		"name-keyword",
		"notebook-imports",
	}
	all := detectors.List()
	if len(all) != len(want) {
		t.Fatalf("got %d detectors, want %d", len(all), len(want))
	}
	for i, c := range all {
		if c.ID() != want[i] {
			t.Errorf("detector %d = %s, want %s", i, c.ID(), want[i])
		}
	}
}

func TestKeywordDetectors(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(nil)

	f, err := (&NameKeywordDetector{}).Collect(ctx, testRepo("llm-router", ""), src)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(f.Signals) != 1 || f.Signals[0].Confidence != 0.6 || f.Signals[0].Type != detectors.TypeRepositoryName {
		t.Errorf("unexpected name signals: %+v", f.Signals)
	}

	f, _ = (&NameKeywordDetector{}).Collect(ctx, testRepo("billing", "machine learning pipeline"), src)
	if len(f.Signals) != 0 {
		t.Errorf("name detector must ignore the description: %+v", f.Signals)
	}

	f, _ = (&DescriptionKeywordDetector{}).Collect(ctx, testRepo("billing", "Machine learning pipeline"), src)
	if len(f.Signals) != 1 || f.Signals[0].Confidence != 0.5 || f.Signals[0].Type != detectors.TypeRepositoryDescription {
		t.Errorf("unexpected description signals: %+v", f.Signals)
	}
}

func TestDependencyFilesDetector(t *testing.T) {
	ctx := context.Background()
	d := &DependencyFilesDetector{}

	t.Run("one signal per manifest with hits", func(t *testing.T) {
		src := newFakeSource(map[string]string{
			"package.json":     `{"dependencies":{"openai":"^4.2.0"}}`,
			"requirements.txt": "torch==2.1.0\nrequests\n",
			"environment.yml":  "dependencies:\n  - python=3.11\n",
			"README.md":        "# demo",
		})
		f, err := d.Collect(ctx, testRepo("app", ""), src)
		if err != nil {
			t.Fatalf("Collect error: %v", err)
		}
		if len(f.Signals) != 2 {
			t.Fatalf("got %d signals, want 2: %+v", len(f.Signals), f.Signals)
		}
		for _, s := range f.Signals {
			if s.Confidence != 0.9 || s.Type != detectors.TypeDependencyFile {
				t.Errorf("unexpected signal %+v", s)
			}
		}
		if len(f.Libraries) != 2 || f.Libraries[0].Name != "openai" || f.Libraries[0].Version != "^4.2.0" {
			t.Errorf("unexpected libraries %+v", f.Libraries)
		}
		if f.Skipped != 0 {
			t.Errorf("Skipped = %d, want 0", f.Skipped)
		}
	})

	t.Run("malformed and unreadable manifests are skipped", func(t *testing.T) {
		src := newFakeSource(map[string]string{
			"package.json":     `{"dependencies":`,
			"requirements.txt": "openai\n",
		})
		src.errs["requirements.txt"] = &fetcher.Error{Kind: fetcher.ErrRateLimited, Op: "read requirements.txt"}
		f, err := d.Collect(ctx, testRepo("app", ""), src)
		if err != nil {
			t.Fatalf("Collect error: %v", err)
		}
		if len(f.Signals) != 0 || len(f.Libraries) != 0 {
			t.Errorf("expected no evidence, got %+v", f)
		}
		if f.Skipped != 2 {
			t.Errorf("Skipped = %d, want 2", f.Skipped)
		}
	})

	t.Run("root listing failure is returned", func(t *testing.T) {
		src := newFakeSource(nil)
		src.errs[""] = &fetcher.Error{Kind: fetcher.ErrFetch, Op: "list"}
		if _, err := d.Collect(ctx, testRepo("app", ""), src); !errors.Is(err, fetcher.ErrFetch) {
			t.Errorf("err = %v, want ErrFetch", err)
		}
	})

	t.Run("canceled context aborts", func(t *testing.T) {
		src := newFakeSource(map[string]string{"package.json": `{}`})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := d.Collect(cctx, testRepo("app", ""), src); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestModelFilesDetector(t *testing.T) {
	src := newFakeSource(map[string]string{
		"classifier.onnx":          "",
		"main.go":                  "",
		"models/resnet.pt":         "",
		"models/README.md":         "",
		"ml/deep/nested.h5":        "",
		"checkpoints/epoch1.ckpt":  "",
		"training/run.safetensors": "",
	})
	d := NewModelFilesDetector()
	if err := d.Configure(map[string]string{optMaxDrilldownDirs: "2"}); err != nil {
		t.Fatalf("Configure error: %v", err)
	}

	f, err := d.Collect(context.Background(), testRepo("vision", ""), src)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	// Root file plus the first two AI directories (checkpoints, ml); nested
	// directories are not descended.
	var paths []string
	for _, s := range f.Signals {
		paths = append(paths, s.Path)
		if s.Type != detectors.TypeModelFile || s.Confidence != 0.9 {
			t.Errorf("unexpected signal %+v", s)
		}
	}
	if got := strings.Join(paths, ","); got != "classifier.onnx,checkpoints/epoch1.ckpt" {
		t.Errorf("signal paths = %s", got)
	}
	if len(f.Libraries) != 2 || f.Libraries[0].Name != "onnx" || f.Libraries[1].Name != "checkpoint" {
		t.Errorf("unexpected libraries %+v", f.Libraries)
	}

	if err := d.Configure(map[string]string{optMaxDrilldownDirs: "-1"}); err == nil {
		t.Error("expected error for negative option")
	}
}

func TestAIDirectoriesDetector(t *testing.T) {
	src := newFakeSource(map[string]string{
		"llm/prompt.txt": "",
		"src/main.py":    "",
		"models":         "a file, not a directory",
	})
	f, err := (&AIDirectoriesDetector{}).Collect(context.Background(), testRepo("app", ""), src)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(f.Signals) != 1 || f.Signals[0].Path != "llm" || f.Signals[0].Confidence != 0.7 {
		t.Errorf("unexpected signals %+v", f.Signals)
	}
}

func TestNotebookImportsDetector(t *testing.T) {
	src := newFakeSource(map[string]string{
		"analysis.ipynb":       notebookTorch,
		"broken.ipynb":         "{not json",
		"plain.ipynb":          `{"cells":[{"cell_type":"code","source":"import pandas as pd"}]}`,
		"notebooks/skip.ipynb": notebookTorch,
		"models/explore.ipynb": `{"cells":[{"cell_type":"code","source":"from openai import OpenAI\n"}]}`,
	})
	d := NewNotebookImportsDetector()

	f, err := d.Collect(context.Background(), testRepo("research", ""), src)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(f.Signals) != 2 {
		t.Fatalf("got %d signals, want 2: %+v", len(f.Signals), f.Signals)
	}
	if f.Signals[0].Path != "analysis.ipynb" || !strings.Contains(f.Signals[0].Details, "sklearn, torch") {
		t.Errorf("unexpected first signal %+v", f.Signals[0])
	}
	if strings.Contains(f.Signals[0].Details, "openai") {
		t.Errorf("markdown cells must be ignored: %s", f.Signals[0].Details)
	}
	if f.Signals[1].Path != "models/explore.ipynb" || f.Signals[1].Confidence != 0.95 {
		t.Errorf("unexpected second signal %+v", f.Signals[1])
	}
	if f.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (broken notebook)", f.Skipped)
	}
	if len(f.Libraries) != 0 {
		t.Errorf("notebook detector must not report libraries: %+v", f.Libraries)
	}

	limited := NewNotebookImportsDetector()
	_ = limited.Configure(map[string]string{optMaxNotebooks: "1"})
	src.reads = nil
	if _, err := limited.Collect(context.Background(), testRepo("research", ""), src); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(src.reads) != 1 {
		t.Errorf("read %d notebooks, want 1", len(src.reads))
	}

	t.Run("aliased import lists", func(t *testing.T) {
		mods, err := notebookImports([]byte(`{"cells":[{"cell_type":"code","source":"import numpy as np, torch\nimport pandas as pd, transformers as tf\n"}]}`))
		if err != nil {
			t.Fatalf("notebookImports: %v", err)
		}
		if strings.Join(mods, ",") != "torch,transformers" {
			t.Errorf("modules = %v, want [torch transformers]", mods)
		}
	})

	t.Run("truncated notebook falls back to raw text", func(t *testing.T) {
		truncated := newFakeSource(map[string]string{
			"cut.ipynb": `{"cells":[{"cell_type":"code","source":["import os\n","import torch\n","x = torch.zeros(`,
		})
		f, err := NewNotebookImportsDetector().Collect(context.Background(), testRepo("research", ""), truncated)
		if err != nil {
			t.Fatalf("Collect error: %v", err)
		}
		if f.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1 for the undecodable notebook", f.Skipped)
		}
		if len(f.Signals) != 1 || !strings.Contains(f.Signals[0].Details, "torch") {
			t.Fatalf("want one torch signal from raw text, got %+v", f.Signals)
		}
	})
}

func TestConfigAPIKeysDetector(t *testing.T) {
	src := newFakeSource(map[string]string{
		".env.example": "OPENAI_API_KEY=\nANTHROPIC_API_KEY=sk-ant-REDACTED\n",
		"config.yaml":  "port: 8080\n",
		"settings.py":  "SECRET_KEY = 'x'\n",
		"app.py":       "OPENAI_API_KEY = os.environ['OPENAI_API_KEY']\n",
	})
	f, err := (&ConfigAPIKeysDetector{}).Collect(context.Background(), testRepo("app", ""), src)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(f.Signals) != 1 {
		t.Fatalf("got %d signals, want 1: %+v", len(f.Signals), f.Signals)
	}
	s := f.Signals[0]
	if s.Path != ".env.example" || s.Confidence != 0.85 || s.Type != detectors.TypeAPIKeyConfiguration {
		t.Errorf("unexpected signal %+v", s)
	}
	if strings.Contains(s.Details, "sk-ant-api03") {
		t.Errorf("secret value leaked into details: %s", s.Details)
	}
	for _, p := range src.reads {
		if p == "app.py" {
			t.Error("non-config file was read")
		}
	}
}
