package detectors

import (
	"reflect"
	"testing"
)

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"llm-gateway", "llm", true},
		{"OpenAI-demo", "ai", true},
		{"my_ml_experiments", "ml", true},
		{"machine-learning-notes", "machine learning", true},
		{"A chatbot for support tickets", "chatbot", true},
		{"PyTorchExamples", "pytorch", true},
		{"html-parser", "", false},
		{"email-service", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchKeyword(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MatchKeyword(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchLibrary(t *testing.T) {
	tests := []struct {
		pkg  string
		want string
		ok   bool
	}{
		{"openai", "openai", true},
		{"Scikit_Learn", "scikit-learn", true},
		{"sentence_transformers", "sentence-transformers", true},
		{"@langchain/openai", "@langchain/openai", true},
		{"langchain-community", "langchain-community", true},
		{"@tensorflow/tfjs", "@tensorflow/tfjs", true},
		{"brain.js", "brain.js", true},
		{"react", "", false},
		{"requests", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchLibrary(tt.pkg)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MatchLibrary(%q) = %q, %v; want %q, %v", tt.pkg, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchNotebookModule(t *testing.T) {
	if got, ok := MatchNotebookModule("sklearn.model_selection"); !ok || got != "sklearn" {
		t.Errorf("got %q, %v; want sklearn", got, ok)
	}
	if got, ok := MatchNotebookModule("google.generativeai"); !ok || got != "google.generativeai" {
		t.Errorf("got %q, %v; want google.generativeai", got, ok)
	}
	if _, ok := MatchNotebookModule("pandas"); ok {
		t.Error("pandas must not match")
	}
}

func TestModelFramework(t *testing.T) {
	if fw, ok := ModelFramework("weights/BEST.PT"); !ok || fw != "pytorch" {
		t.Errorf("got %q, %v; want pytorch", fw, ok)
	}
	if _, ok := ModelFramework("model.go"); ok {
		t.Error("model.go must not be a model artifact")
	}
	if exts := ModelExtensions(); len(exts) == 0 || exts[0] != ".caffemodel" {
		t.Errorf("ModelExtensions not sorted: %v", exts)
	}
}

func TestIsAIDirectory(t *testing.T) {
	for _, name := range []string{"models", "ML", "llm", "machine_learning", "Checkpoints"} {
		if !IsAIDirectory(name) {
			t.Errorf("IsAIDirectory(%q) = false", name)
		}
	}
	for _, name := range []string{"src", "docs", "mail"} {
		if IsAIDirectory(name) {
			t.Errorf("IsAIDirectory(%q) = true", name)
		}
	}
}

func TestMatchAPIKeyMarkers(t *testing.T) {
	content := []byte("OPENAI_API_KEY=sk-proj-abcdefghijklmnopqrstuvwx\nHF_TOKEN=\nDATABASE_URL=postgres://\n")
	got := MatchAPIKeyMarkers(content)
	want := []string{"OPENAI_API_KEY", "HUGGINGFACE_TOKEN", "openai-key-literal"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MatchAPIKeyMarkers = %v, want %v", got, want)
	}
	if got := MatchAPIKeyMarkers([]byte("STRIPE_KEY=sk_live_123")); len(got) != 0 {
		t.Errorf("unexpected markers %v", got)
	}
}

func TestIsConfigFile(t *testing.T) {
	for _, name := range []string{".env", ".env.example", "config.yaml", "Config.json", "settings.py"} {
		if !IsConfigFile(name) {
			t.Errorf("IsConfigFile(%q) = false", name)
		}
	}
	for _, name := range []string{"environment.yml", "config", "settings.json", ".envrc"} {
		if IsConfigFile(name) {
			t.Errorf("IsConfigFile(%q) = true", name)
		}
	}
}

func TestLibraryHitString(t *testing.T) {
	if got := (LibraryHit{Name: "openai", Version: "^4.2.0"}).String(); got != "openai@^4.2.0" {
		t.Errorf("got %q", got)
	}
	if got := (LibraryHit{Name: "pytorch"}).String(); got != "pytorch" {
		t.Errorf("got %q", got)
	}
}
