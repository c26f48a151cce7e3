package detectors

import (
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Short keywords only match whole name/description tokens; phrases match
// anywhere once separators are normalized to spaces.
var (
	keywordTokens = []string{
		"ai", "ml", "llm", "llms", "gpt", "nlp", "rag", "genai", "agi",
	}
	keywordPhrases = []string{
		"artificial intelligence",
		"machine learning",
		"deep learning",
		"neural",
		"large language model",
		"language model",
		"chatbot",
		"chatgpt",
		"openai",
		"anthropic",
		"claude",
		"gemini",
		"langchain",
		"llama",
		"transformer",
		"diffusion",
		"embedding",
		"huggingface",
		"hugging face",
		"tensorflow",
		"pytorch",
		"computer vision",
		"reinforcement learning",
	}
)

// MatchKeyword returns the first AI/ML keyword found in text. Words are
// compared both as written and split at camelCase boundaries.
func MatchKeyword(text string) (string, bool) {
	variants := []string{normalizeText(text, false), normalizeText(text, true)}
	tokens := make(map[string]bool)
	for _, v := range variants {
		for _, t := range strings.Fields(v) {
			tokens[t] = true
		}
	}
	for _, k := range keywordTokens {
		if tokens[k] {
			return k, true
		}
	}
	for _, p := range keywordPhrases {
		for _, v := range variants {
			if v != "" && strings.Contains(v, p) {
				return p, true
			}
		}
	}
	return "", false
}

// normalizeText lowercases text and turns every run of non-alphanumerics into
// a single space. With splitCamel, a lower-to-upper transition also starts a
// new word.
func normalizeText(text string, splitCamel bool) string {
	var b strings.Builder
	var prev rune
	space := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if splitCamel && unicode.IsUpper(r) && unicode.IsLower(prev) && !space {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
		prev = r
	}
	return strings.TrimSpace(b.String())
}

var (
	knownLibraries = toSet(
		// JavaScript / TypeScript
		"openai", "@anthropic-ai/sdk", "langchain", "@google/generative-ai",
		"@google/genai", "@huggingface/inference", "@xenova/transformers",
		"@mistralai/mistralai", "@pinecone-database/pinecone", "cohere-ai",
		"replicate", "groq-sdk", "ollama", "llamaindex", "brain.js", "ml5",
		"onnxruntime-node", "onnxruntime-web", "@vercel/ai",
		// Python
		"anthropic", "transformers", "torch", "torchvision", "torchaudio",
		"pytorch", "tensorflow", "tensorflow-gpu", "keras", "scikit-learn",
		"sklearn", "xgboost", "lightgbm", "catboost", "jax", "flax", "spacy",
		"nltk", "gensim", "sentence-transformers", "huggingface-hub",
		"diffusers", "onnx", "onnxruntime", "cohere", "google-generativeai",
		"google-genai", "mistralai", "pinecone-client", "chromadb", "faiss-cpu",
		"faiss-gpu", "tiktoken", "vllm", "mlflow", "pytorch-lightning",
		"lightning", "fastai", "llama-cpp-python", "autogen", "crewai",
		"openai-whisper", "accelerate", "peft", "bitsandbytes",
	)
	libraryPrefixes = []string{
		"langchain-", "@langchain/", "llama-index", "@tensorflow/",
		"tensorflow-", "@ai-sdk/", "@huggingface/",
	}
)

// MatchLibrary reports whether a manifest package name is a known AI/ML
// library and returns its normalized name.
func MatchLibrary(pkg string) (string, bool) {
	name := normalizePackage(pkg)
	if name == "" {
		return "", false
	}
	if knownLibraries[name] {
		return name, true
	}
	for _, p := range libraryPrefixes {
		if strings.HasPrefix(name, p) {
			return name, true
		}
	}
	return "", false
}

var pep503 = regexp.MustCompile(`[-_.]+`)

// normalizePackage lowercases a package name and folds Python-style
// separators. Scoped npm names keep their separators.
func normalizePackage(pkg string) string {
	name := strings.ToLower(strings.TrimSpace(pkg))
	if name == "" || strings.HasPrefix(name, "@") || strings.Contains(name, "/") {
		return name
	}
	if name == "brain.js" {
		return name
	}
	return pep503.ReplaceAllString(name, "-")
}

// Module names recognized in notebook import statements.
var notebookModules = toSet(
	"openai", "anthropic", "langchain", "langchain_core", "langchain_community",
	"langchain_openai", "llama_index", "transformers", "torch", "torchvision",
	"tensorflow", "keras", "sklearn", "xgboost", "lightgbm", "catboost", "jax",
	"flax", "spacy", "nltk", "gensim", "sentence_transformers", "diffusers",
	"cohere", "google.generativeai", "tiktoken", "onnxruntime", "fastai",
	"mlflow", "pytorch_lightning", "lightning", "huggingface_hub", "mistralai",
	"pinecone", "chromadb", "faiss", "vllm", "peft",
)

// MatchNotebookModule matches an imported module path (for example
// "sklearn.model_selection") against the known AI/ML modules.
func MatchNotebookModule(module string) (string, bool) {
	module = strings.TrimSpace(module)
	if module == "" {
		return "", false
	}
	if notebookModules[module] {
		return module, true
	}
	for i := len(module) - 1; i > 0; i-- {
		if module[i] == '.' && notebookModules[module[:i]] {
			return module[:i], true
		}
	}
	return "", false
}

// modelExtensions maps a model-artifact extension to the framework it implies.
var modelExtensions = map[string]string{
	".pt":          "pytorch",
	".pth":         "pytorch",
	".h5":          "keras",
	".hdf5":        "keras",
	".keras":       "keras",
	".pb":          "tensorflow",
	".tflite":      "tensorflow-lite",
	".onnx":        "onnx",
	".pkl":         "pickle",
	".joblib":      "joblib",
	".safetensors": "safetensors",
	".gguf":        "gguf",
	".ggml":        "ggml",
	".mlmodel":     "coreml",
	".caffemodel":  "caffe",
	".ckpt":        "checkpoint",
	".pmml":        "pmml",
}

// ModelFramework returns the framework implied by a model file name.
func ModelFramework(name string) (string, bool) {
	fw, ok := modelExtensions[strings.ToLower(path.Ext(name))]
	return fw, ok
}

// ModelExtensions returns the recognized extensions, sorted.
func ModelExtensions() []string {
	exts := make([]string, 0, len(modelExtensions))
	for ext := range modelExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

var aiDirectoryNames = toSet(
	"models", "model", "ai", "ml", "llm", "llms", "machine learning",
	"deep learning", "neural", "weights", "checkpoints", "embeddings",
	"prompts", "inference", "training", "agents", "rag", "genai",
)

// IsAIDirectory reports whether a top-level directory name is a known AI/ML
// folder pattern.
func IsAIDirectory(name string) bool {
	return aiDirectoryNames[normalizeText(name, false)]
}

// APIKeyMarker is a recognizable AI-provider credential reference.
type APIKeyMarker struct {
	Name    string
	Pattern *regexp.Regexp
}

var apiKeyMarkers = []APIKeyMarker{
	{Name: "OPENAI_API_KEY", Pattern: regexp.MustCompile(`\bOPENAI_API_KEY\b`)},
	{Name: "AZURE_OPENAI_API_KEY", Pattern: regexp.MustCompile(`\bAZURE_OPENAI_(API_)?KEY\b`)},
	{Name: "ANTHROPIC_API_KEY", Pattern: regexp.MustCompile(`\bANTHROPIC_API_KEY\b`)},
	{Name: "HUGGINGFACE_TOKEN", Pattern: regexp.MustCompile(`\b(HF_TOKEN|HUGGINGFACE(HUB)?_(API_)?(KEY|TOKEN))\b`)},
	{Name: "COHERE_API_KEY", Pattern: regexp.MustCompile(`\bCOHERE_API_KEY\b`)},
	{Name: "GEMINI_API_KEY", Pattern: regexp.MustCompile(`\b(GEMINI_API_KEY|GOOGLE_GENAI_API_KEY)\b`)},
	{Name: "MISTRAL_API_KEY", Pattern: regexp.MustCompile(`\bMISTRAL_API_KEY\b`)},
	{Name: "GROQ_API_KEY", Pattern: regexp.MustCompile(`\bGROQ_API_KEY\b`)},
	{Name: "REPLICATE_API_TOKEN", Pattern: regexp.MustCompile(`\bREPLICATE_API_(TOKEN|KEY)\b`)},
	{Name: "PINECONE_API_KEY", Pattern: regexp.MustCompile(`\bPINECONE_API_KEY\b`)},
	{Name: "TOGETHER_API_KEY", Pattern: regexp.MustCompile(`\bTOGETHER_API_KEY\b`)},
	{Name: "DEEPSEEK_API_KEY", Pattern: regexp.MustCompile(`\bDEEPSEEK_API_KEY\b`)},
	{Name: "OPENROUTER_API_KEY", Pattern: regexp.MustCompile(`\bOPENROUTER_API_KEY\b`)},
	{Name: "anthropic-key-literal", Pattern: regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{16,}`)},
	{Name: "openai-key-literal", Pattern: regexp.MustCompile(`\bsk-(proj-)?[A-Za-z0-9]{20,}`)},
}

// MatchAPIKeyMarkers returns the names of the markers found in content, in
// catalog order. Matched values are never returned.
func MatchAPIKeyMarkers(content []byte) []string {
	var names []string
	for _, m := range apiKeyMarkers {
		if m.Pattern.Match(content) {
			names = append(names, m.Name)
		}
	}
	return names
}

// IsConfigFile reports whether a top-level file name looks like a place where
// provider credentials are configured.
func IsConfigFile(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case lower == ".env" || strings.HasPrefix(lower, ".env."):
		return true
	case strings.HasPrefix(lower, "config.") && lower != "config.":
		return true
	case lower == "settings.py":
		return true
	}
	return false
}

func toSet(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
