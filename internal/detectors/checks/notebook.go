package checks

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"aiscout/internal/detectors"
)

// ErrNotebookParse is returned for .ipynb files that are not valid notebooks.
var ErrNotebookParse = errors.New("notebook parse failed")

type notebook struct {
	Cells []notebookCell `json:"cells"`
	// nbformat 3
	Worksheets []struct {
		Cells []notebookCell `json:"cells"`
	} `json:"worksheets"`
}

type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Input    json.RawMessage `json:"input"`
}

var (
	importPattern = regexp.MustCompile(`(?m)^\s*(?:import\s+([A-Za-z_][\w.]*(?:\s+as\s+\w+)?(?:\s*,\s*[A-Za-z_][\w.]*(?:\s+as\s+\w+)?)*)|from\s+([A-Za-z_][\w.]*)\s+import\b)`)
	aliasPattern  = regexp.MustCompile(`\s+as\s+\w+$`)

	// rawLines puts every JSON string and escaped newline of an undecodable
	// notebook on its own line so importPattern can anchor on it.
	rawLines = strings.NewReplacer(`\n`, "\n", `"`, "\n")
)

// notebookImports returns the known AI/ML modules imported by code cells,
// sorted and de-duplicated. A notebook that does not decode is searched as
// raw text; the modules found that way come back with ErrNotebookParse.
func notebookImports(content []byte) ([]string, error) {
	var nb notebook
	if err := json.Unmarshal(content, &nb); err != nil {
		return rawNotebookImports(content), fmt.Errorf("%w: %v", ErrNotebookParse, err)
	}
	cells := nb.Cells
	for _, ws := range nb.Worksheets {
		cells = append(cells, ws.Cells...)
	}

	seen := make(map[string]bool)
	for _, cell := range cells {
		if cell.CellType != "code" {
			continue
		}
		raw := cell.Source
		if len(raw) == 0 {
			raw = cell.Input
		}
		src, err := cellSource(raw)
		if err != nil {
			return rawNotebookImports(content), err
		}
		matchImports(src, seen)
	}
	return sortedKeys(seen), nil
}

func rawNotebookImports(content []byte) []string {
	seen := make(map[string]bool)
	matchImports(rawLines.Replace(string(content)), seen)
	return sortedKeys(seen)
}

func matchImports(src string, seen map[string]bool) {
	for _, m := range importPattern.FindAllStringSubmatch(src, -1) {
		var modules []string
		if m[1] != "" {
			for _, part := range strings.Split(m[1], ",") {
				modules = append(modules, aliasPattern.ReplaceAllString(strings.TrimSpace(part), ""))
			}
		} else {
			modules = append(modules, m[2])
		}
		for _, mod := range modules {
			if name, ok := detectors.MatchNotebookModule(mod); ok {
				seen[name] = true
			}
		}
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cellSource accepts both the string and the list-of-lines encodings.
func cellSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", fmt.Errorf("%w: cell source: %v", ErrNotebookParse, err)
	}
	return strings.Join(lines, ""), nil
}
