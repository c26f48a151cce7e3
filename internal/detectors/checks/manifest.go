package checks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"aiscout/internal/detectors"

	"gopkg.in/yaml.v3"
)

// ErrManifestParse is returned for manifests that cannot be decoded.
var ErrManifestParse = errors.New("manifest parse failed")

type manifestKind int

const (
	manifestNone manifestKind = iota
	manifestPackageJSON
	manifestRequirements
	manifestCondaEnv
)

func classifyManifest(name string) manifestKind {
	lower := strings.ToLower(name)
	switch {
	case lower == "package.json":
		return manifestPackageJSON
	case strings.HasPrefix(lower, "requirements") && path.Ext(lower) == ".txt":
		return manifestRequirements
	case lower == "environment.yml" || lower == "environment.yaml":
		return manifestCondaEnv
	}
	return manifestNone
}

// parseManifest returns the known AI/ML libraries declared in a manifest,
// sorted by name.
func parseManifest(kind manifestKind, content []byte) ([]detectors.LibraryHit, error) {
	var deps []detectors.LibraryHit
	var err error
	switch kind {
	case manifestPackageJSON:
		deps, err = parsePackageJSON(content)
	case manifestRequirements:
		deps, err = parseRequirements(content)
	case manifestCondaEnv:
		deps, err = parseCondaEnvironment(content)
	default:
		return nil, fmt.Errorf("%w: unsupported manifest", ErrManifestParse)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hits []detectors.LibraryHit
	for _, d := range deps {
		name, ok := detectors.MatchLibrary(d.Name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		hits = append(hits, detectors.LibraryHit{Name: name, Version: d.Version})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Name < hits[j].Name })
	return hits, nil
}

type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func parsePackageJSON(content []byte) ([]detectors.LibraryHit, error) {
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("%w: package.json: %v", ErrManifestParse, err)
	}
	var deps []detectors.LibraryHit
	for _, group := range []map[string]string{pkg.Dependencies, pkg.PeerDependencies, pkg.OptionalDependencies, pkg.DevDependencies} {
		names := make([]string, 0, len(group))
		for name := range group {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			deps = append(deps, detectors.LibraryHit{Name: name, Version: group[name]})
		}
	}
	return deps, nil
}

// parseRequirements reads a pip requirements file. Options (-r, -e, --index-url)
// and URLs are ignored.
func parseRequirements(content []byte) ([]detectors.LibraryHit, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, fmt.Errorf("%w: requirements: binary content", ErrManifestParse)
	}
	var deps []detectors.LibraryHit
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if dep, ok := parseRequirement(sc.Text()); ok {
			deps = append(deps, dep)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: requirements: %v", ErrManifestParse, err)
	}
	return deps, nil
}

func parseRequirement(line string) (detectors.LibraryHit, bool) {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") || strings.Contains(line, "://") {
		return detectors.LibraryHit{}, false
	}

	end := strings.IndexAny(line, "[<>=!~@ \t")
	if end < 0 {
		return detectors.LibraryHit{Name: line}, true
	}
	name := line[:end]
	rest := line[end:]
	if strings.HasPrefix(rest, "[") {
		if j := strings.Index(rest, "]"); j >= 0 {
			rest = rest[j+1:]
		}
	}
	return detectors.LibraryHit{Name: name, Version: requirementVersion(rest)}, name != ""
}

func requirementVersion(spec string) string {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "@") {
		return ""
	}
	if v, ok := strings.CutPrefix(spec, "==="); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := strings.CutPrefix(spec, "=="); ok && !strings.Contains(v, ",") {
		return strings.TrimSpace(v)
	}
	return strings.ReplaceAll(spec, " ", "")
}

type condaEnvironment struct {
	Dependencies []yaml.Node `yaml:"dependencies"`
}

// parseCondaEnvironment reads a conda environment file including nested pip
// dependency lists.
func parseCondaEnvironment(content []byte) ([]detectors.LibraryHit, error) {
	var env condaEnvironment
	if err := yaml.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("%w: environment.yml: %v", ErrManifestParse, err)
	}
	var deps []detectors.LibraryHit
	for _, node := range env.Dependencies {
		switch node.Kind {
		case yaml.ScalarNode:
			if dep, ok := parseCondaSpec(node.Value); ok {
				deps = append(deps, dep)
			}
		case yaml.MappingNode:
			var nested map[string][]string
			if err := node.Decode(&nested); err != nil {
				return nil, fmt.Errorf("%w: environment.yml: %v", ErrManifestParse, err)
			}
			for _, line := range nested["pip"] {
				if dep, ok := parseRequirement(line); ok {
					deps = append(deps, dep)
				}
			}
		}
	}
	return deps, nil
}

// parseCondaSpec handles "name", "name=1.2", "name>=1.2" and
// "channel::name=1.2".
func parseCondaSpec(spec string) (detectors.LibraryHit, bool) {
	spec = strings.TrimSpace(spec)
	if i := strings.LastIndex(spec, "::"); i >= 0 {
		spec = spec[i+2:]
	}
	if spec == "" {
		return detectors.LibraryHit{}, false
	}
	end := strings.IndexAny(spec, "<>=!~ ")
	if end < 0 {
		return detectors.LibraryHit{Name: spec}, true
	}
	name := spec[:end]
	version := strings.TrimSpace(spec[end:])
	if v, ok := strings.CutPrefix(version, "=="); ok {
		version = v
	} else if v, ok := strings.CutPrefix(version, "="); ok {
		// name=version=build
		version, _, _ = strings.Cut(v, "=")
	}
	return detectors.LibraryHit{Name: name, Version: version}, name != ""
}
