package checks

import (
	"context"
	"path"
	"sort"
	"strings"

	"aiscout/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

// fakeSource serves an in-memory file tree. Paths in errs fail with the given
// error on both listing and reading.
type fakeSource struct {
	files map[string]string
	errs  map[string]error
	reads []string
}

func newFakeSource(files map[string]string) *fakeSource {
	return &fakeSource{files: files, errs: map[string]error{}}
}

func (s *fakeSource) ListDir(ctx context.Context, repo *github.Repository, dir string) ([]fetcher.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = strings.Trim(dir, "/")
	if err, ok := s.errs[dir]; ok {
		return nil, err
	}
	seen := map[string]fetcher.Entry{}
	for p, content := range s.files {
		rel := p
		if dir != "" {
			if !strings.HasPrefix(p, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(p, dir+"/")
		}
		name, _, nested := strings.Cut(rel, "/")
		full := path.Join(dir, name)
		if nested {
			seen[name] = fetcher.Entry{Name: name, Path: full, Type: fetcher.EntryDir}
			continue
		}
		seen[name] = fetcher.Entry{Name: name, Path: full, Type: fetcher.EntryFile, Size: len(content)}
	}
	if len(seen) == 0 && dir != "" {
		return nil, &fetcher.Error{Kind: fetcher.ErrNotFound, Op: "list " + dir}
	}
	entries := make([]fetcher.Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *fakeSource) ReadFile(ctx context.Context, repo *github.Repository, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.reads = append(s.reads, p)
	if err, ok := s.errs[p]; ok {
		return nil, err
	}
	content, ok := s.files[p]
	if !ok {
		return nil, &fetcher.Error{Kind: fetcher.ErrNotFound, Op: "read " + p}
	}
	return []byte(content), nil
}

func testRepo(name, description string) *github.Repository {
	return &github.Repository{
		Name:        github.Ptr(name),
		FullName:    github.Ptr("acme/" + name),
		Description: github.Ptr(description),
		Owner:       &github.User{Login: github.Ptr("acme")},
	}
}
