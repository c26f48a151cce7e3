package checks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"aiscout/internal/detectors"
	"aiscout/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

const defaultMaxDrilldownDirs = 5

// optMaxDrilldownDirs bounds how many top-level AI directories are listed.
const optMaxDrilldownDirs = "max-drilldown-dirs"

// skipProbe records a failed probe on f. Context errors are returned so the
// collector stops; everything else is absorbed.
func skipProbe(ctx context.Context, f *detectors.Findings, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	f.Skip()
	return nil
}

func listRoot(ctx context.Context, src detectors.ContentSource, repo *github.Repository) ([]fetcher.Entry, error) {
	entries, err := src.ListDir(ctx, repo, "")
	if err != nil {
		return nil, fmt.Errorf("list repository root: %w", err)
	}
	return entries, nil
}

// aiDirectories returns up to limit top-level AI directories, sorted by path.
func aiDirectories(entries []fetcher.Entry, limit int) []fetcher.Entry {
	var dirs []fetcher.Entry
	for _, e := range entries {
		if e.IsDir() && detectors.IsAIDirectory(e.Name) {
			dirs = append(dirs, e)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })
	if limit >= 0 && len(dirs) > limit {
		dirs = dirs[:limit]
	}
	return dirs
}

// drilldown lists the root and then each top-level AI directory, returning all
// file entries seen. Failed subdirectory listings are counted as skipped.
func drilldown(ctx context.Context, src detectors.ContentSource, repo *github.Repository, limit int, f *detectors.Findings) ([]fetcher.Entry, error) {
	root, err := listRoot(ctx, src, repo)
	if err != nil {
		return nil, err
	}
	files := filesOf(root)
	for _, dir := range aiDirectories(root, limit) {
		entries, err := src.ListDir(ctx, repo, entryPath(dir))
		if err != nil {
			if abort := skipProbe(ctx, f, err); abort != nil {
				return nil, abort
			}
			continue
		}
		files = append(files, filesOf(entries)...)
	}
	return files, nil
}

func filesOf(entries []fetcher.Entry) []fetcher.Entry {
	var files []fetcher.Entry
	for _, e := range entries {
		if e.IsFile() {
			files = append(files, e)
		}
	}
	return files
}

func entryPath(e fetcher.Entry) string {
	if e.Path != "" {
		return e.Path
	}
	return e.Name
}

func parseNonNegative(opts map[string]string, key string, current int) (int, error) {
	raw, ok := opts[key]
	if !ok || raw == "" {
		return current, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return current, fmt.Errorf("invalid value for %s: %q (want a non-negative integer)", key, raw)
	}
	return n, nil
}
