package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	gh "aiscout/internal/github"

	"github.com/google/go-github/v81/github"
)

// Entry kinds as reported by the contents API.
const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// Entry is one item of a repository directory listing.
type Entry struct {
	Name string
	Path string
	Type string
	Size int
}

func (e Entry) IsDir() bool  { return e.Type == EntryDir }
func (e Entry) IsFile() bool { return e.Type == EntryFile }

// Options tune a Fetcher. Zero values select the defaults.
type Options struct {
	// MaxRetries bounds retries of a rate-limited call.
	MaxRetries int
	// MaxRateLimitWait is the longest a call may wait for quota before it is
	// reported as ErrRateLimited without being attempted.
	MaxRateLimitWait time.Duration
	// MaxFileBytes skips larger files with ErrTooLarge.
	MaxFileBytes int
}

const (
	defaultMaxRetries       = 2
	defaultMaxRateLimitWait = 2 * time.Minute
	defaultMaxFileBytes     = 1 << 20
)

// Fetcher is the rate-limited view of the GitHub API used by one scan run.
// Listings, and directories found missing, are cached for the lifetime of
// the Fetcher.
type Fetcher struct {
	client  *gh.Client
	budget  *RequestBudget
	group   Group
	cache   *Cache[[]Entry]
	missing *Cache[error]
	opts    Options
	calls   atomic.Int64
	limited atomic.Int64
}

func NewFetcher(client *gh.Client, budget *RequestBudget, opts Options) *Fetcher {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxRateLimitWait <= 0 {
		opts.MaxRateLimitWait = defaultMaxRateLimitWait
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	return &Fetcher{
		client:  client,
		budget:  budget,
		cache:   NewCache[[]Entry](),
		missing: NewCache[error](),
		opts:    opts,
	}
}

func (f *Fetcher) Budget() *RequestBudget {
	return f.budget
}

func (f *Fetcher) Client() *gh.Client {
	return f.client
}

// Calls returns the number of API calls attempted.
func (f *Fetcher) Calls() int64 { return f.calls.Load() }

// RateLimited returns the number of calls that ended in ErrRateLimited.
func (f *Fetcher) RateLimited() int64 { return f.limited.Load() }

// Call runs one GitHub API call under the request budget. Rate-limit refusals
// are retried up to Options.MaxRetries after the budget's cooldown; other
// failures are classified and returned immediately.
func (f *Fetcher) Call(ctx context.Context, op string, fn func(ctx context.Context) (*github.Response, error)) error {
	if ctx == nil {
		return fmt.Errorf("%s: nil context", op)
	}
	if f == nil || f.client == nil || f.client.Client == nil {
		return fmt.Errorf("%s: nil GitHub client (use NewFetcher)", op)
	}
	if f.budget == nil {
		return fmt.Errorf("%s: nil request budget (use NewFetcher)", op)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait := f.budget.WaitEstimate(); wait > f.opts.MaxRateLimitWait {
			f.limited.Add(1)
			return &Error{Kind: ErrRateLimited, Op: op, Err: fmt.Errorf("quota resets in %s", wait.Truncate(time.Second))}
		}
		if err := f.budget.Acquire(ctx, 1); err != nil {
			return err
		}

		f.calls.Add(1)
		resp, err := fn(ctx)
		if resp != nil {
			f.budget.UpdateFromResponse(resp.Response)
		}
		if err == nil {
			return nil
		}

		cerr := classify(op, resp, err)
		if !errors.Is(cerr, ErrRateLimited) {
			return cerr
		}
		if attempt >= f.opts.MaxRetries {
			f.limited.Add(1)
			return cerr
		}
		f.noteRateLimit(err, resp, attempt)
	}
}

// noteRateLimit makes the budget wait before the next attempt.
func (f *Fetcher) noteRateLimit(err error, resp *github.Response, attempt int) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		f.budget.exhaustUntil(rle.Rate.Reset.Time)
		return
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if d := abuse.GetRetryAfter(); d > 0 {
			f.budget.coolDownFor(d)
			return
		}
	}
	if resp != nil && resp.Response != nil && resp.Header.Get("Retry-After") != "" {
		// UpdateFromResponse already applied the header.
		return
	}
	f.budget.Backoff(attempt)
}

// ListDir lists one directory of the repository's default branch. The empty
// path lists the repository root.
func (f *Fetcher) ListDir(ctx context.Context, repo *github.Repository, path string) ([]Entry, error) {
	owner, name, err := repoCoordinates(repo)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")
	key := strings.ToLower(owner+"/"+name) + ":" + path

	if entries, ok := f.cache.Get(key); ok {
		return entries, nil
	}
	if err, ok := f.missing.Get(key); ok {
		return nil, err
	}

	entries, err, _ := f.group.Do(key, func() ([]Entry, error) {
		var dir []*github.RepositoryContent
		op := fmt.Sprintf("list %s/%s/%s", owner, name, path)
		callErr := f.Call(ctx, op, func(ctx context.Context) (*github.Response, error) {
			file, d, resp, err := f.client.Client.Repositories.GetContents(ctx, owner, name, path, nil)
			if err == nil && file != nil && d == nil {
				return resp, &Error{Kind: ErrFetch, Op: op, Err: errors.New("path is a file")}
			}
			dir = d
			return resp, err
		})
		if callErr != nil {
			return nil, callErr
		}
		out := make([]Entry, 0, len(dir))
		for _, c := range dir {
			if c == nil {
				continue
			}
			out = append(out, Entry{
				Name: c.GetName(),
				Path: c.GetPath(),
				Type: c.GetType(),
				Size: c.GetSize(),
			})
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.missing.Set(key, err)
		}
		return nil, err
	}
	f.cache.Set(key, entries)
	return entries, nil
}

// ReadFile returns the decoded content of a file on the default branch.
func (f *Fetcher) ReadFile(ctx context.Context, repo *github.Repository, path string) ([]byte, error) {
	owner, name, err := repoCoordinates(repo)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")
	op := fmt.Sprintf("read %s/%s/%s", owner, name, path)

	var file *github.RepositoryContent
	callErr := f.Call(ctx, op, func(ctx context.Context) (*github.Response, error) {
		fc, _, resp, err := f.client.Client.Repositories.GetContents(ctx, owner, name, path, nil)
		file = fc
		return resp, err
	})
	if callErr != nil {
		return nil, callErr
	}
	if file == nil {
		return nil, &Error{Kind: ErrFetch, Op: op, Err: errors.New("path is a directory")}
	}
	if file.GetSize() > f.opts.MaxFileBytes {
		return nil, &Error{Kind: ErrTooLarge, Op: op, Err: fmt.Errorf("%d bytes exceeds limit %d", file.GetSize(), f.opts.MaxFileBytes)}
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, &Error{Kind: ErrFetch, Op: op, Err: err}
	}
	return []byte(content), nil
}

func repoCoordinates(repo *github.Repository) (owner, name string, err error) {
	if repo == nil {
		return "", "", errors.New("nil repository")
	}
	owner = repo.GetOwner().GetLogin()
	name = repo.GetName()
	if owner == "" || name == "" {
		if o, n, ok := strings.Cut(repo.GetFullName(), "/"); ok {
			owner, name = o, n
		}
	}
	if owner == "" || name == "" {
		return "", "", errors.New("repository owner/name is required")
	}
	return owner, name, nil
}
