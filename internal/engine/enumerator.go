package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aiscout/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

const (
	DefaultPerPage  = 100
	DefaultMaxPages = 1
)

// EnumerationError is returned when the target resolves neither as an
// organization nor as a user.
type EnumerationError struct {
	Target  string
	OrgErr  error
	UserErr error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate repositories of %q: organization lookup: %v; user lookup: %v", e.Target, e.OrgErr, e.UserErr)
}

func (e *EnumerationError) Unwrap() error {
	return errors.Join(e.OrgErr, e.UserErr)
}

// Enumerator lists the repositories of an account. Organization listing is
// tried first; on any failure other than cancellation it falls back to the
// user namespace.
type Enumerator struct {
	PerPage  int
	MaxPages int
}

func NewEnumerator(perPage, maxPages int) *Enumerator {
	if perPage <= 0 || perPage > 100 {
		perPage = DefaultPerPage
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Enumerator{PerPage: perPage, MaxPages: maxPages}
}

func (e *Enumerator) List(ctx context.Context, f *fetcher.Fetcher, target string) ([]*github.Repository, error) {
	if f == nil || f.Client() == nil {
		return nil, errors.New("enumerate: nil fetcher")
	}
	repos, orgErr := e.listOrg(ctx, f, target)
	if orgErr == nil {
		return repos, nil
	}
	if isContextErr(ctx, orgErr) {
		return nil, orgErr
	}

	repos, userErr := e.listUser(ctx, f, target)
	if userErr == nil {
		return repos, nil
	}
	if isContextErr(ctx, userErr) {
		return nil, userErr
	}
	return nil, &EnumerationError{Target: target, OrgErr: orgErr, UserErr: userErr}
}

func (e *Enumerator) listOrg(ctx context.Context, f *fetcher.Fetcher, org string) ([]*github.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: e.PerPage},
	}
	return e.paginate(ctx, f, "list org repos "+org, &opts.ListOptions, func(ctx context.Context) ([]*github.Repository, *github.Response, error) {
		return f.Client().Client.Repositories.ListByOrg(ctx, org, opts)
	})
}

func (e *Enumerator) listUser(ctx context.Context, f *fetcher.Fetcher, user string) ([]*github.Repository, error) {
	// The token owner's own listing includes private repositories.
	if f.Client().Authenticated {
		var me *github.User
		err := f.Call(ctx, "get authenticated user", func(ctx context.Context) (*github.Response, error) {
			u, resp, err := f.Client().Client.Users.Get(ctx, "")
			me = u
			return resp, err
		})
		if err != nil && isContextErr(ctx, err) {
			return nil, err
		}
		if err == nil && strings.EqualFold(me.GetLogin(), user) {
			opts := &github.RepositoryListByAuthenticatedUserOptions{
				Visibility:  "all",
				Affiliation: "owner",
				ListOptions: github.ListOptions{PerPage: e.PerPage},
			}
			return e.paginate(ctx, f, "list authenticated user repos", &opts.ListOptions, func(ctx context.Context) ([]*github.Repository, *github.Response, error) {
				return f.Client().Client.Repositories.ListByAuthenticatedUser(ctx, opts)
			})
		}
	}

	opts := &github.RepositoryListByUserOptions{
		Type:        "owner",
		ListOptions: github.ListOptions{PerPage: e.PerPage},
	}
	return e.paginate(ctx, f, "list user repos "+user, &opts.ListOptions, func(ctx context.Context) ([]*github.Repository, *github.Response, error) {
		return f.Client().Client.Repositories.ListByUser(ctx, user, opts)
	})
}

// paginate follows NextPage links for at most MaxPages pages. page points at
// the ListOptions captured by list.
func (e *Enumerator) paginate(ctx context.Context, f *fetcher.Fetcher, op string, page *github.ListOptions, list func(ctx context.Context) ([]*github.Repository, *github.Response, error)) ([]*github.Repository, error) {
	var out []*github.Repository
	for n := 0; n < e.MaxPages; n++ {
		var next int
		err := f.Call(ctx, op, func(ctx context.Context) (*github.Response, error) {
			repos, resp, err := list(ctx)
			if err != nil {
				return resp, err
			}
			out = append(out, repos...)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, nil
		})
		if err != nil {
			return nil, err
		}
		if next == 0 {
			break
		}
		page.Page = next
	}
	return dedupeRepos(out), nil
}

func dedupeRepos(in []*github.Repository) []*github.Repository {
	seen := make(map[string]struct{}, len(in))
	out := make([]*github.Repository, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		key := strings.ToLower(r.GetFullName())
		if r.GetID() != 0 {
			key = fmt.Sprintf("id:%d", r.GetID())
		}
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

func isContextErr(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
