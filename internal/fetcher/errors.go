package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v81/github"
)

var (
	// ErrNotFound: the path or account does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrRateLimited: GitHub refused the call for quota reasons and retries were exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrFetch: any other failure to fetch or decode a file or directory.
	ErrFetch = errors.New("fetch failed")

	// ErrTooLarge: the file exceeds the configured size limit and was not read.
	ErrTooLarge = errors.New("file too large")
)

// Error describes a failed GitHub call. errors.Is matches both the Kind
// sentinel and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRateLimitResponse reports whether err/resp describe a quota refusal rather
// than a permission or availability failure.
func IsRateLimitResponse(resp *github.Response, err error) bool {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return true
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
	}
	return false
}

// classify maps a go-github error to one of the package sentinels.
func classify(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsRateLimitResponse(resp, err) {
		return &Error{Kind: ErrRateLimited, Op: op, Err: err}
	}
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return &Error{Kind: ErrNotFound, Op: op, Err: err}
	}
	return &Error{Kind: ErrFetch, Op: op, Err: err}
}
