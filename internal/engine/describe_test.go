package engine

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"aiscout/internal/fetcher"

	"github.com/google/go-github/v81/github"
)

func TestDescribeError_GitHubErrorResponse(t *testing.T) {
	err := &github.ErrorResponse{
		Response: &http.Response{StatusCode: 404, Status: "404 Not Found"},
		Message:  "Not Found",
	}
	wrapped := &fetcher.Error{Kind: fetcher.ErrNotFound, Op: "list org repos acme", Err: err}

	got := DescribeError(wrapped, false)
	if want := "GitHub API request failed (404 Not Found): Not Found"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if DescribeError(wrapped, true) != wrapped.Error() {
		t.Fatalf("verbose mode must keep the full error")
	}
}

func TestDescribeError_StripsURLPrefix(t *testing.T) {
	err := fmt.Errorf("enumerate: %w", errors.New("GET https://api.github.com/orgs/acme/repos: 502 bad gateway []"))
	if got, want := DescribeError(err, false), "enumerate: 502 bad gateway []"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := DescribeError(errors.New("plain"), false); got != "plain" {
		t.Fatalf("expected plain, got %q", got)
	}
	if DescribeError(nil, false) != "" {
		t.Fatalf("expected empty string for nil")
	}
}
