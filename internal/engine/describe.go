package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DescribeError renders err for logs and terminals without the request URL
// go-github puts in front of API errors. verbose keeps the full text.
func DescribeError(err error, verbose bool) string {
	if err == nil {
		return ""
	}
	full := err.Error()
	if verbose {
		return full
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			code := er.Response.StatusCode
			return fmt.Sprintf("GitHub API request failed (%d %s): %s", code, http.StatusText(code), msg)
		}
		return fmt.Sprintf("GitHub API request failed: %s", msg)
	}

	if scrubbed := scrubRequestPrefix(full); scrubbed != "" {
		return scrubbed
	}
	return full
}

// scrubRequestPrefix drops every "GET https://...: " segment from s.
func scrubRequestPrefix(s string) string {
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	changed := false
	for _, m := range methods {
		for {
			i := strings.Index(s, m+"http")
			if i < 0 {
				break
			}
			j := strings.Index(s[i:], ": ")
			if j < 0 {
				break
			}
			s = s[:i] + s[i+j+2:]
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.TrimSpace(s)
}
