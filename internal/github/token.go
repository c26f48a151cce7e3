package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// AuthTokenSource names where a resolved token came from. It is safe to log.
type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceAppEnv   AuthTokenSource = "env:AISCOUT_GITHUB_TOKEN"
	AuthTokenSourceEnv      AuthTokenSource = "env:GITHUB_TOKEN"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

// ghTimeout bounds the gh CLI lookup when the caller set no deadline.
const ghTimeout = 5 * time.Second

var errTokenWhitespace = errors.New("invalid token returned by gh: contains whitespace")

// tokenLookup returns a token, or "" when its source has none.
type tokenLookup struct {
	source AuthTokenSource
	lookup func(ctx context.Context) (string, error)
}

func envLookup(name string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return strings.TrimSpace(os.Getenv(name)), nil
	}
}

// ambientLookups are consulted in order when no token is passed explicitly.
var ambientLookups = []tokenLookup{
	{AuthTokenSourceAppEnv, envLookup("AISCOUT_GITHUB_TOKEN")},
	{AuthTokenSourceEnv, envLookup("GITHUB_TOKEN")},
	{AuthTokenSourceGitHubCL, ghCLIToken},
}

// ResolveAuthToken finds a GitHub token for one-shot CLI scans. Server scans
// carry their credential on the scan configuration and never call this.
//
// Order: provided, AISCOUT_GITHUB_TOKEN, GITHUB_TOKEN, `gh auth token`.
// An empty token with a nil error means the scan runs unauthenticated.
func ResolveAuthToken(ctx context.Context, provided string) (string, AuthTokenSource, error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}
	for _, l := range ambientLookups {
		tok, err := l.lookup(ctx)
		if err != nil {
			return "", "", err
		}
		if tok != "" {
			return tok, l.source, nil
		}
	}
	return "", "", nil
}

// ghCLIToken asks an installed and logged-in gh CLI for its github.com token.
// A missing binary or a failing command yields no token; gh output is never
// surfaced since it may echo credentials.
func ghCLIToken(ctx context.Context) (string, error) {
	bin, err := exec.LookPath("gh")
	if err != nil {
		return "", nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, "auth", "token", "-h", "github.com")
	cmd.Env = withEnv(os.Environ(), "GH_PAGER", "cat")
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\r\n") {
		return "", errTokenWhitespace
	}
	return tok, nil
}

// withEnv returns env with key set to value exactly once.
func withEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
