package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// Client bundles the go-github client with the http.Client it runs on.
type Client struct {
	Client        *github.Client
	HTTP          *http.Client
	Authenticated bool
}

type clientConfig struct {
	requestLog *slog.Logger
	baseURL    string
	userAgent  string
	timeout    time.Duration
}

type Option func(*clientConfig)

// WithRequestLogger logs every API round trip at debug level. Tokens are
// never logged since the Authorization header is added below the logger.
func WithRequestLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.requestLog = l }
}

// WithBaseURL points the client at a GitHub Enterprise Server API root or a
// test server. The URL is used as-is; no /api/v3 suffix is appended.
func WithBaseURL(raw string) Option {
	return func(c *clientConfig) { c.baseURL = raw }
}

func WithUserAgent(ua string) Option {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithTimeout bounds every HTTP round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// requestLogger records method, path, status, latency and the remaining
// rate-limit quota of each call.
type requestLogger struct {
	next http.RoundTripper
	log  *slog.Logger
}

func (t requestLogger) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	attrs := []any{
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
	}
	if err != nil {
		t.log.DebugContext(req.Context(), "github api error", append(attrs, slog.Any("error", err))...)
		return nil, err
	}
	t.log.DebugContext(req.Context(), "github api",
		append(attrs,
			slog.Int("status", resp.StatusCode),
			slog.String("remaining", resp.Header.Get("X-RateLimit-Remaining")),
		)...)
	return resp, nil
}

// NewClient builds a GitHub REST client. An empty token yields an
// unauthenticated client subject to the stricter anonymous rate limit.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}
	var cfg clientConfig
	for _, apply := range opts {
		if apply != nil {
			apply(&cfg)
		}
	}

	var base *url.URL
	if cfg.baseURL != "" {
		u, err := parseBaseURL(cfg.baseURL)
		if err != nil {
			return nil, err
		}
		base = u
	}

	transport := http.DefaultTransport
	if cfg.requestLog != nil {
		transport = requestLogger{next: transport, log: cfg.requestLog}
	}
	token = strings.TrimSpace(token)
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	}
	hc := &http.Client{Transport: transport, Timeout: cfg.timeout}

	gc := github.NewClient(hc)
	if base != nil {
		gc.BaseURL = base
		gc.UploadURL = base
	}
	if cfg.userAgent != "" {
		gc.UserAgent = cfg.userAgent
	}
	return &Client{Client: gc, HTTP: hc, Authenticated: token != ""}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("github client: invalid base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("github client: base url %q must be http or https", raw)
	}
	return u, nil
}
