package scans

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var accountName = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// NormalizeTarget accepts an account name or a GitHub account URL
// (https://github.com/acme, github.com/orgs/acme, ...) and returns the bare
// account name.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("target is required")
	}
	if strings.HasPrefix(raw, "github.com/") || strings.HasPrefix(raw, "www.github.com/") {
		raw = "https://" + raw
	}
	name := raw
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid target %q", raw)
		}
		host := strings.ToLower(u.Hostname())
		if host != "github.com" && host != "www.github.com" {
			return "", fmt.Errorf("invalid target %q: not a github.com URL", raw)
		}
		parts := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
		if len(parts) == 0 {
			return "", fmt.Errorf("invalid target %q: missing account", raw)
		}
		name = parts[0]
		if name == "orgs" || name == "users" {
			if len(parts) < 2 {
				return "", fmt.Errorf("invalid target %q: missing account", raw)
			}
			name = parts[1]
		}
	}
	if !accountName.MatchString(name) {
		return "", fmt.Errorf("invalid target %q: expected an account or organization name", raw)
	}
	return name, nil
}
