package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultsValidate(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Fatalf("default driver = %q", cfg.Database.Driver)
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aiscout.yaml")
	body := `
server:
  listen_addr: ":9090"
  workers: 4
  lease_timeout: 15m
database:
  driver: postgres
  dsn: postgres://scanner@db/aiscout?sslmode=disable
scan:
  max_pages: 3
  detector_options: ["max-notebooks=5, max-drilldown-dirs=2"]
log:
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDatabaseDSN, "")
	t.Setenv(EnvDatabaseDriver, "")
	t.Setenv(EnvListenAddr, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.Workers != 4 {
		t.Fatalf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Server.LeaseTimeout != 15*time.Minute {
		t.Fatalf("lease timeout = %v", cfg.Server.LeaseTimeout)
	}
	if cfg.Server.QueueSize != 32 {
		t.Fatalf("unset fields should keep defaults, queue size = %d", cfg.Server.QueueSize)
	}
	if cfg.Scan.MaxPages != 3 || cfg.Scan.PerPage != 100 {
		t.Fatalf("scan section = %+v", cfg.Scan)
	}
	want := []string{"max-notebooks=5", "max-drilldown-dirs=2"}
	if !reflect.DeepEqual(cfg.Scan.DetectorOptions, want) {
		t.Fatalf("detector options = %v, want %v", cfg.Scan.DetectorOptions, want)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("server:\n  workers: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Workers != 7 {
		t.Fatalf("workers = %d, want 7", cfg.Server.Workers)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDatabaseDriver: "mysql",
		EnvDatabaseDSN:    "user:pw@tcp(db:3306)/aiscout",
		EnvListenAddr:     "127.0.0.1:8000",
	}
	cfg := New()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Database.Driver != "mysql" || cfg.Database.DSN != env[EnvDatabaseDSN] || cfg.Server.ListenAddr != "127.0.0.1:8000" {
		t.Fatalf("env not applied: %+v %+v", cfg.Database, cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestValidateServer_RunTimeoutWithinLease(t *testing.T) {
	cfg := New()
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("defaults: %v", err)
	}

	cfg.Server.LeaseTimeout = 20 * time.Minute
	cfg.Scan.RunTimeout = 20 * time.Minute
	err := cfg.ValidateServer()
	if err == nil || !strings.Contains(err.Error(), "scan.run_timeout") {
		t.Fatalf("expected run_timeout error, got %v", err)
	}

	cfg.Scan.RunTimeout = 19 * time.Minute
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("shorter run timeout: %v", err)
	}

	// No lease timeout means leases never expire.
	cfg.Server.LeaseTimeout = 0
	cfg.Scan.RunTimeout = 2 * time.Hour
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("lease takeover disabled: %v", err)
	}
}

func TestValidate_Database(t *testing.T) {
	cfg := New()
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.DSN = "postgres://x"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("driver alias not normalized: %q", cfg.Database.Driver)
	}

	cfg = New()
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "database.dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}

	cfg = New()
	cfg.Database.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestValidate_StructTags(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero workers", func(c *Config) { c.Server.Workers = 0 }, "server.workers"},
		{"zero queue", func(c *Config) { c.Server.QueueSize = 0 }, "server.queuesize"},
		{"per page over cap", func(c *Config) { c.Scan.PerPage = 101 }, "scan.perpage"},
		{"zero file bytes", func(c *Config) { c.Scan.MaxFileBytes = 0 }, "scan.maxfilebytes"},
		{"bad base url", func(c *Config) { c.GitHub.BaseURL = "not a url" }, "github.baseurl"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Endpoint = "minio:9000"
		}, "archive.bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	for _, v := range []string{"", "yaml", "  "} {
		cfg := New()
		cfg.Output.ConsoleFormat = v
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for console format %q", v)
		}
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	for _, v := range []string{"text", "JSON", " ndjson "} {
		cfg := New()
		cfg.Output.ConsoleFormat = v
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() returned error for %q: %v", v, err)
		}
		if cfg.Output.ConsoleFormat != strings.ToLower(strings.TrimSpace(v)) {
			t.Fatalf("console format not normalized: %q", cfg.Output.ConsoleFormat)
		}
	}
}

func TestValidate_InfersOutFormat(t *testing.T) {
	cfg := New()
	cfg.Output.Out = "results.ndjson"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Output.OutFormat != "ndjson" {
		t.Fatalf("out format = %q", cfg.Output.OutFormat)
	}

	cfg = New()
	cfg.Output.Out = "results"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing extension")
	}

	cfg = New()
	cfg.Output.Out = "results.txt"
	cfg.Output.OutFormat = "csv"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported out format")
	}
}

func TestValidate_LogSettings(t *testing.T) {
	cfg := New()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected log level error")
	}
	cfg = New()
	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected log format error")
	}
}

func TestParseDetectorOptions(t *testing.T) {
	got, err := ParseDetectorOptions([]string{
		"max-notebooks=10, max-drilldown-dirs=3",
		"max-drilldown-dirs=", // empty value allowed
	})
	if err != nil {
		t.Fatalf("ParseDetectorOptions returned error: %v", err)
	}
	if got["max-notebooks"] != "10" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if v, ok := got["max-drilldown-dirs"]; !ok || v != "" {
		t.Fatalf("expected later empty value to win: %v", got)
	}
}

func TestParseDetectorOptions_ErrorsOnInvalidSyntax(t *testing.T) {
	for _, in := range []string{"max-notebooks", "=3"} {
		if _, err := ParseDetectorOptions([]string{in}); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestValidate_RejectsInvalidSetSyntax(t *testing.T) {
	cfg := New()
	cfg.Scan.DetectorOptions = []string{"max-notebooks"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid --set syntax")
	}
}
