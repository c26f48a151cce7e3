package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvConfigPath     = "AISCOUT_CONFIG"
	EnvDatabaseDSN    = "AISCOUT_DATABASE_DSN"
	EnvDatabaseDriver = "AISCOUT_DATABASE_DRIVER"
	EnvListenAddr     = "AISCOUT_LISTEN_ADDR"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	// MAINTAINER NOTE: fields that can also be set from the command line must
	// stay in sync with the flags in internal/cli and internal/flags.
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	GitHub   GitHub   `yaml:"github"`
	Scan     Scan     `yaml:"scan"`
	Archive  Archive  `yaml:"archive"`
	Log      Log      `yaml:"log"`
	Output   Output   `yaml:"output"`
}

type Server struct {
	// ListenAddr is the HTTP listen address (see --listen).
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// Workers is the number of scan runs executed in parallel.
	Workers int `yaml:"workers" validate:"gte=1,lte=64"`

	// QueueSize bounds how many started runs may wait for a worker.
	QueueSize int `yaml:"queue_size" validate:"gte=1"`

	// LeaseTimeout lets a new start take over a scan that has been running
	// longer than this. Zero disables takeover.
	LeaseTimeout time.Duration `yaml:"lease_timeout" validate:"gte=0"`

	// ShutdownTimeout bounds how long queued runs may drain on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`
}

type Database struct {
	// Driver is one of memory, postgres, mysql.
	Driver string `yaml:"driver"`

	// DSN is the driver connection string. Required unless Driver is memory.
	DSN string `yaml:"dsn"`

	// Migrate applies the embedded schema on startup.
	Migrate bool `yaml:"migrate"`
}

type GitHub struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise Server).
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	UserAgent string `yaml:"user_agent"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// RequestInterval and Burst pace requests with a token bucket.
	RequestInterval time.Duration `yaml:"request_interval" validate:"gte=0"`
	Burst           int           `yaml:"burst" validate:"gte=1"`

	// MaxRetries is how often a rate-limited call is retried.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// MaxRateLimitWait is the longest quota reset a call will wait for.
	MaxRateLimitWait time.Duration `yaml:"max_rate_limit_wait" validate:"gte=0"`

	// Verbose logs every API request to stderr (see --verbose).
	Verbose bool `yaml:"verbose"`
}

type Scan struct {
	// PerPage is the repository listing page size (GitHub caps it at 100).
	PerPage int `yaml:"per_page" validate:"gte=1,lte=100"`

	// MaxPages bounds repository listing pagination.
	MaxPages int `yaml:"max_pages" validate:"gte=1"`

	// MaxFileBytes skips larger files.
	MaxFileBytes int `yaml:"max_file_bytes" validate:"gt=0"`

	// RunTimeout bounds one scan run.
	RunTimeout time.Duration `yaml:"run_timeout" validate:"gt=0"`

	// Detectors selects which detectors run. Empty means all (see --detectors).
	Detectors string `yaml:"detectors"`

	// DetectorOptions are option=value overrides for configurable detectors
	// (see --set). Values may be comma-separated.
	DetectorOptions []string `yaml:"detector_options"`
}

type Archive struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint" validate:"required_if=Enabled true"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket" validate:"required_if=Enabled true"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Output configures the one-shot CLI scan sinks.
type Output struct {
	// ConsoleFormat controls the human-facing console sink (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// Out writes structured output to this path (see --out).
	Out string `yaml:"out"`

	// OutFormat selects the format for Out. Inferred from the extension when empty.
	OutFormat string `yaml:"out_format"`

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool `yaml:"no_console"`

	// Report writes a Markdown report to this path (see --report).
	Report string `yaml:"report"`
}

func New() *Config {
	return &Config{
		Server: Server{
			ListenAddr:      ":8080",
			Workers:         2,
			QueueSize:       32,
			LeaseTimeout:    time.Hour,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: Database{
			Driver:  DriverMemory,
			Migrate: true,
		},
		GitHub: GitHub{
			UserAgent:        "aiscout",
			Timeout:          30 * time.Second,
			RequestInterval:  100 * time.Millisecond,
			Burst:            5,
			MaxRetries:       2,
			MaxRateLimitWait: 2 * time.Minute,
		},
		Scan: Scan{
			PerPage:      100,
			MaxPages:     1,
			MaxFileBytes: 1 << 20,
			RunTimeout:   30 * time.Minute,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
	}
}

// Load reads path over the defaults. An empty path reads AISCOUT_CONFIG when
// set and otherwise keeps the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDriver); ok && strings.TrimSpace(v) != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvDatabaseDSN); ok && strings.TrimSpace(v) != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvListenAddr); ok && strings.TrimSpace(v) != "" {
		c.Server.ListenAddr = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	c.Scan.DetectorOptions = splitCommaList(c.Scan.DetectorOptions)
	c.Server.CORSOrigins = splitCommaList(c.Server.CORSOrigins)

	if err := validate.Struct(c); err != nil {
		return describeValidation(err)
	}

	c.Database.Driver = normalizeEnumValue(c.Database.Driver)
	switch c.Database.Driver {
	case "":
		c.Database.Driver = DriverMemory
	case DriverMemory, DriverPostgres, DriverMySQL:
	case "postgresql", "pg":
		c.Database.Driver = DriverPostgres
	default:
		return fmt.Errorf("unsupported database.driver: %s (must be one of: memory, postgres, mysql)", c.Database.Driver)
	}
	if c.Database.Driver != DriverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required for driver %s (or set %s)", c.Database.Driver, EnvDatabaseDSN)
	}

	c.Log.Level = normalizeEnumValue(c.Log.Level)
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log.level: %s (must be one of: debug, info, warn, error)", c.Log.Level)
	}
	c.Log.Format = normalizeEnumValue(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported log.format: %s (must be one of: text, json)", c.Log.Format)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	if len(c.Scan.DetectorOptions) > 0 {
		if _, err := ParseDetectorOptions(c.Scan.DetectorOptions); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServer checks settings that only matter for the long-running
// server. A run must end before its lease can be taken over.
func (c *Config) ValidateServer() error {
	if c.Server.LeaseTimeout > 0 && c.Scan.RunTimeout >= c.Server.LeaseTimeout {
		return fmt.Errorf("scan.run_timeout (%s) must be shorter than server.lease_timeout (%s)", c.Scan.RunTimeout, c.Server.LeaseTimeout)
	}
	return nil
}

// describeValidation turns validator errors into "section.field: rule" text.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s (got %v)", strings.ToLower(field), rule, fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseDetectorOptions parses values of the form "option=value".
//
// Notes:
// - Entries may be provided via repeated flags and/or comma-delimited lists.
// - This validates syntax only; detectors ignore options they do not declare.
// - Empty values are allowed ("option=") and keep the detector default.
func ParseDetectorOptions(values []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, raw := range splitCommaList(values) {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected option=value", raw)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty option", raw)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
