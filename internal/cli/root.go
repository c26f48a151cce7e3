package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"aiscout/internal/config"
	"aiscout/internal/flags"
	"aiscout/internal/logging"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	logLevel   string
	logFormat  string
}

var global globalOptions

var rootCmd = &cobra.Command{
	Use:   "aiscout",
	Short: "Find AI usage across the repositories of a GitHub account",
	Long: `aiscout enumerates the repositories of a GitHub organization or user and
reports which of them use AI: AI libraries in dependency manifests, AI imports
in notebooks, serialized model files, provider API key references and more.

aiscout only reads repository contents via the GitHub API.

Examples:
	# Run the multi-tenant HTTP service
	aiscout serve --config aiscout.yaml

	# One-shot scan of an account
	aiscout scan --target my-org

	# List detectors
	aiscout detectors list

	# Print build info
	aiscout version

Configuration:
	Settings come from the YAML file given by --config (or AISCOUT_CONFIG),
	then environment variables, then command-line flags.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&global.configPath, flags.FlagConfig, "", "Path to a YAML config file (default: $"+config.EnvConfigPath+")")
	pf.BoolVar(&global.verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call and full error details)")
	pf.StringVar(&global.logLevel, flags.FlagLogLevel, "", "Log level: debug|info|warn|error (default: info)")
	pf.StringVar(&global.logFormat, flags.FlagLogFormat, "", "Log format: text|json (default: text)")
}

// loadConfig reads the file and environment, then applies the global flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, err
	}
	if changed(cmd, flags.FlagVerbose) {
		cfg.GitHub.Verbose = global.verbose
	}
	if changed(cmd, flags.FlagLogLevel) {
		cfg.Log.Level = global.logLevel
	}
	if changed(cmd, flags.FlagLogFormat) {
		cfg.Log.Format = global.logFormat
	}
	if cfg.GitHub.Verbose && !changed(cmd, flags.FlagLogLevel) {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, w)
}

func changed(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}
