package flags

// Package flags defines canonical CLI flag names shared by the commands and
// the config layer. Config fields that can be overridden from the command
// line reference these names in their doc comments.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&opts.target, flags.FlagTarget, "", "...")
//	arg := "--" + flags.FlagTarget
const (
	// Global
	FlagConfig    = "config"
	FlagVerbose   = "verbose"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"

	// Targeting
	FlagTarget   = "target"
	FlagMaxPages = "max-pages"

	// Detectors
	FlagDetectors = "detectors"
	FlagSet       = "set"

	// Output
	FlagConsoleFormat = "console-format"
	FlagConsoleFilter = "console-filter"
	FlagReport        = "report"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagEmit          = "emit"
	FlagNoConsole     = "no-console"

	// Runtime
	FlagTimeout = "timeout"

	// Server
	FlagListen  = "listen"
	FlagWorkers = "workers"
)
