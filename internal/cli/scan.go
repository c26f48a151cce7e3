package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aiscout/internal/config"
	"aiscout/internal/engine"
	"aiscout/internal/flags"
	gh "aiscout/internal/github"
	"aiscout/internal/output"
	"aiscout/internal/store/memory"
)

// Exit codes of the scan command.
const (
	exitNoAI    = 0
	exitAIFound = 1
	exitFatal   = 3
)

// localTenant owns the throwaway configuration of a one-shot scan.
const localTenant = "local"

type scanOptions struct {
	target        string
	token         string
	maxPages      int
	detectors     string
	set           []string
	consoleFormat string
	consoleFilter []string
	report        string
	out           string
	outFormat     string
	emit          []string
	noConsole     bool
	timeout       time.Duration
}

var scanOpts scanOptions

const scanHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  aiscout authenticates to GitHub using an access token.

  Sources (in order):
  1) AISCOUT_GITHUB_TOKEN environment variable
  2) GITHUB_TOKEN environment variable
  3) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)

  Without a token, only public repositories are scanned and the GitHub API
  allows 60 requests per hour.

  Token guidance (brief):
  - PAT (classic): repo (to read private repos) and read:org.
  - Fine-grained PAT: Metadata: Read and Contents: Read on the target repositories.

  Examples:
    export GITHUB_TOKEN="<your_token>"
    aiscout scan --target my-org

    gh auth login
    aiscout scan --target my-org

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the repositories of one GitHub account for AI usage",
	Long: `Scan every repository of a GitHub organization or user and report AI usage.

The target is tried as an organization first and as a user second. Results are
kept in memory for the duration of the command.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON document or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown report (AI repositories, libraries, coverage)
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Run lifecycle objects carry a
	"type" field (run.started, repo.result, run.finished); each repository
	result is an Event with type "repo.result" carrying the result fields inline.

Exit codes:
	0 = scan completed, no AI usage found
	1 = scan completed, AI usage found
	3 = fatal error (scan did not complete)

Examples:
	aiscout scan --target my-org
	aiscout scan --target https://github.com/octocat --console-filter AI

	# Stream machine-readable events to stdout
	aiscout scan --target my-org --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitFatal)
		}
		applyScanFlags(cmd, cfg, scanOpts)
		os.Exit(runScan(cmd.Context(), cfg, scanOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
	},
}

// applyScanFlags copies explicitly set flags over the loaded config.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config, o scanOptions) {
	if changed(cmd, flags.FlagMaxPages) {
		cfg.Scan.MaxPages = o.maxPages
	}
	if changed(cmd, flags.FlagDetectors) {
		cfg.Scan.Detectors = o.detectors
	}
	if changed(cmd, flags.FlagSet) {
		cfg.Scan.DetectorOptions = append(cfg.Scan.DetectorOptions, o.set...)
	}
	if changed(cmd, flags.FlagConsoleFormat) {
		cfg.Output.ConsoleFormat = o.consoleFormat
	}
	if changed(cmd, flags.FlagReport) {
		cfg.Output.Report = o.report
	}
	if changed(cmd, flags.FlagOut) {
		cfg.Output.Out = o.out
	}
	if changed(cmd, flags.FlagOutFormat) {
		cfg.Output.OutFormat = o.outFormat
	}
	if changed(cmd, flags.FlagNoConsole) {
		cfg.Output.NoConsole = o.noConsole
	}
	if changed(cmd, flags.FlagTimeout) {
		cfg.Scan.RunTimeout = o.timeout
	}
}

// runScan performs one scan and returns the process exit code.
func runScan(ctx context.Context, cfg *config.Config, o scanOptions, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	fatal := func(format string, args ...any) int {
		fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
		return exitFatal
	}

	if strings.TrimSpace(o.target) == "" {
		return fatal("--%s is required", flags.FlagTarget)
	}
	if err := cfg.Validate(); err != nil {
		return fatal("%v", err)
	}
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return fatal("%v", err)
	}

	token, source, err := gh.ResolveAuthToken(ctx, o.token)
	if err != nil {
		return fatal("failed to resolve GitHub auth token: %v", err)
	}
	if token == "" {
		logger.Warn("no GitHub token found; scanning public repositories unauthenticated")
	} else {
		logger.Debug("github token resolved", slog.String("source", string(source)))
	}

	mgr, err := buildSinks(cfg, o, stdout)
	if err != nil {
		return fatal("%v", err)
	}

	store := memory.New()
	eng, err := buildEngine(cfg, store, logger, output.NewObserver(mgr, logger))
	if err != nil {
		_ = mgr.Close()
		return fatal("%v", err)
	}
	svc := engine.NewService(store, eng, engine.WithServiceLogger(logger))

	c, err := svc.CreateConfiguration(ctx, localTenant, o.target, token)
	if err != nil {
		_ = mgr.Close()
		return fatal("%v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Scan.RunTimeout)
	defer cancel()
	summary, runErr := svc.RunNow(runCtx, localTenant, c.ID)

	if err := mgr.Close(); err != nil {
		logger.Warn("close output", slog.Any("error", err))
	}
	if runErr != nil {
		return fatal("%s", engine.DescribeError(runErr, cfg.GitHub.Verbose))
	}
	if summary != nil && summary.RepositoriesWithAI > 0 {
		return exitAIFound
	}
	return exitNoAI
}

// buildSinks creates the console, emit and file sinks requested by cfg and o.
func buildSinks(cfg *config.Config, o scanOptions, stdout io.Writer) (*output.Manager, error) {
	mgr := output.NewManager()
	if !cfg.Output.NoConsole {
		filters := splitList(o.consoleFilter)
		for _, f := range filters {
			switch strings.ToUpper(f) {
			case output.FilterAI, output.FilterNone:
			default:
				return nil, fmt.Errorf("unsupported --%s: %s (must be one of: AI, NONE)", flags.FlagConsoleFilter, f)
			}
		}
		if err := mgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, filters...)); err != nil {
			return nil, err
		}
	}
	for _, format := range splitList(o.emit) {
		sink, err := output.NewEmitSink(stdout, strings.ToLower(format))
		if err != nil {
			return nil, err
		}
		if err := mgr.AddSink(sink); err != nil {
			return nil, err
		}
	}
	if cfg.Output.Out != "" {
		sink, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			return nil, err
		}
		if err := mgr.AddSink(sink); err != nil {
			return nil, err
		}
	}
	if cfg.Output.Report != "" {
		sink, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			return nil, err
		}
		if err := mgr.AddSink(sink); err != nil {
			return nil, err
		}
	}
	if mgr.Len() == 0 {
		return nil, fmt.Errorf("no output selected: --%s needs --%s, --%s or --%s", flags.FlagNoConsole, flags.FlagEmit, flags.FlagOut, flags.FlagReport)
	}
	return mgr, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.SetHelpTemplate(scanHelpTemplate)

	defaults := config.New()
	f := scanCmd.Flags()

	// Targeting
	f.StringVar(&scanOpts.target, flags.FlagTarget, "", "GitHub organization or user to scan (name or URL)")
	f.IntVar(&scanOpts.maxPages, flags.FlagMaxPages, defaults.Scan.MaxPages, "Maximum repository listing pages (100 repositories per page)")

	// Detectors
	f.StringVar(&scanOpts.detectors, flags.FlagDetectors, "", "Comma-separated detector IDs to run (empty = all detectors)")
	f.StringSliceVar(&scanOpts.set, flags.FlagSet, nil, "Detector options as option=value (repeatable; comma-separated accepted)")

	// Output
	f.StringVar(&scanOpts.consoleFormat, flags.FlagConsoleFormat, defaults.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	f.StringSliceVar(&scanOpts.consoleFilter, flags.FlagConsoleFilter, nil, "Only print results with these statuses (AI, NONE). Comma-separated.")
	f.StringVar(&scanOpts.report, flags.FlagReport, "", "Write a Markdown report to this path")
	f.StringVar(&scanOpts.out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&scanOpts.outFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.StringSliceVar(&scanOpts.emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	f.BoolVar(&scanOpts.noConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")

	// Runtime
	f.DurationVar(&scanOpts.timeout, flags.FlagTimeout, defaults.Scan.RunTimeout, "Scan timeout")
}
