package cli

import (
	"log/slog"

	"aiscout/internal/config"
	"aiscout/internal/detectors"
	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
)

func engineSettings(cfg *config.Config) engine.Settings {
	return engine.Settings{
		BaseURL:          cfg.GitHub.BaseURL,
		UserAgent:        cfg.GitHub.UserAgent,
		Timeout:          cfg.GitHub.Timeout,
		Verbose:          cfg.GitHub.Verbose,
		PerPage:          cfg.Scan.PerPage,
		MaxPages:         cfg.Scan.MaxPages,
		RequestInterval:  cfg.GitHub.RequestInterval,
		Burst:            cfg.GitHub.Burst,
		MaxRetries:       cfg.GitHub.MaxRetries,
		MaxRateLimitWait: cfg.GitHub.MaxRateLimitWait,
		MaxFileBytes:     cfg.Scan.MaxFileBytes,
	}
}

// buildEngine selects and configures detectors from cfg and wires the
// observers into a new engine.
func buildEngine(cfg *config.Config, store scans.Store, logger *slog.Logger, observers ...engine.Observer) (*engine.Engine, error) {
	selected, err := detectors.Resolve(cfg.Scan.Detectors)
	if err != nil {
		return nil, err
	}
	if len(cfg.Scan.DetectorOptions) > 0 {
		opts, err := config.ParseDetectorOptions(cfg.Scan.DetectorOptions)
		if err != nil {
			return nil, err
		}
		if err := detectors.Configure(opts); err != nil {
			return nil, err
		}
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCollectors(selected),
	}
	for _, o := range observers {
		engineOpts = append(engineOpts, engine.WithObserver(o))
	}
	return engine.New(store, engineSettings(cfg), engineOpts...), nil
}
