package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"aiscout/internal/archive"
	"aiscout/internal/config"
	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
	"aiscout/internal/flags"
	"aiscout/internal/httpserver"
	"aiscout/internal/metrics"
	"aiscout/internal/store/memory"
	"aiscout/internal/store/sqlstore"
)

type serveOptions struct {
	listen  string
	workers int
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the multi-tenant scan API",
	Long: `Run the HTTP API that stores scan configurations per tenant, runs scans on a
bounded worker pool and serves results and summaries.

Routes:
	POST /v1/{tenant}/scan-configs                 create a scan configuration
	GET  /v1/{tenant}/scan-configs                 list configurations
	GET  /v1/{tenant}/scan-configs/{id}            get one configuration
	POST /v1/{tenant}/scan-configs/{id}/start      start a scan (409 while one is running)
	GET  /v1/{tenant}/scan-results                 list results (config_id, run_id, limit)
	POST /v1/{tenant}/scan-results/{id}/track      mark a result as tracked
	GET  /v1/{tenant}/scan-summaries               list run summaries (config_id, limit)
	GET  /health                                   liveness and database check
	GET  /metrics                                  Prometheus metrics

Storage:
	database.driver selects memory (default), postgres or mysql. The schema is
	applied on startup unless database.migrate is false.

Examples:
	aiscout serve
	AISCOUT_DATABASE_DRIVER=postgres AISCOUT_DATABASE_DSN=postgres://... aiscout serve
	aiscout serve --config aiscout.yaml --listen :9000
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if changed(cmd, flags.FlagListen) {
			cfg.Server.ListenAddr = serveOpts.listen
		}
		if changed(cmd, flags.FlagWorkers) {
			cfg.Server.Workers = serveOpts.workers
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg, logger, prometheus.DefaultRegisterer, promhttp.Handler())
	},
}

// server holds everything serve builds so it can be torn down in order.
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    scans.Store
	queue    *engine.Queue
	service  *engine.Service
	archiver *archive.Archiver
	handler  http.Handler
	closers  []func() error
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, metricsView http.Handler) error {
	srv, err := newServer(ctx, cfg, logger, reg, metricsView)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.queue.Start(context.WithoutCancel(ctx))
	logger.Info("aiscout started",
		slog.String("version", buildVersion),
		slog.String("driver", cfg.Database.Driver),
		slog.Int("workers", cfg.Server.Workers),
		slog.Int("queue_size", cfg.Server.QueueSize))

	serveErr := httpserver.Serve(ctx, cfg.Server.ListenAddr, srv.handler, cfg.Server.ShutdownTimeout, logger)
	srv.drain()
	return serveErr
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, metricsView http.Handler) (*server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	s := &server{cfg: cfg, logger: logger}
	var routerOpts []httpserver.Option

	store, check, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.store = store
	if closeStore != nil {
		s.closers = append(s.closers, closeStore)
	}
	if check != nil {
		routerOpts = append(routerOpts, httpserver.WithHealthCheck("database", check))
	}

	var observers []engine.Observer
	if reg != nil {
		m := metrics.New(reg)
		observers = append(observers, m)
		routerOpts = append(routerOpts, httpserver.WithMetrics(m, metricsView))
	}
	if cfg.Archive.Enabled {
		a, err := archive.New(ctx, archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Prefix:    cfg.Archive.Prefix,
		}, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.archiver = a
		observers = append(observers, a)
	}

	eng, err := buildEngine(cfg, store, logger, observers...)
	if err != nil {
		s.close()
		return nil, err
	}

	runTimeout := cfg.Scan.RunTimeout
	queue, err := engine.NewQueue(cfg.Server.QueueSize, cfg.Server.Workers, func(ctx context.Context, job engine.Job) error {
		ctx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		return eng.RunJob(ctx, job)
	}, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.queue = queue
	s.service = engine.NewService(store, eng,
		engine.WithQueue(queue),
		engine.WithLeaseTimeout(cfg.Server.LeaseTimeout),
		engine.WithServiceLogger(logger))

	routerOpts = append(routerOpts,
		httpserver.WithLogger(logger),
		httpserver.WithCORS(cfg.Server.CORSOrigins))
	s.handler = httpserver.NewRouter(s.service, routerOpts...)
	return s, nil
}

// drain stops accepting jobs and waits for queued runs and archive uploads.
func (s *server) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.queue.Shutdown(ctx); err != nil {
		s.logger.Warn("scan queue did not drain", slog.Any("error", err))
	}
	if s.archiver != nil {
		s.archiver.Wait()
	}
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// openStore returns the configured store, a health check for it and a closer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scans.Store, httpserver.HealthChecker, func() error, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; scan data is lost on restart")
		return memory.New(), nil, nil, nil
	}

	d, err := sqlstore.DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := sqlstore.Open(ctx, d, cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.Migrate {
		if err := sqlstore.Migrate(ctx, db, d); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("database schema applied", slog.String("driver", d.Driver))
	}
	store := sqlstore.New(db, d)
	return store, httpserver.DatabaseCheck{DB: db}, store.Close, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	defaults := config.New()
	serveCmd.Flags().StringVar(&serveOpts.listen, flags.FlagListen, defaults.Server.ListenAddr, "HTTP listen address (overrides $"+config.EnvListenAddr+")")
	serveCmd.Flags().IntVar(&serveOpts.workers, flags.FlagWorkers, defaults.Server.Workers, "Concurrent scan runs")
}
