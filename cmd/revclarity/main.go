package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/revclarity/revclarity/internal/config"
	"github.com/revclarity/revclarity/internal/domain/analytics"
	"github.com/revclarity/revclarity/internal/domain/claim"
	"github.com/revclarity/revclarity/internal/domain/orthopilot"
	"github.com/revclarity/revclarity/internal/domain/patient"
	"github.com/revclarity/revclarity/internal/platform/ai"
	"github.com/revclarity/revclarity/internal/platform/auth"
	"github.com/revclarity/revclarity/internal/platform/db"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/middleware"
	"github.com/revclarity/revclarity/internal/platform/storage"
	"github.com/revclarity/revclarity/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:   "revclarity",
		Short: "RevClarity claims co-pilot",
	}
	root.AddCommand(serveCmd(), workCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return logger
}

func newCollaborator(cfg *config.Config, logger zerolog.Logger) ai.Collaborator {
	if cfg.ResolvedAIMode() == "live" {
		logger.Info().Msg("AI collaborator: anthropic (live)")
		return ai.NewAnthropicCollaborator(cfg.AnthropicAPIKey, cfg.AIModel, logger)
	}
	logger.Info().Msg("AI collaborator: stub (no ANTHROPIC_API_KEY)")
	return ai.NewStubCollaborator()
}

// deps is everything both the server and the worker build on.
type deps struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	patients *patient.Service
	claims   *claim.Service
	inbox    *orthopilot.Service
	summary  analytics.Repository
	queue    jobs.Queue
	collab   ai.Collaborator
	files    storage.FileStore
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	files, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		pool.Close()
		return nil, err
	}

	queue := jobs.NewQueuePG(pool)
	collab := newCollaborator(cfg, logger)

	patients := patient.NewService(
		patient.NewRepoPG(pool),
		patient.NewBenefitRepoPG(pool),
		patient.NewDocumentRepoPG(pool),
		files, queue, logger,
	)
	claims := claim.NewService(
		claim.NewRepoPG(pool),
		claim.NewDocumentRepoPG(pool),
		files, queue, db.NewTransactor(pool), logger,
	)
	inbox := orthopilot.NewService(orthopilot.NewRepoPG(pool), files, queue, collab, logger)

	return &deps{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		patients: patients,
		claims:   claims,
		inbox:    inbox,
		summary:  analytics.NewRepoPG(pool),
		queue:    queue,
		collab:   collab,
		files:    files,
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.pool.Close()
			return runServer(ctx, d)
		},
	}
}

func runServer(ctx context.Context, d *deps) error {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", db.HealthHandler(d.pool))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	switch cfg.ResolvedAuthMode() {
	case "jwt":
		api.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret)}))
	default:
		api.Use(auth.DevAuthMiddleware())
	}

	patient.NewHandler(d.patients).RegisterRoutes(api)
	claim.NewHandler(d.claims, d.patients).RegisterRoutes(api)
	orthopilot.NewHandler(d.inbox).RegisterRoutes(api)
	analytics.NewHandler(d.summary).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.StartServer(srv); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func workCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run the background worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.pool.Close()

			runner := jobs.NewRunner(d.queue, d.logger, d.cfg.WorkerPollInterval, d.cfg.WorkerConcurrency)
			w := worker.New(d.claims, d.patients, d.inbox, d.collab, d.files, worker.Config{
				SimulateMinLatency: d.cfg.SimulateMinLatency,
				SimulateMaxLatency: d.cfg.SimulateMaxLatency,
			}, d.logger)
			w.Register(runner)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit
				d.logger.Info().Msg("worker shutting down")
				cancel()
			}()

			d.logger.Info().Int("concurrency", d.cfg.WorkerConcurrency).Msg("worker starting")
			return runner.Run(runCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate [up|status]",
		Short: "Apply or inspect database migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			m := db.NewMigrator(pool, dir)
			switch args[0] {
			case "up":
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				logger.Info().Int("applied", n).Msg("migrations complete")
			case "status":
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Printf("%3d  %-40s %s\n", s.Version, s.Name, state)
				}
			default:
				return fmt.Errorf("unknown migrate action %q (want up or status)", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing .sql migrations")
	return cmd
}
