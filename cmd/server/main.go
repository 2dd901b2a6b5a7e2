// Package main provides the directory server binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/now-is/chicommons-maps/internal/config"
	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/geocode"
	"github.com/now-is/chicommons-maps/internal/httpapi"
	"github.com/now-is/chicommons-maps/internal/ingestion"
	"github.com/now-is/chicommons-maps/internal/metrics"
	"github.com/now-is/chicommons-maps/internal/middleware"
	"github.com/now-is/chicommons-maps/internal/moderation"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Version = "0.1.0"
	appName = "directory"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Moderated organization directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Directory containing config.yaml")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(db.MigrateUp), string(db.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath, db.MigrateDirection(args[0]))
		},
	})

	cmd.AddCommand(importCmd(&configPath))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func importCmd(configPath *string) *cobra.Command {
	var (
		actor   string
		approve bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Submit one CREATE proposal per row of a CSV or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, args[0], actor, approve)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "seed", "Actor recorded as requester (and reviewer with --approve)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve every imported row")
	return cmd
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func load(configPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func migrate(configPath string, direction db.MigrateDirection) error {
	cfg, logger, err := load(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return db.RunMigrations(cfg.Database, direction, logger)
}

// services wires the moderation core on top of an open connection.
type services struct {
	store  *repository.PostgresStore
	intake *moderation.IntakeService
	review *moderation.ReviewEngine
}

func newServices(cfg config.Config, conn *db.Connection, m *metrics.Metrics, logger *zap.Logger) (services, error) {
	opts, err := cfg.ModerationOptions()
	if err != nil {
		return services{}, err
	}

	store := repository.NewPostgresStore(conn)

	var resolver moderation.AddressResolver
	if cfg.Geocoder.Enabled {
		client, err := geocode.New(cfg.Geocoder.Config, store.AddressCache(), logger.Named("geocode"), geocode.WithMetrics(m))
		if err != nil {
			return services{}, err
		}
		resolver = client
	} else {
		logger.Warn("geocoder disabled; addresses are stored as submitted")
	}

	return services{
		store:  store,
		intake: moderation.NewIntakeService(store, resolver, opts, m, logger.Named("intake")),
		review: moderation.NewReviewEngine(store, opts, m, logger.Named("review")),
	}, nil
}

func runImport(ctx context.Context, configPath, path, actor string, approve bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := load(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	svc, err := newServices(cfg, conn, nil, logger)
	if err != nil {
		return err
	}

	importer := ingestion.NewImporter(svc.intake, svc.review, logger.Named("import"))
	summary, err := importer.Import(ctx, ingestion.Request{
		FileName: path,
		Data:     file,
		Actor:    domain.ActorContext{Actor: actor, Clock: domain.SystemClock{}},
		Approve:  approve,
	})
	if err != nil {
		return err
	}

	fmt.Printf("rows: %d  submitted: %d  approved: %d  approval failed: %d  invalid: %d\n",
		summary.TotalRows, summary.Submitted, summary.Approved, summary.ApprovalFailed, summary.InvalidRows)
	for _, rowErr := range summary.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
	}
	return nil
}

func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := load(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, db.MigrateUp, logger); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	svc, err := newServices(cfg, conn, m, logger)
	if err != nil {
		return err
	}

	api := httpapi.NewHandler(svc.intake, svc.review, svc.store, logger.Named("http"))
	api.Imports = ingestion.NewImporter(svc.intake, svc.review, logger.Named("import"))

	router := chi.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger.Named("http"), m))
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Mount("/", api.Routes())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting directory API", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
