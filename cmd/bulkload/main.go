package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
	"github.com/JonMunkholm/bulkloader/internal/config"
	"github.com/JonMunkholm/bulkloader/internal/logging"
	"github.com/JonMunkholm/bulkloader/internal/salesforce"
	"github.com/JonMunkholm/bulkloader/internal/staging"
	"github.com/JonMunkholm/bulkloader/internal/store"
	"github.com/JonMunkholm/bulkloader/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"object", cfg.Load.Object,
		"operation", cfg.Load.Operation,
		"workers", cfg.Load.Workers,
		"staging_provider", cfg.Staging.Provider,
	)

	// Cancel the run on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the dataset: a CSV file path argument, or stdin
	dataset, datasetSize, closeDataset, err := openDataset(os.Args[1:])
	if err != nil {
		slog.Error("failed to open dataset", "error", err)
		os.Exit(1)
	}
	defer closeDataset()

	// Pick a staging provider by estimated dataset size
	provider, err := buildStagingProvider(ctx, cfg, datasetSize)
	if err != nil {
		slog.Error("failed to configure staging", "error", err)
		os.Exit(1)
	}
	slog.Info("staging provider selected", "provider", provider.ID())

	// Remote bulk service client over a caller-owned session
	session := salesforce.Session{
		InstanceURL: cfg.Salesforce.InstanceURL,
		SessionID:   cfg.Salesforce.SessionID,
		APIVersion:  cfg.Salesforce.APIVersion,
	}
	client, err := salesforce.NewBulkClient(session, salesforce.ClientConfig{
		Timeout:   cfg.Salesforce.RequestTimeout,
		RateLimit: cfg.Salesforce.RateLimit,
	})
	if err != nil {
		slog.Error("failed to create bulk client", "error", err)
		os.Exit(1)
	}

	// Optional report persistence
	var reportStore *store.Store
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, reportStore, err = connectStore(ctx, cfg)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	// Live progress tracking, exposed by the optional status server
	tracker := bulk.NewTracker()
	var statusServer *web.Server
	if cfg.Server.Enabled {
		statusServer = web.NewServer(tracker, reportStore)
		go func() {
			if err := statusServer.Start(cfg.Server.Addr); err != nil {
				slog.Info("status server stopped", "error", err)
			}
		}()
	}

	loader := bulk.NewLoader(client, provider, bulk.Config{
		MaxBatchBytes: cfg.Load.MaxBatchBytes,
		MaxBatchRows:  cfg.Load.MaxBatchRows,
		Workers:       cfg.Load.Workers,
		PollInterval:  cfg.Load.PollInterval,
		MaxWait:       cfg.Load.MaxWait,
		DatasetBytes:  datasetSize,
	})

	var runID string
	loader.OnProgress(func(p bulk.RunProgress) {
		runID = p.RunID
		tracker.Observe(p)
	})

	runLog := logging.WithFields(ctx, "object", cfg.Load.Object, "operation", cfg.Load.Operation)

	report, runErr := loader.Run(ctx, dataset, cfg.Load.Object, bulk.Operation(strings.ToLower(cfg.Load.Operation)))
	if runErr != nil {
		runLog.Error("load run failed", "error", runErr)
	}

	if report != nil {
		runLog.Info("load run finished",
			"job_id", report.Job.ID,
			"batches", len(report.Order),
			"records", report.TotalRecords(),
			"created", report.Created,
			"updated", report.Updated,
			"failed", report.Failed,
			"unresolved", len(report.Unresolved()),
			"duration", report.Duration,
		)

		if reportStore != nil {
			persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			if err := reportStore.SaveReport(persistCtx, runID, cfg.Load.Object, cfg.Load.Operation, report); err != nil {
				slog.Error("failed to persist report", "error", err)
			} else {
				slog.Info("report persisted", "run_id", runID)
			}
			cancel()
		}
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown error", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// openDataset returns a reader over the input CSV and its size when known.
// A single path argument selects a file; otherwise stdin is used. BOM
// stripping and progress counting happen inside the loader.
func openDataset(args []string) (io.Reader, int64, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, 0, func() {}, nil
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, 0, nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return f, size, func() { f.Close() }, nil
}

// buildStagingProvider registers the configured providers and selects one
// for this run by estimated dataset size.
func buildStagingProvider(ctx context.Context, cfg *config.Config, datasetSize int64) (staging.Provider, error) {
	registry := staging.NewRegistry(staging.NewMemoryProvider(staging.DefaultMemoryCapBytes))

	fileProvider, err := staging.NewFileProvider(cfg.Staging.Dir)
	if err != nil {
		return nil, err
	}
	registry.Register(fileProvider)

	if cfg.Staging.MinIOEndpoint != "" {
		objectProvider, err := staging.NewObjectProvider(ctx, staging.ObjectConfig{
			Endpoint:  cfg.Staging.MinIOEndpoint,
			AccessKey: cfg.Staging.MinIOAccessKey,
			SecretKey: cfg.Staging.MinIOSecretKey,
			Bucket:    cfg.Staging.MinIOBucket,
			UseSSL:    cfg.Staging.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(objectProvider)
	}

	return registry.Select(cfg.Staging.Provider, datasetSize, cfg.Staging.ObjectThresholdBytes)
}

// connectStore opens the connection pool and ensures the report tables exist.
func connectStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *store.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	reportStore := store.NewStore(pool)
	if err := reportStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	return pool, reportStore, nil
}
