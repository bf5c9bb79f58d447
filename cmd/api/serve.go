package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docbridge/internal/app"
	"docbridge/internal/archive"
	"docbridge/internal/auth"
	"docbridge/internal/blob"
	"docbridge/internal/config"
	"docbridge/internal/llm"
	"docbridge/internal/logging"
	"docbridge/internal/review"
	"docbridge/internal/session"
	"docbridge/internal/store"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on start")
	return cmd
}

func serve(parent context.Context, skipMigrations bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("versions", applied))
		}
	}
	dataStore := store.NewPostgresStore(db)

	var files http.Handler
	var blobs blob.Store
	switch cfg.BlobBackend {
	case "minio":
		minioStore, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return fmt.Errorf("blob storage failed: %w", err)
		}
		blobs = minioStore
	default:
		baseURL := cfg.BlobBaseURL
		if baseURL == "" {
			baseURL = cfg.PublicBaseURL + "/files"
		}
		local, err := blob.NewLocalStore(cfg.BlobDir, baseURL)
		if err != nil {
			return fmt.Errorf("blob storage failed: %w", err)
		}
		blobs = local
		files = local.Handler()
	}

	var ledger review.Ledger
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLedger, err := session.NewRedisLedger(cfg.RedisURL, cfg.LedgerTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisLedger.Close()
		ledger = redisLedger
		logger.Info("using redis for the applied ledger")
	}

	// a nil Generator disables generation; never store a typed nil here
	var gen llm.Generator
	if g, err := llm.New(cfg); err != nil {
		logger.Warn("content generation disabled", zap.Error(err))
	} else {
		gen = g
	}

	if cfg.EditorJWTSecret == "" {
		logger.Warn("EDITOR_JWT_SECRET is not set, token issuance will fail")
	}

	service := app.New(ctx, cfg, app.Dependencies{
		Store:     dataStore,
		Blobs:     blobs,
		Fetcher:   blob.NewHTTPFetcher(60 * time.Second),
		Archive:   archive.New(cfg.SaveDir),
		Generator: gen,
		Signer:    auth.NewEnvSigner("EDITOR_JWT_SECRET"),
		Ledger:    ledger,
		Logger:    logger,
	})
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	if files != nil {
		httpServer.ServeFiles(files)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docbridge API listening", zap.String("addr", cfg.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}
