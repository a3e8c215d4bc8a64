package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/engine"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/processors"
	"server/internal/providers/ai"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(pool)
	docs := repo.NewDocumentRepository(pool)
	orgs := repo.NewOrganizationRepository(pool)

	storagePath := cfg.ExportStoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	exportStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure export storage")
	}

	apiKey := strings.TrimSpace(cfg.AIAPIKey)
	if apiKey == "" {
		credStore := credentials.NewStore(pool)
		keyFromStore, err := credStore.AIAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load ai api key from store")
		} else {
			apiKey = keyFromStore
		}
	}
	if apiKey == "" {
		logger.Warn().Msg("worker: ai api key missing, provider calls will fail")
	}

	aiClient, err := ai.NewClient(ai.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.AIBaseURL,
		Model:      cfg.AIModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure ai client")
	}

	eng := engine.New(engine.Options{
		Jobs:                   jobs,
		Orgs:                   orgs,
		Logger:                 logger,
		ProviderCallsPerMinute: cfg.ProviderCallsPerMinute,
		ProviderDailyCallLimit: cfg.ProviderDailyCallLimit,
		OrgMaxJobsPerHour:      cfg.OrgMaxJobsPerHour,
		OrgMaxJobsPerDay:       cfg.OrgMaxJobsPerDay,
	})

	aiPool := engine.PoolConfig{
		Concurrency:       cfg.AIPoolConcurrency,
		Tick:              cfg.AIPoolTick,
		UsesProviderQuota: true,
	}
	extractionPool := engine.PoolConfig{
		Concurrency: cfg.ExtractionPoolConcurrency,
		Tick:        cfg.ExtractionPoolTick,
	}
	maintenancePool := engine.PoolConfig{
		Concurrency: cfg.MaintenancePoolConcurrency,
		Tick:        cfg.MaintenancePoolTick,
	}

	eng.RegisterProcessor(processors.NewContentExtraction(docs), extractionPool)
	eng.RegisterProcessor(processors.NewAnalysis(docs, aiClient, eng), aiPool)
	eng.RegisterProcessor(processors.NewEmbeddingGeneration(docs, aiClient), aiPool)
	eng.RegisterProcessor(processors.NewBulkUpload(docs, eng), extractionPool)
	eng.RegisterProcessor(processors.NewDataExport(docs, jobs, exportStore), maintenancePool)
	eng.RegisterProcessor(processors.NewDataCleanup(jobs, exportStore), maintenancePool)
	eng.RegisterProcessor(processors.NewAuditReport(orgs), maintenancePool)

	eng.Start(ctx)
	logger.Info().Str("port", cfg.Port).Msg("worker: started")

	app := handlers.NewApp(eng, jobs, logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error().Err(err).Msg("worker: http server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: http shutdown failed")
	}

	eng.Stop()
	logger.Info().Msg("worker: stopped")
}
