package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"card-league-system/config"
	"card-league-system/metrics"
	"card-league-system/models"
	"card-league-system/notify"
	"card-league-system/repository"
	"card-league-system/services"
	"card-league-system/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// league bundles every service built from one configuration.
type league struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	orchestrator *services.CompletionOrchestrator
	engine       *services.ConsensusEngine
	matches      *services.MatchService
	standings    *services.StandingsService
	reconciler   *services.Reconciler
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	return repository.OpenPostgres(cfg.Store.DSN, logger)
}

// buildLeague migrates the store, seeds the catalog and wires the services.
func buildLeague(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*league, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	catalog, err := models.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	if err := services.SeedCatalog(ctx, store, catalog); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var storage services.EvidenceStorage
	if cfg.R2.Enabled() {
		bucket, err := utils.NewR2Bucket(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			return nil, err
		}
		storage = bucket
	} else if cfg.UploadDir != "" {
		disk, err := utils.NewDiskBucket(cfg.UploadDir, "/uploads")
		if err != nil {
			return nil, err
		}
		storage = disk
		logger.Info("R2 not configured, storing screenshots on disk", "dir", cfg.UploadDir)
	} else {
		logger.Info("R2 not configured, screenshot uploads disabled")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Discord.Enabled() {
		dn, err := notify.NewDiscordNotifier(cfg.Discord.Token, cfg.Discord.ChannelID, logger)
		if err != nil {
			return nil, err
		}
		notifier = dn
	}

	resolver := utils.NewDeckTypeResolver(catalog.DeckTypes)
	leaders := services.NewLeadershipAssigner(store, m, logger)
	orch := services.NewCompletionOrchestrator(
		services.NewDeckStatsAggregator(store, logger),
		leaders,
		services.NewAchievementEvaluator(store, logger),
		store, m, logger,
	)

	return &league{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		orchestrator: orch,
		engine:       services.NewConsensusEngine(store, orch, resolver, storage, notifier, m, logger),
		matches:      services.NewMatchService(store, logger),
		standings:    services.NewStandingsService(store, resolver, logger),
		reconciler:   services.NewReconciler(store, leaders, logger),
	}, nil
}
