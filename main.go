package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"card-league-system/config"
	"card-league-system/handlers"
	"card-league-system/middleware"
	"card-league-system/services"
	"card-league-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "league",
		Usage: "card league match consensus and standings service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				EnvVars: []string{"LEAGUE_CONFIG"},
				Usage:   "path to the optional YAML config file",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the HTTP API and background jobs", Action: serve},
			{Name: "migrate", Usage: "migrate the schema and seed the catalog", Action: migrate},
			{
				Name:  "season",
				Usage: "open or close a season",
				Subcommands: []*cli.Command{
					{
						Name:      "open",
						ArgsUsage: "<name>",
						Flags: []cli.Flag{
							&cli.TimestampFlag{Name: "starts", Layout: "2006-01-02", Usage: "first day of the season (default today)"},
						},
						Action: openSeason,
					},
					{Name: "close", ArgsUsage: "<season-id>", Action: closeSeason},
				},
			},
			{Name: "reconcile", Usage: "reassign gym badges for every open season", Action: reconcile},
			{
				Name:  "retry",
				Usage: "retry due recompute tasks once",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
				},
				Action: retry,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func load(cCtx *cli.Context) (*league, error) {
	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return buildLeague(cCtx.Context, cfg, newLogger(cfg))
}

func serve(cCtx *cli.Context) error {
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	ctx := cCtx.Context
	cfg := l.cfg

	app := fiber.New(fiber.Config{
		BodyLimit: 12 * 1024 * 1024,
	})
	app.Use(recover.New())

	// Probes bypass the gateway token.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(l.registry, promhttp.HandlerOpts{})))

	app.Use(middleware.GatewayAuthMiddleware(cfg.HTTP.ServiceToken, l.logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.HTTP.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	submitLimit := middleware.UserRateLimitMiddleware(middleware.PerMinute(cfg.RateLimit.SubmissionsPerMinute))
	handlers.SetupMatchRoutes(app, l.engine, submitLimit, l.logger)
	handlers.SetupStandingsRoutes(app, l.standings, l.logger)
	handlers.SetupAdminRoutes(app, l.matches, l.reconciler, l.logger)

	if !cfg.R2.Enabled() && cfg.UploadDir != "" {
		app.Static("/uploads", cfg.UploadDir)
	}

	worker := workers.NewRecomputeWorker(l.orchestrator, cfg.Jobs.RetryInterval, 50, l.logger)
	go worker.Start(ctx)

	sched, err := services.StartReconcileScheduler(ctx, l.reconciler, cfg.Jobs.ReconcileInterval)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			l.logger.Error("scheduler shutdown failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTP.Addr)
	}()
	l.logger.Info("server running",
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"uploads", cfg.R2.Enabled(),
		"discord", cfg.Discord.Enabled(),
		"origins", cfg.HTTP.AllowedOrigins)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.logger.Info("shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func migrate(cCtx *cli.Context) error {
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	l.logger.Info("schema migrated and catalog seeded")
	return nil
}

func openSeason(cCtx *cli.Context) error {
	name := strings.TrimSpace(strings.Join(cCtx.Args().Slice(), " "))
	if name == "" {
		return errors.New("season name is required")
	}
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	starts := time.Now().UTC().Truncate(24 * time.Hour)
	if ts := cCtx.Timestamp("starts"); ts != nil {
		starts = *ts
	}
	season, err := l.matches.OpenSeason(cCtx.Context, name, starts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "%s\t%s\t%s\n", season.ID, season.Slug, season.StartsAt.Format("2006-01-02"))
	return nil
}

func closeSeason(cCtx *cli.Context) error {
	id := cCtx.Args().First()
	if id == "" {
		return errors.New("season id is required")
	}
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	return l.matches.CloseSeason(cCtx.Context, id)
}

func reconcile(cCtx *cli.Context) error {
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	n, err := l.reconciler.ReconcileOpenSeasons(cCtx.Context)
	fmt.Fprintf(cCtx.App.Writer, "reconciled %d season(s)\n", n)
	return err
}

func retry(cCtx *cli.Context) error {
	l, err := load(cCtx)
	if err != nil {
		return err
	}
	n, err := l.orchestrator.RetryDue(cCtx.Context, cCtx.Int("limit"))
	fmt.Fprintf(cCtx.App.Writer, "retried %d task(s)\n", n)
	return err
}
