package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/cmd/farmaguirre/cli"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/app"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard"
	dashboardhttp "github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard/http"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/kpi"
	kpihttp "github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/kpi/http"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/movement"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/observability"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/cache"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/db"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/jobs"
)

func main() {
	_ = godotenv.Load()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, logger, os.Args[2:]))
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	movementRepo := movement.NewRepository(pool)
	movementLedger := movement.NewBatchLedger(pool)
	movementService := movement.NewService(movementRepo, movementLedger, logger, cfg.MaxBatchRecords)
	movementHandler := movement.NewHandler(logger, movementService, metrics, cfg.MaxBatchBytes)

	dashboardCache := dashboard.NewCache(redisClient, dashboard.DefaultCacheTTL)
	dashboardRepo := dashboard.NewRepository(pool)
	dashboardService := dashboard.NewService(dashboardRepo, dashboardCache, logger)
	dashboardHandler := dashboardhttp.NewHandler(logger, dashboardService)

	kpiRepo := kpi.NewRepository(pool)
	kpiService := kpi.NewService(kpiRepo, dashboardCache, logger)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	kpiHandler := kpihttp.NewHandler(logger, kpiService, queue, kpiDefaultsFromConfig(cfg))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		MovementHandler:  movementHandler,
		KPIHandler:       kpiHandler,
		DashboardHandler: dashboardHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func kpiDefaultsFromConfig(cfg *app.Config) kpi.Params {
	defaults := kpi.DefaultParams(time.Time{}, time.Time{})
	defaults.ServiceLevel = cfg.ServiceLevel
	defaults.LeadTimeDays = cfg.LeadTimeDays
	defaults.ExcessThresholdDays = cfg.ExcessThreshold
	defaults.ShortageThresholdDays = cfg.ShortageThreshold
	return defaults
}

func runJobsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: farmaguirre jobs <stats|scheduled|recalc|run RUN_ID>")
		return 2
	}

	opsCLI, err := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := opsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "stats":
		stats, err := opsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		infos, err := opsCLI.ListScheduled(ctx, 20)
		if err != nil {
			logger.Error("list scheduled", slog.Any("error", err))
			return 1
		}
		for _, info := range infos {
			fmt.Printf("id=%s type=%s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
		}
	case "recalc":
		info, err := opsCLI.TriggerRecalc(ctx)
		if err != nil {
			logger.Error("trigger recalc", slog.Any("error", err))
			return 1
		}
		fmt.Printf("enqueued id=%s type=%s\n", info.ID, info.Type)
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: farmaguirre jobs run RUN_ID")
			return 2
		}
		runID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || runID <= 0 {
			fmt.Fprintln(os.Stderr, "run id must be a positive integer")
			return 2
		}
		info, err := opsCLI.TriggerRun(ctx, runID)
		if err != nil {
			logger.Error("trigger run", slog.Any("error", err), slog.Int64("run_id", runID))
			return 1
		}
		fmt.Printf("enqueued id=%s type=%s run_id=%d\n", info.ID, info.Type, runID)
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
	return 0
}
