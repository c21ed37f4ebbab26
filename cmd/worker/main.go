package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/app"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/kpi"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/cache"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/db"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/jobs"
)

func main() {
	_ = godotenv.Load()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	dashboardCache := dashboard.NewCache(redisClient, dashboard.DefaultCacheTTL)
	kpiRepo := kpi.NewRepository(pool)
	kpiService := kpi.NewService(kpiRepo, dashboardCache, logger)
	runJob := kpi.NewRunJob(kpiService, logger, nil)

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

	recalcJob := kpi.NewRecalcJob(kpiService, queue, logger, kpiDefaultsFromConfig(cfg), cfg.RecalcWindowDays)

	var cron []jobs.CronRegistration
	if cfg.RecalcCronSpec != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.RecalcCronSpec,
			Task:    jobs.NewKPIRecalcTask(),
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeKPIRun, Handler: runJob.Handle},
			{Type: jobs.TaskTypeKPIRecalc, Handler: recalcJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
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
