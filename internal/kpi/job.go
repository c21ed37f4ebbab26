package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/observability"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/jobs"
)

// RunJob processes queued KPI computations.
type RunJob struct {
	service *Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunJob constructs a job handler.
func NewRunJob(service *Service, logger *slog.Logger, metrics *observability.Metrics) *RunJob {
	return &RunJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RunJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.KPIRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID == 0 {
		return asynq.SkipRetry
	}

	started := time.Now()
	run, err := j.service.ExecuteRun(ctx, payload.RunID)
	if err != nil {
		j.metrics.ObserveRun("failed", time.Since(started), 0)
		if j.logger != nil {
			j.logger.Error("kpi run", slog.Int64("run_id", payload.RunID), slog.Any("error", err))
		}
		return err
	}
	j.metrics.ObserveRun("succeeded", time.Since(started), run.ProductCount)
	return nil
}

// RecalcJob refreshes the most recent window when the nightly trigger
// fires, so late ingestion shows up on dashboards without a manual run.
type RecalcJob struct {
	service      *Service
	queue        *jobs.Client
	logger       *slog.Logger
	defaults     Params
	fallbackDays int
}

// NewRecalcJob constructs the nightly recompute handler. defaults carries
// the configured thresholds; its window fields are overwritten per fire.
func NewRecalcJob(service *Service, queue *jobs.Client, logger *slog.Logger, defaults Params, fallbackDays int) *RecalcJob {
	return &RecalcJob{service: service, queue: queue, logger: logger, defaults: defaults, fallbackDays: fallbackDays}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RecalcJob) Handle(ctx context.Context, task *asynq.Task) error {
	start, end, err := j.service.TrailingWindow(ctx, j.fallbackDays)
	if err != nil {
		return err
	}
	params := j.defaults
	params.StartDate = start
	params.EndDate = end

	run, err := j.service.RequestRun(ctx, params, "cron")
	if err != nil {
		if errors.Is(err, ErrRunActive) {
			if j.logger != nil {
				j.logger.Info("kpi recalc skipped, window already active",
					slog.Time("start_date", start), slog.Time("end_date", end))
			}
			return nil
		}
		return err
	}

	if _, err := j.queue.EnqueueKPIRun(ctx, jobs.KPIRunPayload{RunID: run.ID}, run.Fingerprint.String()); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			_ = j.service.AbandonRun(ctx, run.ID, "window task already queued")
			return nil
		}
		return err
	}
	return nil
}
