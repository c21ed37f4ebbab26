package kpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	InsertRun(ctx context.Context, run Run) (Run, error)
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error)
	MarkRunRunning(ctx context.Context, id int64) error
	MarkRunFinished(ctx context.Context, id int64, status RunStatus, errText string, productCount int) error
	LatestSucceededWindow(ctx context.Context) (time.Time, time.Time, error)

	DiscoverProducts(ctx context.Context, start, end time.Time) ([]string, error)
	MovementSeries(ctx context.Context, productKey string, start, end time.Time) ([]MovementPoint, error)
	DisplayCabys(ctx context.Context, productKey string, start, end time.Time) (string, error)
	PurchaseCosts(ctx context.Context, productKey string) ([]float64, error)
	SalePrices(ctx context.Context, productKey string) ([]float64, error)
	ReplaceWindowResults(ctx context.Context, start, end time.Time, metrics []ProductMetrics) error
}

// CachePort invalidates derived read caches after a successful run.
type CachePort interface {
	Bump(ctx context.Context) error
}

// Service coordinates KPI computation runs.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the service.
func NewService(repo RepositoryPort, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// RequestRun validates parameters and stores a pending run. A second
// request for a window that already has a queued or running computation
// returns ErrRunActive.
func (s *Service) RequestRun(ctx context.Context, params Params, requestedBy string) (Run, error) {
	if err := params.Validate(); err != nil {
		return Run{}, err
	}
	run := Run{
		Fingerprint: params.Fingerprint(),
		Params:      params,
		Status:      RunPending,
		RequestedBy: requestedBy,
	}
	return s.repo.InsertRun(ctx, run)
}

// AbandonRun marks a pending run FAILED without executing it. Used when
// the window's queue slot is held by a task that is still processing.
func (s *Service) AbandonRun(ctx context.Context, id int64, reason string) error {
	return s.repo.MarkRunFinished(ctx, id, RunFailed, reason, 0)
}

// GetRun returns run metadata by id.
func (s *Service) GetRun(ctx context.Context, id int64) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the run history, newest first.
func (s *Service) ListRuns(ctx context.Context, page, perPage int) ([]Run, shared.Pagination, error) {
	pagination := shared.NewPagination(page, perPage, 0)
	runs, total, err := s.repo.ListRuns(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return runs, shared.NewPagination(page, perPage, total), nil
}

// TrailingWindow returns the window of the most recent succeeded run, or
// a window of fallbackDays ending today when nothing has succeeded yet.
func (s *Service) TrailingWindow(ctx context.Context, fallbackDays int) (time.Time, time.Time, error) {
	start, end, err := s.repo.LatestSucceededWindow(ctx)
	if err == nil {
		return start, end, nil
	}
	if !errors.Is(err, ErrRunNotFound) {
		return time.Time{}, time.Time{}, err
	}
	if fallbackDays <= 0 {
		fallbackDays = 90
	}
	now := s.now().UTC()
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start = end.AddDate(0, 0, -(fallbackDays - 1))
	return start, end, nil
}

// ExecuteRun performs one queued computation to completion. Results for
// the window are replaced only after the whole batch computes; a failure
// anywhere leaves the prior result set untouched and marks the run
// FAILED. Re-delivery of an already succeeded run is a no-op.
func (s *Service) ExecuteRun(ctx context.Context, id int64) (Run, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if run.Status == RunSucceeded {
		return run, nil
	}
	if err := s.repo.MarkRunRunning(ctx, id); err != nil {
		return Run{}, err
	}
	started := s.now()

	metrics, err := s.CalculateWindow(ctx, run.Params)
	if err != nil {
		_ = s.repo.MarkRunFinished(ctx, id, RunFailed, err.Error(), 0)
		return Run{}, err
	}
	if err := s.repo.ReplaceWindowResults(ctx, run.Params.StartDate, run.Params.EndDate, metrics); err != nil {
		_ = s.repo.MarkRunFinished(ctx, id, RunFailed, err.Error(), 0)
		return Run{}, fmt.Errorf("kpi: replace window results: %w", err)
	}
	if err := s.repo.MarkRunFinished(ctx, id, RunSucceeded, "", len(metrics)); err != nil {
		return Run{}, err
	}

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
	if s.logger != nil {
		s.logger.Info("kpi run finished",
			slog.Int64("run_id", id),
			slog.Time("window_start", run.Params.StartDate),
			slog.Time("window_end", run.Params.EndDate),
			slog.Int("products", len(metrics)),
			slog.Duration("elapsed", s.now().Sub(started)))
	}
	return s.repo.GetRun(ctx, id)
}

// CalculateWindow computes the full metric set for a window, in
// discovery order (ascending product key). Products without movement
// rows in the window never appear. Any per-product failure aborts the
// whole batch.
func (s *Service) CalculateWindow(ctx context.Context, params Params) ([]ProductMetrics, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	keys, err := s.repo.DiscoverProducts(ctx, params.StartDate, params.EndDate)
	if err != nil {
		return nil, fmt.Errorf("kpi: discover products: %w", err)
	}

	periodDays := params.PeriodDays()
	collected := make([]ProductMetrics, 0, len(keys))
	for _, key := range keys {
		series, err := s.repo.MovementSeries(ctx, key, params.StartDate, params.EndDate)
		if err != nil {
			return nil, fmt.Errorf("kpi: movement series for %q: %w", key, err)
		}
		if len(series) == 0 {
			continue
		}
		cabys, err := s.repo.DisplayCabys(ctx, key, params.StartDate, params.EndDate)
		if err != nil {
			return nil, fmt.Errorf("kpi: display cabys for %q: %w", key, err)
		}
		costs, err := s.repo.PurchaseCosts(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("kpi: purchase costs for %q: %w", key, err)
		}
		prices, err := s.repo.SalePrices(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("kpi: sale prices for %q: %w", key, err)
		}

		// Historical purchase costs collapse into one averaged sample;
		// the engine handles richer sample sets the same way.
		var samples []CostSample
		if len(costs) > 0 {
			samples = []CostSample{{Qty: 1, UnitPrice: Mean(costs)}}
		}

		stock := ProjectStock(series)
		fin := ComputeFinancials(samples, stock, periodDays)
		dem := ComputeDemand(series, stock, params)
		s.logRotationSignals(key, fin.Rotation)

		collected = append(collected, ProductMetrics{
			ProductKey:             key,
			Cabys:                  cabys,
			StartDate:              params.StartDate,
			EndDate:                params.EndDate,
			TotalIn:                stock.TotalIn,
			TotalOut:               stock.TotalOut,
			AvgStock:               stock.AvgStock,
			FinalStock:             stock.FinalStock,
			AvgCost:                fin.AvgCost,
			AvgPrice:               Mean(prices),
			COGS:                   fin.COGS,
			InventoryValue:         fin.InventoryValue,
			Rotation:               fin.Rotation,
			DIO:                    fin.DIO,
			AvgDailyDemand:         dem.AvgDailyDemand,
			StdDailyDemand:         dem.StdDailyDemand,
			CoefficientOfVariation: dem.CoefficientOfVariation,
			SafetyStock:            dem.SafetyStock,
			ReorderPoint:           dem.ReorderPoint,
			CoverageDays:           dem.CoverageDays,
		})
	}

	return ApplyClassification(collected, params), nil
}

func (s *Service) logRotationSignals(productKey string, rotation float64) {
	if s.logger == nil {
		return
	}
	if rotation > 50 {
		s.logger.Warn("rotation suspiciously high",
			slog.String("product_key", productKey), slog.Float64("rotation", rotation))
		return
	}
	if rotation > 0 && rotation < 0.1 {
		s.logger.Info("rotation very low",
			slog.String("product_key", productKey), slog.Float64("rotation", rotation))
	}
}
