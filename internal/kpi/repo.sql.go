package kpi

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists runs and computed metrics in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// activeRunConstraint is the partial unique index that admits one queued
// or running computation per window fingerprint.
const activeRunConstraint = "kpi_runs_active_fingerprint_idx"

// InsertRun stores a pending run. Violating the active-run index maps to
// ErrRunActive.
func (r *Repository) InsertRun(ctx context.Context, run Run) (Run, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO kpi_runs
(fingerprint, start_date, end_date, service_level, lead_time_days, excess_threshold_days, shortage_threshold_days, xyz_low_cv, xyz_high_cv, status, requested_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
RETURNING id, created_at`,
		run.Fingerprint, run.Params.StartDate, run.Params.EndDate,
		run.Params.ServiceLevel, run.Params.LeadTimeDays,
		run.Params.ExcessThresholdDays, run.Params.ShortageThresholdDays,
		run.Params.XYZLowCV, run.Params.XYZHighCV,
		string(run.Status), run.RequestedBy,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == activeRunConstraint {
			return Run{}, ErrRunActive
		}
		return Run{}, err
	}
	return run, nil
}

// GetRun loads run metadata by id.
func (r *Repository) GetRun(ctx context.Context, id int64) (Run, error) {
	var run Run
	err := r.pool.QueryRow(ctx, `SELECT id, fingerprint, start_date, end_date, service_level, lead_time_days, excess_threshold_days, shortage_threshold_days, xyz_low_cv, xyz_high_cv, status, COALESCE(error, ''), product_count, COALESCE(requested_by, ''), created_at, started_at, finished_at
FROM kpi_runs WHERE id=$1`, id).Scan(
		&run.ID, &run.Fingerprint, &run.Params.StartDate, &run.Params.EndDate,
		&run.Params.ServiceLevel, &run.Params.LeadTimeDays,
		&run.Params.ExcessThresholdDays, &run.Params.ShortageThresholdDays,
		&run.Params.XYZLowCV, &run.Params.XYZHighCV,
		&run.Status, &run.Error, &run.ProductCount, &run.RequestedBy,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first plus the total count.
func (r *Repository) ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kpi_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, fingerprint, start_date, end_date, service_level, lead_time_days, excess_threshold_days, shortage_threshold_days, xyz_low_cv, xyz_high_cv, status, COALESCE(error, ''), product_count, COALESCE(requested_by, ''), created_at, started_at, finished_at
FROM kpi_runs
ORDER BY id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Fingerprint, &run.Params.StartDate, &run.Params.EndDate,
			&run.Params.ServiceLevel, &run.Params.LeadTimeDays,
			&run.Params.ExcessThresholdDays, &run.Params.ShortageThresholdDays,
			&run.Params.XYZLowCV, &run.Params.XYZHighCV,
			&run.Status, &run.Error, &run.ProductCount, &run.RequestedBy,
			&run.CreatedAt, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// MarkRunRunning transitions a run to RUNNING and stamps the start.
func (r *Repository) MarkRunRunning(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE kpi_runs SET status=$2, error='', started_at=NOW() WHERE id=$1`,
		id, string(RunRunning))
	return err
}

// MarkRunFinished records the terminal status of a run.
func (r *Repository) MarkRunFinished(ctx context.Context, id int64, status RunStatus, errText string, productCount int) error {
	_, err := r.pool.Exec(ctx, `UPDATE kpi_runs SET status=$2, error=$3, product_count=$4, finished_at=NOW() WHERE id=$1`,
		id, string(status), errText, productCount)
	return err
}

// LatestSucceededWindow returns the window of the most recent succeeded
// run.
func (r *Repository) LatestSucceededWindow(ctx context.Context) (time.Time, time.Time, error) {
	var start, end time.Time
	err := r.pool.QueryRow(ctx, `SELECT start_date, end_date FROM kpi_runs
WHERE status=$1
ORDER BY finished_at DESC NULLS LAST, id DESC
LIMIT 1`, string(RunSucceeded)).Scan(&start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, time.Time{}, ErrRunNotFound
		}
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// DiscoverProducts enumerates product keys with nonzero movement in the
// window, ascending.
func (r *Repository) DiscoverProducts(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_key FROM daily_movements
WHERE day BETWEEN $1 AND $2 AND (qty_in > 0 OR qty_out > 0) AND product_key <> ''
ORDER BY product_key ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// MovementSeries loads one product's daily aggregates inside the window
// in the fold order the engine expects.
func (r *Repository) MovementSeries(ctx context.Context, productKey string, start, end time.Time) ([]MovementPoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT day, qty_in, qty_out FROM daily_movements
WHERE product_key=$1 AND day BETWEEN $2 AND $3
ORDER BY day ASC, qty_in ASC, qty_out ASC`, productKey, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	series := []MovementPoint{}
	for rows.Next() {
		var p MovementPoint
		if err := rows.Scan(&p.Day, &p.QtyIn, &p.QtyOut); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

// DisplayCabys returns the first non-empty cabys seen for the product in
// the window, or "" when none exists.
func (r *Repository) DisplayCabys(ctx context.Context, productKey string, start, end time.Time) (string, error) {
	var cabys string
	err := r.pool.QueryRow(ctx, `SELECT cabys FROM daily_movements
WHERE product_key=$1 AND day BETWEEN $2 AND $3 AND cabys IS NOT NULL AND cabys <> ''
ORDER BY day ASC, cabys ASC
LIMIT 1`, productKey, start, end).Scan(&cabys)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return cabys, nil
}

// PurchaseCosts returns every positive purchase unit cost in the
// product's whole history, in a fixed order so averaging folds
// identically across runs.
func (r *Repository) PurchaseCosts(ctx context.Context, productKey string) ([]float64, error) {
	return r.priceColumn(ctx, productKey, DocKindPurchase)
}

// SalePrices returns every positive sale unit price in the product's
// whole history, in the same fixed order.
func (r *Repository) SalePrices(ctx context.Context, productKey string) ([]float64, error) {
	return r.priceColumn(ctx, productKey, DocKindSale)
}

func (r *Repository) priceColumn(ctx context.Context, productKey string, kind string) ([]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT unit_price FROM movement_lines
WHERE product_key=$1 AND doc_kind=$2 AND unit_price > 0
ORDER BY day ASC, unit_price ASC, id ASC`, productKey, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// ReplaceWindowResults swaps the window's metric rows inside one
// repeatable-read transaction: compute happened fully in memory before
// this call, and the delete never survives a failed insert.
func (r *Repository) ReplaceWindowResults(ctx context.Context, start, end time.Time, metrics []ProductMetrics) error {
	if r == nil {
		return errors.New("kpi repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM product_kpis WHERE start_date=$1 AND end_date=$2`, start, end); err != nil {
		return err
	}
	for _, m := range metrics {
		if _, err := tx.Exec(ctx, `INSERT INTO product_kpis
(product_key, cabys, start_date, end_date, total_in, total_out, avg_stock, final_stock, avg_cost, avg_price, cogs, inventory_value, rotation, dio, avg_daily_demand, std_daily_demand, coefficient_of_variation, safety_stock, reorder_point, coverage_days, abc_class, xyz_class, is_excess, is_shortage)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
			m.ProductKey, nullString(m.Cabys), m.StartDate, m.EndDate,
			m.TotalIn, m.TotalOut, m.AvgStock, m.FinalStock,
			m.AvgCost, m.AvgPrice, m.COGS, m.InventoryValue,
			m.Rotation, m.DIO,
			m.AvgDailyDemand, m.StdDailyDemand, m.CoefficientOfVariation,
			m.SafetyStock, m.ReorderPoint, m.CoverageDays,
			m.ABCClass, m.XYZClass, m.IsExcess, m.IsShortage); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DocKind values mirrored from the ingestion tables.
const (
	DocKindPurchase = "PURCHASE"
	DocKindSale     = "SALE"
)

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
