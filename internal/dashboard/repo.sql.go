package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads persisted KPI rows straight from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires the dashboard repository to a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `product_key, COALESCE(cabys, ''), total_in, total_out, final_stock,
avg_cost, inventory_value, rotation, dio, coverage_days, safety_stock, reorder_point,
abc_class, xyz_class, is_excess, is_shortage`

// LatestWindow returns the window of the most recently finished
// successful KPI run.
func (r *Repository) LatestWindow(ctx context.Context) (Window, error) {
	var w Window
	err := r.pool.QueryRow(ctx, `SELECT start_date, end_date FROM kpi_runs
WHERE status = 'SUCCEEDED'
ORDER BY finished_at DESC NULLS LAST, id DESC
LIMIT 1`).Scan(&w.StartDate, &w.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Window{}, ErrNoResults
	}
	if err != nil {
		return Window{}, fmt.Errorf("dashboard: latest window: %w", err)
	}
	return w, nil
}

// Summary aggregates the window's rows into counts, filtered averages
// and the total inventory value. Shares and window labels are derived
// by the service. The rotation and DIO averages run in SQL: the result
// is a display aggregate over already deterministic rows, not an input
// to any stored metric.
func (r *Repository) Summary(ctx context.Context, w Window) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT
COUNT(*),
COUNT(*) FILTER (WHERE is_excess),
COUNT(*) FILTER (WHERE is_shortage),
COALESCE(AVG(rotation) FILTER (WHERE rotation > 0 AND rotation <= 1000), 0),
COALESCE(AVG(dio) FILTER (WHERE dio > 0 AND dio < 999), 0),
COALESCE(SUM(inventory_value), 0)
FROM product_kpis
WHERE start_date = $1 AND end_date = $2`, w.StartDate, w.EndDate).
		Scan(&s.TotalProducts, &s.ExcessCount, &s.ShortageCount, &s.AvgRotation, &s.AvgDIO, &s.TotalInventoryValue)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: summary: %w", err)
	}
	return s, nil
}

// Products lists the window's rows ordered by sales value, optionally
// narrowed by a search term and class filters.
func (r *Repository) Products(ctx context.Context, w Window, f Filter) ([]ProductRow, error) {
	query := `SELECT ` + productColumns + ` FROM product_kpis WHERE start_date = $1 AND end_date = $2`
	args := []interface{}{w.StartDate, w.EndDate}
	argCount := 2

	if f.Search != "" {
		argCount++
		query += ` AND (product_key ILIKE $` + strconv.Itoa(argCount) + ` OR cabys ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+f.Search+"%")
	}
	if f.ABCClass != "" {
		argCount++
		query += ` AND abc_class = $` + strconv.Itoa(argCount)
		args = append(args, f.ABCClass)
	}
	if f.XYZClass != "" {
		argCount++
		query += ` AND xyz_class = $` + strconv.Itoa(argCount)
		args = append(args, f.XYZClass)
	}

	query += ` ORDER BY total_out * avg_cost DESC, product_key ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, f.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list products: %w", err)
	}
	defer rows.Close()
	return scanProductRows(rows)
}

// Matrix counts products and sums inventory value per ABC/XYZ cell.
func (r *Repository) Matrix(ctx context.Context, w Window) ([]MatrixCell, error) {
	rows, err := r.pool.Query(ctx, `SELECT abc_class, xyz_class, COUNT(*), COALESCE(SUM(inventory_value), 0)
FROM product_kpis
WHERE start_date = $1 AND end_date = $2
GROUP BY abc_class, xyz_class
ORDER BY abc_class ASC, xyz_class ASC`, w.StartDate, w.EndDate)
	if err != nil {
		return nil, fmt.Errorf("dashboard: matrix: %w", err)
	}
	defer rows.Close()

	var cells []MatrixCell
	for rows.Next() {
		var cell MatrixCell
		if err := rows.Scan(&cell.ABCClass, &cell.XYZClass, &cell.ProductCount, &cell.InventoryValue); err != nil {
			return nil, fmt.Errorf("dashboard: scan matrix cell: %w", err)
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: matrix rows: %w", err)
	}
	return cells, nil
}

// TopByInventoryValue returns the products tying up the most capital,
// optionally restricted to one ABC/XYZ cell.
func (r *Repository) TopByInventoryValue(ctx context.Context, w Window, q TopQuery) ([]ProductRow, error) {
	query := `SELECT ` + productColumns + ` FROM product_kpis WHERE start_date = $1 AND end_date = $2`
	args := []interface{}{w.StartDate, w.EndDate}
	argCount := 2

	if q.ABCClass != "" {
		argCount++
		query += ` AND abc_class = $` + strconv.Itoa(argCount)
		args = append(args, q.ABCClass)
	}
	if q.XYZClass != "" {
		argCount++
		query += ` AND xyz_class = $` + strconv.Itoa(argCount)
		args = append(args, q.XYZClass)
	}

	query += ` ORDER BY inventory_value DESC, product_key ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dashboard: top products: %w", err)
	}
	defer rows.Close()
	return scanProductRows(rows)
}

func scanProductRows(rows pgx.Rows) ([]ProductRow, error) {
	var out []ProductRow
	for rows.Next() {
		var p ProductRow
		if err := rows.Scan(
			&p.ProductKey, &p.Cabys, &p.TotalIn, &p.TotalOut, &p.FinalStock,
			&p.AvgCost, &p.InventoryValue, &p.Rotation, &p.DIO, &p.CoverageDays,
			&p.SafetyStock, &p.ReorderPoint,
			&p.ABCClass, &p.XYZClass, &p.IsExcess, &p.IsShortage,
		); err != nil {
			return nil, fmt.Errorf("dashboard: scan product row: %w", err)
		}
		p.NetChange = p.TotalIn - p.TotalOut
		p.SalesValue = p.TotalOut * p.AvgCost
		p.Status = statusFor(p.IsExcess, p.IsShortage)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: product rows: %w", err)
	}
	return out, nil
}
