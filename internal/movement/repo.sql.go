package movement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists movement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// Line storage and the daily rebuild share one transaction so a failed
// batch leaves both tables untouched.
type TxRepository interface {
	InsertLines(ctx context.Context, batchID uuid.UUID, lines []NormalizedLine) error
	WindowRecords(ctx context.Context, start, end time.Time) ([]Record, error)
	ReplaceDailyWindow(ctx context.Context, start, end time.Time, rows []DailyAggregate) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("movement repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// DailyWindow returns the stored daily aggregates inside the window,
// ordered by (day, product_key).
func (r *Repository) DailyWindow(ctx context.Context, start, end time.Time) ([]DailyAggregate, error) {
	if r == nil {
		return nil, errors.New("movement repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT day, product_key, COALESCE(cabys, ''), qty_in, qty_out
FROM daily_movements
WHERE day BETWEEN $1 AND $2
ORDER BY day ASC, product_key ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyAggregate{}
	for rows.Next() {
		var agg DailyAggregate
		if err := rows.Scan(&agg.Day, &agg.ProductKey, &agg.Cabys, &agg.QtyIn, &agg.QtyOut); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *txRepository) InsertLines(ctx context.Context, batchID uuid.UUID, lines []NormalizedLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO movement_lines (doc_kind, day, product_key, cabys, qty, unit_price, batch_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`, string(line.DocKind), line.Day, line.ProductKey, nullString(line.Cabys), line.Qty, line.UnitPrice, batchID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) WindowRecords(ctx context.Context, start, end time.Time) ([]Record, error) {
	rows, err := r.tx.Query(ctx, `SELECT day, product_key, COALESCE(cabys, ''),
CASE WHEN doc_kind = 'PURCHASE' THEN qty ELSE 0 END,
CASE WHEN doc_kind = 'SALE' THEN qty ELSE 0 END,
unit_price
FROM movement_lines
WHERE day BETWEEN $1 AND $2`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Day, &rec.ProductKey, &rec.Cabys, &rec.QtyIn, &rec.QtyOut, &rec.UnitPrice); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *txRepository) ReplaceDailyWindow(ctx context.Context, start, end time.Time, rows []DailyAggregate) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM daily_movements WHERE day BETWEEN $1 AND $2`, start, end); err != nil {
		return err
	}
	for _, agg := range rows {
		if _, err := r.tx.Exec(ctx, `INSERT INTO daily_movements (day, product_key, cabys, qty_in, qty_out)
VALUES ($1,$2,$3,$4,$5)`, agg.Day, agg.ProductKey, nullString(agg.Cabys), agg.QtyIn, agg.QtyOut); err != nil {
			return err
		}
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
