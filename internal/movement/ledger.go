package movement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateBatch indicates a batch with this content fingerprint was
// already ingested.
var ErrDuplicateBatch = errors.New("movement: batch already ingested")

// BatchLedger records every processed batch fingerprint, so resubmitting
// the same file cannot double the stored lines. Entries double as the
// upload history for operators.
type BatchLedger struct {
	pool *pgxpool.Pool
}

// NewBatchLedger constructs the ledger.
func NewBatchLedger(pool *pgxpool.Pool) *BatchLedger {
	return &BatchLedger{pool: pool}
}

// Record claims the batch fingerprint. A second claim for the same
// fingerprint returns ErrDuplicateBatch.
func (l *BatchLedger) Record(ctx context.Context, batchID uuid.UUID, source string, accepted int) error {
	if l == nil {
		return errors.New("movement: batch ledger not initialised")
	}
	_, err := l.pool.Exec(ctx, `INSERT INTO ingest_batches (batch_id, source, accepted, created_at)
VALUES ($1, $2, $3, $4)`, batchID, source, accepted, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateBatch
		}
		return err
	}
	return nil
}

// Forget releases a claimed fingerprint, used to roll back a batch whose
// ingest transaction failed.
func (l *BatchLedger) Forget(ctx context.Context, batchID uuid.UUID) error {
	if l == nil {
		return nil
	}
	_, err := l.pool.Exec(ctx, `DELETE FROM ingest_batches WHERE batch_id = $1`, batchID)
	return err
}

// RecentBatches lists the newest ledger entries for upload history views.
func (l *BatchLedger) RecentBatches(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if l == nil {
		return nil, errors.New("movement: batch ledger not initialised")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `SELECT batch_id, source, accepted, created_at
FROM ingest_batches
ORDER BY created_at DESC, batch_id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		if err := rows.Scan(&entry.BatchID, &entry.Source, &entry.Accepted, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// LedgerEntry is one recorded ingest batch.
type LedgerEntry struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Source    string    `json:"source"`
	Accepted  int       `json:"accepted"`
	CreatedAt time.Time `json:"created_at"`
}
