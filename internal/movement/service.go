package movement

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	DailyWindow(ctx context.Context, start, end time.Time) ([]DailyAggregate, error)
}

// LedgerPort guards against ingesting the same batch twice and keeps the
// upload history.
type LedgerPort interface {
	Record(ctx context.Context, batchID uuid.UUID, source string, accepted int) error
	Forget(ctx context.Context, batchID uuid.UUID) error
	RecentBatches(ctx context.Context, limit int) ([]LedgerEntry, error)
}

// Service coordinates ingestion of normalized document lines.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	logger   *slog.Logger
	maxLines int
}

// NewService builds Service. A nil ledger disables duplicate-batch
// detection. maxLines caps a single batch; zero means the default of
// 100000.
func NewService(repo RepositoryPort, ledger LedgerPort, logger *slog.Logger, maxLines int) *Service {
	if maxLines <= 0 {
		maxLines = 100000
	}
	return &Service{repo: repo, ledger: ledger, logger: logger, maxLines: maxLines}
}

// IngestBatch normalizes, stores, and aggregates one batch of document
// lines. Unusable lines are dropped and counted, not fatal. The stored
// lines and the rebuilt daily window commit in a single transaction, so
// a failure leaves both tables as they were. A batch whose content
// fingerprint is already in the ledger returns ErrDuplicateBatch.
func (s *Service) IngestBatch(ctx context.Context, lines []Line, source string) (BatchSummary, error) {
	if len(lines) == 0 {
		return BatchSummary{}, ErrEmptyBatch
	}
	if len(lines) > s.maxLines {
		return BatchSummary{}, fmt.Errorf("%w: %d lines, limit %d", ErrBatchTooLarge, len(lines), s.maxLines)
	}

	normalized, drops := NormalizeLines(lines)
	if len(normalized) == 0 {
		return BatchSummary{Dropped: drops}, nil
	}

	start, end := lineWindow(normalized)
	summary := BatchSummary{
		BatchID:     batchFingerprint(normalized),
		Accepted:    len(normalized),
		Dropped:     drops,
		WindowStart: start,
		WindowEnd:   end,
	}

	claimed := false
	if s.ledger != nil {
		if err := s.ledger.Record(ctx, summary.BatchID, source, summary.Accepted); err != nil {
			return BatchSummary{}, err
		}
		claimed = true
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertLines(ctx, summary.BatchID, normalized); err != nil {
			return fmt.Errorf("movement: insert lines: %w", err)
		}
		records, err := tx.WindowRecords(ctx, start, end)
		if err != nil {
			return fmt.Errorf("movement: load window records: %w", err)
		}
		rows, aggDrops := Aggregate(records)
		if aggDrops.Total() > 0 {
			// Stored lines always carry a key and day; anything counted
			// here points at a bug upstream of this transaction.
			return fmt.Errorf("movement: window rebuild dropped %d stored records", aggDrops.Total())
		}
		if err := tx.ReplaceDailyWindow(ctx, start, end, rows); err != nil {
			return fmt.Errorf("movement: replace daily window: %w", err)
		}
		return nil
	})
	if err != nil {
		if claimed {
			if forgetErr := s.ledger.Forget(ctx, summary.BatchID); forgetErr != nil && s.logger != nil {
				s.logger.Warn("release batch fingerprint",
					slog.String("batch_id", summary.BatchID.String()), slog.Any("error", forgetErr))
			}
		}
		return BatchSummary{}, err
	}

	if s.logger != nil {
		s.logger.Info("movement batch ingested",
			slog.String("batch_id", summary.BatchID.String()),
			slog.String("source", source),
			slog.Int("accepted", summary.Accepted),
			slog.Int("dropped", summary.Dropped.Total()),
			slog.Time("window_start", summary.WindowStart),
			slog.Time("window_end", summary.WindowEnd))
	}
	return summary, nil
}

// DailyWindow exposes stored daily aggregates for inspection.
func (s *Service) DailyWindow(ctx context.Context, start, end time.Time) ([]DailyAggregate, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("movement: window end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return s.repo.DailyWindow(ctx, DayOf(start), DayOf(end))
}

// RecentBatches lists the newest ingested batches.
func (s *Service) RecentBatches(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if s.ledger == nil {
		return []LedgerEntry{}, nil
	}
	return s.ledger.RecentBatches(ctx, limit)
}

func lineWindow(lines []NormalizedLine) (time.Time, time.Time) {
	start, end := lines[0].Day, lines[0].Day
	for _, l := range lines[1:] {
		if l.Day.Before(start) {
			start = l.Day
		}
		if l.Day.After(end) {
			end = l.Day
		}
	}
	return start, end
}

// batchFingerprint derives a stable id from the batch content, so the
// same file submitted twice is traceable to one identity.
func batchFingerprint(lines []NormalizedLine) uuid.UUID {
	var buf bytes.Buffer
	for _, l := range lines {
		fmt.Fprintf(&buf, "%s|%s|%s|%s|%g|%g\n",
			l.DocKind, l.Day.Format("2006-01-02"), l.ProductKey, l.Cabys, l.Qty, l.UnitPrice)
	}
	return uuid.NewSHA1(uuid.Nil, buf.Bytes())
}
