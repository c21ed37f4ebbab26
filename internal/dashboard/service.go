package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

var readGroup singleflight.Group

// RepositoryPort abstracts the persisted KPI reads the dashboard needs.
type RepositoryPort interface {
	LatestWindow(ctx context.Context) (Window, error)
	Summary(ctx context.Context, w Window) (Summary, error)
	Products(ctx context.Context, w Window, f Filter) ([]ProductRow, error)
	Matrix(ctx context.Context, w Window) ([]MatrixCell, error)
	TopByInventoryValue(ctx context.Context, w Window, q TopQuery) ([]ProductRow, error)
}

// Service serves dashboard read models, caching the window-level
// aggregates and collapsing concurrent rebuilds of the same key.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the dashboard service. Cache may be nil, in
// which case every read goes to the repository.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ResolveWindow picks the analysis window for a request: explicit start
// and end when given, otherwise the latest successful run's window.
func (s *Service) ResolveWindow(ctx context.Context, start, end string) (Window, error) {
	if start == "" && end == "" {
		return s.repo.LatestWindow(ctx)
	}
	if start == "" || end == "" {
		return Window{}, fmt.Errorf("%w: start and end must be provided together", ErrBadFilter)
	}
	from, err := time.ParseInLocation(dateLayout, start, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start must be formatted YYYY-MM-DD", ErrBadFilter)
	}
	to, err := time.ParseInLocation(dateLayout, end, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end must be formatted YYYY-MM-DD", ErrBadFilter)
	}
	if to.Before(from) {
		return Window{}, fmt.Errorf("%w: end must not precede start", ErrBadFilter)
	}
	return Window{StartDate: from, EndDate: to}, nil
}

// Summary returns the window's headline figures.
func (s *Service) Summary(ctx context.Context, w Window) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary", w.Key())
	if err != nil {
		return Summary{}, err
	}
	value, err, shared := singleflightFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out Summary
		if err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.loadSummary(ctx, w)
		}); err != nil {
			return Summary{}, err
		}
		return out, nil
	})
	if err != nil {
		return Summary{}, err
	}
	if shared {
		s.logger.Debug("dashboard summary shared across concurrent requests", slog.String("key", key))
	}
	return value.(Summary), nil
}

// Matrix returns the ABC/XYZ distribution of the window.
func (s *Service) Matrix(ctx context.Context, w Window) ([]MatrixCell, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "matrix", w.Key())
	if err != nil {
		return nil, err
	}
	value, err, _ := singleflightFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out []MatrixCell
		if err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.loadMatrix(ctx, w)
		}); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]MatrixCell), nil
}

// Products lists the window's rows honoring the search and class
// filters. Listings are not cached: the filter space is too wide for
// version-keyed entries to pay off.
func (s *Service) Products(ctx context.Context, w Window, f Filter) ([]ProductRow, error) {
	normalized, err := f.normalized()
	if err != nil {
		return nil, err
	}
	return s.repo.Products(ctx, w, normalized)
}

// TopByInventoryValue returns the products holding the most capital,
// across the window or within one classification cell.
func (s *Service) TopByInventoryValue(ctx context.Context, w Window, q TopQuery) ([]ProductRow, error) {
	normalized, err := q.normalized()
	if err != nil {
		return nil, err
	}
	return s.repo.TopByInventoryValue(ctx, w, normalized)
}

func (s *Service) loadSummary(ctx context.Context, w Window) (Summary, error) {
	sum, err := s.repo.Summary(ctx, w)
	if err != nil {
		return Summary{}, err
	}
	if sum.TotalProducts == 0 {
		return Summary{}, ErrNoResults
	}
	sum.StartDate = w.StartDate.Format(dateLayout)
	sum.EndDate = w.EndDate.Format(dateLayout)
	sum.ExcessPercent = float64(sum.ExcessCount) / float64(sum.TotalProducts) * 100
	sum.ShortagePercent = float64(sum.ShortageCount) / float64(sum.TotalProducts) * 100
	return sum, nil
}

func (s *Service) loadMatrix(ctx context.Context, w Window) ([]MatrixCell, error) {
	cells, err := s.repo.Matrix(ctx, w)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, ErrNoResults
	}
	var total float64
	for _, cell := range cells {
		total += cell.InventoryValue
	}
	if total > 0 {
		for i := range cells {
			cells[i].ValueShare = cells[i].InventoryValue / total * 100
		}
	}
	return cells, nil
}

func singleflightFetch(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	resultChan := readGroup.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
