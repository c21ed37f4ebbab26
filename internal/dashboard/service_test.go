package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRepo struct {
	window       Window
	windowErr    error
	windowCalls  int
	summaryRow   Summary
	summaryErr   error
	summaryCalls int
	products     []ProductRow
	productsErr  error
	productCalls int
	lastFilter   Filter
	cells        []MatrixCell
	matrixErr    error
	matrixCalls  int
	topRows      []ProductRow
	topCalls     int
	lastTop      TopQuery
}

func (m *mockRepo) LatestWindow(ctx context.Context) (Window, error) {
	m.windowCalls++
	return m.window, m.windowErr
}

func (m *mockRepo) Summary(ctx context.Context, w Window) (Summary, error) {
	m.summaryCalls++
	return m.summaryRow, m.summaryErr
}

func (m *mockRepo) Products(ctx context.Context, w Window, f Filter) ([]ProductRow, error) {
	m.productCalls++
	m.lastFilter = f
	return m.products, m.productsErr
}

func (m *mockRepo) Matrix(ctx context.Context, w Window) ([]MatrixCell, error) {
	m.matrixCalls++
	return m.cells, m.matrixErr
}

func (m *mockRepo) TopByInventoryValue(ctx context.Context, w Window, q TopQuery) ([]ProductRow, error) {
	m.topCalls++
	m.lastTop = q
	return m.topRows, nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache, nil)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func januaryWindow() Window {
	return Window{
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestSummaryDerivesSharesAndCaches(t *testing.T) {
	repo := &mockRepo{
		summaryRow: Summary{
			TotalProducts:       8,
			ExcessCount:         2,
			ShortageCount:       1,
			AvgRotation:         1.5,
			AvgDIO:              30,
			TotalInventoryValue: 1234.5,
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	summary, err := svc.Summary(ctx, januaryWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.StartDate != "2025-01-01" || summary.EndDate != "2025-01-31" {
		t.Fatalf("unexpected window labels %q..%q", summary.StartDate, summary.EndDate)
	}
	if summary.ExcessPercent != 25 {
		t.Fatalf("expected excess percent 25 got %.2f", summary.ExcessPercent)
	}
	if summary.ShortagePercent != 12.5 {
		t.Fatalf("expected shortage percent 12.5 got %.2f", summary.ShortagePercent)
	}
	if repo.summaryCalls != 1 {
		t.Fatalf("expected 1 repo call, got %d", repo.summaryCalls)
	}

	// Second call should hit cache.
	if _, err = svc.Summary(ctx, januaryWindow()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.summaryCalls != 1 {
		t.Fatalf("expected cached result, repo called %d times", repo.summaryCalls)
	}

	// Bumping the cache should trigger reload.
	if err := svc.cache.Bump(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	repo.summaryRow.TotalProducts = 10
	summary, err = svc.Summary(ctx, januaryWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalProducts != 10 {
		t.Fatalf("expected refreshed total 10 got %d", summary.TotalProducts)
	}
	if repo.summaryCalls != 2 {
		t.Fatalf("expected repo to refresh, calls %d", repo.summaryCalls)
	}
}

func TestSummaryEmptyWindowReturnsNoResults(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.Summary(context.Background(), januaryWindow())
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestMatrixComputesValueShares(t *testing.T) {
	repo := &mockRepo{
		cells: []MatrixCell{
			{ABCClass: "A", XYZClass: "X", ProductCount: 3, InventoryValue: 600},
			{ABCClass: "C", XYZClass: "Z", ProductCount: 1, InventoryValue: 400},
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	cells, err := svc.Matrix(ctx, januaryWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].ValueShare != 60 {
		t.Fatalf("expected AX share 60 got %.2f", cells[0].ValueShare)
	}
	if cells[1].ValueShare != 40 {
		t.Fatalf("expected CZ share 40 got %.2f", cells[1].ValueShare)
	}

	if _, err = svc.Matrix(ctx, januaryWindow()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.matrixCalls != 1 {
		t.Fatalf("expected cached matrix, repo called %d times", repo.matrixCalls)
	}
}

func TestMatrixEmptyWindowReturnsNoResults(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.Matrix(context.Background(), januaryWindow())
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestProductsNormalizesFilter(t *testing.T) {
	repo := &mockRepo{products: []ProductRow{{ProductKey: "AMOXICILINA 500MG"}}}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	rows, err := svc.Products(context.Background(), januaryWindow(), Filter{Search: " amox ", ABCClass: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if repo.lastFilter.Search != "amox" {
		t.Fatalf("expected trimmed search, got %q", repo.lastFilter.Search)
	}
	if repo.lastFilter.ABCClass != "A" {
		t.Fatalf("expected upper-cased class, got %q", repo.lastFilter.ABCClass)
	}
	if repo.lastFilter.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", repo.lastFilter.Limit)
	}
}

func TestProductsRejectsUnknownClass(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.Products(context.Background(), januaryWindow(), Filter{ABCClass: "Q"})
	if !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter, got %v", err)
	}
	if repo.productCalls != 0 {
		t.Fatalf("repository should not be called on invalid filter, calls %d", repo.productCalls)
	}
}

func TestProductsCapsLimit(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	if _, err := svc.Products(context.Background(), januaryWindow(), Filter{Limit: 9000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastFilter.Limit != 500 {
		t.Fatalf("expected capped limit 500, got %d", repo.lastFilter.Limit)
	}
}

func TestTopLimitBounds(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.TopByInventoryValue(ctx, januaryWindow(), TopQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastTop.Limit != 10 {
		t.Fatalf("expected default top limit 10, got %d", repo.lastTop.Limit)
	}
	if _, err := svc.TopByInventoryValue(ctx, januaryWindow(), TopQuery{Limit: 999}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastTop.Limit != 100 {
		t.Fatalf("expected capped top limit 100, got %d", repo.lastTop.Limit)
	}
}

func TestTopNormalizesCellFilter(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.TopByInventoryValue(ctx, januaryWindow(), TopQuery{ABCClass: " a ", XYZClass: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastTop.ABCClass != "A" || repo.lastTop.XYZClass != "X" {
		t.Fatalf("expected normalized cell A/X, got %q/%q", repo.lastTop.ABCClass, repo.lastTop.XYZClass)
	}

	if _, err := svc.TopByInventoryValue(ctx, januaryWindow(), TopQuery{XYZClass: "W"}); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter for unknown cell, got %v", err)
	}
}

func TestResolveWindowUsesLatestRun(t *testing.T) {
	repo := &mockRepo{window: januaryWindow()}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	w, err := svc.ResolveWindow(context.Background(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.StartDate.Equal(januaryWindow().StartDate) || !w.EndDate.Equal(januaryWindow().EndDate) {
		t.Fatalf("unexpected window %v..%v", w.StartDate, w.EndDate)
	}
	if repo.windowCalls != 1 {
		t.Fatalf("expected latest window lookup, calls %d", repo.windowCalls)
	}
}

func TestResolveWindowParsesExplicitDates(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	w, err := svc.ResolveWindow(context.Background(), "2025-02-01", "2025-02-28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.StartDate.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", w.StartDate)
	}
	if !w.EndDate.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", w.EndDate)
	}
	if repo.windowCalls != 0 {
		t.Fatalf("explicit dates must not hit the repository, calls %d", repo.windowCalls)
	}
}

func TestResolveWindowRejectsBadRanges(t *testing.T) {
	repo := &mockRepo{}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.ResolveWindow(ctx, "2025-02-01", ""); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter for partial range, got %v", err)
	}
	if _, err := svc.ResolveWindow(ctx, "01/02/2025", "2025-02-28"); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter for bad start format, got %v", err)
	}
	if _, err := svc.ResolveWindow(ctx, "2025-02-28", "2025-02-01"); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("expected ErrBadFilter for inverted range, got %v", err)
	}
}

func TestStatusLabels(t *testing.T) {
	if got := statusFor(false, true); got != StatusShortage {
		t.Fatalf("expected %s, got %s", StatusShortage, got)
	}
	if got := statusFor(true, false); got != StatusExcess {
		t.Fatalf("expected %s, got %s", StatusExcess, got)
	}
	if got := statusFor(false, false); got != StatusNormal {
		t.Fatalf("expected %s, got %s", StatusNormal, got)
	}
	if got := statusFor(true, true); got != StatusShortage {
		t.Fatalf("shortage must win over excess, got %s", got)
	}
}
