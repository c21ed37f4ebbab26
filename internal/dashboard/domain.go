// Package dashboard exposes read models over the persisted KPI results:
// window summaries, filtered product listings, the ABC/XYZ matrix and
// CSV-friendly projections. It never recomputes metrics; it only reads
// what a finished KPI run wrote.
package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Product health labels shown on listings and exports.
const (
	StatusShortage = "FALTANTE"
	StatusExcess   = "EXCESO"
	StatusNormal   = "NORMAL"
)

const (
	dateLayout = "2006-01-02"

	defaultProductLimit = 100
	maxProductLimit     = 500

	defaultTopLimit = 10
	maxTopLimit     = 100
)

// ErrNoResults indicates the requested window has no computed KPI rows.
var ErrNoResults = errors.New("dashboard: no kpi results for the requested window")

// ErrBadFilter wraps filter validation failures.
var ErrBadFilter = errors.New("dashboard: invalid filter")

// Window identifies the analysis period a KPI run covered.
type Window struct {
	StartDate time.Time
	EndDate   time.Time
}

// Key renders the window as "start:end" for cache keys and logs.
func (w Window) Key() string {
	return w.StartDate.Format(dateLayout) + ":" + w.EndDate.Format(dateLayout)
}

// Summary aggregates one window of product KPIs into headline figures.
// Rotation and DIO averages exclude sentinel values: products without
// any sale carry rotation 0 and a capped DIO, and folding those into
// the mean would drown the signal.
type Summary struct {
	StartDate           string  `json:"start_date"`
	EndDate             string  `json:"end_date"`
	TotalProducts       int     `json:"total_products"`
	ExcessCount         int     `json:"excess_count"`
	ExcessPercent       float64 `json:"excess_percent"`
	ShortageCount       int     `json:"shortage_count"`
	ShortagePercent     float64 `json:"shortage_percent"`
	AvgRotation         float64 `json:"avg_rotation"`
	AvgDIO              float64 `json:"avg_dio"`
	TotalInventoryValue float64 `json:"total_inventory_value"`
}

// ProductRow is one product's KPI record as served on listings.
type ProductRow struct {
	ProductKey     string  `json:"product_key"`
	Cabys          string  `json:"cabys"`
	TotalIn        float64 `json:"total_in"`
	TotalOut       float64 `json:"total_out"`
	NetChange      float64 `json:"net_change"`
	FinalStock     float64 `json:"final_stock"`
	AvgCost        float64 `json:"avg_cost"`
	SalesValue     float64 `json:"sales_value"`
	InventoryValue float64 `json:"inventory_value"`
	Rotation       float64 `json:"rotation"`
	DIO            float64 `json:"dio"`
	CoverageDays   float64 `json:"coverage_days"`
	SafetyStock    float64 `json:"safety_stock"`
	ReorderPoint   float64 `json:"reorder_point"`
	ABCClass       string  `json:"abc_class"`
	XYZClass       string  `json:"xyz_class"`
	IsExcess       bool    `json:"is_excess"`
	IsShortage     bool    `json:"is_shortage"`
	Status         string  `json:"status"`
}

// MatrixCell is one ABC/XYZ combination with its product count and
// share of the window's total inventory value.
type MatrixCell struct {
	ABCClass       string  `json:"abc_class"`
	XYZClass       string  `json:"xyz_class"`
	ProductCount   int     `json:"product_count"`
	InventoryValue float64 `json:"inventory_value"`
	ValueShare     float64 `json:"value_share"`
}

// Filter narrows the product listing. Zero values mean "no filter".
type Filter struct {
	Search   string
	ABCClass string
	XYZClass string
	Limit    int
}

// normalized upper-cases the class filters, validates them against the
// known classes and applies the listing limit bounds.
func (f Filter) normalized() (Filter, error) {
	out := f
	out.Search = strings.TrimSpace(f.Search)
	out.ABCClass = strings.ToUpper(strings.TrimSpace(f.ABCClass))
	out.XYZClass = strings.ToUpper(strings.TrimSpace(f.XYZClass))

	switch out.ABCClass {
	case "", "A", "B", "C":
	default:
		return Filter{}, fmt.Errorf("%w: abc class must be A, B or C", ErrBadFilter)
	}
	switch out.XYZClass {
	case "", "X", "Y", "Z":
	default:
		return Filter{}, fmt.Errorf("%w: xyz class must be X, Y or Z", ErrBadFilter)
	}

	if out.Limit <= 0 {
		out.Limit = defaultProductLimit
	}
	if out.Limit > maxProductLimit {
		out.Limit = maxProductLimit
	}
	return out, nil
}

// TopQuery scopes the capital ranking: the whole window by default,
// optionally narrowed to a single ABC/XYZ cell.
type TopQuery struct {
	ABCClass string
	XYZClass string
	Limit    int
}

func (q TopQuery) normalized() (TopQuery, error) {
	out := q
	out.ABCClass = strings.ToUpper(strings.TrimSpace(q.ABCClass))
	out.XYZClass = strings.ToUpper(strings.TrimSpace(q.XYZClass))

	switch out.ABCClass {
	case "", "A", "B", "C":
	default:
		return TopQuery{}, fmt.Errorf("%w: abc class must be A, B or C", ErrBadFilter)
	}
	switch out.XYZClass {
	case "", "X", "Y", "Z":
	default:
		return TopQuery{}, fmt.Errorf("%w: xyz class must be X, Y or Z", ErrBadFilter)
	}

	if out.Limit <= 0 {
		out.Limit = defaultTopLimit
	}
	if out.Limit > maxTopLimit {
		out.Limit = maxTopLimit
	}
	return out, nil
}

func statusFor(isExcess, isShortage bool) string {
	switch {
	case isShortage:
		return StatusShortage
	case isExcess:
		return StatusExcess
	default:
		return StatusNormal
	}
}
