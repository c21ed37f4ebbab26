package kpi

import (
	"math"
	"sort"
)

// DIOCap bounds days-inventory-outstanding. Values at the cap are
// sentinels for "no meaningful turnover", not measurements, and read
// paths exclude them from averages.
const DIOCap = 999.0

// CoverageCap bounds coverage days the same way.
const CoverageCap = 999.0

// StockSummary carries the projected stock series and the window totals
// for one product.
type StockSummary struct {
	Points     []StockPoint
	TotalIn    float64
	TotalOut   float64
	FinalStock float64
	AvgStock   float64
}

// ProjectStock replays the movement series from an opening stock of zero,
// clamping the level at zero after each day. Analysis windows carry no
// opening inventory, and a deficit never rolls over as negative stock.
// The series is ordered by (day, qty_in, qty_out) before folding, so the
// running sums are identical across runs. With no movement days the
// average falls back to final_stock / 2.
func ProjectStock(series []MovementPoint) StockSummary {
	ordered := sortSeries(series)
	summary := StockSummary{Points: make([]StockPoint, 0, len(ordered))}
	stock := 0.0
	for _, p := range ordered {
		summary.TotalIn += p.QtyIn
		summary.TotalOut += p.QtyOut
		stock = math.Max(0, stock+p.QtyIn-p.QtyOut)
		summary.Points = append(summary.Points, StockPoint{Day: p.Day, Level: stock})
	}
	summary.FinalStock = stock
	if len(summary.Points) == 0 {
		summary.AvgStock = summary.FinalStock / 2
		return summary
	}
	var levels float64
	for _, pt := range summary.Points {
		levels += pt.Level
	}
	summary.AvgStock = levels / float64(len(summary.Points))
	return summary
}

// WeightedAvgCost computes the quantity-weighted average unit cost over
// the samples, ordered by (qty, unit_price) before summation. Returns 0
// when no quantity is present.
func WeightedAvgCost(samples []CostSample) float64 {
	ordered := make([]CostSample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Qty != ordered[j].Qty {
			return ordered[i].Qty < ordered[j].Qty
		}
		return ordered[i].UnitPrice < ordered[j].UnitPrice
	})
	var totalQty, totalValue float64
	for _, s := range ordered {
		totalQty += s.Qty
		totalValue += s.Qty * s.UnitPrice
	}
	return safeDivide(totalValue, totalQty, 0)
}

// FinancialMetrics is the cost side of the product record.
type FinancialMetrics struct {
	AvgCost        float64
	COGS           float64
	InventoryValue float64
	Rotation       float64
	DIO            float64
}

// ComputeFinancials derives valuation and turnover metrics. Inventory is
// valued at FINAL stock: the period-end balance is what actually sits on
// the shelf, and valuing the average level overstates products sold down
// to near zero. Rotation divides by AVERAGE stock: turnover measures
// velocity across the whole period, not a point-in-time ratio. The two
// stock bases differ on purpose and must not be harmonized. Zero COGS
// yields the DIO sentinel.
func ComputeFinancials(samples []CostSample, stock StockSummary, periodDays int) FinancialMetrics {
	m := FinancialMetrics{AvgCost: WeightedAvgCost(samples)}
	m.COGS = m.AvgCost * stock.TotalOut
	m.InventoryValue = m.AvgCost * stock.FinalStock
	m.Rotation = safeDivide(m.COGS, m.AvgCost*stock.AvgStock, 0)
	if m.COGS == 0 {
		m.DIO = DIOCap
		return m
	}
	dailyCOGS := m.COGS / float64(periodDays)
	m.DIO = math.Min(DIOCap, (m.AvgCost*stock.AvgStock)/dailyCOGS)
	return m
}

// DemandMetrics is the demand side of the product record.
type DemandMetrics struct {
	AvgDailyDemand         float64
	StdDailyDemand         float64
	CoefficientOfVariation float64
	CoverageDays           float64
	SafetyStock            float64
	ReorderPoint           float64
}

// ComputeDemand derives demand statistics and reorder levels. The demand
// series is the qty_out of each movement day, so purchase-only days
// contribute zero-demand samples while days without any movement
// contribute none; avg_daily_demand instead spreads total outflow over
// calendar days. Standard deviation is Bessel-corrected and 0 below two
// samples, which makes safety stock 0 for single-movement products, a
// defined degraded case.
func ComputeDemand(series []MovementPoint, stock StockSummary, params Params) DemandMetrics {
	ordered := sortSeries(series)
	demand := make([]float64, 0, len(ordered))
	for _, p := range ordered {
		demand = append(demand, p.QtyOut)
	}

	m := DemandMetrics{}
	m.AvgDailyDemand = stock.TotalOut / float64(params.PeriodDays())
	m.StdDailyDemand = sampleStdDev(demand)
	m.CoefficientOfVariation = safeDivide(m.StdDailyDemand, m.AvgDailyDemand, 0)
	if m.AvgDailyDemand == 0 {
		m.CoverageDays = CoverageCap
	} else {
		m.CoverageDays = math.Min(CoverageCap, stock.FinalStock/m.AvgDailyDemand)
	}
	z := zScore(params.ServiceLevel)
	m.SafetyStock = z * m.StdDailyDemand * math.Sqrt(float64(params.LeadTimeDays))
	m.ReorderPoint = m.AvgDailyDemand*float64(params.LeadTimeDays) + m.SafetyStock
	return m
}

// zScores maps standard service levels to normal-distribution z values,
// ascending by level.
var zScores = []struct {
	level float64
	z     float64
}{
	{0.90, 1.282},
	{0.95, 1.645},
	{0.99, 2.326},
	{0.995, 2.576},
}

// zScore returns the z value of the closest tabulated service level.
// Ties resolve to the lower level.
func zScore(serviceLevel float64) float64 {
	best := zScores[0]
	for _, entry := range zScores[1:] {
		if math.Abs(entry.level-serviceLevel) < math.Abs(best.level-serviceLevel) {
			best = entry
		}
	}
	return best.z
}

// sampleStdDev returns the Bessel-corrected standard deviation of the
// values in their given order, or 0 below two samples.
func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// Mean averages the values in their given order, 0 when empty. Callers
// pass pre-sorted slices so the fold order is reproducible.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sortSeries(series []MovementPoint) []MovementPoint {
	ordered := make([]MovementPoint, len(series))
	copy(ordered, series)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if a.QtyIn != b.QtyIn {
			return a.QtyIn < b.QtyIn
		}
		return a.QtyOut < b.QtyOut
	})
	return ordered
}

func safeDivide(num, den, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	return num / den
}
