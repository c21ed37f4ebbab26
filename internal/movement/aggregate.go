package movement

import (
	"sort"
	"time"
)

// Aggregate folds normalized movement records into one row per (day,
// product), summing inbound and outbound quantities. Records with an empty
// product key or a zero day are dropped and counted. The fold runs over
// records sorted by (day, product_key, qty_in, qty_out, unit_price), a
// total order, so the float additions happen in one fixed sequence and
// repeated invocations over the same input produce identical sums.
//
// Output rows are sorted by (day, product_key) ascending. Each row's cabys
// is the first non-empty cabys among its records in fold order. Empty
// input yields empty output.
func Aggregate(records []Record) ([]DailyAggregate, DropReport) {
	var drops DropReport
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.ProductKey == "" {
			drops.EmptyKey++
			continue
		}
		if r.Day.IsZero() {
			drops.BadDate++
			continue
		}
		r.Day = DayOf(r.Day)
		kept = append(kept, r)
	}

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if a.ProductKey != b.ProductKey {
			return a.ProductKey < b.ProductKey
		}
		if a.QtyIn != b.QtyIn {
			return a.QtyIn < b.QtyIn
		}
		if a.QtyOut != b.QtyOut {
			return a.QtyOut < b.QtyOut
		}
		return a.UnitPrice < b.UnitPrice
	})

	out := make([]DailyAggregate, 0, len(kept))
	for _, r := range kept {
		if len(out) == 0 || !out[len(out)-1].Day.Equal(r.Day) || out[len(out)-1].ProductKey != r.ProductKey {
			out = append(out, DailyAggregate{Day: r.Day, ProductKey: r.ProductKey})
		}
		agg := &out[len(out)-1]
		agg.QtyIn += r.QtyIn
		agg.QtyOut += r.QtyOut
		if agg.Cabys == "" && r.Cabys != "" {
			agg.Cabys = r.Cabys
		}
	}
	return out, drops
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
