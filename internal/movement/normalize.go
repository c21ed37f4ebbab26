package movement

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/catalog"
)

// dateLayouts lists the accepted date spellings, tried in order. The
// pharmacy's purchase exports use ISO dates, the sale exports day-first.
var dateLayouts = []string{"2006-01-02", "02-01-2006"}

// ParseDay parses a document date in either accepted layout, normalized
// to a UTC calendar day.
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return DayOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("movement: unparseable date %q", value)
}

// NormalizeLines cleans raw document lines into storable movement lines.
// Lines that cannot be normalized are dropped and counted by reason;
// bad input data never aborts the batch. Quantities are converted to
// selling units via the fraction factor before the sanity checks.
func NormalizeLines(lines []Line) ([]NormalizedLine, DropReport) {
	var drops DropReport
	out := make([]NormalizedLine, 0, len(lines))
	for _, l := range lines {
		kind := DocKind(strings.ToUpper(strings.TrimSpace(l.DocKind)))
		if kind != DocKindPurchase && kind != DocKindSale {
			drops.BadKind++
			continue
		}
		day, err := ParseDay(l.Date)
		if err != nil {
			drops.BadDate++
			continue
		}
		key := catalog.CleanProductName(l.Product)
		if key == "" {
			drops.EmptyKey++
			continue
		}
		qty := catalog.NormalizeQuantity(l.Qty, l.FractionFactor)
		if qty < 0 {
			drops.NegativeQty++
			continue
		}
		if math.Abs(qty) > MaxAbsQuantity {
			drops.AbsurdQty++
			continue
		}
		out = append(out, NormalizedLine{
			DocKind:    kind,
			Day:        day,
			ProductKey: key,
			Cabys:      strings.TrimSpace(l.Cabys),
			Qty:        qty,
			UnitPrice:  l.UnitPrice,
		})
	}
	return out, drops
}
