package movement

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocKind enumerates the document kinds that move stock.
type DocKind string

const (
	// DocKindPurchase represents a supplier invoice line (stock in).
	DocKindPurchase DocKind = "PURCHASE"
	// DocKindSale represents a point-of-sale invoice line (stock out).
	DocKindSale DocKind = "SALE"
)

// MaxAbsQuantity is the sanity ceiling for a single normalized line.
// Quantities beyond it are data-entry garbage, not trade.
const MaxAbsQuantity = 1_000_000

// Line is one document line as submitted by an ingestion client. Dates
// arrive as strings because the pharmacy's exports mix YYYY-MM-DD and
// DD-MM-YYYY; product names arrive raw and are canonicalized here.
type Line struct {
	DocKind        string  `json:"doc_kind"`
	Date           string  `json:"date"`
	Product        string  `json:"product"`
	Cabys          string  `json:"cabys"`
	Qty            float64 `json:"qty"`
	UnitPrice      float64 `json:"unit_price"`
	FractionFactor float64 `json:"fraction_factor"`
}

// NormalizedLine is a cleaned document line ready for storage.
type NormalizedLine struct {
	DocKind    DocKind
	Day        time.Time
	ProductKey string
	Cabys      string
	Qty        float64
	UnitPrice  float64
}

// Record converts the line into the aggregation input shape, attributing
// the quantity to the inbound or outbound side by document kind.
func (l NormalizedLine) Record() Record {
	r := Record{
		Day:        l.Day,
		ProductKey: l.ProductKey,
		Cabys:      l.Cabys,
		UnitPrice:  l.UnitPrice,
	}
	if l.DocKind == DocKindPurchase {
		r.QtyIn = l.Qty
	} else {
		r.QtyOut = l.Qty
	}
	return r
}

// Record is one normalized movement attributed to a product and day.
type Record struct {
	Day        time.Time
	ProductKey string
	Cabys      string
	QtyIn      float64
	QtyOut     float64
	UnitPrice  float64
}

// DailyAggregate is the movement total for one (day, product) pair.
type DailyAggregate struct {
	Day        time.Time
	ProductKey string
	Cabys      string
	QtyIn      float64
	QtyOut     float64
}

// DropReport counts lines excluded during intake and aggregation, by
// reason. Drops are reported back to the caller, never silent.
type DropReport struct {
	BadKind     int `json:"bad_kind"`
	BadDate     int `json:"bad_date"`
	BadNumber   int `json:"bad_number"`
	EmptyKey    int `json:"empty_key"`
	NegativeQty int `json:"negative_qty"`
	AbsurdQty   int `json:"absurd_qty"`
}

// Total returns the number of dropped lines across all reasons.
func (d DropReport) Total() int {
	return d.BadKind + d.BadDate + d.BadNumber + d.EmptyKey + d.NegativeQty + d.AbsurdQty
}

// Merge adds the counts of another report into this one.
func (d *DropReport) Merge(other DropReport) {
	d.BadKind += other.BadKind
	d.BadDate += other.BadDate
	d.BadNumber += other.BadNumber
	d.EmptyKey += other.EmptyKey
	d.NegativeQty += other.NegativeQty
	d.AbsurdQty += other.AbsurdQty
}

// ByReason returns nonzero counts keyed by reason label, for metrics.
func (d DropReport) ByReason() map[string]int {
	out := map[string]int{}
	if d.BadKind > 0 {
		out["bad_kind"] = d.BadKind
	}
	if d.BadDate > 0 {
		out["bad_date"] = d.BadDate
	}
	if d.BadNumber > 0 {
		out["bad_number"] = d.BadNumber
	}
	if d.EmptyKey > 0 {
		out["empty_key"] = d.EmptyKey
	}
	if d.NegativeQty > 0 {
		out["negative_qty"] = d.NegativeQty
	}
	if d.AbsurdQty > 0 {
		out["absurd_qty"] = d.AbsurdQty
	}
	return out
}

// BatchSummary reports the outcome of one ingestion batch.
type BatchSummary struct {
	BatchID     uuid.UUID  `json:"batch_id"`
	Accepted    int        `json:"accepted"`
	Dropped     DropReport `json:"dropped"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
}

// ErrEmptyBatch indicates a submission with no lines.
var ErrEmptyBatch = errors.New("movement: batch contains no lines")

// ErrBatchTooLarge indicates a submission above the configured line cap.
var ErrBatchTooLarge = errors.New("movement: batch exceeds line limit")
