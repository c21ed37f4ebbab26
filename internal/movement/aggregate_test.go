package movement

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregateSumsPerDayAndProduct(t *testing.T) {
	records := []Record{
		{Day: day(2025, 1, 2), ProductKey: "AMOXICILINA 500MG", QtyIn: 10},
		{Day: day(2025, 1, 2), ProductKey: "AMOXICILINA 500MG", QtyOut: 3},
		{Day: day(2025, 1, 2), ProductKey: "AMOXICILINA 500MG", QtyOut: 2, Cabys: "9361"},
		{Day: day(2025, 1, 3), ProductKey: "AMOXICILINA 500MG", QtyOut: 1},
		{Day: day(2025, 1, 2), ProductKey: "IBUPROFENO 400MG", QtyIn: 5, Cabys: "7412"},
	}

	rows, drops := Aggregate(records)
	if drops.Total() != 0 {
		t.Fatalf("unexpected drops: %+v", drops)
	}
	want := []DailyAggregate{
		{Day: day(2025, 1, 2), ProductKey: "AMOXICILINA 500MG", Cabys: "9361", QtyIn: 10, QtyOut: 5},
		{Day: day(2025, 1, 2), ProductKey: "IBUPROFENO 400MG", Cabys: "7412", QtyIn: 5},
		{Day: day(2025, 1, 3), ProductKey: "AMOXICILINA 500MG", QtyOut: 1},
	}
	if !reflect.DeepEqual(want, rows) {
		t.Fatalf("unexpected aggregates:\nwant %+v\ngot  %+v", want, rows)
	}
}

func TestAggregateCountsDrops(t *testing.T) {
	records := []Record{
		{Day: day(2025, 1, 2), ProductKey: "", QtyIn: 1},
		{ProductKey: "GASA ESTERIL", QtyIn: 1},
		{Day: day(2025, 1, 2), ProductKey: "GASA ESTERIL", QtyIn: 1},
	}
	rows, drops := Aggregate(records)
	if drops.EmptyKey != 1 || drops.BadDate != 1 {
		t.Fatalf("unexpected drop counts: %+v", drops)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(rows))
	}
}

func TestAggregateOrderInvariant(t *testing.T) {
	records := []Record{
		{Day: day(2025, 1, 3), ProductKey: "B", QtyOut: 0.1, UnitPrice: 2},
		{Day: day(2025, 1, 2), ProductKey: "A", QtyIn: 0.3},
		{Day: day(2025, 1, 2), ProductKey: "A", QtyIn: 0.1},
		{Day: day(2025, 1, 2), ProductKey: "A", QtyIn: 0.2},
		{Day: day(2025, 1, 3), ProductKey: "B", QtyOut: 0.1, UnitPrice: 1},
	}
	first, _ := Aggregate(records)

	reversed := make([]Record, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		reversed = append(reversed, records[i])
	}
	second, _ := Aggregate(reversed)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregation depends on input order:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	rows, drops := Aggregate(nil)
	if len(rows) != 0 || drops.Total() != 0 {
		t.Fatalf("expected empty result, got rows=%v drops=%+v", rows, drops)
	}
}

func TestAggregateTruncatesTimestamps(t *testing.T) {
	records := []Record{
		{Day: time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC), ProductKey: "A", QtyIn: 1},
		{Day: time.Date(2025, 1, 2, 17, 45, 0, 0, time.UTC), ProductKey: "A", QtyOut: 1},
	}
	rows, _ := Aggregate(records)
	if len(rows) != 1 {
		t.Fatalf("expected timestamps on one day to merge, got %d rows", len(rows))
	}
	if !rows[0].Day.Equal(day(2025, 1, 2)) {
		t.Fatalf("expected day truncated to midnight, got %s", rows[0].Day)
	}
}
