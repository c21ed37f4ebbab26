package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard"
)

func TestWriteProductsCSV(t *testing.T) {
	rows := []dashboard.ProductRow{
		{
			ProductKey:     "ACETAMINOFEN 500MG",
			Cabys:          "3562001",
			TotalIn:        100,
			TotalOut:       70,
			NetChange:      30,
			FinalStock:     30,
			AvgCost:        10,
			SalesValue:     700,
			InventoryValue: 300,
			Rotation:       1.05,
			DIO:            2.857142,
			CoverageDays:   1.285714,
			SafetyStock:    12.5,
			ReorderPoint:   175.8,
			ABCClass:       "A",
			XYZClass:       "X",
			Status:         dashboard.StatusNormal,
		},
		{
			ProductKey: "JARABE NINOS 120ML",
			Cabys:      "3562044",
			IsShortage: true,
			Status:     dashboard.StatusShortage,
		},
	}

	buf := &bytes.Buffer{}
	if err := WriteProductsCSV(buf, rows); err != nil {
		t.Fatalf("products csv error: %v", err)
	}
	reader := csv.NewReader(bytes.NewReader(buf.Bytes()))
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("csv read error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "cabys" || records[0][1] != "producto" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][1] != "ACETAMINOFEN 500MG" {
		t.Fatalf("unexpected product %q", records[1][1])
	}
	if records[1][2] != "100.00" || records[1][3] != "70.00" {
		t.Fatalf("unexpected totals %v", records[1][2:4])
	}
	if records[1][9] != "1.05" {
		t.Fatalf("unexpected rotation %q", records[1][9])
	}
	if records[1][16] != dashboard.StatusNormal {
		t.Fatalf("unexpected status %q", records[1][16])
	}
	if records[2][16] != dashboard.StatusShortage {
		t.Fatalf("unexpected status %q", records[2][16])
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	summary := dashboard.Summary{
		StartDate:           "2025-01-01",
		EndDate:             "2025-01-31",
		TotalProducts:       8,
		ExcessCount:         2,
		ExcessPercent:       25,
		ShortageCount:       1,
		ShortagePercent:     12.5,
		AvgRotation:         1.5,
		AvgDIO:              30,
		TotalInventoryValue: 1234.5,
	}

	buf := &bytes.Buffer{}
	if err := WriteSummaryCSV(buf, summary); err != nil {
		t.Fatalf("summary csv error: %v", err)
	}
	reader := csv.NewReader(bytes.NewReader(buf.Bytes()))
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("csv read error: %v", err)
	}
	if len(records) != 11 {
		t.Fatalf("expected header plus 10 metrics, got %d", len(records))
	}
	assertMetric(t, records, "periodo_inicio", "2025-01-01")
	assertMetric(t, records, "total_productos", "8")
	assertMetric(t, records, "pct_exceso", "25.00")
	assertMetric(t, records, "pct_faltante", "12.50")
	assertMetric(t, records, "valor_inventario_total", "1234.50")
}

func assertMetric(t *testing.T, records [][]string, name, want string) {
	t.Helper()
	for _, record := range records[1:] {
		if record[0] == name {
			if record[1] != want {
				t.Fatalf("metric %s: expected %q got %q", name, want, record[1])
			}
			return
		}
	}
	t.Fatalf("metric %s not found", name)
}
