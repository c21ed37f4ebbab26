// Package export serialises dashboard read models for download. Column
// names follow the persisted KPI vocabulary used by the pharmacy staff.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard"
)

// WriteProductsCSV emits one row per product KPI record.
func WriteProductsCSV(w io.Writer, rows []dashboard.ProductRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{
		"cabys", "producto", "total_compras", "total_ventas", "diferencia",
		"stock_final", "costo_promedio", "valor_ventas", "valor_inventario",
		"rotacion", "dio", "cobertura_dias", "stock_seguridad", "rop",
		"clasificacion_abc", "clasificacion_xyz", "estado",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Cabys,
			row.ProductKey,
			formatFloat(row.TotalIn),
			formatFloat(row.TotalOut),
			formatFloat(row.NetChange),
			formatFloat(row.FinalStock),
			formatFloat(row.AvgCost),
			formatFloat(row.SalesValue),
			formatFloat(row.InventoryValue),
			formatFloat(row.Rotation),
			formatFloat(row.DIO),
			formatFloat(row.CoverageDays),
			formatFloat(row.SafetyStock),
			formatFloat(row.ReorderPoint),
			row.ABCClass,
			row.XYZClass,
			row.Status,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV serialises the window summary as metric/value pairs.
func WriteSummaryCSV(w io.Writer, summary dashboard.Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"metrica", "valor"}); err != nil {
		return err
	}
	records := [][]string{
		{"periodo_inicio", summary.StartDate},
		{"periodo_fin", summary.EndDate},
		{"total_productos", strconv.Itoa(summary.TotalProducts)},
		{"productos_exceso", strconv.Itoa(summary.ExcessCount)},
		{"pct_exceso", formatFloat(summary.ExcessPercent)},
		{"productos_faltante", strconv.Itoa(summary.ShortageCount)},
		{"pct_faltante", formatFloat(summary.ShortagePercent)},
		{"rotacion_promedio", formatFloat(summary.AvgRotation)},
		{"dio_promedio", formatFloat(summary.AvgDIO)},
		{"valor_inventario_total", formatFloat(summary.TotalInventoryValue)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
