package movement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// csvHeader is the fixed column layout of CSV submissions.
var csvHeader = []string{"doc_kind", "date", "product", "cabys", "qty", "unit_price", "fraction_factor"}

// ErrBadCSVHeader indicates a submission whose header row does not match
// the expected layout.
var ErrBadCSVHeader = errors.New("movement: csv header mismatch")

// DecodeCSV parses an ingestion CSV into lines. Files arrive either UTF-8
// or Windows-1252 (legacy exports); invalid UTF-8 input is transcoded
// before parsing. Rows with a wrong field count or unparseable numbers
// are dropped and counted, matching the intake tolerance of the JSON path.
func DecodeCSV(data []byte) ([]Line, DropReport, error) {
	var drops DropReport
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, drops, fmt.Errorf("movement: decode windows-1252: %w", err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, drops, ErrEmptyBatch
		}
		return nil, drops, fmt.Errorf("movement: read csv header: %w", err)
	}
	if !headerMatches(header) {
		return nil, drops, ErrBadCSVHeader
	}

	var lines []Line
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, drops, fmt.Errorf("movement: read csv row: %w", err)
		}
		if len(row) != len(csvHeader) {
			drops.BadNumber++
			continue
		}
		qty, err1 := parseFloatField(row[4])
		price, err2 := parseFloatField(row[5])
		factor, err3 := parseFloatField(row[6])
		if err1 != nil || err2 != nil || err3 != nil {
			drops.BadNumber++
			continue
		}
		lines = append(lines, Line{
			DocKind:        row[0],
			Date:           row[1],
			Product:        row[2],
			Cabys:          row[3],
			Qty:            qty,
			UnitPrice:      price,
			FractionFactor: factor,
		})
	}
	return lines, drops, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(csvHeader) {
		return false
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) != csvHeader[i] {
			return false
		}
	}
	return true
}

// parseFloatField accepts the number spellings seen in the pharmacy's
// exports: blank means zero, and decimal commas are tolerated.
func parseFloatField(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	value = strings.ReplaceAll(value, ",", ".")
	return strconv.ParseFloat(value, 64)
}
