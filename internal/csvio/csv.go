// Package csvio reads worksheet rows from CSV and writes derived line items
// back out in the same column order.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/domain/models"
)

// InputHeaders is the column order accepted on import.
var InputHeaders = []string{
	"Category",
	"Menu Item",
	"Qty Nos.",
	"Unit Cost (JD)",
	"Unit Price (JD)",
	"Cost on POS (JD)",
	"Total Sales (JD)",
}

var posHeaders = []string{
	"Total Cost (JD)",
	"Cost Variance (JD)",
	"Day Food Cost (%)",
	"Recipe Food Cost (%)",
	"Variance (%)",
	"Total Variance (JD)",
}

var impliedHeaders = []string{
	"Implied Sales (JD)",
	"Line Cost (JD)",
	"Variance (JD)",
	"Variance (%)",
}

// ErrEmptyInput is returned when a CSV document holds neither a header nor
// data rows. A header-only document parses to zero rows.
var ErrEmptyInput = errors.New("csv contains no rows")

// Parse reads line item inputs from CSV text. A first row starting with
// InputHeaders (case-insensitive) is skipped, as are rows whose cells are all
// blank. Every row gets a fresh id; numeric cells go through calc.CoerceNumber.
func Parse(r io.Reader) ([]models.LineItemInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows := []models.LineItemInput{}
	first, header := true, false
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		if first {
			first = false
			if isHeader(record) {
				header = true
				continue
			}
		}
		rows = append(rows, SanitizeRow(record))
	}

	if len(rows) == 0 && !header {
		return nil, ErrEmptyInput
	}
	return rows, nil
}

// SanitizeRow maps positional cells onto a LineItemInput. Missing cells read
// as blank.
func SanitizeRow(values []string) models.LineItemInput {
	cell := func(i int) string {
		if i < len(values) {
			return strings.TrimSpace(values[i])
		}
		return ""
	}
	return models.LineItemInput{
		ID:           uuid.NewString(),
		Category:     cell(0),
		MenuItem:     cell(1),
		QtyNos:       calc.CoerceNumber(cell(2)),
		UnitCostJD:   calc.CoerceNumber(cell(3)),
		UnitPriceJD:  calc.CoerceNumber(cell(4)),
		CostOnPosJD:  calc.CoerceNumber(cell(5)),
		TotalSalesJD: calc.CoerceNumber(cell(6)),
	}
}

// Headers returns the export header row for a calculation profile.
func Headers(profile calc.Profile) []string {
	derived := posHeaders
	if profile == calc.ProfileImplied {
		derived = impliedHeaders
	}
	out := make([]string, 0, len(InputHeaders)+len(derived))
	out = append(out, InputHeaders...)
	return append(out, derived...)
}

// Row returns the export cells of one item, matching Headers(profile).
func Row(item models.LineItem, profile calc.Profile) []string {
	values := []float64{item.QtyNos, item.UnitCostJD, item.UnitPriceJD, item.CostOnPosJD, item.TotalSalesJD}
	if profile == calc.ProfileImplied {
		values = append(values, item.ImpliedSalesJD, item.LineCostJD, item.VarianceValueJD, item.VariancePct)
	} else {
		values = append(values, item.TotalCostJD, item.CostVarianceJD, item.DayFoodCostPct,
			item.RecipeFoodCostPct, item.VariancePct, item.TotalVarianceJD)
	}

	row := make([]string, 0, len(values)+2)
	row = append(row, item.Category, item.MenuItem)
	for _, v := range values {
		row = append(row, formatNumber(v))
	}
	return row
}

// Write renders items as CSV with a header row.
func Write(w io.Writer, items []models.LineItem, profile calc.Profile) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Headers(profile)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, item := range items {
		if err := writer.Write(Row(item, profile)); err != nil {
			return fmt.Errorf("write csv row %s: %w", item.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(calc.CoerceNumber(v), 'f', -1, 64)
}

// isHeader matches the import headers on the leading cells, so an exported
// file with its extra derived columns is recognised too.
func isHeader(record []string) bool {
	if len(record) < len(InputHeaders) {
		return false
	}
	for i, cell := range record[:len(InputHeaders)] {
		cell = strings.TrimPrefix(cell, "\ufeff")
		if !strings.EqualFold(strings.TrimSpace(cell), InputHeaders[i]) {
			return false
		}
	}
	return true
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
