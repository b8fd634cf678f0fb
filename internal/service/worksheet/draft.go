package worksheet

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/internal/format"
)

const inputPrecision = 3

// ItemDraft is a line item as submitted by a client. Numeric fields accept
// numbers or free text and are coerced on normalisation.
type ItemDraft struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	MenuItem     string `json:"menuItem"`
	QtyNos       any    `json:"qtyNos"`
	UnitCostJD   any    `json:"unitCostJD"`
	UnitPriceJD  any    `json:"unitPriceJD"`
	CostOnPosJD  any    `json:"costOnPosJD"`
	TotalSalesJD any    `json:"totalSalesJD"`
}

// Normalize trims labels, assigns an id when missing and rounds every number
// to fils precision.
func (d ItemDraft) Normalize() models.LineItemInput {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return models.LineItemInput{
		ID:           id,
		Category:     strings.TrimSpace(d.Category),
		MenuItem:     strings.TrimSpace(d.MenuItem),
		QtyNos:       roundInput(d.QtyNos),
		UnitCostJD:   roundInput(d.UnitCostJD),
		UnitPriceJD:  roundInput(d.UnitPriceJD),
		CostOnPosJD:  roundInput(d.CostOnPosJD),
		TotalSalesJD: roundInput(d.TotalSalesJD),
	}
}

func roundInput(v any) float64 {
	return format.Round(calc.CoerceNumber(v), inputPrecision)
}
