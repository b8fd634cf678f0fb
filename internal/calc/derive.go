package calc

import "github.com/mamadbah2/foodcost/internal/domain/models"

// DeriveLineItem enriches a line item with the POS variance figures: computed
// cost against the cost recorded by the point-of-sale system, and the recipe
// food cost against the day food cost.
func DeriveLineItem(input models.LineItemInput, settings models.DaySettings) models.LineItem {
	in := normalizeInput(input)
	impliedSales := finite(in.QtyNos * in.UnitPriceJD)
	salesImplied := usesImpliedSales(in.TotalSalesJD, settings)
	if salesImplied {
		in.TotalSalesJD = impliedSales
	}

	totalCost := finite(in.QtyNos * in.UnitCostJD)
	dayFoodCost := percentOf(in.CostOnPosJD, in.TotalSalesJD)
	recipeFoodCost := percentOf(in.UnitCostJD, in.UnitPriceJD)
	variancePct := finite(recipeFoodCost - dayFoodCost)

	return models.LineItem{
		LineItemInput:     in,
		ImpliedSalesJD:    impliedSales,
		SalesImplied:      salesImplied,
		TotalCostJD:       totalCost,
		CostVarianceJD:    finite(totalCost - in.CostOnPosJD),
		DayFoodCostPct:    dayFoodCost,
		RecipeFoodCostPct: recipeFoodCost,
		VariancePct:       variancePct,
		TotalVarianceJD:   finite(totalCost * (variancePct / 100)),
	}
}

// DeriveImpliedLineItem enriches a line item with the implied sales figures:
// the margin between recorded (or implied) sales and the computed line cost.
func DeriveImpliedLineItem(input models.LineItemInput, settings models.DaySettings) models.LineItem {
	in := normalizeInput(input)
	impliedSales := finite(in.QtyNos * in.UnitPriceJD)
	salesImplied := usesImpliedSales(in.TotalSalesJD, settings)
	if salesImplied {
		in.TotalSalesJD = impliedSales
	}

	lineCost := finite(in.QtyNos * in.UnitCostJD)
	value := finite(in.TotalSalesJD - lineCost)

	return models.LineItem{
		LineItemInput:   in,
		ImpliedSalesJD:  impliedSales,
		SalesImplied:    salesImplied,
		LineCostJD:      lineCost,
		VarianceValueJD: value,
		VariancePct:     percentOf(value, in.TotalSalesJD),
	}
}

// usesImpliedSales reports whether a blank sales figure should be replaced by
// implied sales. Only an exact zero counts as blank.
func usesImpliedSales(recorded float64, settings models.DaySettings) bool {
	return settings.UseImpliedSalesWhenBlank && recorded == 0
}

// percentOf returns part/whole as a percentage, or 0 when whole is not positive.
func percentOf(part, whole float64) float64 {
	if whole > 0 {
		return finite(part / whole * 100)
	}
	return 0
}

func normalizeInput(in models.LineItemInput) models.LineItemInput {
	in.QtyNos = CoerceNumber(in.QtyNos)
	in.UnitCostJD = CoerceNumber(in.UnitCostJD)
	in.UnitPriceJD = CoerceNumber(in.UnitPriceJD)
	in.CostOnPosJD = CoerceNumber(in.CostOnPosJD)
	in.TotalSalesJD = CoerceNumber(in.TotalSalesJD)
	return in
}
