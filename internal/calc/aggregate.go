package calc

import "github.com/mamadbah2/foodcost/internal/domain/models"

// AggregateSummary reduces POS-profile line items into a daily summary.
// FoodCostPct carries the day food cost (POS cost over sales) and
// RecipeFoodCostPct the cost over recipe sales (unit price × quantity).
func AggregateSummary(items []models.LineItem) models.DailySummary {
	var cost, sales, costOnPos, variance, recipeSales float64
	for _, item := range items {
		cost += CoerceNumber(item.TotalCostJD)
		sales += CoerceNumber(item.TotalSalesJD)
		costOnPos += CoerceNumber(item.CostOnPosJD)
		variance += CoerceNumber(item.TotalVarianceJD)
		recipeSales += CoerceNumber(item.UnitPriceJD) * CoerceNumber(item.QtyNos)
	}
	cost, sales, costOnPos, variance, recipeSales = finite(cost), finite(sales), finite(costOnPos), finite(variance), finite(recipeSales)

	dayFoodCost := percentOf(costOnPos, sales)
	recipeFoodCost := percentOf(cost, recipeSales)

	return models.DailySummary{
		TotalCostJD:       cost,
		TotalSalesJD:      sales,
		ParCstJD:          finite(cost - costOnPos),
		FoodCostPct:       dayFoodCost,
		TotalCostOnPosJD:  costOnPos,
		TotalVarianceJD:   variance,
		RecipeFoodCostPct: recipeFoodCost,
		VariancePct:       finite(recipeFoodCost - dayFoodCost),
	}
}

// AggregateImpliedSummary reduces implied-profile line items into a daily
// summary where ParCstJD is the sales margin and FoodCostPct is cost over sales.
func AggregateImpliedSummary(items []models.LineItem) models.DailySummary {
	var cost, sales float64
	for _, item := range items {
		cost += CoerceNumber(item.LineCostJD)
		sales += CoerceNumber(item.TotalSalesJD)
	}
	cost, sales = finite(cost), finite(sales)

	return models.DailySummary{
		TotalCostJD:  cost,
		TotalSalesJD: sales,
		ParCstJD:     finite(sales - cost),
		FoodCostPct:  percentOf(cost, sales),
	}
}
