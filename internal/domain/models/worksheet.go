package models

import "time"

// DateLayout is the calendar-day key used for worksheet days.
const DateLayout = "2006-01-02"

// DaySettings holds per-day options that control how line items are derived.
type DaySettings struct {
	UseImpliedSalesWhenBlank bool `bson:"useImpliedSalesWhenBlank" json:"useImpliedSalesWhenBlank"`
}

// DefaultSettings returns the settings applied to a day that has none stored.
func DefaultSettings() DaySettings {
	return DaySettings{UseImpliedSalesWhenBlank: false}
}

// LineItemInput is one worksheet row as entered by a user or imported from CSV.
type LineItemInput struct {
	ID           string  `bson:"id" json:"id"`
	Category     string  `bson:"category" json:"category"`
	MenuItem     string  `bson:"menuItem" json:"menuItem"`
	QtyNos       float64 `bson:"qtyNos" json:"qtyNos"`
	UnitCostJD   float64 `bson:"unitCostJD" json:"unitCostJD"`
	UnitPriceJD  float64 `bson:"unitPriceJD" json:"unitPriceJD"`
	CostOnPosJD  float64 `bson:"costOnPosJD" json:"costOnPosJD"`
	TotalSalesJD float64 `bson:"totalSalesJD" json:"totalSalesJD"`
}

// LineItem is a LineItemInput enriched with derived cost and variance figures.
// Which derived fields are populated depends on the calculation profile.
type LineItem struct {
	LineItemInput `bson:",inline"`

	ImpliedSalesJD float64 `bson:"impliedSalesJD" json:"impliedSalesJD"`
	// SalesImplied reports that TotalSalesJD was blank and filled from
	// ImpliedSalesJD, so the row can be re-derived under other settings.
	SalesImplied bool    `bson:"salesImplied" json:"salesImplied"`
	VariancePct  float64 `bson:"variancePct" json:"variancePct"`

	// POS variance profile.
	TotalCostJD       float64 `bson:"totalCostJD" json:"totalCostJD"`
	CostVarianceJD    float64 `bson:"costVarianceJD" json:"costVarianceJD"`
	DayFoodCostPct    float64 `bson:"dayFoodCostPct" json:"dayFoodCostPct"`
	RecipeFoodCostPct float64 `bson:"recipeFoodCostPct" json:"recipeFoodCostPct"`
	TotalVarianceJD   float64 `bson:"totalVarianceJD" json:"totalVarianceJD"`

	// Implied sales profile.
	LineCostJD      float64 `bson:"lineCostJD" json:"lineCostJD"`
	VarianceValueJD float64 `bson:"varianceValueJD" json:"varianceValueJD"`

	CreatedAt *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// DailySummary aggregates every line item of one restaurant day. It is always
// rebuilt from the full item set.
type DailySummary struct {
	TotalCostJD       float64    `bson:"totalCostJD" json:"totalCostJD"`
	TotalSalesJD      float64    `bson:"totalSalesJD" json:"totalSalesJD"`
	ParCstJD          float64    `bson:"parCstJD" json:"parCstJD"`
	FoodCostPct       float64    `bson:"foodCostPct" json:"foodCostPct"`
	TotalCostOnPosJD  float64    `bson:"totalCostOnPosJD" json:"totalCostOnPosJD"`
	TotalVarianceJD   float64    `bson:"totalVarianceJD" json:"totalVarianceJD"`
	RecipeFoodCostPct float64    `bson:"recipeFoodCostPct" json:"recipeFoodCostPct"`
	VariancePct       float64    `bson:"variancePct" json:"variancePct"`
	UpdatedAt         *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// DaySnapshot is the full state of a worksheet day as seen by clients.
type DaySnapshot struct {
	RestaurantID string       `json:"restaurantId"`
	Date         string       `json:"date"`
	Items        []LineItem   `json:"items"`
	Summary      DailySummary `json:"summary"`
	Settings     DaySettings  `json:"settings"`
}

// Input returns the values the user entered, undoing implied sales
// substitution.
func (i LineItem) Input() LineItemInput {
	in := i.LineItemInput
	if i.SalesImplied {
		in.TotalSalesJD = 0
	}
	return in
}

// DayOverview is the entry shown in the recent days list.
type DayOverview struct {
	Date    string       `json:"date"`
	Summary DailySummary `json:"summary"`
}

// DayBatch groups the writes that must land together for one day.
type DayBatch struct {
	Upserts []LineItem
	Deletes []string
	// DeleteAll removes every stored item of the day before Upserts are applied.
	DeleteAll bool
	Summary   DailySummary
	// Settings is only written when non-nil.
	Settings *DaySettings
}
