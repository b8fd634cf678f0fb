package reporting

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/csvio"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/internal/format"
	repo "github.com/mamadbah2/foodcost/internal/repository/sheets"
)

const summaryLabel = "Daily summary"

// DayReader is the part of the worksheet service used for reports.
type DayReader interface {
	ListActiveRestaurants(ctx context.Context) ([]models.Restaurant, error)
	GetDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error)
}

// Service builds daily digests and publishes days to Google Sheets.
type Service struct {
	days    DayReader
	sheets  repo.Repository
	profile calc.Profile
	logger  *zap.Logger
}

// NewService wires a new reporting service instance. sheetsRepo may be nil to
// disable publishing.
func NewService(days DayReader, sheetsRepo repo.Repository, profile calc.Profile, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{days: days, sheets: sheetsRepo, profile: profile, logger: logger}
}

// PublishingEnabled reports whether a Sheets repository is configured.
func (s *Service) PublishingEnabled() bool {
	return s.sheets != nil
}

// DailyDigest summarises one date across every active restaurant.
func (s *Service) DailyDigest(ctx context.Context, date string) (string, error) {
	restaurants, err := s.days.ListActiveRestaurants(ctx)
	if err != nil {
		return "", fmt.Errorf("load restaurants: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Food cost digest for %s\n", date)
	if len(restaurants) == 0 {
		b.WriteString("No active restaurants.")
		return b.String(), nil
	}

	var total totals
	for _, restaurant := range restaurants {
		day, err := s.days.GetDay(ctx, restaurant.ID, date)
		if err != nil {
			return "", fmt.Errorf("load day for %s: %w", restaurant.Name, err)
		}
		if len(day.Items) == 0 {
			fmt.Fprintf(&b, "- %s: no entries\n", restaurant.Name)
			continue
		}
		total.add(day.Summary)
		fmt.Fprintf(&b, "- %s: %s\n", restaurant.Name, s.describe(day.Summary, len(day.Items)))
	}

	if total.days == 0 {
		b.WriteString("No worksheet entries recorded.")
		return b.String(), nil
	}
	fmt.Fprintf(&b, "Total: sales %s, cost %s, food cost %s",
		format.Currency(total.sales),
		format.Currency(total.cost),
		format.Percent(total.foodCostPct(s.profile)),
	)
	return b.String(), nil
}

func (s *Service) describe(summary models.DailySummary, items int) string {
	parts := []string{
		"sales " + format.Currency(summary.TotalSalesJD),
		"cost " + format.Currency(summary.TotalCostJD),
		"food cost " + format.Percent(summary.FoodCostPct),
	}
	if s.profile == calc.ProfileImplied {
		parts = append(parts, "margin "+format.Currency(summary.ParCstJD))
	} else {
		parts = append(parts,
			"recipe "+format.Percent(summary.RecipeFoodCostPct),
			"variance "+format.Percent(summary.VariancePct),
			"over POS "+format.Currency(summary.ParCstJD),
		)
	}
	noun := "items"
	if items == 1 {
		noun = "item"
	}
	return fmt.Sprintf("%s (%d %s)", strings.Join(parts, ", "), items, noun)
}

// PublishDay appends one row per item plus a summary row to the sheet. Each
// row starts with the date and restaurant name followed by the export columns.
func (s *Service) PublishDay(ctx context.Context, restaurant models.Restaurant, day models.DaySnapshot) error {
	if s.sheets == nil || len(day.Items) == 0 {
		return nil
	}

	rows := s.sheetRows(restaurant, day)
	if err := s.sheets.AppendRows(ctx, rows); err != nil {
		return fmt.Errorf("publish %s %s: %w", restaurant.Name, day.Date, err)
	}

	s.logger.Info("day published to sheets",
		zap.String("restaurant_id", restaurant.ID),
		zap.String("date", day.Date),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func (s *Service) sheetRows(restaurant models.Restaurant, day models.DaySnapshot) [][]interface{} {
	rows := make([][]interface{}, 0, len(day.Items)+1)
	for _, item := range day.Items {
		row := []interface{}{day.Date, restaurant.Name}
		for _, cell := range csvio.Row(item, s.profile) {
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return append(rows, s.summaryRow(restaurant, day))
}

// summaryRow lines the day totals up under the matching export columns.
func (s *Service) summaryRow(restaurant models.Restaurant, day models.DaySnapshot) []interface{} {
	sum := day.Summary
	round := func(v float64) interface{} { return format.Round(v, format.CurrencyDigits) }

	if s.profile == calc.ProfileImplied {
		// Category..Total Sales, Implied Sales, Line Cost, Variance (JD)
		return []interface{}{
			day.Date, restaurant.Name, summaryLabel, "", "", "", "", "",
			round(sum.TotalSalesJD), "", round(sum.TotalCostJD), round(sum.ParCstJD),
		}
	}
	// Category..Cost on POS, Total Sales, Total Cost, Cost Variance,
	// Day Food Cost, Recipe Food Cost, Variance, Total Variance
	return []interface{}{
		day.Date, restaurant.Name, summaryLabel, "", "", "", "",
		round(sum.TotalCostOnPosJD), round(sum.TotalSalesJD), round(sum.TotalCostJD), round(sum.ParCstJD),
		round(sum.FoodCostPct), round(sum.RecipeFoodCostPct), round(sum.VariancePct), round(sum.TotalVarianceJD),
	}
}

type totals struct {
	days      int
	sales     float64
	cost      float64
	costOnPos float64
}

func (t *totals) add(summary models.DailySummary) {
	t.days++
	t.sales += summary.TotalSalesJD
	t.cost += summary.TotalCostJD
	t.costOnPos += summary.TotalCostOnPosJD
}

// foodCostPct mirrors the day food cost of the profile over all restaurants.
func (t totals) foodCostPct(profile calc.Profile) float64 {
	if t.sales <= 0 {
		return 0
	}
	if profile == calc.ProfileImplied {
		return t.cost / t.sales * 100
	}
	return t.costOnPos / t.sales * 100
}
