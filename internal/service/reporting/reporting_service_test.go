package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/domain/models"
)

type fakeDays struct {
	restaurants []models.Restaurant
	days        map[string]models.DaySnapshot
	err         error
}

func (f *fakeDays) ListActiveRestaurants(context.Context) ([]models.Restaurant, error) {
	return f.restaurants, f.err
}

func (f *fakeDays) GetDay(_ context.Context, restaurantID, date string) (models.DaySnapshot, error) {
	if day, ok := f.days[restaurantID]; ok {
		return day, nil
	}
	return models.DaySnapshot{RestaurantID: restaurantID, Date: date}, nil
}

type fakeSheets struct {
	rows [][]interface{}
	err  error
}

func (f *fakeSheets) AppendRows(_ context.Context, rows [][]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func fixtureDay(profile calc.Profile) models.DaySnapshot {
	engine := calc.NewEngine(profile)
	items := engine.DeriveAll([]models.LineItemInput{
		{ID: "1", Category: "Mains", MenuItem: "Burger", QtyNos: 2, UnitCostJD: 3, UnitPriceJD: 6, CostOnPosJD: 5, TotalSalesJD: 12},
		{ID: "2", Category: "Mains", MenuItem: "Mansaf", QtyNos: 1, UnitCostJD: 5, UnitPriceJD: 10, CostOnPosJD: 4, TotalSalesJD: 10},
	}, models.DefaultSettings())
	return models.DaySnapshot{RestaurantID: "a", Date: "2024-05-01", Items: items, Summary: engine.Aggregate(items)}
}

func TestDailyDigest(t *testing.T) {
	days := &fakeDays{
		restaurants: []models.Restaurant{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
		days:        map[string]models.DaySnapshot{"a": fixtureDay(calc.ProfilePOS)},
	}
	svc := NewService(days, nil, calc.ProfilePOS, nil)

	digest, err := svc.DailyDigest(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	for _, want := range []string{
		"Food cost digest for 2024-05-01",
		"- Alpha: sales JOD 22.000, cost JOD 11.000, food cost 40.9%, recipe 50.0%, variance 9.1%, over POS JOD 2.000 (2 items)",
		"- Beta: no entries",
		"Total: sales JOD 22.000, cost JOD 11.000, food cost 40.9%",
	} {
		if !strings.Contains(digest, want) {
			t.Fatalf("digest missing %q:\n%s", want, digest)
		}
	}
}

func TestDailyDigestImpliedProfile(t *testing.T) {
	days := &fakeDays{
		restaurants: []models.Restaurant{{ID: "a", Name: "Alpha"}},
		days:        map[string]models.DaySnapshot{"a": fixtureDay(calc.ProfileImplied)},
	}
	svc := NewService(days, nil, calc.ProfileImplied, nil)

	digest, err := svc.DailyDigest(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !strings.Contains(digest, "food cost 50.0%, margin JOD 11.000 (2 items)") {
		t.Fatalf("unexpected digest:\n%s", digest)
	}
}

func TestDailyDigestWithoutData(t *testing.T) {
	svc := NewService(&fakeDays{}, nil, calc.ProfilePOS, nil)
	digest, err := svc.DailyDigest(context.Background(), "2024-05-01")
	if err != nil || !strings.HasSuffix(digest, "No active restaurants.") {
		t.Fatalf("unexpected digest %q, %v", digest, err)
	}

	svc = NewService(&fakeDays{err: errors.New("boom")}, nil, calc.ProfilePOS, nil)
	if _, err := svc.DailyDigest(context.Background(), "2024-05-01"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPublishDay(t *testing.T) {
	sheets := &fakeSheets{}
	svc := NewService(&fakeDays{}, sheets, calc.ProfilePOS, nil)
	restaurant := models.Restaurant{ID: "a", Name: "Alpha"}

	if err := svc.PublishDay(context.Background(), restaurant, fixtureDay(calc.ProfilePOS)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sheets.rows) != 3 {
		t.Fatalf("expected 2 item rows and a summary, got %d", len(sheets.rows))
	}
	first := sheets.rows[0]
	if len(first) != 15 || first[0] != "2024-05-01" || first[1] != "Alpha" || first[3] != "Burger" {
		t.Fatalf("unexpected item row %v", first)
	}
	summary := sheets.rows[2]
	if len(summary) != 15 || summary[2] != summaryLabel || summary[9] != 11.0 || summary[10] != 2.0 {
		t.Fatalf("unexpected summary row %v", summary)
	}
}

func TestPublishDaySkipsWhenDisabledOrEmpty(t *testing.T) {
	restaurant := models.Restaurant{ID: "a", Name: "Alpha"}

	disabled := NewService(&fakeDays{}, nil, calc.ProfilePOS, nil)
	if disabled.PublishingEnabled() {
		t.Fatalf("publishing should be disabled")
	}
	if err := disabled.PublishDay(context.Background(), restaurant, fixtureDay(calc.ProfilePOS)); err != nil {
		t.Fatalf("disabled publish: %v", err)
	}

	sheets := &fakeSheets{err: errors.New("quota")}
	svc := NewService(&fakeDays{}, sheets, calc.ProfilePOS, nil)
	if err := svc.PublishDay(context.Background(), restaurant, models.DaySnapshot{Date: "2024-05-01"}); err != nil {
		t.Fatalf("empty day should not publish: %v", err)
	}
	if err := svc.PublishDay(context.Background(), restaurant, fixtureDay(calc.ProfilePOS)); err == nil {
		t.Fatalf("expected sheets error")
	}
}
