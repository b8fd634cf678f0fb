package worksheet_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/csvio"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/internal/repository/memory"
	"github.com/mamadbah2/foodcost/internal/service/worksheet"
)

const (
	restaurantID = "r1"
	day          = "2024-05-01"
)

func newService(profile calc.Profile) (*worksheet.Service, *memory.Store) {
	store := memory.NewStore()
	if err := store.InsertRestaurant(context.Background(), models.Restaurant{ID: restaurantID, Name: "Main", IsActive: true}); err != nil {
		panic(err)
	}
	return worksheet.NewService(store, calc.NewEngine(profile), nil, nil), store
}

func closeTo(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-4 {
		t.Fatalf("%s: expected %.4f, got %.4f", name, want, got)
	}
}

func TestUpsertItemRecomputesSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	firstID, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{
		MenuItem: " Burger ", QtyNos: "2", UnitCostJD: 3, UnitPriceJD: "6 JD", CostOnPosJD: 5, TotalSalesJD: 12,
	})
	if err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	if firstID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{
		ID: "soup", MenuItem: "Soup", QtyNos: 1, UnitCostJD: 5, UnitPriceJD: 10, CostOnPosJD: 4, TotalSalesJD: 10,
	}); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	snapshot, err := svc.GetDay(ctx, restaurantID, day)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if len(snapshot.Items) != 2 || snapshot.Items[0].MenuItem != "Burger" {
		t.Fatalf("unexpected items %+v", snapshot.Items)
	}
	closeTo(t, "totalCostJD", snapshot.Summary.TotalCostJD, 11)
	closeTo(t, "totalSalesJD", snapshot.Summary.TotalSalesJD, 22)
	closeTo(t, "parCstJD", snapshot.Summary.ParCstJD, 2)
	closeTo(t, "foodCostPct", snapshot.Summary.FoodCostPct, 40.9091)
	if snapshot.Summary.UpdatedAt == nil {
		t.Fatalf("summary not stamped")
	}

	// Editing an item replaces it and keeps its creation time.
	created := *snapshot.Items[1].CreatedAt
	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{
		ID: "soup", MenuItem: "Soup", QtyNos: 2, UnitCostJD: 5, UnitPriceJD: 10, CostOnPosJD: 4, TotalSalesJD: 10,
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	snapshot, _ = svc.GetDay(ctx, restaurantID, day)
	if len(snapshot.Items) != 2 {
		t.Fatalf("edit duplicated item: %+v", snapshot.Items)
	}
	closeTo(t, "edited totalCostJD", snapshot.Summary.TotalCostJD, 16)
	if !snapshot.Items[1].CreatedAt.Equal(created) {
		t.Fatalf("createdAt changed on edit")
	}
}

func TestItemDraftNormalize(t *testing.T) {
	in := worksheet.ItemDraft{Category: "  Mains ", QtyNos: "1.23456", UnitCostJD: nil, UnitPriceJD: "abc", TotalSalesJD: 2.0005}.Normalize()
	if in.ID == "" || in.Category != "Mains" {
		t.Fatalf("unexpected labels %+v", in)
	}
	closeTo(t, "qtyNos", in.QtyNos, 1.235)
	closeTo(t, "unitCostJD", in.UnitCostJD, 0)
	closeTo(t, "unitPriceJD", in.UnitPriceJD, 0)
	closeTo(t, "totalSalesJD", in.TotalSalesJD, 2.001)
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	for _, id := range []string{"a", "b"} {
		if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{ID: id, QtyNos: 1, UnitCostJD: 2}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	if err := svc.DeleteItem(ctx, restaurantID, day, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snapshot, _ := svc.GetDay(ctx, restaurantID, day)
	if len(snapshot.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(snapshot.Items))
	}
	closeTo(t, "totalCostJD after delete", snapshot.Summary.TotalCostJD, 2)

	if err := svc.DeleteItem(ctx, restaurantID, day, "a"); !errors.Is(err, worksheet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.UpdateSettings(ctx, restaurantID, day, models.DaySettings{UseImpliedSalesWhenBlank: true}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := svc.ClearDay(ctx, restaurantID, day); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snapshot, _ = svc.GetDay(ctx, restaurantID, day)
	if len(snapshot.Items) != 0 || snapshot.Summary.TotalCostJD != 0 || snapshot.Settings.UseImpliedSalesWhenBlank {
		t.Fatalf("day not reset: %+v", snapshot)
	}
}

func TestImportCSVMergesByID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{ID: "keep", MenuItem: "Tea", QtyNos: 1, UnitCostJD: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	body := strings.Join(csvio.InputHeaders, ",") + "\n" +
		"Salads,Greek Salad,10,1.5,3,12,30\n" +
		"\n" +
		"Mains,Burger,2,3,6,5,12\n"
	n, err := svc.ImportCSV(ctx, restaurantID, day, strings.NewReader(body))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported rows, got %d", n)
	}

	snapshot, _ := svc.GetDay(ctx, restaurantID, day)
	if len(snapshot.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(snapshot.Items))
	}
	closeTo(t, "totalCostJD", snapshot.Summary.TotalCostJD, 22)

	if _, err := svc.ImportCSV(ctx, restaurantID, day, strings.NewReader("")); !errors.Is(err, csvio.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)
	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{
		Category: "Salads", MenuItem: "Greek Salad", QtyNos: 10, UnitCostJD: 1.5, UnitPriceJD: 3, CostOnPosJD: 12, TotalSalesJD: 30,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, restaurantID, day, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if lines[1] != "Salads,Greek Salad,10,1.5,3,12,30,15,3,40,50,10,1.5" {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestUpdateSettingsRederivesItems(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfileImplied)

	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{ID: "x", QtyNos: 5, UnitCostJD: 2, UnitPriceJD: 4}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	snapshot, err := svc.UpdateSettings(ctx, restaurantID, day, models.DaySettings{UseImpliedSalesWhenBlank: true})
	if err != nil {
		t.Fatalf("enable implied: %v", err)
	}
	closeTo(t, "implied totalSalesJD", snapshot.Items[0].TotalSalesJD, 20)
	closeTo(t, "summary totalSalesJD", snapshot.Summary.TotalSalesJD, 20)
	closeTo(t, "parCstJD", snapshot.Summary.ParCstJD, 10)

	snapshot, err = svc.UpdateSettings(ctx, restaurantID, day, models.DaySettings{})
	if err != nil {
		t.Fatalf("disable implied: %v", err)
	}
	closeTo(t, "restored totalSalesJD", snapshot.Items[0].TotalSalesJD, 0)
	closeTo(t, "summary foodCostPct", snapshot.Summary.FoodCostPct, 0)
}

func TestRecomputeUsesStoredItems(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(calc.ProfilePOS)

	item := calc.DeriveLineItem(models.LineItemInput{ID: "a", QtyNos: 2, UnitCostJD: 3}, models.DefaultSettings())
	if err := store.CommitDay(ctx, restaurantID, day, models.DayBatch{Upserts: []models.LineItem{item}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	summary, err := svc.Recompute(ctx, restaurantID, day)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	closeTo(t, "totalCostJD", summary.TotalCostJD, 6)

	snapshot, _ := svc.GetDay(ctx, restaurantID, day)
	closeTo(t, "stored totalCostJD", snapshot.Summary.TotalCostJD, 6)
}

func TestRecomputeSkipsUnwrittenDay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{QtyNos: 1, UnitCostJD: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for _, date := range []string{"2024-05-02", "2024-05-03"} {
		summary, err := svc.Recompute(ctx, restaurantID, date)
		if err != nil {
			t.Fatalf("recompute %s: %v", date, err)
		}
		if summary.TotalCostJD != 0 || summary.UpdatedAt != nil {
			t.Fatalf("unexpected summary for %s: %+v", date, summary)
		}
	}

	days, err := svc.ListRecentDays(ctx, restaurantID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 1 || days[0].Date != day {
		t.Fatalf("expected only %s, got %+v", day, days)
	}

	// A cleared day has been written, so it is still recomputed.
	if err := svc.ClearDay(ctx, restaurantID, day); err != nil {
		t.Fatalf("clear: %v", err)
	}
	summary, err := svc.Recompute(ctx, restaurantID, day)
	if err != nil || summary.UpdatedAt == nil {
		t.Fatalf("recompute cleared day: %+v %v", summary, err)
	}
}

func TestWritesRequireKnownRestaurant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)
	const unknown = "no-such-restaurant"

	writes := map[string]func() error{
		"upsert": func() error {
			_, err := svc.UpsertItem(ctx, unknown, day, worksheet.ItemDraft{QtyNos: 1})
			return err
		},
		"delete": func() error { return svc.DeleteItem(ctx, unknown, day, "a") },
		"clear":  func() error { return svc.ClearDay(ctx, unknown, day) },
		"import": func() error {
			_, err := svc.ImportItems(ctx, unknown, day, []models.LineItemInput{{MenuItem: "Tea"}})
			return err
		},
		"settings": func() error {
			_, err := svc.UpdateSettings(ctx, unknown, day, models.DefaultSettings())
			return err
		},
		"recompute": func() error {
			_, err := svc.Recompute(ctx, unknown, day)
			return err
		},
	}
	for name, write := range writes {
		if err := write(); !errors.Is(err, worksheet.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}

	days, err := svc.ListRecentDays(ctx, unknown)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("orphan days written: %+v", days)
	}
}

func TestInvalidDatesRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	for _, date := range []string{"", "2024-5-1", "01/05/2024", "2024-02-30"} {
		if _, err := svc.GetDay(ctx, restaurantID, date); !errors.Is(err, worksheet.ErrInvalidDate) {
			t.Fatalf("date %q: expected ErrInvalidDate, got %v", date, err)
		}
	}
	if _, err := svc.UpsertItem(ctx, "", day, worksheet.ItemDraft{}); !errors.Is(err, worksheet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank restaurant, got %v", err)
	}
}

func TestRestaurants(t *testing.T) {
	ctx := context.Background()
	svc := worksheet.NewService(memory.NewStore(), calc.NewEngine(calc.ProfilePOS), nil, nil)

	if _, err := svc.CreateRestaurant(ctx, "   "); !errors.Is(err, worksheet.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	var ids []string
	for _, name := range []string{"zaatar house", "Beit Sitti", "aleppo grill"} {
		r, err := svc.CreateRestaurant(ctx, name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if !r.IsActive || r.ID == "" {
			t.Fatalf("unexpected restaurant %+v", r)
		}
		ids = append(ids, r.ID)
	}

	renamed, err := svc.RenameRestaurant(ctx, ids[0], " Zaatar House ")
	if err != nil || renamed.Name != "Zaatar House" {
		t.Fatalf("rename: %+v %v", renamed, err)
	}
	if _, err := svc.ArchiveRestaurant(ctx, ids[1]); err != nil {
		t.Fatalf("archive: %v", err)
	}
	archived, err := svc.GetRestaurant(ctx, ids[1])
	if err != nil || archived.IsActive {
		t.Fatalf("archived restaurant: %+v %v", archived, err)
	}
	if _, err := svc.ArchiveRestaurant(ctx, "missing"); !errors.Is(err, worksheet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	active, err := svc.ListActiveRestaurants(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 || active[0].Name != "aleppo grill" || active[1].Name != "Zaatar House" {
		t.Fatalf("unexpected active list %+v", active)
	}
}

func TestListRecentDays(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)
	for _, date := range []string{"2024-05-01", "2024-05-02"} {
		if _, err := svc.UpsertItem(ctx, restaurantID, date, worksheet.ItemDraft{QtyNos: 1}); err != nil {
			t.Fatalf("upsert %s: %v", date, err)
		}
	}
	days, err := svc.ListRecentDays(ctx, restaurantID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %+v", days)
	}
}

func TestSubscribeDay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(calc.ProfilePOS)

	var mu sync.Mutex
	var snapshots []models.DaySnapshot
	updates := make(chan struct{}, 8)
	stop, err := svc.SubscribeDay(ctx, restaurantID, day, func(s models.DaySnapshot) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
		updates <- struct{}{}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	waitFor(t, updates)
	if _, err := svc.UpsertItem(ctx, restaurantID, day, worksheet.ItemDraft{ID: "a", QtyNos: 2, UnitCostJD: 3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	waitFor(t, updates)

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots[0].Items) != 0 {
		t.Fatalf("initial snapshot should be empty: %+v", snapshots[0])
	}
	last := snapshots[len(snapshots)-1]
	if len(last.Items) != 1 {
		t.Fatalf("expected updated snapshot, got %+v", last)
	}
	closeTo(t, "streamed totalCostJD", last.Summary.TotalCostJD, 6)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
}
