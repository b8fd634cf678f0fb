package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/domain/models"
)

func TestParseSkipsHeaderAndBlankRows(t *testing.T) {
	text := "\ufeffCategory,Menu Item,Qty Nos.,Unit Cost (JD),Unit Price (JD),Cost on POS (JD),Total Sales (JD)\nA,B,1,1,1,1,1\n"
	rows, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Category != "A" {
		t.Fatalf("expected the header to be skipped, got %+v", rows)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, text := range []string{"", "\n\n", " , ,\n"} {
		if _, err := Parse(strings.NewReader(text)); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("%q: expected ErrEmptyInput, got %v", text, err)
		}
	}
}

func TestParseHeaderOnly(t *testing.T) {
	rows, err := Parse(strings.NewReader(strings.Join(InputHeaders, ",") + "\n\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}

func TestWritePOSProfile(t *testing.T) {
	item := calc.DeriveLineItem(models.LineItemInput{
		ID: "1", Category: "Salads", MenuItem: "Greek Salad",
		QtyNos: 10, UnitCostJD: 1.5, UnitPriceJD: 3, CostOnPosJD: 12, TotalSalesJD: 30,
	}, models.DaySettings{})

	var buf bytes.Buffer
	if err := Write(&buf, []models.LineItem{item}, calc.ProfilePOS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	wantHeader := "Category,Menu Item,Qty Nos.,Unit Cost (JD),Unit Price (JD),Cost on POS (JD),Total Sales (JD)," +
		"Total Cost (JD),Cost Variance (JD),Day Food Cost (%),Recipe Food Cost (%),Variance (%),Total Variance (JD)"
	if lines[0] != wantHeader {
		t.Fatalf("unexpected header:\n%s", lines[0])
	}
	if lines[1] != "Salads,Greek Salad,10,1.5,3,12,30,15,3,40,50,10,1.5" {
		t.Fatalf("unexpected row:\n%s", lines[1])
	}
}

func TestWriteImpliedProfile(t *testing.T) {
	item := calc.DeriveImpliedLineItem(models.LineItemInput{
		Category: "Mains", MenuItem: "Burger", QtyNos: 2, UnitCostJD: 3, UnitPriceJD: 6, TotalSalesJD: 12,
	}, models.DaySettings{})

	var buf bytes.Buffer
	if err := Write(&buf, []models.LineItem{item}, calc.ProfileImplied); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if got := len(strings.Split(lines[0], ",")); got != 11 {
		t.Fatalf("expected 11 columns, got %d", got)
	}
	if lines[1] != "Mains,Burger,2,3,6,0,12,12,6,6,50" {
		t.Fatalf("unexpected row:\n%s", lines[1])
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []models.LineItemInput{
		{Category: "A, with comma", MenuItem: "Item \"quoted\"", QtyNos: 3, UnitCostJD: 0.125, UnitPriceJD: 2, CostOnPosJD: 0.3, TotalSalesJD: 6},
	}
	items := calc.NewEngine(calc.ProfilePOS).DeriveAll(inputs, models.DaySettings{})

	var buf bytes.Buffer
	if err := Write(&buf, items, calc.ProfilePOS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 row, got %d", len(parsed))
	}
	got := parsed[0]
	got.ID = ""
	if got != inputs[0] {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, inputs[0])
	}
}
