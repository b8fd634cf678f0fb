package calc

import (
	"fmt"
	"strings"

	"github.com/mamadbah2/foodcost/internal/domain/models"
)

// Profile selects the variance policy used to derive and aggregate items.
type Profile string

const (
	// ProfilePOS compares computed cost against the cost recorded by the POS.
	ProfilePOS Profile = "pos"
	// ProfileImplied compares computed cost against recorded or implied sales.
	ProfileImplied Profile = "implied"
)

// ParseProfile validates a profile name. An empty name selects ProfilePOS.
func ParseProfile(name string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(name))) {
	case "", ProfilePOS:
		return ProfilePOS, nil
	case ProfileImplied:
		return ProfileImplied, nil
	default:
		return "", fmt.Errorf("unknown calculation profile %q", name)
	}
}

// Engine binds the derive and aggregate functions of one profile.
type Engine struct {
	Profile Profile
}

// NewEngine returns an engine for the given profile.
func NewEngine(profile Profile) Engine {
	return Engine{Profile: profile}
}

// Derive computes the derived fields of a single line item.
func (e Engine) Derive(input models.LineItemInput, settings models.DaySettings) models.LineItem {
	if e.Profile == ProfileImplied {
		return DeriveImpliedLineItem(input, settings)
	}
	return DeriveLineItem(input, settings)
}

// DeriveAll derives every input with the same settings, preserving order.
func (e Engine) DeriveAll(inputs []models.LineItemInput, settings models.DaySettings) []models.LineItem {
	items := make([]models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, e.Derive(in, settings))
	}
	return items
}

// Aggregate reduces derived items into a daily summary.
func (e Engine) Aggregate(items []models.LineItem) models.DailySummary {
	if e.Profile == ProfileImplied {
		return AggregateImpliedSummary(items)
	}
	return AggregateSummary(items)
}
