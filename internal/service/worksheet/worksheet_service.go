// Package worksheet applies user edits to restaurant days. Every write
// re-derives the touched items, re-aggregates the whole day and commits items
// and summary together.
package worksheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mamadbah2/foodcost/internal/calc"
	"github.com/mamadbah2/foodcost/internal/csvio"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/internal/metrics"
)

// RecentDaysLimit caps the recent days list.
const RecentDaysLimit = 30

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
	// ErrEmptyName is returned when a restaurant name is blank.
	ErrEmptyName = errors.New("restaurant name is required")
	// ErrNotFound aliases models.ErrNotFound for callers of this package.
	ErrNotFound = models.ErrNotFound
)

// Service coordinates the calculation engine with a Store.
type Service struct {
	store   Store
	engine  calc.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	locks   dayLocks
}

// NewService wires a worksheet service. metrics may be nil.
func NewService(store Store, engine calc.Engine, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		engine:  engine,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// UpsertItem normalises draft, derives it with the day's settings and stores it
// together with the recomputed summary. It returns the item id.
func (s *Service) UpsertItem(ctx context.Context, restaurantID, date string, draft ItemDraft) (string, error) {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return "", err
	}
	defer s.locks.lock(dayKey(restaurantID, date))()

	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		return "", err
	}

	item := s.engine.Derive(draft.Normalize(), day.Settings)
	s.metrics.ItemsDerived(string(s.engine.Profile), 1)
	items := mergeItems(day.Items, []models.LineItem{item})

	batch := models.DayBatch{
		Upserts: []models.LineItem{item},
		Summary: s.summarize(items),
	}
	if err := s.commit(ctx, restaurantID, date, batch, "upsert_item"); err != nil {
		return "", err
	}

	s.logger.Debug("line item saved",
		zap.String("restaurant_id", restaurantID),
		zap.String("date", date),
		zap.String("item_id", item.ID),
	)
	return item.ID, nil
}

// DeleteItem removes one item and recomputes the summary.
func (s *Service) DeleteItem(ctx context.Context, restaurantID, date, itemID string) error {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return err
	}
	defer s.locks.lock(dayKey(restaurantID, date))()

	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		return err
	}

	remaining := make([]models.LineItem, 0, len(day.Items))
	found := false
	for _, item := range day.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return fmt.Errorf("line item %s: %w", itemID, ErrNotFound)
	}

	batch := models.DayBatch{
		Deletes: []string{itemID},
		Summary: s.summarize(remaining),
	}
	return s.commit(ctx, restaurantID, date, batch, "delete_item")
}

// ClearDay deletes every item of the day and resets its summary and settings.
func (s *Service) ClearDay(ctx context.Context, restaurantID, date string) error {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return err
	}
	defer s.locks.lock(dayKey(restaurantID, date))()

	settings := models.DefaultSettings()
	batch := models.DayBatch{
		DeleteAll: true,
		Summary:   s.summarize(nil),
		Settings:  &settings,
	}
	return s.commit(ctx, restaurantID, date, batch, "clear_day")
}

// ImportItems derives inputs with the day's settings and merges them by id
// over the stored items. It returns the number of imported rows.
func (s *Service) ImportItems(ctx context.Context, restaurantID, date string, inputs []models.LineItemInput) (int, error) {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	defer s.locks.lock(dayKey(restaurantID, date))()

	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		return 0, err
	}

	derived := make([]models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.ID) == "" {
			in.ID = uuid.NewString()
		}
		derived = append(derived, s.engine.Derive(in, day.Settings))
	}
	s.metrics.ItemsDerived(string(s.engine.Profile), len(derived))

	batch := models.DayBatch{
		Upserts: derived,
		Summary: s.summarize(mergeItems(day.Items, derived)),
	}
	if err := s.commit(ctx, restaurantID, date, batch, "import_items"); err != nil {
		return 0, err
	}

	s.logger.Info("line items imported",
		zap.String("restaurant_id", restaurantID),
		zap.String("date", date),
		zap.Int("count", len(derived)),
	)
	return len(derived), nil
}

// ImportCSV parses CSV rows and imports them.
func (s *Service) ImportCSV(ctx context.Context, restaurantID, date string, r io.Reader) (int, error) {
	inputs, err := csvio.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("parse import: %w", err)
	}
	return s.ImportItems(ctx, restaurantID, date, inputs)
}

// ExportCSV writes the day's items as CSV in the engine's column layout.
func (s *Service) ExportCSV(ctx context.Context, restaurantID, date string, w io.Writer) error {
	day, err := s.GetDay(ctx, restaurantID, date)
	if err != nil {
		return err
	}
	if err := csvio.Write(w, day.Items, s.engine.Profile); err != nil {
		return fmt.Errorf("export day %s: %w", date, err)
	}
	return nil
}

// UpdateSettings stores new day settings and re-derives every item under them.
func (s *Service) UpdateSettings(ctx context.Context, restaurantID, date string, settings models.DaySettings) (models.DaySnapshot, error) {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return models.DaySnapshot{}, err
	}
	unlock := s.locks.lock(dayKey(restaurantID, date))

	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		unlock()
		return models.DaySnapshot{}, err
	}

	items := make([]models.LineItem, 0, len(day.Items))
	for _, item := range day.Items {
		items = append(items, s.engine.Derive(item.Input(), settings))
	}
	s.metrics.ItemsDerived(string(s.engine.Profile), len(items))

	batch := models.DayBatch{
		Upserts:  items,
		Summary:  s.summarize(items),
		Settings: &settings,
	}
	err = s.commit(ctx, restaurantID, date, batch, "update_settings")
	unlock()
	if err != nil {
		return models.DaySnapshot{}, err
	}
	return s.GetDay(ctx, restaurantID, date)
}

// Recompute rebuilds the day summary from the stored items. Days with no
// stored state are left untouched.
func (s *Service) Recompute(ctx context.Context, restaurantID, date string) (models.DailySummary, error) {
	if err := s.checkWrite(ctx, restaurantID, date); err != nil {
		return models.DailySummary{}, err
	}
	defer s.locks.lock(dayKey(restaurantID, date))()

	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		return models.DailySummary{}, err
	}
	// A day that was never written stays absent from the recent days list.
	if len(day.Items) == 0 && day.Summary.UpdatedAt == nil {
		return s.engine.Aggregate(nil), nil
	}

	batch := models.DayBatch{Summary: s.summarize(day.Items)}
	if err := s.commit(ctx, restaurantID, date, batch, "recompute"); err != nil {
		return models.DailySummary{}, err
	}
	return batch.Summary, nil
}

// GetDay returns the day with items ordered by menu item.
func (s *Service) GetDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error) {
	if err := validateDay(restaurantID, date); err != nil {
		return models.DaySnapshot{}, err
	}
	day, err := s.loadDay(ctx, restaurantID, date)
	if err != nil {
		return models.DaySnapshot{}, err
	}
	if day.Items == nil {
		day.Items = []models.LineItem{}
	}
	col := newCollator()
	sort.SliceStable(day.Items, func(i, j int) bool {
		return col.CompareString(day.Items[i].MenuItem, day.Items[j].MenuItem) < 0
	})
	return day, nil
}

// ListRecentDays returns the most recently updated days of a restaurant.
func (s *Service) ListRecentDays(ctx context.Context, restaurantID string) ([]models.DayOverview, error) {
	if strings.TrimSpace(restaurantID) == "" {
		return nil, fmt.Errorf("restaurant id is required: %w", ErrNotFound)
	}
	days, err := s.store.ListRecentDays(ctx, restaurantID, RecentDaysLimit)
	if err != nil {
		s.metrics.StoreFailed("list_recent_days")
		return nil, fmt.Errorf("list recent days %s: %w", restaurantID, err)
	}
	return days, nil
}

// SubscribeDay calls fn with the current snapshot and again after every change
// to the day. Calls to fn are sequential. The returned function ends the
// subscription; cancelling ctx does too.
func (s *Service) SubscribeDay(ctx context.Context, restaurantID, date string, fn func(models.DaySnapshot)) (func(), error) {
	if err := validateDay(restaurantID, date); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	stopWatch, err := s.store.WatchDay(ctx, restaurantID, date, notify)
	if err != nil {
		cancel()
		s.metrics.StoreFailed("watch_day")
		return nil, fmt.Errorf("watch day %s/%s: %w", restaurantID, date, err)
	}

	initial, err := s.GetDay(ctx, restaurantID, date)
	if err != nil {
		stopWatch()
		cancel()
		return nil, err
	}

	done := s.metrics.SubscriberAdded()
	go func() {
		defer done()
		fn(initial)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				snapshot, err := s.GetDay(ctx, restaurantID, date)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("reload subscribed day failed",
							zap.String("restaurant_id", restaurantID),
							zap.String("date", date),
							zap.Error(err),
						)
					}
					continue
				}
				if ctx.Err() != nil {
					return
				}
				fn(snapshot)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stopWatch()
		})
	}, nil
}

// CreateRestaurant registers a new active restaurant.
func (s *Service) CreateRestaurant(ctx context.Context, name string) (models.Restaurant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Restaurant{}, ErrEmptyName
	}
	now := s.now().UTC()
	restaurant := models.Restaurant{
		ID:        uuid.NewString(),
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertRestaurant(ctx, restaurant); err != nil {
		s.metrics.StoreFailed("insert_restaurant")
		return models.Restaurant{}, fmt.Errorf("insert restaurant: %w", err)
	}
	s.logger.Info("restaurant created", zap.String("restaurant_id", restaurant.ID), zap.String("name", name))
	return restaurant, nil
}

// RenameRestaurant changes the display name of a restaurant.
func (s *Service) RenameRestaurant(ctx context.Context, id, name string) (models.Restaurant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Restaurant{}, ErrEmptyName
	}
	return s.updateRestaurant(ctx, id, models.RestaurantPatch{Name: &name}, "rename_restaurant")
}

// ArchiveRestaurant hides a restaurant from the active list. Its days are kept.
func (s *Service) ArchiveRestaurant(ctx context.Context, id string) (models.Restaurant, error) {
	inactive := false
	return s.updateRestaurant(ctx, id, models.RestaurantPatch{IsActive: &inactive}, "archive_restaurant")
}

// GetRestaurant looks up one restaurant, archived or not.
func (s *Service) GetRestaurant(ctx context.Context, id string) (models.Restaurant, error) {
	restaurant, err := s.store.GetRestaurant(ctx, id)
	if err != nil {
		return models.Restaurant{}, fmt.Errorf("get restaurant %s: %w", id, err)
	}
	return restaurant, nil
}

// ListActiveRestaurants returns active restaurants ordered by name, ignoring case.
func (s *Service) ListActiveRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	restaurants, err := s.store.ListRestaurants(ctx, true)
	if err != nil {
		s.metrics.StoreFailed("list_restaurants")
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	col := newCollator()
	sort.SliceStable(restaurants, func(i, j int) bool {
		return col.CompareString(restaurants[i].Name, restaurants[j].Name) < 0
	})
	return restaurants, nil
}

func (s *Service) updateRestaurant(ctx context.Context, id string, patch models.RestaurantPatch, operation string) (models.Restaurant, error) {
	restaurant, err := s.store.UpdateRestaurant(ctx, id, patch)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.StoreFailed(operation)
		}
		return models.Restaurant{}, fmt.Errorf("update restaurant %s: %w", id, err)
	}
	return restaurant, nil
}

func (s *Service) loadDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error) {
	day, err := s.store.LoadDay(ctx, restaurantID, date)
	if err != nil {
		s.metrics.StoreFailed("load_day")
		return models.DaySnapshot{}, fmt.Errorf("load day %s/%s: %w", restaurantID, date, err)
	}
	return day, nil
}

func (s *Service) summarize(items []models.LineItem) models.DailySummary {
	summary := s.engine.Aggregate(items)
	now := s.now().UTC()
	summary.UpdatedAt = &now
	return summary
}

func (s *Service) commit(ctx context.Context, restaurantID, date string, batch models.DayBatch, operation string) error {
	if err := s.store.CommitDay(ctx, restaurantID, date, batch); err != nil {
		s.metrics.StoreFailed(operation)
		s.logger.Error("commit day failed",
			zap.String("operation", operation),
			zap.String("restaurant_id", restaurantID),
			zap.String("date", date),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s/%s: %w", strings.ReplaceAll(operation, "_", " "), restaurantID, date, err)
	}
	s.metrics.SummaryWritten(operation)
	return nil
}

// mergeItems replaces existing items by id and appends new ones.
func mergeItems(existing, updates []models.LineItem) []models.LineItem {
	index := make(map[string]int, len(existing))
	merged := make([]models.LineItem, 0, len(existing)+len(updates))
	for _, item := range existing {
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	for _, item := range updates {
		if i, ok := index[item.ID]; ok {
			merged[i] = item
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// ValidateDate checks that date is a calendar day in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, date)
	}
	return nil
}

// checkWrite validates the day key and requires the restaurant to exist,
// archived or not.
func (s *Service) checkWrite(ctx context.Context, restaurantID, date string) error {
	if err := validateDay(restaurantID, date); err != nil {
		return err
	}
	if _, err := s.store.GetRestaurant(ctx, restaurantID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.StoreFailed("get_restaurant")
		}
		return err
	}
	return nil
}

func validateDay(restaurantID, date string) error {
	if strings.TrimSpace(restaurantID) == "" {
		return fmt.Errorf("restaurant id is required: %w", ErrNotFound)
	}
	return ValidateDate(date)
}

func dayKey(restaurantID, date string) string {
	return restaurantID + "/" + date
}

// newCollator returns a case-insensitive collator. Collators are not safe
// for concurrent use.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}
