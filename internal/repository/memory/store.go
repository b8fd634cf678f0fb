// Package memory keeps restaurants and worksheet days in process memory. It is
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mamadbah2/foodcost/internal/domain/models"
)

type day struct {
	items    map[string]models.LineItem
	summary  models.DailySummary
	settings models.DaySettings
	written  bool
}

type watcher struct {
	key    string
	notify func()
}

// Store is a mutex-guarded in-memory store safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	restaurants map[string]models.Restaurant
	days        map[string]*day
	watchers    map[int]watcher
	nextWatch   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:         time.Now,
		restaurants: make(map[string]models.Restaurant),
		days:        make(map[string]*day),
		watchers:    make(map[int]watcher),
	}
}

// ListRestaurants returns restaurants in no particular order.
func (s *Store) ListRestaurants(_ context.Context, activeOnly bool) ([]models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRestaurant returns models.ErrNotFound when id is unknown.
func (s *Store) GetRestaurant(_ context.Context, id string) (models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.restaurants[id]
	if !ok {
		return models.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, models.ErrNotFound)
	}
	return r, nil
}

// InsertRestaurant stores a new restaurant.
func (s *Store) InsertRestaurant(_ context.Context, restaurant models.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.restaurants[restaurant.ID]; exists {
		return fmt.Errorf("restaurant %s already exists", restaurant.ID)
	}
	s.restaurants[restaurant.ID] = restaurant
	return nil
}

// UpdateRestaurant applies the non-nil fields of patch.
func (s *Store) UpdateRestaurant(_ context.Context, id string, patch models.RestaurantPatch) (models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.restaurants[id]
	if !ok {
		return models.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, models.ErrNotFound)
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.IsActive != nil {
		r.IsActive = *patch.IsActive
	}
	r.UpdatedAt = s.now().UTC()
	s.restaurants[id] = r
	return r, nil
}

// LoadDay returns the day or an empty snapshot with default settings.
func (s *Store) LoadDay(_ context.Context, restaurantID, date string) (models.DaySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := models.DaySnapshot{
		RestaurantID: restaurantID,
		Date:         date,
		Items:        []models.LineItem{},
		Settings:     models.DefaultSettings(),
	}
	d, ok := s.days[dayKey(restaurantID, date)]
	if !ok {
		return snapshot, nil
	}
	snapshot.Items = sortedItems(d)
	snapshot.Summary = d.summary
	snapshot.Settings = d.settings
	return snapshot, nil
}

// LoadItems returns the stored items of a day.
func (s *Store) LoadItems(_ context.Context, restaurantID, date string) ([]models.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.days[dayKey(restaurantID, date)]
	if !ok {
		return []models.LineItem{}, nil
	}
	return sortedItems(d), nil
}

// ListRecentDays orders days by summary update time, newest first.
func (s *Store) ListRecentDays(_ context.Context, restaurantID string, limit int) ([]models.DayOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := restaurantID + "/"
	var out []models.DayOverview
	for key, d := range s.days {
		if !d.written || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, models.DayOverview{Date: strings.TrimPrefix(key, prefix), Summary: d.summary})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Summary.UpdatedAt, out[j].Summary.UpdatedAt
		switch {
		case a == nil || b == nil:
			if a == nil && b == nil {
				return out[i].Date > out[j].Date
			}
			return b == nil
		case a.Equal(*b):
			return out[i].Date > out[j].Date
		default:
			return a.After(*b)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CommitDay applies batch under the store lock and then notifies watchers.
func (s *Store) CommitDay(_ context.Context, restaurantID, date string, batch models.DayBatch) error {
	key := dayKey(restaurantID, date)
	now := s.now().UTC()

	s.mu.Lock()
	d, ok := s.days[key]
	if !ok {
		d = &day{items: make(map[string]models.LineItem), settings: models.DefaultSettings()}
		s.days[key] = d
	}
	if batch.DeleteAll {
		d.items = make(map[string]models.LineItem)
	}
	for _, id := range batch.Deletes {
		delete(d.items, id)
	}
	for _, item := range batch.Upserts {
		created := now
		if prev, exists := d.items[item.ID]; exists && prev.CreatedAt != nil {
			created = *prev.CreatedAt
		}
		updated := now
		item.CreatedAt = &created
		item.UpdatedAt = &updated
		d.items[item.ID] = item
	}
	d.summary = batch.Summary
	if d.summary.UpdatedAt == nil {
		stamped := now
		d.summary.UpdatedAt = &stamped
	}
	if batch.Settings != nil {
		d.settings = *batch.Settings
	}
	d.written = true

	var notify []func()
	for _, w := range s.watchers {
		if w.key == key {
			notify = append(notify, w.notify)
		}
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// WatchDay registers notify for changes to one day.
func (s *Store) WatchDay(ctx context.Context, restaurantID, date string, notify func()) (func(), error) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = watcher{key: dayKey(restaurantID, date), notify: notify}
	s.mu.Unlock()

	stopped := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(stopped)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-stopped:
		}
	}()
	return stop, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}

func sortedItems(d *day) []models.LineItem {
	items := make([]models.LineItem, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].MenuItem == items[j].MenuItem {
			return items[i].ID < items[j].ID
		}
		return items[i].MenuItem < items[j].MenuItem
	})
	return items
}

func dayKey(restaurantID, date string) string {
	return restaurantID + "/" + date
}
