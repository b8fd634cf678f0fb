package worksheet

import (
	"context"

	"github.com/mamadbah2/foodcost/internal/domain/models"
)

// Store persists restaurants, worksheet days and their line items.
//
// Implementations return models.ErrNotFound (possibly wrapped) for missing
// restaurants. A day that was never written is not an error: LoadDay returns an
// empty snapshot with default settings.
type Store interface {
	ListRestaurants(ctx context.Context, activeOnly bool) ([]models.Restaurant, error)
	GetRestaurant(ctx context.Context, id string) (models.Restaurant, error)
	InsertRestaurant(ctx context.Context, restaurant models.Restaurant) error
	UpdateRestaurant(ctx context.Context, id string, patch models.RestaurantPatch) (models.Restaurant, error)

	LoadDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error)
	LoadItems(ctx context.Context, restaurantID, date string) ([]models.LineItem, error)
	ListRecentDays(ctx context.Context, restaurantID string, limit int) ([]models.DayOverview, error)

	// CommitDay applies every write of batch atomically. Item timestamps are
	// set by the store; createdAt survives later upserts of the same id.
	CommitDay(ctx context.Context, restaurantID, date string, batch models.DayBatch) error

	// WatchDay calls notify after each change to the day until the returned
	// function is called or ctx is done. notify must not block.
	WatchDay(ctx context.Context, restaurantID, date string, notify func()) (func(), error)

	Close(ctx context.Context) error
}
