package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/foodcost/internal/domain/models"
)

const (
	restaurantsCollection = "restaurants"
	daysCollection        = "days"
	lineItemsCollection   = "line_items"
)

// dayDocument is stored in the days collection under "<restaurantId>/<date>".
type dayDocument struct {
	ID           string              `bson:"_id"`
	RestaurantID string              `bson:"restaurantId"`
	Date         string              `bson:"date"`
	Summary      models.DailySummary `bson:"summary"`
	Settings     *models.DaySettings `bson:"settings,omitempty"`
}

// itemFields is the mutable part of a line_items document. Its _id is
// "<restaurantId>/<date>/<itemId>".
type itemFields struct {
	RestaurantID    string `bson:"restaurantId"`
	Date            string `bson:"date"`
	models.LineItem `bson:",inline"`
}

// MongoDBRepository persists restaurants and worksheet days in MongoDB.
// CommitDay uses multi-document transactions and WatchDay uses change streams,
// so the server must run as a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	now    func() time.Time
}

// NewMongoDBRepository connects, pings and ensures indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
		now:    time.Now,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(lineItemsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "restaurantId", Value: 1}, {Key: "date", Value: 1}, {Key: "menuItem", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create line item index: %w", err)
	}
	_, err = r.db.Collection(daysCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "restaurantId", Value: 1}, {Key: "summary.updatedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create day index: %w", err)
	}
	return nil
}

// ListRestaurants returns restaurants, optionally only the active ones.
func (r *MongoDBRepository) ListRestaurants(ctx context.Context, activeOnly bool) ([]models.Restaurant, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	cursor, err := r.db.Collection(restaurantsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find restaurants: %w", err)
	}
	restaurants := []models.Restaurant{}
	if err := cursor.All(ctx, &restaurants); err != nil {
		return nil, fmt.Errorf("failed to decode restaurants: %w", err)
	}
	return restaurants, nil
}

// GetRestaurant returns models.ErrNotFound when id is unknown.
func (r *MongoDBRepository) GetRestaurant(ctx context.Context, id string) (models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.db.Collection(restaurantsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&restaurant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Restaurant{}, fmt.Errorf("failed to find restaurant %s: %w", id, err)
	}
	return restaurant, nil
}

// InsertRestaurant stores a new restaurant.
func (r *MongoDBRepository) InsertRestaurant(ctx context.Context, restaurant models.Restaurant) error {
	if _, err := r.db.Collection(restaurantsCollection).InsertOne(ctx, restaurant); err != nil {
		return fmt.Errorf("failed to insert restaurant: %w", err)
	}
	return nil
}

// UpdateRestaurant applies the non-nil fields of patch and returns the result.
func (r *MongoDBRepository) UpdateRestaurant(ctx context.Context, id string, patch models.RestaurantPatch) (models.Restaurant, error) {
	set := bson.M{"updatedAt": r.now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var restaurant models.Restaurant
	err := r.db.Collection(restaurantsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&restaurant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Restaurant{}, fmt.Errorf("failed to update restaurant %s: %w", id, err)
	}
	return restaurant, nil
}

// LoadDay returns the stored day, or defaults when the day was never written.
func (r *MongoDBRepository) LoadDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error) {
	snapshot := models.DaySnapshot{
		RestaurantID: restaurantID,
		Date:         date,
		Settings:     models.DefaultSettings(),
	}

	var doc dayDocument
	err := r.db.Collection(daysCollection).FindOne(ctx, bson.M{"_id": dayID(restaurantID, date)}).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return models.DaySnapshot{}, fmt.Errorf("failed to find day: %w", err)
	default:
		snapshot.Summary = doc.Summary
		if doc.Settings != nil {
			snapshot.Settings = *doc.Settings
		}
	}

	items, err := r.LoadItems(ctx, restaurantID, date)
	if err != nil {
		return models.DaySnapshot{}, err
	}
	snapshot.Items = items
	return snapshot, nil
}

// LoadItems returns the items of a day ordered by menu item.
func (r *MongoDBRepository) LoadItems(ctx context.Context, restaurantID, date string) ([]models.LineItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "menuItem", Value: 1}})
	cursor, err := r.db.Collection(lineItemsCollection).Find(ctx, bson.M{"restaurantId": restaurantID, "date": date}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find line items: %w", err)
	}

	var docs []itemFields
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	items := make([]models.LineItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.LineItem)
	}
	return items, nil
}

// ListRecentDays returns days ordered by summary update time, newest first.
func (r *MongoDBRepository) ListRecentDays(ctx context.Context, restaurantID string, limit int) ([]models.DayOverview, error) {
	opts := options.Find().SetSort(bson.D{{Key: "summary.updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.db.Collection(daysCollection).Find(ctx, bson.M{"restaurantId": restaurantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find days: %w", err)
	}

	var docs []dayDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode days: %w", err)
	}
	days := make([]models.DayOverview, 0, len(docs))
	for _, doc := range docs {
		days = append(days, models.DayOverview{Date: doc.Date, Summary: doc.Summary})
	}
	return days, nil
}

// CommitDay writes item changes, the summary and optional settings in one
// transaction.
func (r *MongoDBRepository) CommitDay(ctx context.Context, restaurantID, date string, batch models.DayBatch) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	now := r.now().UTC()
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, r.applyBatch(sc, restaurantID, date, batch, now)
	})
	if err != nil {
		return fmt.Errorf("failed to commit day %s: %w", dayID(restaurantID, date), err)
	}
	return nil
}

func (r *MongoDBRepository) applyBatch(ctx mongo.SessionContext, restaurantID, date string, batch models.DayBatch, now time.Time) error {
	items := r.db.Collection(lineItemsCollection)

	if batch.DeleteAll {
		if _, err := items.DeleteMany(ctx, bson.M{"restaurantId": restaurantID, "date": date}); err != nil {
			return fmt.Errorf("delete all items: %w", err)
		}
	}

	if len(batch.Deletes) > 0 {
		ids := make([]string, 0, len(batch.Deletes))
		for _, id := range batch.Deletes {
			ids = append(ids, itemID(restaurantID, date, id))
		}
		if _, err := items.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
	}

	if len(batch.Upserts) > 0 {
		writes := make([]mongo.WriteModel, 0, len(batch.Upserts))
		for _, item := range batch.Upserts {
			updated := now
			item.CreatedAt = nil
			item.UpdatedAt = &updated
			fields := itemFields{RestaurantID: restaurantID, Date: date, LineItem: item}
			writes = append(writes, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": itemID(restaurantID, date, item.ID)}).
				SetUpdate(bson.M{
					"$set":         fields,
					"$setOnInsert": bson.M{"createdAt": now},
				}).
				SetUpsert(true))
		}
		if _, err := items.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("upsert items: %w", err)
		}
	}

	summary := batch.Summary
	if summary.UpdatedAt == nil {
		summary.UpdatedAt = &now
	}
	set := bson.M{
		"restaurantId": restaurantID,
		"date":         date,
		"summary":      summary,
		"updatedAt":    now,
	}
	onInsert := bson.M{"createdAt": now}
	if batch.Settings != nil {
		set["settings"] = *batch.Settings
	} else {
		onInsert["settings"] = models.DefaultSettings()
	}

	_, err := r.db.Collection(daysCollection).UpdateOne(ctx,
		bson.M{"_id": dayID(restaurantID, date)},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save day: %w", err)
	}
	return nil
}

// WatchDay opens a change stream over the day document and its items.
func (r *MongoDBRepository) WatchDay(ctx context.Context, restaurantID, date string, notify func()) (func(), error) {
	pattern := "^" + regexp.QuoteMeta(dayID(restaurantID, date)) + "(/|$)"
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ns.coll":         bson.M{"$in": bson.A{daysCollection, lineItemsCollection}},
			"documentKey._id": bson.M{"$regex": pattern},
		}}},
	}

	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := r.db.Watch(watchCtx, pipeline)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			notify()
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			r.logger.Warn("change stream ended",
				zap.String("day", dayID(restaurantID, date)),
				zap.Error(err),
			)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func dayID(restaurantID, date string) string {
	return restaurantID + "/" + date
}

func itemID(restaurantID, date, id string) string {
	return dayID(restaurantID, date) + "/" + id
}
