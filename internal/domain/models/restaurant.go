package models

import "time"

// Restaurant is a site owning its own series of worksheet days.
type Restaurant struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	IsActive  bool      `bson:"isActive" json:"isActive"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// RestaurantPatch carries the fields to change on a restaurant; nil means unchanged.
type RestaurantPatch struct {
	Name     *string
	IsActive *bool
}
