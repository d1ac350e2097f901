package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LocationStore defines persistence operations for saved locations.
type LocationStore interface {
	Create(ctx context.Context, location Location) (Location, error)
	GetByID(ctx context.Context, id uuid.UUID) (Location, error)
	ListAll(ctx context.Context) ([]Location, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Location, error)
	Update(ctx context.Context, location Location) (Location, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Location represents a saved point of interest.
type Location struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	OwnerEmail string
	Name       string
	Address    string
	Latitude   float64
	Longitude  float64
	City       string
	State      string
	Category   Category
	Notes      string
	PhotoURL   string
	PhotoKey   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Category enumerates the allowed location categories.
type Category string

const (
	CategoryRestaurant    Category = "restaurant"
	CategoryCafe          Category = "cafe"
	CategoryPark          Category = "park"
	CategoryMuseum        Category = "museum"
	CategoryShopping      Category = "shopping"
	CategoryHotel         Category = "hotel"
	CategoryEntertainment Category = "entertainment"
	CategoryOther         Category = "other"
)

// Categories lists every allowed category in display order.
func Categories() []Category {
	return []Category{
		CategoryRestaurant,
		CategoryCafe,
		CategoryPark,
		CategoryMuseum,
		CategoryShopping,
		CategoryHotel,
		CategoryEntertainment,
		CategoryOther,
	}
}

// ValidCategory reports whether c is a member of the allowed set.
func ValidCategory(c Category) bool {
	for _, allowed := range Categories() {
		if c == allowed {
			return true
		}
	}
	return false
}

// LocationDraft carries user-supplied fields before validation and
// persistence. Identifier and timestamps are server-assigned.
type LocationDraft struct {
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	City      string
	State     string
	Category  Category
	Notes     string
}

// Photo is an attachment supplied alongside a save or update.
type Photo struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}
