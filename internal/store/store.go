// Package store provides the persistence contracts and implementations for catalog records.
package store

import (
	"context"
	"embed"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Migrations holds the SQL schema, applied with golang-migrate from MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations containing the migration files.
const MigrationsDir = "migrations"

// Product represents a product record.
// An empty ImageLink means no image is attached.
type Product struct {
	ProductID    uuid.UUID
	ProductName  string
	ImageLink    string
	Price        decimal.Decimal
	Ratings      float64
	Type         string
	Filter       string
	Description  string
	CreatedDate  time.Time
	ModifiedDate time.Time
}

// PopularityRecord marks a product as popular. It references the product by id only.
type PopularityRecord struct {
	ID          int64
	ProductID   uuid.UUID
	CreatedDate time.Time
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// ListAll returns every product ordered by creation time, oldest first.
	// Returns an empty slice if no products exist.
	ListAll(ctx context.Context) ([]Product, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// Save inserts the product or replaces every field of the existing record with the same ID.
	Save(ctx context.Context, product Product) error

	// DeleteByID removes a product by its ID. Deleting an absent ID is not an error.
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// PopularityStore is an interface for popularity record storage operations.
type PopularityStore interface {
	// Create adds a popularity record for the product.
	Create(ctx context.Context, productID uuid.UUID) (*PopularityRecord, error)

	// FindByProductID returns the records referencing the product, oldest first.
	FindByProductID(ctx context.Context, productID uuid.UUID) ([]PopularityRecord, error)

	// DeleteByProductID removes every record referencing the product and reports how many were removed.
	DeleteByProductID(ctx context.Context, productID uuid.UUID) (int64, error)
}
