package store

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const productColumns = `product_id, product_name, image_link, price::text, ratings, type, filter, description, created_date, modified_date`

const listAllSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_date, product_id`

const findByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`

const saveSQL = `
INSERT INTO products (product_id, product_name, image_link, price, ratings, type, filter, description, created_date, modified_date)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
ON CONFLICT (product_id) DO UPDATE SET
    product_name  = EXCLUDED.product_name,
    image_link    = EXCLUDED.image_link,
    price         = EXCLUDED.price,
    ratings       = EXCLUDED.ratings,
    type          = EXCLUDED.type,
    filter        = EXCLUDED.filter,
    description   = EXCLUDED.description,
    created_date  = EXCLUDED.created_date,
    modified_date = EXCLUDED.modified_date`

const deleteByIDSQL = `DELETE FROM products WHERE product_id = $1`

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// ListAll retrieves all products ordered by creation date.
func (p *PgStore) ListAll(ctx context.Context) ([]Product, error) {
	rows, err := p.db.Query(ctx, listAllSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	rows, err := p.db.Query(ctx, findByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return &product, nil
}

// Save upserts the product by its ID.
func (p *PgStore) Save(ctx context.Context, product Product) error {
	var imageLink *string
	if product.ImageLink != "" {
		imageLink = &product.ImageLink
	}
	_, err := p.db.Exec(ctx, saveSQL,
		product.ProductID,
		product.ProductName,
		imageLink,
		product.Price.String(),
		product.Ratings,
		product.Type,
		product.Filter,
		product.Description,
		product.CreatedDate,
		product.ModifiedDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// DeleteByID removes a product by its unique identifier. A missing row is not an error.
func (p *PgStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if _, err := p.db.Exec(ctx, deleteByIDSQL, id); err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (Product, error) {
	var (
		product   Product
		imageLink *string
		price     string
	)
	err := row.Scan(
		&product.ProductID,
		&product.ProductName,
		&imageLink,
		&price,
		&product.Ratings,
		&product.Type,
		&product.Filter,
		&product.Description,
		&product.CreatedDate,
		&product.ModifiedDate,
	)
	if err != nil {
		return Product{}, err
	}
	if imageLink != nil {
		product.ImageLink = *imageLink
	}
	product.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return product, nil
}
