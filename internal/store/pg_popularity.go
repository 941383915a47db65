package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPopularityStore implements PopularityStore on the popular_products table.
type PgPopularityStore struct {
	db *pgxpool.Pool
}

func NewPgPopularityStore(dbp *pgxpool.Pool) *PgPopularityStore {
	return &PgPopularityStore{db: dbp}
}

func (p *PgPopularityStore) Create(ctx context.Context, productID uuid.UUID) (*PopularityRecord, error) {
	rows, err := p.db.Query(ctx,
		`INSERT INTO popular_products (product_id) VALUES ($1) RETURNING id, product_id, created_date`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to create popularity record: %w", err)
	}
	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[PopularityRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to create popularity record: %w", err)
	}
	return &record, nil
}

func (p *PgPopularityStore) FindByProductID(ctx context.Context, productID uuid.UUID) ([]PopularityRecord, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, product_id, created_date FROM popular_products WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to find popularity records: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PopularityRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to read popularity records: %w", err)
	}
	return records, nil
}

func (p *PgPopularityStore) DeleteByProductID(ctx context.Context, productID uuid.UUID) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM popular_products WHERE product_id = $1`, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete popularity records: %w", err)
	}
	return tag.RowsAffected(), nil
}
