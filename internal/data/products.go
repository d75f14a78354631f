package data

import (
	"context"

	"github.com/google/uuid"
)

func (q Queries) GetProductBySlug(ctx context.Context, brandID uuid.UUID, slug string) (*Product, error) {
	query := `
		SELECT p.id, p.brand_id, b.name, p.name, p.slug, p.default_seat_limit, p.created_at, p.updated_at
		FROM products p
		JOIN brands b ON b.id = p.brand_id
		WHERE p.brand_id = $1 AND p.slug = $2`
	var p Product
	err := q.DB.QueryRowContext(ctx, query, brandID, slug).Scan(
		&p.ID, &p.BrandID, &p.BrandName, &p.Name, &p.Slug, &p.DefaultSeatLimit, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// UpsertProduct inserts the product or updates name and default seat limit of
// the product with the same (brand, slug). Existing licenses keep their rows.
func (q Queries) UpsertProduct(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO products (id, brand_id, name, slug, default_seat_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT products_brand_slug_key DO UPDATE
		SET name = EXCLUDED.name, default_seat_limit = EXCLUDED.default_seat_limit, updated_at = NOW()
		RETURNING id, created_at, updated_at`
	err := q.DB.QueryRowContext(ctx, query, p.ID, p.BrandID, p.Name, p.Slug, p.DefaultSeatLimit).Scan(
		&p.ID, &p.CreatedAt, &p.UpdatedAt,
	)
	return mapError(err)
}
