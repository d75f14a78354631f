package data

import (
	"context"

	"github.com/google/uuid"
)

func (q Queries) GetBrandByID(ctx context.Context, id uuid.UUID) (*Brand, error) {
	query := `
		SELECT id, name, slug, api_key_hash, created_at, updated_at
		FROM brands
		WHERE id = $1`
	var b Brand
	err := q.DB.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Slug, &b.APIKeyHash, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (q Queries) GetBrandBySlug(ctx context.Context, slug string) (*Brand, error) {
	query := `
		SELECT id, name, slug, api_key_hash, created_at, updated_at
		FROM brands
		WHERE slug = $1`
	var b Brand
	err := q.DB.QueryRowContext(ctx, query, slug).Scan(
		&b.ID, &b.Name, &b.Slug, &b.APIKeyHash, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

// UpsertBrand inserts the brand or refreshes name and credential hash of the
// brand with the same slug. b.ID is replaced with the stored id.
func (q Queries) UpsertBrand(ctx context.Context, b *Brand) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO brands (id, name, slug, api_key_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, api_key_hash = EXCLUDED.api_key_hash, updated_at = NOW()
		RETURNING id, created_at, updated_at`
	err := q.DB.QueryRowContext(ctx, query, b.ID, b.Name, b.Slug, b.APIKeyHash).Scan(
		&b.ID, &b.CreatedAt, &b.UpdatedAt,
	)
	return mapError(err)
}
