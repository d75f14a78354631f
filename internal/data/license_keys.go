package data

import (
	"context"

	"github.com/google/uuid"
)

// CreateLicenseKey inserts k. A clash on the key column comes back as a
// *DuplicateError for ConstraintLicenseKeyUnique.
func (q Queries) CreateLicenseKey(ctx context.Context, k *LicenseKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	query := `
		INSERT INTO license_keys (id, key, brand_id, customer_email)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	err := q.DB.QueryRowContext(ctx, query, k.ID, k.Key, k.BrandID, k.CustomerEmail).Scan(
		&k.CreatedAt, &k.UpdatedAt,
	)
	return mapError(err)
}

func (q Queries) GetLicenseKey(ctx context.Context, key string) (*LicenseKey, error) {
	query := `
		SELECT id, key, brand_id, customer_email, created_at, updated_at
		FROM license_keys
		WHERE key = $1`
	var k LicenseKey
	err := q.DB.QueryRowContext(ctx, query, key).Scan(
		&k.ID, &k.Key, &k.BrandID, &k.CustomerEmail, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &k, nil
}
