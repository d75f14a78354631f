package data

import (
	"context"

	"github.com/google/uuid"
)

const licenseColumns = `
		l.id, l.license_key_id, l.product_id, l.status, l.expires_at, l.seat_limit, l.created_at, l.updated_at,
		k.key, k.customer_email, k.brand_id,
		p.id, p.brand_id, b.name, p.name, p.slug, p.default_seat_limit, p.created_at, p.updated_at`

const licenseFrom = `
		FROM licenses l
		JOIN license_keys k ON k.id = l.license_key_id
		JOIN products p ON p.id = l.product_id
		JOIN brands b ON b.id = p.brand_id`

const seatsUsedColumn = `
		(SELECT COUNT(*) FROM activations a WHERE a.license_id = l.id AND a.deactivated_at IS NULL)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner, withSeats bool) (*License, error) {
	var l License
	dest := []any{
		&l.ID, &l.LicenseKeyID, &l.ProductID, &l.Status, &l.ExpiresAt, &l.SeatLimit, &l.CreatedAt, &l.UpdatedAt,
		&l.Key, &l.CustomerEmail, &l.BrandID,
		&l.Product.ID, &l.Product.BrandID, &l.Product.BrandName, &l.Product.Name, &l.Product.Slug,
		&l.Product.DefaultSeatLimit, &l.Product.CreatedAt, &l.Product.UpdatedAt,
	}
	if withSeats {
		dest = append(dest, &l.SeatsUsed)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLicense inserts l with its key and product ids set. A second license
// for the same (key, product) comes back as a *DuplicateError for
// ConstraintLicenseUnique.
func (q Queries) CreateLicense(ctx context.Context, l *License) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = StatusValid
	}
	query := `
		INSERT INTO licenses (id, license_key_id, product_id, status, expires_at, seat_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := q.DB.QueryRowContext(ctx, query,
		l.ID, l.LicenseKeyID, l.ProductID, l.Status, l.ExpiresAt, l.SeatLimit,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	return mapError(err)
}

func (q Queries) LicenseExists(ctx context.Context, licenseKeyID, productID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key_id = $1 AND product_id = $2)`
	var exists bool
	if err := q.DB.QueryRowContext(ctx, query, licenseKeyID, productID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (q Queries) GetLicense(ctx context.Context, id uuid.UUID) (*License, error) {
	query := `SELECT ` + licenseColumns + `,` + seatsUsedColumn + licenseFrom + `
		WHERE l.id = $1`
	l, err := scanLicense(q.DB.QueryRowContext(ctx, query, id), true)
	if err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

func (q Queries) LockLicense(ctx context.Context, id uuid.UUID) (*License, error) {
	query := `SELECT ` + licenseColumns + licenseFrom + `
		WHERE l.id = $1
		FOR UPDATE OF l`
	l, err := scanLicense(q.DB.QueryRowContext(ctx, query, id), false)
	if err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

// UpdateLicense persists status and expiry of l.
func (q Queries) UpdateLicense(ctx context.Context, l *License) error {
	query := `
		UPDATE licenses
		SET status = $1, expires_at = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`
	err := q.DB.QueryRowContext(ctx, query, l.Status, l.ExpiresAt, l.ID).Scan(&l.UpdatedAt)
	return mapError(err)
}

// ListLicensesByKey returns every license under the key, oldest first.
func (q Queries) ListLicensesByKey(ctx context.Context, licenseKeyID uuid.UUID) ([]License, error) {
	query := `SELECT ` + licenseColumns + `,` + seatsUsedColumn + licenseFrom + `
		WHERE l.license_key_id = $1
		ORDER BY l.created_at, l.id`
	return q.listLicenses(ctx, query, licenseKeyID)
}

// ListLicensesByEmail returns licenses of every brand whose key belongs to
// email, oldest first. email must already be normalized.
func (q Queries) ListLicensesByEmail(ctx context.Context, email string) ([]License, error) {
	query := `SELECT ` + licenseColumns + `,` + seatsUsedColumn + licenseFrom + `
		WHERE k.customer_email = $1
		ORDER BY l.created_at, l.id`
	return q.listLicenses(ctx, query, email)
}

func (q Queries) listLicenses(ctx context.Context, query string, arg any) ([]License, error) {
	rows, err := q.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []License
	for rows.Next() {
		l, err := scanLicense(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
