package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const activationSelect = `
		SELECT a.id, a.license_id, a.instance_identifier, a.activated_at, a.deactivated_at, a.metadata,
			k.key, k.brand_id, p.name
		FROM activations a
		JOIN licenses l ON l.id = a.license_id
		JOIN license_keys k ON k.id = l.license_key_id
		JOIN products p ON p.id = l.product_id`

func scanActivation(row rowScanner) (*Activation, error) {
	var a Activation
	var metadata []byte
	err := row.Scan(
		&a.ID, &a.LicenseID, &a.InstanceIdentifier, &a.ActivatedAt, &a.DeactivatedAt, &metadata,
		&a.LicenseKey, &a.BrandID, &a.ProductName,
	)
	if err != nil {
		return nil, err
	}
	a.Metadata = metadata
	return &a, nil
}

// FindActiveActivation returns the active activation of instance on the
// license, or ErrRecordNotFound.
func (q Queries) FindActiveActivation(ctx context.Context, licenseID uuid.UUID, instance string) (*Activation, error) {
	query := activationSelect + `
		WHERE a.license_id = $1 AND a.instance_identifier = $2 AND a.deactivated_at IS NULL
		ORDER BY a.activated_at
		LIMIT 1`
	a, err := scanActivation(q.DB.QueryRowContext(ctx, query, licenseID, instance))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (q Queries) CountActiveActivations(ctx context.Context, licenseID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM activations WHERE license_id = $1 AND deactivated_at IS NULL`
	var n int
	if err := q.DB.QueryRowContext(ctx, query, licenseID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (q Queries) CreateActivation(ctx context.Context, a *Activation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if len(a.Metadata) == 0 {
		a.Metadata = []byte(`{}`)
	}
	query := `
		INSERT INTO activations (id, license_id, instance_identifier, activated_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := q.DB.ExecContext(ctx, query, a.ID, a.LicenseID, a.InstanceIdentifier, a.ActivatedAt, []byte(a.Metadata))
	return mapError(err)
}

// LockActivation reads the activation and holds a row lock on it until the
// transaction ends.
func (q Queries) LockActivation(ctx context.Context, id uuid.UUID) (*Activation, error) {
	query := activationSelect + `
		WHERE a.id = $1
		FOR UPDATE OF a`
	a, err := scanActivation(q.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

// DeactivateActivation stamps deactivated_at if the activation is still
// active. Deactivating twice is not an error.
func (q Queries) DeactivateActivation(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE activations
		SET deactivated_at = $1
		WHERE id = $2 AND deactivated_at IS NULL`
	_, err := q.DB.ExecContext(ctx, query, at, id)
	return err
}
