package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
)

// Unique constraint names declared in db/migrations.
const (
	ConstraintLicenseKeyUnique = "license_keys_key_key"
	ConstraintLicenseUnique    = "licenses_license_key_product_key"
	ConstraintProductUnique    = "products_brand_slug_key"
)

// DuplicateError reports a unique violation on a named constraint.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate record (%s)", e.Constraint)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// IsDuplicate reports whether err is a unique violation on constraint.
func IsDuplicate(err error, constraint string) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Constraint == constraint
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return &DuplicateError{Constraint: pqErr.Constraint}
	}
	return err
}

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx is the unit of work handed to callers of Store.InTx. Every method runs
// inside the same database transaction.
type Tx interface {
	GetBrandByID(ctx context.Context, id uuid.UUID) (*Brand, error)
	GetBrandBySlug(ctx context.Context, slug string) (*Brand, error)
	GetProductBySlug(ctx context.Context, brandID uuid.UUID, slug string) (*Product, error)

	CreateLicenseKey(ctx context.Context, k *LicenseKey) error
	GetLicenseKey(ctx context.Context, key string) (*LicenseKey, error)

	CreateLicense(ctx context.Context, l *License) error
	LicenseExists(ctx context.Context, licenseKeyID, productID uuid.UUID) (bool, error)
	GetLicense(ctx context.Context, id uuid.UUID) (*License, error)
	// LockLicense reads the license and holds a row lock on it until the
	// transaction ends. SeatsUsed is not populated.
	LockLicense(ctx context.Context, id uuid.UUID) (*License, error)
	UpdateLicense(ctx context.Context, l *License) error
	ListLicensesByKey(ctx context.Context, licenseKeyID uuid.UUID) ([]License, error)
	ListLicensesByEmail(ctx context.Context, email string) ([]License, error)

	FindActiveActivation(ctx context.Context, licenseID uuid.UUID, instance string) (*Activation, error)
	CountActiveActivations(ctx context.Context, licenseID uuid.UUID) (int, error)
	CreateActivation(ctx context.Context, a *Activation) error
	LockActivation(ctx context.Context, id uuid.UUID) (*Activation, error)
	DeactivateActivation(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Queries implements Tx over either a *sql.DB or a *sql.Tx.
type Queries struct {
	DB DBTX
}

var _ Tx = Queries{}

// Store owns the connection pool and hands out transactions.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// InTx runs fn inside a read-committed transaction. Row locks taken by fn are
// held until fn returns; the transaction commits only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(q Queries) error { return fn(q) })
}

// ReadTx runs fn inside a read-only repeatable-read transaction so a
// multi-query read sees one snapshot.
func (s *Store) ReadTx(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(q Queries) error { return fn(q) })
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(Queries{DB: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// CatalogWriter upserts the administered brand and product rows.
type CatalogWriter interface {
	UpsertBrand(ctx context.Context, b *Brand) error
	UpsertProduct(ctx context.Context, p *Product) error
}

var _ CatalogWriter = Queries{}

// InCatalogTx runs fn inside a read-committed transaction with write access
// to brands and products.
func (s *Store) InCatalogTx(ctx context.Context, fn func(CatalogWriter) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(q Queries) error { return fn(q) })
}
