package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/audit"
	"github.com/technosupport/ts-licensing/internal/data"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Manager creates license keys and licenses and updates license status.
type Manager struct {
	store    Store
	audit    audit.Recorder
	observer Observer
	now      func() time.Time
	newKey   func(brandSlug string) (string, error)
}

func NewManager(store Store, rec audit.Recorder, obs Observer) *Manager {
	if rec == nil {
		rec = audit.Nop{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Manager{
		store:    store,
		audit:    rec,
		observer: obs,
		now:      func() time.Time { return time.Now().UTC() },
		newKey:   NewLicenseKey,
	}
}

// GenerateLicenseKey always creates a new key for the customer.
func (m *Manager) GenerateLicenseKey(ctx context.Context, brand *data.Brand, customerEmail string) (k *data.LicenseKey, err error) {
	ctx, span := tracer.Start(ctx, "license.GenerateLicenseKey",
		trace.WithAttributes(attribute.String("brand.slug", brand.Slug)))
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(customerEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: customer_email is required", ErrInvalidRequest)
	}

	err = m.store.InTx(ctx, func(tx data.Tx) error {
		var err error
		k, err = m.createKey(ctx, tx, brand, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Generated license key %s for %s (brand %s)", k.Key, email, brand.Slug)
	m.audit.Record(ctx, keyCreatedEntry(brand, k))
	return k, nil
}

func (m *Manager) createKey(ctx context.Context, tx data.Tx, brand *data.Brand, email string) (*data.LicenseKey, error) {
	key, err := m.newKey(brand.Slug)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	k := &data.LicenseKey{Key: key, BrandID: brand.ID, CustomerEmail: email}
	if err := tx.CreateLicenseKey(ctx, k); err != nil {
		if data.IsDuplicate(err, data.ConstraintLicenseKeyUnique) {
			return nil, fmt.Errorf("%w: %s", ErrKeyCollision, key)
		}
		return nil, err
	}
	return k, nil
}

// CreateLicense grants a product to a customer, resolving or creating the
// license key in the same transaction.
func (m *Manager) CreateLicense(ctx context.Context, brand *data.Brand, in CreateLicenseInput) (l *data.License, err error) {
	ctx, span := tracer.Start(ctx, "license.CreateLicense",
		trace.WithAttributes(
			attribute.String("brand.slug", brand.Slug),
			attribute.String("product.slug", in.ProductSlug),
		))
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.CustomerEmail)
	switch {
	case email == "":
		return nil, fmt.Errorf("%w: customer_email is required", ErrInvalidRequest)
	case in.ProductSlug == "":
		return nil, fmt.Errorf("%w: product_slug is required", ErrInvalidRequest)
	case in.SeatLimit != nil && *in.SeatLimit < 1:
		return nil, fmt.Errorf("%w: seat_limit must be at least 1", ErrInvalidRequest)
	}

	var newKey *data.LicenseKey
	err = m.store.InTx(ctx, func(tx data.Tx) error {
		var key *data.LicenseKey
		if in.LicenseKey != "" {
			k, err := tx.GetLicenseKey(ctx, in.LicenseKey)
			if err != nil && !errors.Is(err, data.ErrRecordNotFound) {
				return err
			}
			if k == nil || k.BrandID != brand.ID || k.CustomerEmail != email {
				return fmt.Errorf("%w: license key %s not found for %s", ErrInvalidRequest, in.LicenseKey, email)
			}
			key = k
		} else {
			k, err := m.createKey(ctx, tx, brand, email)
			if err != nil {
				return err
			}
			key, newKey = k, k
		}

		product, err := tx.GetProductBySlug(ctx, brand.ID, in.ProductSlug)
		if errors.Is(err, data.ErrRecordNotFound) {
			return fmt.Errorf("%w: product %s not found for brand %s", ErrProductNotFound, in.ProductSlug, brand.Name)
		}
		if err != nil {
			return err
		}

		exists, err := tx.LicenseExists(ctx, key.ID, product.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: license already exists for %s on key %s", ErrLicenseAlreadyExists, product.Name, key.Key)
		}

		created := &data.License{
			LicenseKeyID: key.ID,
			ProductID:    product.ID,
			Status:       data.StatusValid,
			ExpiresAt:    in.ExpiresAt,
			SeatLimit:    in.SeatLimit,
		}
		if err := tx.CreateLicense(ctx, created); err != nil {
			if data.IsDuplicate(err, data.ConstraintLicenseUnique) {
				return fmt.Errorf("%w: license already exists for %s on key %s", ErrLicenseAlreadyExists, product.Name, key.Key)
			}
			return err
		}

		l, err = tx.GetLicense(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created license %s for product %s on key %s (customer %s)", l.ID, l.Product.Slug, l.Key, email)
	m.observer.ObserveLicenseCreated()
	if newKey != nil {
		m.audit.Record(ctx, keyCreatedEntry(brand, newKey))
	}
	m.audit.Record(ctx, audit.Entry{
		BrandID:    &brand.ID,
		Action:     audit.ActionLicenseCreated,
		Actor:      audit.BrandActor(brand.Slug),
		EntityType: audit.EntityLicense,
		EntityID:   l.ID.String(),
		Metadata: metadata(map[string]any{
			"license_key":    l.Key,
			"product_slug":   l.Product.Slug,
			"customer_email": email,
			"expires_at":     l.ExpiresAt,
			"seat_limit":     l.SeatLimit,
		}),
	})
	return l, nil
}

// UpdateLicense changes status and/or expiry of a license owned by brand.
// Any status may move to any other status.
func (m *Manager) UpdateLicense(ctx context.Context, brand *data.Brand, licenseID uuid.UUID, in UpdateLicenseInput) (l *data.License, err error) {
	ctx, span := tracer.Start(ctx, "license.UpdateLicense",
		trace.WithAttributes(
			attribute.String("brand.slug", brand.Slug),
			attribute.String("license.id", licenseID.String()),
		))
	defer func() { endSpan(span, err) }()

	changes := map[string]any{}
	err = m.store.InTx(ctx, func(tx data.Tx) error {
		cur, err := tx.LockLicense(ctx, licenseID)
		if errors.Is(err, data.ErrRecordNotFound) || (err == nil && cur.BrandID != brand.ID) {
			return fmt.Errorf("%w: license %s", ErrLicenseNotFound, licenseID)
		}
		if err != nil {
			return err
		}

		if in.Status != nil && *in.Status != cur.Status {
			changes["status"] = map[string]any{"from": cur.Status, "to": *in.Status}
			cur.Status = *in.Status
		}
		if in.ExpiresAt.Set && !sameTime(cur.ExpiresAt, in.ExpiresAt.Value) {
			changes["expires_at"] = map[string]any{"from": cur.ExpiresAt, "to": in.ExpiresAt.Value}
			cur.ExpiresAt = in.ExpiresAt.Value
		}
		if len(changes) > 0 {
			if err := tx.UpdateLicense(ctx, cur); err != nil {
				return err
			}
		}

		l, err = tx.GetLicense(ctx, licenseID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		log.Printf("Updated license %s: %v", l.ID, changes)
		m.audit.Record(ctx, audit.Entry{
			BrandID:    &brand.ID,
			Action:     audit.ActionLicenseUpdated,
			Actor:      audit.BrandActor(brand.Slug),
			EntityType: audit.EntityLicense,
			EntityID:   l.ID.String(),
			Metadata:   metadata(changes),
		})
	}
	return l, nil
}

// ListLicensesByEmail returns the customer's licenses across every brand,
// oldest first.
func (m *Manager) ListLicensesByEmail(ctx context.Context, brand *data.Brand, customerEmail string) (ls []data.License, err error) {
	ctx, span := tracer.Start(ctx, "license.ListLicensesByEmail")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(customerEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: customer_email is required", ErrInvalidRequest)
	}

	err = m.store.ReadTx(ctx, func(tx data.Tx) error {
		var err error
		ls, err = tx.ListLicensesByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []data.License{}
	}

	if brand != nil {
		m.audit.Record(ctx, audit.Entry{
			BrandID:    &brand.ID,
			Action:     audit.ActionLicensesListedByEmail,
			Actor:      audit.BrandActor(brand.Slug),
			EntityType: audit.EntityBrand,
			EntityID:   brand.ID.String(),
			Metadata:   metadata(map[string]any{"customer_email": email, "count": len(ls)}),
		})
	}
	return ls, nil
}

func keyCreatedEntry(brand *data.Brand, k *data.LicenseKey) audit.Entry {
	return audit.Entry{
		BrandID:    &brand.ID,
		Action:     audit.ActionLicenseKeyCreated,
		Actor:      audit.BrandActor(brand.Slug),
		EntityType: audit.EntityLicenseKey,
		EntityID:   k.ID.String(),
		Metadata:   metadata(map[string]any{"key": k.Key, "customer_email": k.CustomerEmail}),
	}
}

func metadata(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
