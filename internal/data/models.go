package data

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the stored status of a license. Expiry is derived from
// ExpiresAt and never stored.
type LicenseStatus string

const (
	StatusValid     LicenseStatus = "valid"
	StatusSuspended LicenseStatus = "suspended"
	StatusCancelled LicenseStatus = "cancelled"
)

func ParseLicenseStatus(s string) (LicenseStatus, error) {
	switch st := LicenseStatus(s); st {
	case StatusValid, StatusSuspended, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown license status %q", s)
}

type Brand struct {
	ID         uuid.UUID
	Name       string
	Slug       string
	APIKeyHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Product struct {
	ID               uuid.UUID
	BrandID          uuid.UUID
	BrandName        string
	Name             string
	Slug             string
	DefaultSeatLimit *int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type LicenseKey struct {
	ID            uuid.UUID
	Key           string
	BrandID       uuid.UUID
	CustomerEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// License carries its own columns plus the key, customer and product it
// hangs off, and the number of active activations at read time.
type License struct {
	ID           uuid.UUID
	LicenseKeyID uuid.UUID
	ProductID    uuid.UUID
	Status       LicenseStatus
	ExpiresAt    *time.Time
	SeatLimit    *int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Key           string
	CustomerEmail string
	BrandID       uuid.UUID
	Product       Product
	SeatsUsed     int
}

// EffectiveSeatLimit is the license override, else the product default.
// Nil means unlimited.
func (l *License) EffectiveSeatLimit() *int {
	if l.SeatLimit != nil {
		return l.SeatLimit
	}
	return l.Product.DefaultSeatLimit
}

// IsExpired reports whether the license has an expiry strictly before now.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

type Activation struct {
	ID                 uuid.UUID
	LicenseID          uuid.UUID
	InstanceIdentifier string
	ActivatedAt        time.Time
	DeactivatedAt      *time.Time
	Metadata           json.RawMessage

	LicenseKey  string
	BrandID     uuid.UUID
	ProductName string
}

func (a *Activation) IsActive() bool {
	return a.DeactivatedAt == nil
}
