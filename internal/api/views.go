package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/data"
)

type licenseKeyView struct {
	ID            uuid.UUID `json:"id"`
	Key           string    `json:"key"`
	CustomerEmail string    `json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
}

type productView struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	BrandName        string    `json:"brand_name"`
	DefaultSeatLimit *int      `json:"default_seat_limit"`
}

// licenseView reports the raw override as seat_limit and the effective
// limit as seats_total. A nil seats_total means unlimited.
type licenseView struct {
	ID            uuid.UUID          `json:"id"`
	LicenseKey    string             `json:"license_key"`
	CustomerEmail string             `json:"customer_email"`
	Product       productView        `json:"product"`
	Status        data.LicenseStatus `json:"status"`
	ExpiresAt     *time.Time         `json:"expires_at"`
	SeatLimit     *int               `json:"seat_limit"`
	SeatsUsed     int                `json:"seats_used"`
	SeatsTotal    *int               `json:"seats_total"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type licenseSearchView struct {
	CustomerEmail string        `json:"customer_email"`
	Licenses      []licenseView `json:"licenses"`
}

type activationView struct {
	ID                 uuid.UUID       `json:"id"`
	LicenseID          uuid.UUID       `json:"license_id"`
	LicenseKey         string          `json:"license_key"`
	ProductName        string          `json:"product_name"`
	InstanceIdentifier string          `json:"instance_identifier"`
	ActivatedAt        time.Time       `json:"activated_at"`
	DeactivatedAt      *time.Time      `json:"deactivated_at"`
	Metadata           json.RawMessage `json:"metadata"`
}

func newLicenseKeyView(k *data.LicenseKey) licenseKeyView {
	return licenseKeyView{ID: k.ID, Key: k.Key, CustomerEmail: k.CustomerEmail, CreatedAt: k.CreatedAt}
}

func newLicenseView(l *data.License) licenseView {
	return licenseView{
		ID:            l.ID,
		LicenseKey:    l.Key,
		CustomerEmail: l.CustomerEmail,
		Product: productView{
			ID:               l.Product.ID,
			Name:             l.Product.Name,
			Slug:             l.Product.Slug,
			BrandName:        l.Product.BrandName,
			DefaultSeatLimit: l.Product.DefaultSeatLimit,
		},
		Status:     l.Status,
		ExpiresAt:  l.ExpiresAt,
		SeatLimit:  l.SeatLimit,
		SeatsUsed:  l.SeatsUsed,
		SeatsTotal: l.EffectiveSeatLimit(),
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func newActivationView(a *data.Activation) activationView {
	meta := a.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	return activationView{
		ID:                 a.ID,
		LicenseID:          a.LicenseID,
		LicenseKey:         a.LicenseKey,
		ProductName:        a.ProductName,
		InstanceIdentifier: a.InstanceIdentifier,
		ActivatedAt:        a.ActivatedAt,
		DeactivatedAt:      a.DeactivatedAt,
		Metadata:           meta,
	}
}
