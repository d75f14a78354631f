package license

import (
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/data"
)

// StatusReport is the customer-facing entitlement view of one license key.
type StatusReport struct {
	LicenseKey    string          `json:"license_key"`
	CustomerEmail string          `json:"customer_email"`
	Valid         bool            `json:"valid"`
	Licenses      []LicenseStatus `json:"licenses"`
}

// LicenseStatus describes one license in a StatusReport. A nil ExpiresAt
// means no expiry and a nil SeatsTotal means unlimited seats.
type LicenseStatus struct {
	LicenseID   uuid.UUID          `json:"license_id"`
	Product     string             `json:"product"`
	ProductSlug string             `json:"product_slug"`
	Status      data.LicenseStatus `json:"status"`
	ExpiresAt   *time.Time         `json:"expires_at"`
	SeatsUsed   int                `json:"seats_used"`
	SeatsTotal  *int               `json:"seats_total"`
	IsValid     bool               `json:"is_valid"`
}

// BuildStatusReport projects licenses of k at now. The report is valid when
// any single license is valid.
func BuildStatusReport(k *data.LicenseKey, licenses []data.License, now time.Time) *StatusReport {
	r := &StatusReport{
		LicenseKey:    k.Key,
		CustomerEmail: k.CustomerEmail,
		Licenses:      make([]LicenseStatus, 0, len(licenses)),
	}
	for i := range licenses {
		l := &licenses[i]
		valid := IsValid(l, now)
		r.Licenses = append(r.Licenses, LicenseStatus{
			LicenseID:   l.ID,
			Product:     l.Product.Name,
			ProductSlug: l.Product.Slug,
			Status:      l.Status,
			ExpiresAt:   l.ExpiresAt,
			SeatsUsed:   l.SeatsUsed,
			SeatsTotal:  l.EffectiveSeatLimit(),
			IsValid:     valid,
		})
		r.Valid = r.Valid || valid
	}
	return r
}
