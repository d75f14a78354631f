package license

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/data"
)

// State is the status of a license as observed at a point in time.
type State string

const (
	StateValid     State = "VALID"
	StateExpired   State = "EXPIRED"
	StateSuspended State = "SUSPENDED"
	StateCancelled State = "CANCELLED"
)

// EffectiveState folds expiry into the stored status. Only a valid license
// can be expired.
func EffectiveState(l *data.License, now time.Time) State {
	switch l.Status {
	case data.StatusSuspended:
		return StateSuspended
	case data.StatusCancelled:
		return StateCancelled
	}
	if l.IsExpired(now) {
		return StateExpired
	}
	return StateValid
}

// IsValid reports whether the license can be activated at now.
func IsValid(l *data.License, now time.Time) bool {
	return EffectiveState(l, now) == StateValid
}

// Store hands out transactions over the entity store.
type Store interface {
	InTx(ctx context.Context, fn func(data.Tx) error) error
	ReadTx(ctx context.Context, fn func(data.Tx) error) error
}

// Observer receives activation outcomes, keyed by result label.
type Observer interface {
	ObserveActivation(result string)
	ObserveDeactivation(result string)
	ObserveLicenseCreated()
}

type nopObserver struct{}

func (nopObserver) ObserveActivation(string)   {}
func (nopObserver) ObserveDeactivation(string) {}
func (nopObserver) ObserveLicenseCreated()     {}

type CreateLicenseInput struct {
	CustomerEmail string
	ProductSlug   string
	// LicenseKey, when set, must name an existing key of the same brand and
	// customer. Otherwise a new key is generated.
	LicenseKey string
	ExpiresAt  *time.Time
	SeatLimit  *int
}

// OptionalTime distinguishes an omitted field (Set false) from an explicit
// null (Set true, Value nil).
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

type UpdateLicenseInput struct {
	Status    *data.LicenseStatus
	ExpiresAt OptionalTime
}

// NormalizeEmail trims and lowercases a customer email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewLicenseKey builds a key of the form BRAND-<uuid4> using crypto/rand.
func NewLicenseKey(brandSlug string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(brandSlug) + "-" + id.String(), nil
}
