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

// Result labels passed to Observer.
const (
	ResultCreated     = "created"
	ResultReused      = "reused"
	ResultDeactivated = "deactivated"
	ResultNoop        = "noop"
)

// Engine grants and revokes seats on licenses.
//
// Each activation runs in one transaction. Every candidate license is read
// with a row lock before its seats are counted, so for a given license the
// count-then-insert sequence is serialized across all service instances.
// Candidates of one key are always locked in the same order.
type Engine struct {
	store    Store
	audit    audit.Recorder
	observer Observer
	now      func() time.Time
}

func NewEngine(store Store, rec audit.Recorder, obs Observer) *Engine {
	if rec == nil {
		rec = audit.Nop{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Engine{
		store:    store,
		audit:    rec,
		observer: obs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ActivateLicense occupies a seat for instance on the first license under
// key that accepts it. A repeated call for an instance that already holds an
// active seat returns that activation untouched.
//
// When every candidate refuses, the error of the last candidate tried is
// returned.
func (e *Engine) ActivateLicense(ctx context.Context, key, instance string, meta json.RawMessage) (act *data.Activation, err error) {
	ctx, span := tracer.Start(ctx, "license.ActivateLicense",
		trace.WithAttributes(attribute.String("activation.instance", instance)))
	defer func() { endSpan(span, err) }()

	if key == "" {
		return nil, fmt.Errorf("%w: license_key is required", ErrInvalidRequest)
	}
	if instance == "" {
		return nil, fmt.Errorf("%w: instance_identifier is required", ErrInvalidRequest)
	}
	if len(meta) == 0 || string(meta) == "null" {
		meta = json.RawMessage(`{}`)
	}

	var reused bool
	err = e.store.InTx(ctx, func(tx data.Tx) error {
		k, err := tx.GetLicenseKey(ctx, key)
		if errors.Is(err, data.ErrRecordNotFound) {
			return fmt.Errorf("%w: license key %s not found", ErrLicenseNotFound, key)
		}
		if err != nil {
			return err
		}

		all, err := tx.ListLicensesByKey(ctx, k.ID)
		if err != nil {
			return err
		}
		var candidates []uuid.UUID
		for _, l := range all {
			if l.Status == data.StatusValid {
				candidates = append(candidates, l.ID)
			}
		}
		if len(candidates) == 0 {
			return fmt.Errorf("%w: no valid licenses found for key %s", ErrLicenseNotFound, key)
		}

		var lastErr error
		for _, id := range candidates {
			a, created, err := e.activateOne(ctx, tx, id, instance, meta)
			if err == nil {
				act, reused = a, !created
				return nil
			}
			if !candidateError(err) {
				return err
			}
			log.Printf("Could not activate license %s: %v", id, err)
			lastErr = err
		}
		return lastErr
	})
	if err != nil {
		e.observer.ObserveActivation(resultLabel(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("license.id", act.LicenseID.String()),
		attribute.Bool("activation.reused", reused),
	)
	action := audit.ActionActivationCreated
	if reused {
		action = audit.ActionActivationReused
		e.observer.ObserveActivation(ResultReused)
	} else {
		log.Printf("Activated license %s for instance %s (activation %s)", act.LicenseID, instance, act.ID)
		e.observer.ObserveActivation(ResultCreated)
	}
	e.audit.Record(ctx, audit.Entry{
		BrandID:    &act.BrandID,
		Action:     action,
		Actor:      audit.KeyActor(key),
		EntityType: audit.EntityActivation,
		EntityID:   act.ID.String(),
		Metadata: metadata(map[string]any{
			"license_id":          act.LicenseID,
			"instance_identifier": instance,
		}),
	})
	return act, nil
}

// activateOne runs the checks for a single candidate under its row lock.
func (e *Engine) activateOne(ctx context.Context, tx data.Tx, licenseID uuid.UUID, instance string, meta json.RawMessage) (*data.Activation, bool, error) {
	l, err := tx.LockLicense(ctx, licenseID)
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	switch EffectiveState(l, now) {
	case StateSuspended:
		return nil, false, fmt.Errorf("%w: license %s is suspended and cannot be activated", ErrLicenseSuspended, l.ID)
	case StateCancelled:
		return nil, false, fmt.Errorf("%w: license %s is cancelled and cannot be activated", ErrLicenseCancelled, l.ID)
	case StateExpired:
		return nil, false, fmt.Errorf("%w: license %s expired at %s", ErrLicenseExpired, l.ID, l.ExpiresAt.Format(time.RFC3339))
	}

	existing, err := tx.FindActiveActivation(ctx, l.ID, instance)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, data.ErrRecordNotFound) {
		return nil, false, err
	}

	used, err := tx.CountActiveActivations(ctx, l.ID)
	if err != nil {
		return nil, false, err
	}
	if limit := l.EffectiveSeatLimit(); limit != nil && used >= *limit {
		return nil, false, fmt.Errorf("%w: seat limit of %d reached for license %s (%d/%d seats used)",
			ErrSeatLimitReached, *limit, l.ID, used, *limit)
	}

	a := &data.Activation{
		LicenseID:          l.ID,
		InstanceIdentifier: instance,
		ActivatedAt:        now,
		Metadata:           meta,
		LicenseKey:         l.Key,
		BrandID:            l.BrandID,
		ProductName:        l.Product.Name,
	}
	if err := tx.CreateActivation(ctx, a); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// DeactivateActivation frees the seat held by an activation. Deactivating an
// already inactive activation returns it unchanged.
func (e *Engine) DeactivateActivation(ctx context.Context, activationID uuid.UUID) (act *data.Activation, err error) {
	ctx, span := tracer.Start(ctx, "license.DeactivateActivation",
		trace.WithAttributes(attribute.String("activation.id", activationID.String())))
	defer func() { endSpan(span, err) }()

	var changed bool
	err = e.store.InTx(ctx, func(tx data.Tx) error {
		a, err := tx.LockActivation(ctx, activationID)
		if errors.Is(err, data.ErrRecordNotFound) {
			return fmt.Errorf("%w: activation %s", ErrActivationNotFound, activationID)
		}
		if err != nil {
			return err
		}
		act = a
		if !a.IsActive() {
			return nil
		}

		now := e.now()
		if err := tx.DeactivateActivation(ctx, a.ID, now); err != nil {
			return err
		}
		a.DeactivatedAt = &now
		changed = true
		return nil
	})
	if err != nil {
		e.observer.ObserveDeactivation(resultLabel(err))
		return nil, err
	}

	if !changed {
		log.Printf("Activation %s is already deactivated, ignoring", act.ID)
		e.observer.ObserveDeactivation(ResultNoop)
		return act, nil
	}

	log.Printf("Deactivated activation %s for license %s", act.ID, act.LicenseID)
	e.observer.ObserveDeactivation(ResultDeactivated)
	e.audit.Record(ctx, audit.Entry{
		BrandID:    &act.BrandID,
		Action:     audit.ActionActivationDeactivated,
		Actor:      audit.KeyActor(act.LicenseKey),
		EntityType: audit.EntityActivation,
		EntityID:   act.ID.String(),
		Metadata: metadata(map[string]any{
			"license_id":          act.LicenseID,
			"instance_identifier": act.InstanceIdentifier,
		}),
	})
	return act, nil
}

// GetLicenseStatus reports every license under key and whether any of them
// is currently valid.
func (e *Engine) GetLicenseStatus(ctx context.Context, key string) (r *StatusReport, err error) {
	ctx, span := tracer.Start(ctx, "license.GetLicenseStatus")
	defer func() { endSpan(span, err) }()

	var k *data.LicenseKey
	var ls []data.License
	err = e.store.ReadTx(ctx, func(tx data.Tx) error {
		var err error
		k, err = tx.GetLicenseKey(ctx, key)
		if errors.Is(err, data.ErrRecordNotFound) {
			return fmt.Errorf("%w: license key %s not found", ErrLicenseNotFound, key)
		}
		if err != nil {
			return err
		}
		ls, err = tx.ListLicensesByKey(ctx, k.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BuildStatusReport(k, ls, e.now()), nil
}

// resultLabel maps an error to the error code used as a metrics label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrLicenseNotFound):
		return "LICENSE_NOT_FOUND"
	case errors.Is(err, ErrLicenseExpired):
		return "LICENSE_EXPIRED"
	case errors.Is(err, ErrLicenseSuspended):
		return "LICENSE_SUSPENDED"
	case errors.Is(err, ErrLicenseCancelled):
		return "LICENSE_CANCELLED"
	case errors.Is(err, ErrSeatLimitReached):
		return "SEAT_LIMIT_REACHED"
	case errors.Is(err, ErrActivationNotFound):
		return "ACTIVATION_NOT_FOUND"
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	}
	return "INTERNAL_ERROR"
}
