package license

import "errors"

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrLicenseAlreadyExists = errors.New("license already exists")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrLicenseNotFound      = errors.New("license not found")
	ErrLicenseExpired       = errors.New("license expired")
	ErrLicenseSuspended     = errors.New("license suspended")
	ErrLicenseCancelled     = errors.New("license cancelled")
	ErrSeatLimitReached     = errors.New("seat limit reached")
	ErrActivationNotFound   = errors.New("activation not found")
	// ErrKeyCollision means a freshly generated key clashed with a stored
	// one. The request may be retried as is.
	ErrKeyCollision = errors.New("license key collision")
)

// Kind groups errors by how a caller can react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindStateConflict
	KindStateInvalid
	KindInputInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindStateInvalid:
		return "state_invalid"
	case KindInputInvalid:
		return "input_invalid"
	}
	return "internal"
}

// KindOf classifies err. Anything not produced by this package is internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrLicenseNotFound),
		errors.Is(err, ErrActivationNotFound):
		return KindNotFound
	case errors.Is(err, ErrLicenseAlreadyExists),
		errors.Is(err, ErrSeatLimitReached):
		return KindStateConflict
	case errors.Is(err, ErrLicenseExpired),
		errors.Is(err, ErrLicenseSuspended),
		errors.Is(err, ErrLicenseCancelled):
		return KindStateInvalid
	case errors.Is(err, ErrInvalidRequest):
		return KindInputInvalid
	}
	return KindInternal
}

// candidateError reports whether err only rules out one license during
// multi-license activation, so the next candidate may be tried.
func candidateError(err error) bool {
	return errors.Is(err, ErrLicenseSuspended) ||
		errors.Is(err, ErrLicenseCancelled) ||
		errors.Is(err, ErrLicenseExpired) ||
		errors.Is(err, ErrSeatLimitReached)
}
