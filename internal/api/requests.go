package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/technosupport/ts-licensing/internal/license"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("json_object", func(fl validator.FieldLevel) bool {
		raw, ok := fl.Field().Interface().(json.RawMessage)
		if !ok {
			return false
		}
		trimmed := bytes.TrimSpace(raw)
		return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '{'
	})
	return v
}

type createLicenseKeyRequest struct {
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

func (r *createLicenseKeyRequest) normalize() {
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
}

type createLicenseRequest struct {
	CustomerEmail string     `json:"customer_email" validate:"required,email"`
	ProductSlug   string     `json:"product_slug" validate:"required"`
	LicenseKey    string     `json:"license_key"`
	ExpiresAt     *time.Time `json:"expires_at"`
	SeatLimit     *int       `json:"seat_limit" validate:"omitempty,gte=1"`
}

func (r *createLicenseRequest) normalize() {
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.ProductSlug = strings.TrimSpace(r.ProductSlug)
	r.LicenseKey = strings.TrimSpace(r.LicenseKey)
}

type updateLicenseRequest struct {
	Status    *string              `json:"status" validate:"omitempty,oneof=valid suspended cancelled"`
	ExpiresAt license.OptionalTime `json:"expires_at"`
}

type activateRequest struct {
	LicenseKey         string          `json:"license_key" validate:"required"`
	InstanceIdentifier string          `json:"instance_identifier" validate:"required,max=500"`
	Metadata           json.RawMessage `json:"metadata" validate:"json_object"`
}

// normalizer is implemented by requests that clean up fields before their
// validate tags run.
type normalizer interface {
	normalize()
}

// decodeAndValidate reads a JSON body into dst, normalizes it and runs its
// validate tags.
// The returned error is safe to show to the caller.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %v", err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "gte":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		case "json_object":
			msgs = append(msgs, fe.Field()+" must be a JSON object")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
