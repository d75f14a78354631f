package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/middleware"
)

// LicenseService is the brand-facing lifecycle API.
type LicenseService interface {
	GenerateLicenseKey(ctx context.Context, brand *data.Brand, customerEmail string) (*data.LicenseKey, error)
	CreateLicense(ctx context.Context, brand *data.Brand, in license.CreateLicenseInput) (*data.License, error)
	UpdateLicense(ctx context.Context, brand *data.Brand, licenseID uuid.UUID, in license.UpdateLicenseInput) (*data.License, error)
	ListLicensesByEmail(ctx context.Context, brand *data.Brand, customerEmail string) ([]data.License, error)
}

type BrandHandler struct {
	Licenses LicenseService
}

func NewBrandHandler(svc LicenseService) *BrandHandler {
	return &BrandHandler{Licenses: svc}
}

func brandFrom(w http.ResponseWriter, r *http.Request) (*data.Brand, bool) {
	b, ok := middleware.BrandFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Missing brand credentials")
	}
	return b, ok
}

// POST /api/v1/brands/license-keys
func (h *BrandHandler) CreateLicenseKey(w http.ResponseWriter, r *http.Request) {
	brand, ok := brandFrom(w, r)
	if !ok {
		return
	}

	var req createLicenseKeyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	k, err := h.Licenses.GenerateLicenseKey(r.Context(), brand, req.CustomerEmail)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newLicenseKeyView(k))
}

// POST /api/v1/brands/licenses
func (h *BrandHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	brand, ok := brandFrom(w, r)
	if !ok {
		return
	}

	var req createLicenseRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	l, err := h.Licenses.CreateLicense(r.Context(), brand, license.CreateLicenseInput{
		CustomerEmail: req.CustomerEmail,
		ProductSlug:   req.ProductSlug,
		LicenseKey:    strings.TrimSpace(req.LicenseKey),
		ExpiresAt:     req.ExpiresAt,
		SeatLimit:     req.SeatLimit,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newLicenseView(l))
}

// PATCH /api/v1/brands/licenses/{licenseID}
func (h *BrandHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	brand, ok := brandFrom(w, r)
	if !ok {
		return
	}

	licenseID, err := uuid.Parse(chi.URLParam(r, "licenseID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "LICENSE_NOT_FOUND", "license not found")
		return
	}

	var req updateLicenseRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	in := license.UpdateLicenseInput{ExpiresAt: req.ExpiresAt}
	if req.Status != nil {
		st, err := data.ParseLicenseStatus(*req.Status)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		in.Status = &st
	}

	l, err := h.Licenses.UpdateLicense(r.Context(), brand, licenseID, in)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newLicenseView(l))
}

// GET /api/v1/brands/licenses/search?customer_email=
func (h *BrandHandler) SearchLicenses(w http.ResponseWriter, r *http.Request) {
	brand, ok := brandFrom(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("customer_email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER", "customer_email query parameter is required")
		return
	}

	ls, err := h.Licenses.ListLicensesByEmail(r.Context(), brand, email)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	views := make([]licenseView, 0, len(ls))
	for i := range ls {
		views = append(views, newLicenseView(&ls[i]))
	}
	respondJSON(w, http.StatusOK, licenseSearchView{
		CustomerEmail: license.NormalizeEmail(email),
		Licenses:      views,
	})
}
