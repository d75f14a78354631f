package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/license"
)

// ActivationService is the key-bearing API used by end-user products.
type ActivationService interface {
	ActivateLicense(ctx context.Context, key, instance string, meta json.RawMessage) (*data.Activation, error)
	DeactivateActivation(ctx context.Context, id uuid.UUID) (*data.Activation, error)
	GetLicenseStatus(ctx context.Context, key string) (*license.StatusReport, error)
}

type ActivationHandler struct {
	Engine ActivationService
}

func NewActivationHandler(svc ActivationService) *ActivationHandler {
	return &ActivationHandler{Engine: svc}
}

// POST /api/v1/products/activations
//
// A replay for an instance that already holds a seat also answers 201 with
// the existing activation.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	act, err := h.Engine.ActivateLicense(r.Context(), req.LicenseKey, req.InstanceIdentifier, req.Metadata)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newActivationView(act))
}

// DELETE /api/v1/products/activations/{activationID}
func (h *ActivationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "activationID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "ACTIVATION_NOT_FOUND", "activation not found")
		return
	}

	act, err := h.Engine.DeactivateActivation(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newActivationView(act))
}

// GET /api/v1/licenses/{licenseKey}/status
func (h *ActivationHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.GetLicenseStatus(r.Context(), chi.URLParam(r, "licenseKey"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
