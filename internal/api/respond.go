package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-licensing/internal/license"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{license.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{license.ErrLicenseAlreadyExists, http.StatusConflict, "LICENSE_ALREADY_EXISTS"},
	{license.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{license.ErrLicenseNotFound, http.StatusNotFound, "LICENSE_NOT_FOUND"},
	{license.ErrLicenseExpired, http.StatusBadRequest, "LICENSE_EXPIRED"},
	{license.ErrLicenseSuspended, http.StatusForbidden, "LICENSE_SUSPENDED"},
	{license.ErrLicenseCancelled, http.StatusForbidden, "LICENSE_CANCELLED"},
	{license.ErrSeatLimitReached, http.StatusConflict, "SEAT_LIMIT_REACHED"},
	{license.ErrActivationNotFound, http.StatusNotFound, "ACTIVATION_NOT_FOUND"},
	{license.ErrKeyCollision, http.StatusServiceUnavailable, "KEY_COLLISION"},
}

// respondDomainError maps err to its stable status and code. Anything
// unrecognised is logged and reported as a bare 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			if ec.status >= http.StatusInternalServerError {
				log.Printf("[REQ:%s] %s %s: %v", w.Header().Get("X-Request-ID"), r.Method, r.URL.Path, err)
			}
			respondError(w, ec.status, ec.code, err.Error())
			return
		}
	}
	log.Printf("[REQ:%s] %s %s internal error: %v", w.Header().Get("X-Request-ID"), r.Method, r.URL.Path, err)
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
