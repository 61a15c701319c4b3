package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Stable error codes returned in error envelopes. Clients branch on these,
// not on messages.
const (
	codeBadRequest     = "bad_request"
	codeValidation     = "validation_error"
	codeInvalidRule    = "invalid_rule"
	codeProductMissing = "product_not_found"
	codePromoMissing   = "promotion_not_found"
	codeNotEligible    = "promotion_not_eligible"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal_error"
)

// errorResponse is the JSON error envelope for all non-2xx responses.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("Encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, errorResponse{Code: code, Message: message})
}

// writeInternalError logs the cause and responds with an opaque 500.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
}
