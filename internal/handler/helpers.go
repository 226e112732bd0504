package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
	"github.com/UsmanShaikh24/pharmalink/internal/orders"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, catalog.ErrMedicineNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrInvalidAdjustment):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrCrossPharmacyMix),
		errors.Is(err, orders.ErrUnsupportedPaymentMethod):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidStateTransition),
		errors.Is(err, orders.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	details := make(map[string]string)
	for _, fieldError := range validationErrors {
		details[fieldError.Field()] = fieldError.Tag()
	}
	return details
}

// respondWithValidationError renders validator failures as a field->rule map.
func respondWithValidationError(w http.ResponseWriter, err error) bool {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false
	}
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: formatValidationErrors(validationErrors),
	})
	return true
}

// principalFromRequest pulls the authenticated principal injected by
// auth.Middleware.
func principalFromRequest(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing or invalid principal")
		return auth.Principal{}, false
	}
	return principal, true
}
