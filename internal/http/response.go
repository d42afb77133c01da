package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"photofix/internal/services"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Required  int    `json:"required,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, ErrorResponse{Error: err.Error()})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	var credits *services.InsufficientCreditsError
	if errors.As(err, &credits) {
		respondJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:     credits.Error(),
			Required:  credits.Required,
			Remaining: credits.Remaining,
		})
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err)
	case errors.Is(err, services.ErrTierRequired):
		respondError(w, http.StatusForbidden, err)
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, services.ErrEmailTaken):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, services.ErrInvalidState):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, services.ErrInsufficientCredits):
		respondError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, services.ErrPaymentDeclined):
		respondError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, services.ErrProviderUnavailable):
		respondError(w, http.StatusBadGateway, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}
