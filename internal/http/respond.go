package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cskovec22/test-sarafan/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type quantityDetails struct {
	Requested int `json:"requested"`
	InCart    int `json:"in_cart"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

var failureCodes = []struct {
	err  error
	code string
}{
	{service.ErrProductNotFound, "product_not_found"},
	{service.ErrProductNotInCart, "product_not_in_cart"},
	{service.ErrCartEmpty, "cart_empty"},
	{service.ErrQuantityExceeded, "quantity_exceeded"},
	{service.ErrInsufficientQuantity, "insufficient_quantity"},
	{service.ErrInvalidAmount, "invalid_amount"},
}

// handleServiceError maps every cart failure to 400 and store trouble to 503.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	for _, f := range failureCodes {
		if !errors.Is(err, f.err) {
			continue
		}
		resp := ErrorResponse{Error: err.Error(), Code: f.code}
		var qErr *service.QuantityError
		if errors.As(err, &qErr) {
			resp.Details = quantityDetails{Requested: qErr.Requested, InCart: qErr.InCart}
		}
		respondJSON(w, http.StatusBadRequest, resp)
		return
	}

	if errors.Is(err, service.ErrTransient) {
		logger.WarnContext(r.Context(), "request failed", slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable, retry later")
		return
	}

	logger.ErrorContext(r.Context(), "request failed", slog.Any("error", err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
