package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"matchday/internal/api/v1/dto"
	"matchday/internal/service"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a service error kind to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrDuplicateSubscription),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidPlan):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstreamTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error", "reason"}. Unclassified errors are
// logged and reported as internal errors without their details.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := errorStatus(err)
	var domainErr *service.Error
	if !errors.As(err, &domainErr) {
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Msg("Request failed")
			writeJSON(w, status, dto.ErrorResponse{Error: "internal server error", Reason: "internal"})
			return
		}
		writeJSON(w, status, dto.ErrorResponse{Error: err.Error(), Reason: reasonFor(err)})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("reason", domainErr.Reason).Msg("Request failed")
	}
	writeJSON(w, status, dto.ErrorResponse{Error: domainErr.Kind.Error(), Reason: domainErr.Reason})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, service.ErrUserExists):
		return "user_exists"
	}
	return "internal"
}
