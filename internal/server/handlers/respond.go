package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/session"
	"github.com/iudanet/soundlines/internal/world"
	"github.com/iudanet/soundlines/pkg/api"
)

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}

// statusFor сопоставляет ошибки ядра HTTP статусам
func statusFor(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidLocation),
		errors.Is(err, geo.ErrInvalidArgument),
		errors.Is(err, world.ErrInvalidArgument),
		errors.Is(err, session.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrDanglingReference):
		return http.StatusConflict
	case errors.Is(err, world.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, world.ErrUnavailable),
		errors.Is(err, journal.ErrUnavailable),
		errors.Is(err, session.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendDomainError отправляет ошибку ядра с подходящим статусом.
// Текст внутренних ошибок клиенту не раскрывается.
func sendDomainError(logger *slog.Logger, w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	sendError(logger, w, message, status)
}
