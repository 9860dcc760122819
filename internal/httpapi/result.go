package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/repository"
	"github.com/Bendy545/charging-stations/internal/service"
)

// Result response envelope shared with the dashboard frontend
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

func OkMessage(data any, message string) Result {
	return Result{Success: true, Data: data, Message: message}
}

func Fail(err string) Result {
	return Result{Success: false, Error: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case analytics.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrStationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, service.ErrRecalculationUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, analytics.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
