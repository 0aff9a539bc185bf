package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/controller"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    int               `json:"code"`
	Success bool              `json:"success"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr *apperrors.ValidationError
		nerr *apperrors.NotFoundError
		werr *apperrors.NetworkError
		perr *apperrors.PlaybackError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &nerr):
		return http.StatusNotFound
	case errors.As(err, &werr):
		return http.StatusBadGateway
	case errors.As(err, &perr), errors.Is(err, controller.ErrClosed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondWithError sends a structured error response derived from err.
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: status}

	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Fields = verr.Fields
	}
	if status >= 500 {
		body.Error = "internal server error"
	}

	ms.respondWithStatus(w, r, status, body, err)
}

// respondWithStatus writes body with an explicit status and logs the failure.
func (ms *MusicServer) respondWithStatus(w http.ResponseWriter, r *http.Request, status int, body errorResponse, err error) {
	body.Code = status
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": status,
	})
	if err != nil {
		logEntry = logEntry.WithError(err)
	}
	if status >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondJSON(w, status, body)
}

// respondJSON encodes v as the response body.
func (ms *MusicServer) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Debug("Failed to write response")
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.Invalid("body", "must be valid JSON")
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, apperrors.Invalid(name, "is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid(name, "must be a valid integer")
	}
	if id <= 0 {
		return 0, apperrors.Invalid(name, "must be positive")
	}
	return id, nil
}
