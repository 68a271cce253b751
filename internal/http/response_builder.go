// Package http provides the JSON API server and its handlers.
//
// This file implements a small builder for JSON responses and the
// mapping from domain errors to HTTP status codes.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cantiere/internal/auth"
	"cantiere/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewResponse creates a response builder with a default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the response payload.
func (b *ResponseBuilder) JSON(payload any) *ResponseBuilder {
	b.payload = payload
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.payload != nil {
		if err := json.NewEncoder(w).Encode(b.payload); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

type errorPayload struct {
	Error string `json:"error"`
}

// StatusFromError maps domain errors onto HTTP status codes. Unknown
// errors read as internal failures.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDueDate),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidPaymentState),
		errors.Is(err, core.ErrMissingVenture),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrEmptyVentureName),
		errors.Is(err, core.ErrVentureNameTooLong),
		errors.Is(err, errInvalidUpload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError sends err as a JSON error response. Internal failures are
// logged and masked; client errors surface their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	NewResponse().Status(status).JSON(errorPayload{Error: message}).Write(w)
}

// BadRequest sends a 400 with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	NewResponse().Status(http.StatusBadRequest).JSON(errorPayload{Error: message}).Write(w)
}
