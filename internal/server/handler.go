// Package server provides the HTTP boundary: routing, request decoding,
// and translation of domain errors into API responses.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/chat"
	"github.com/fsyrachel/FurtureSelf-V1/internal/letter"
	"github.com/fsyrachel/FurtureSelf-V1/internal/report"
	"github.com/fsyrachel/FurtureSelf-V1/internal/user"
)

// userIDHeader identifies the caller. Authentication proper is out of
// scope; the client carries the anonymous user ID from /user/init.
const userIDHeader = "X-User-ID"

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	users    *user.Service
	letters  *letter.Service
	chats    *chat.Service
	reports  *report.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(users *user.Service, letters *letter.Service, chats *chat.Service, reports *report.Service, logger *slog.Logger) *Handler {
	return &Handler{
		users:    users,
		letters:  letters,
		chats:    chats,
		reports:  reports,
		validate: validator.New(),
		logger:   logger.With("component", "http"),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response with a stable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "message": message})
}

// writeError maps a domain error onto an HTTP response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Code(err)

	var appErr *apperr.Error
	message := "internal error"
	if errors.As(err, &appErr) {
		message = appErr.Error()
	}

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeTurnLimitExceeded:
		status = http.StatusForbidden
	case apperr.CodeProfileIncomplete, apperr.CodeNotFound, apperr.CodeReportNotFound, apperr.CodeReportNotReady:
		status = http.StatusNotFound
	case apperr.CodeLetterSubmitted, apperr.CodeProfileExists, apperr.CodeProfilesExist, apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeGenerationFailed:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "code", code, "error", err)
		if code == apperr.CodeInternal {
			message = "internal error"
		}
	}
	Error(w, status, code, message)
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, apperr.CodeValidation, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, apperr.CodeValidation, err.Error())
		return false
	}
	return true
}

// decodeLenient parses an optional JSON body; an empty body is not an error.
func decodeLenient(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// requireUserID extracts the caller's user ID from the identity header.
func (h *Handler) requireUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		Error(w, http.StatusUnauthorized, apperr.CodeValidation, userIDHeader+" header required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		Error(w, http.StatusBadRequest, apperr.CodeValidation, "invalid "+userIDHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}
