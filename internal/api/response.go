package api

import (
	"encoding/json"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/shohag/feedbackhooks/internal/storage"
)

const (
	codeBadInput     = "BAD_INPUT"
	codeNotFound     = "NOT_FOUND"
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL_ERROR"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError renders any error as the standard failure envelope.
// Errors that carry no taxonomy are reported as internal without detail.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "resource not found", codeNotFound)
		return
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		writeError(w, http.StatusInternalServerError, "internal error", codeInternal)
		return
	}

	status := rich.Code
	if status == 0 {
		status = statusForCategory(rich.Category)
	}
	code := rich.TextCode
	if code == "" {
		code = codeInternal
	}
	message := rich.Message
	if status >= http.StatusInternalServerError && rich.Category == goerrors.CategoryInternal {
		message = "internal error"
	}
	writeError(w, status, message, code)
}

func statusForCategory(c goerrors.Category) int {
	switch c {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryRateLimit, goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(codeBadInput)
}

func notFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(codeNotFound)
}

func invalidField(field, message string) error {
	return goerrors.NewValidation(field+" "+message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(codeBadInput)
}

func internalError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(codeInternal)
}
