package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	EventFeedbackCreated = "feedback.created"
	EventFeedbackUpdated = "feedback.updated"
)

const (
	FeedbackNPS        = "nps"
	FeedbackSuggestion = "suggestion"
	FeedbackBug        = "bug"
)

const ErrorCodeBadInput = "BAD_INPUT"

// Event is what a producer raises after a successful feedback write.
type Event struct {
	Event     string          `json:"event"`
	ProjectID string          `json:"project_id"`
	Data      json.RawMessage `json:"data"`
}

func ValidEvent(name string) bool {
	return name == EventFeedbackCreated || name == EventFeedbackUpdated
}

func ValidFeedbackType(t string) bool {
	switch t {
	case FeedbackNPS, FeedbackSuggestion, FeedbackBug:
		return true
	}
	return false
}

// Validate rejects malformed events before anything is written.
func (e *Event) Validate() error {
	e.Event = strings.TrimSpace(e.Event)
	e.ProjectID = strings.TrimSpace(e.ProjectID)

	if !ValidEvent(e.Event) {
		return validationError("event", "must be feedback.created or feedback.updated")
	}
	if e.ProjectID == "" {
		return validationError("project_id", "is required")
	}
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return validationError("data", "must be a JSON object")
	}
	data, err := e.Feedback()
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return validationError("data."+typeErr.Field, "has an invalid type")
		}
		return validationError("data", "has invalid field types")
	}
	if !ValidFeedbackType(data.Type) {
		return validationError("data.type", "must be one of nps, suggestion, bug")
	}
	return nil
}

// Feedback decodes the typed fields the chat formatters need.
func (e *Event) Feedback() (FeedbackData, error) {
	var data FeedbackData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return FeedbackData{}, err
	}
	return data, nil
}

// FeedbackData is a read-only view over Event.Data. Unknown keys are ignored
// here but still forwarded verbatim by the generic envelope.
type FeedbackData struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Content     string      `json:"content"`
	Status      string      `json:"status"`
	NPSScore    json.Number `json:"nps_score"`
	PageURL     string      `json:"page_url"`
	UserEmail   string      `json:"user_email"`
	ProjectName string      `json:"project_name"`
}

func validationError(field, message string) error {
	return goerrors.NewValidation("invalid event: "+field+" "+message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeBadInput)
}
