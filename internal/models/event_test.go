package models

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestEventValidate(t *testing.T) {
	ev := Event{
		Event:     "  feedback.created ",
		ProjectID: " p1 ",
		Data:      json.RawMessage(`{"type":"bug","content":"login broken","id":"abc123"}`),
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	if ev.Event != EventFeedbackCreated || ev.ProjectID != "p1" {
		t.Fatalf("expected trimmed fields, got %q %q", ev.Event, ev.ProjectID)
	}
}

func TestEventValidateRejects(t *testing.T) {
	cases := map[string]Event{
		"event":      {Event: "feedback.deleted", ProjectID: "p1", Data: json.RawMessage(`{"type":"bug"}`)},
		"project_id": {Event: EventFeedbackUpdated, ProjectID: "", Data: json.RawMessage(`{"type":"bug"}`)},
		"data":       {Event: EventFeedbackCreated, ProjectID: "p1", Data: json.RawMessage(`"text"`)},
		"data.type":  {Event: EventFeedbackCreated, ProjectID: "p1", Data: json.RawMessage(`{"type":"rant"}`)},
	}
	for field, ev := range cases {
		err := ev.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors error, got %v", field, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest || rich.TextCode != ErrorCodeBadInput {
			t.Fatalf("%s: unexpected error %+v", field, rich)
		}
		if !strings.Contains(rich.Message, field) {
			t.Fatalf("%s: expected message to name the field, got %q", field, rich.Message)
		}
	}
}

func TestFeedbackKeepsNumericScore(t *testing.T) {
	ev := Event{Data: json.RawMessage(`{"type":"nps","nps_score":9,"extra":{"k":1}}`)}
	data, err := ev.Feedback()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Type != FeedbackNPS || data.NPSScore.String() != "9" {
		t.Fatalf("unexpected feedback %+v", data)
	}
}

func TestNewIDAndSecret(t *testing.T) {
	a, b := NewID("dlv"), NewID("dlv")
	if !strings.HasPrefix(a, "dlv_") || a == b {
		t.Fatalf("expected distinct prefixed ids, got %s and %s", a, b)
	}
	if a >= b {
		t.Fatalf("expected ids to sort by creation, got %s then %s", a, b)
	}

	s := NewSecret()
	if !strings.HasPrefix(s, "whsec_") || len(s) != len("whsec_")+40 {
		t.Fatalf("unexpected secret shape %q", s)
	}
	if s == NewSecret() {
		t.Fatalf("expected fresh secrets")
	}
}

func TestWebhookSubscribed(t *testing.T) {
	wh := Webhook{Status: WebhookActive, Events: []string{EventFeedbackCreated}}
	if !wh.IsActive() || !wh.Subscribed(EventFeedbackCreated) || wh.Subscribed(EventFeedbackUpdated) {
		t.Fatalf("unexpected subscription state %+v", wh)
	}
}

func TestEventValidateNamesMistypedField(t *testing.T) {
	cases := map[string]struct {
		data  string
		field string
	}{
		"string field given a number": {`{"type":"bug","content":5}`, "data.content"},
		"non-numeric score":           {`{"type":"nps","nps_score":"abc"}`, "data"},
	}
	for name, tc := range cases {
		ev := Event{Event: EventFeedbackCreated, ProjectID: "p1", Data: json.RawMessage(tc.data)}
		err := ev.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors error, got %v", name, err)
		}
		if strings.Contains(rich.Message, "must be a JSON object") {
			t.Fatalf("%s: expected a field type message, got %q", name, rich.Message)
		}
		if !strings.Contains(rich.Message, tc.field+" ") {
			t.Fatalf("%s: expected message to name %s, got %q", name, tc.field, rich.Message)
		}
	}
}

func TestValidDestinationURL(t *testing.T) {
	for _, u := range []string{"https://example.com/hook", "http://localhost:8080/x"} {
		if !ValidDestinationURL(u) {
			t.Fatalf("expected %q to be accepted", u)
		}
	}
	for _, u := range []string{"", "example.com/hook", "ftp://example.com", "http://", "javascript:alert(1)"} {
		if ValidDestinationURL(u) {
			t.Fatalf("expected %q to be rejected", u)
		}
	}
}
