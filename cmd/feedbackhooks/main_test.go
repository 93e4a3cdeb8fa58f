package main

import (
	"testing"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

func TestNewWebhookValidatesFlags(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	events := []string{models.EventFeedbackCreated}

	wh, err := newWebhook("proj_1", "ops", "https://example.com/hook", events, now)
	if err != nil {
		t.Fatalf("expected valid webhook, got %v", err)
	}
	if !wh.IsActive() || wh.Secret == "" || !wh.CreatedAt.Equal(now) {
		t.Fatalf("unexpected webhook %+v", wh)
	}

	cases := map[string]struct {
		url    string
		events []string
	}{
		"no scheme":     {"example.com/hook", events},
		"ftp":           {"ftp://example.com/hook", events},
		"no host":       {"https://", events},
		"no events":     {"https://example.com/hook", nil},
		"unknown event": {"https://example.com/hook", []string{"feedback.deleted"}},
	}
	for name, tc := range cases {
		if _, err := newWebhook("proj_1", "ops", tc.url, tc.events, now); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
	if _, err := newWebhook("", "ops", "https://example.com/hook", events, now); err == nil {
		t.Fatalf("expected missing project to be rejected")
	}
}
