// Package formatter renders an event into the outbound request body for a
// destination. The destination kind is decided once from the URL; each kind
// has its own renderer.
package formatter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

type Destination string

const (
	Generic Destination = "generic"
	Slack   Destination = "slack"
	Discord Destination = "discord"
)

const footer = "TinyFeedback"

// Classify picks the destination kind from the webhook URL.
func Classify(url string) Destination {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "hooks.slack.com"):
		return Slack
	case strings.Contains(u, "discord.com/api/webhooks"), strings.Contains(u, "discordapp.com/api/webhooks"):
		return Discord
	default:
		return Generic
	}
}

// Rendered is one formatted delivery. Body is exactly what gets signed and
// sent; Payload is the same document kept for the delivery log.
type Rendered struct {
	Destination Destination
	Body        []byte
	Payload     json.RawMessage
}

type Formatter struct {
	Now func() time.Time
	// ForwardUserEmail controls whether submitter emails reach chat tools.
	ForwardUserEmail bool
}

func New(forwardUserEmail bool) *Formatter {
	return &Formatter{
		Now:              func() time.Time { return time.Now().UTC() },
		ForwardUserEmail: forwardUserEmail,
	}
}

func (f *Formatter) Format(url string, event models.Event) (Rendered, error) {
	now := time.Now().UTC()
	if f.Now != nil {
		now = f.Now().UTC()
	}

	dest := Classify(url)

	var doc any
	switch dest {
	case Slack, Discord:
		data, err := event.Feedback()
		if err != nil {
			return Rendered{}, fmt.Errorf("decode feedback data: %w", err)
		}
		if !f.ForwardUserEmail {
			data.UserEmail = ""
		}
		if dest == Slack {
			doc = slackMessage(event.Event, data, now)
		} else {
			doc = discordMessage(event.Event, data, now)
		}
	default:
		doc = genericEnvelope(event, now)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return Rendered{}, fmt.Errorf("encode %s payload: %w", dest, err)
	}
	return Rendered{
		Destination: dest,
		Body:        body,
		Payload:     json.RawMessage(body),
	}, nil
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func eventLabel(event string) string {
	switch event {
	case models.EventFeedbackCreated:
		return "New Feedback"
	case models.EventFeedbackUpdated:
		return "Feedback Updated"
	default:
		return event
	}
}

func typeLabel(feedbackType string) string {
	switch feedbackType {
	case models.FeedbackNPS:
		return "NPS"
	case models.FeedbackSuggestion:
		return "Suggestion"
	case models.FeedbackBug:
		return "Bug"
	default:
		return "Feedback"
	}
}

func title(event, feedbackType string) string {
	noun := map[string]string{
		models.FeedbackNPS:        "NPS Response",
		models.FeedbackSuggestion: "Suggestion",
		models.FeedbackBug:        "Bug Report",
	}[feedbackType]
	if noun == "" {
		noun = "Feedback"
	}
	if event == models.EventFeedbackUpdated {
		return noun + " Updated"
	}
	return "New " + noun
}

// color returns the 24-bit RGB value for a feedback type.
func color(feedbackType string) int {
	switch feedbackType {
	case models.FeedbackNPS:
		return 0x22c55e
	case models.FeedbackSuggestion:
		return 0x3b82f6
	case models.FeedbackBug:
		return 0xef4444
	default:
		return 0x6b7280
	}
}

func hexColor(feedbackType string) string {
	return fmt.Sprintf("#%06x", color(feedbackType))
}

// truncate cuts s to n characters and marks the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func npsValue(score json.Number) string {
	if score == "" {
		return ""
	}
	return score.String() + "/10"
}
