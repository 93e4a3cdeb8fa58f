package formatter

import (
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

const slackTextLimit = 200

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func slackMessage(event string, data models.FeedbackData, now time.Time) slackPayload {
	fields := []slackField{
		{Title: "Type", Value: typeLabel(data.Type), Short: true},
	}
	if data.Status != "" {
		fields = append(fields, slackField{Title: "Status", Value: data.Status, Short: true})
	} else {
		fields = append(fields, slackField{Title: "Event", Value: eventLabel(event), Short: true})
	}
	if score := npsValue(data.NPSScore); score != "" {
		fields = append(fields, slackField{Title: "NPS Score", Value: score, Short: true})
	}
	if data.PageURL != "" {
		fields = append(fields, slackField{Title: "Page", Value: data.PageURL})
	}
	if data.UserEmail != "" {
		fields = append(fields, slackField{Title: "User", Value: data.UserEmail, Short: true})
	}

	return slackPayload{
		Attachments: []slackAttachment{{
			Color:  hexColor(data.Type),
			Title:  title(event, data.Type),
			Text:   truncate(data.Content, slackTextLimit),
			Fields: fields,
			Footer: footer,
			TS:     now.Unix(),
		}},
	}
}
