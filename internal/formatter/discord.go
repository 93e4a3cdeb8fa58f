package formatter

import (
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

const (
	discordDescriptionLimit = 500
	discordIDPrefix         = 8
)

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      discordFooter  `json:"footer"`
	Timestamp   string         `json:"timestamp"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func discordMessage(event string, data models.FeedbackData, now time.Time) discordPayload {
	project := data.ProjectName
	if project == "" {
		project = "Unknown"
	}
	fields := []discordField{
		{Name: "Type", Value: typeLabel(data.Type), Inline: true},
		{Name: "Project", Value: project, Inline: true},
	}
	if score := npsValue(data.NPSScore); score != "" {
		fields = append(fields, discordField{Name: "NPS Score", Value: score, Inline: true})
	}
	if data.PageURL != "" {
		fields = append(fields, discordField{Name: "Page", Value: data.PageURL})
	}
	if data.UserEmail != "" {
		fields = append(fields, discordField{Name: "User", Value: data.UserEmail, Inline: true})
	}

	footerText := footer
	if data.ID != "" {
		id := []rune(data.ID)
		if len(id) > discordIDPrefix {
			id = id[:discordIDPrefix]
		}
		footerText = footer + " • " + string(id)
	}

	return discordPayload{
		Embeds: []discordEmbed{{
			Title:       title(event, data.Type),
			Description: truncate(data.Content, discordDescriptionLimit),
			Color:       color(data.Type),
			Fields:      fields,
			Footer:      discordFooter{Text: footerText},
			Timestamp:   isoTimestamp(now),
		}},
	}
}
