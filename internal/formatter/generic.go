package formatter

import (
	"encoding/json"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

type envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func genericEnvelope(event models.Event, now time.Time) envelope {
	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return envelope{
		Event:     event.Event,
		Timestamp: isoTimestamp(now),
		Data:      data,
	}
}
