package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shohag/feedbackhooks/internal/models"
	"github.com/shohag/feedbackhooks/internal/signing"
)

const (
	UserAgent           = "TinyFeedback-Webhook/1.0"
	maxResponseBodySize = 4 * 1024
)

type SendResult struct {
	StatusCode   int
	ResponseBody string
	LatencyMs    int64
	Error        string
}

// Request is one physical POST. Body and Signature come from the delivery log
// on retries and are sent unchanged.
type Request struct {
	URL       string
	Event     string
	WebhookID string
	Signature string
	Body      []byte
}

type Sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (s *Sender) Send(ctx context.Context, r Request) *SendResult {
	start := time.Now()

	if !models.ValidDestinationURL(r.URL) {
		return &SendResult{Error: "invalid destination url"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("failed to create request: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(signing.HeaderSignature, signing.Header(r.Signature))
	req.Header.Set(signing.HeaderEvent, r.Event)
	req.Header.Set(signing.HeaderWebhookID, r.WebhookID)

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("request failed: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))

	return &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: cleanBody(body),
		LatencyMs:    time.Since(start).Milliseconds(),
	}
}

// cleanBody makes a captured response storable as text: a rune split by the
// capture limit is dropped, NULs are removed and invalid bytes replaced.
func cleanBody(b []byte) string {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if utf8.RuneStart(b[start]) {
			if !utf8.FullRune(b[start:]) {
				b = b[:start]
			}
			break
		}
	}
	return strings.ToValidUTF8(strings.ReplaceAll(string(b), "\x00", ""), "\uFFFD")
}
