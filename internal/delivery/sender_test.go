package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shohag/feedbackhooks/internal/signing"
)

func TestSenderSetsHeaders(t *testing.T) {
	body := []byte(`{"event":"feedback.created"}`)
	digest := signing.Sign("whsec_test", body)

	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	defer srv.Close()

	result := NewSender(time.Second).Send(context.Background(), Request{
		URL:       srv.URL,
		Event:     "feedback.created",
		WebhookID: "wh_1",
		Signature: digest,
		Body:      body,
	})

	if result.Error != "" || result.StatusCode != http.StatusAccepted || result.ResponseBody != "queued" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", got.Method)
	}
	checks := map[string]string{
		"Content-Type":        "application/json",
		"User-Agent":          UserAgent,
		"X-Webhook-Signature": "sha256=" + digest,
		"X-Webhook-Event":     "feedback.created",
		"X-Webhook-ID":        "wh_1",
	}
	for header, want := range checks {
		if v := got.Header.Get(header); v != want {
			t.Fatalf("expected %s %q, got %q", header, want, v)
		}
	}
	if string(gotBody) != string(body) {
		t.Fatalf("expected body %s, got %s", body, gotBody)
	}
	if !signing.Verify("whsec_test", gotBody, got.Header.Get(signing.HeaderSignature)) {
		t.Fatalf("expected receiver-side verification to pass")
	}
}

func TestSenderCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	result := NewSender(time.Second).Send(context.Background(), Request{URL: srv.URL})
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
	if len(result.ResponseBody) != maxResponseBodySize {
		t.Fatalf("expected body capped at %d, got %d", maxResponseBodySize, len(result.ResponseBody))
	}
}

func TestSenderDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	result := NewSender(time.Second).Send(context.Background(), Request{URL: srv.URL})
	if result.StatusCode != http.StatusFound || result.Error != "" {
		t.Fatalf("expected raw 302, got %+v", result)
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	result := NewSender(50*time.Millisecond).Send(context.Background(), Request{URL: srv.URL})
	if result.Error == "" || result.StatusCode != 0 {
		t.Fatalf("expected transport error, got %+v", result)
	}
}

func TestSenderRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/hook", "not a url", "http://"} {
		result := NewSender(time.Second).Send(context.Background(), Request{URL: u})
		if result.Error != "invalid destination url" {
			t.Fatalf("%q: expected invalid url error, got %+v", u, result)
		}
	}
}

func TestSenderKeepsCapturedBodyValidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("a", maxResponseBodySize-1) + "é"))
	}))
	defer srv.Close()

	result := NewSender(time.Second).Send(context.Background(), Request{URL: srv.URL})
	if !utf8.ValidString(result.ResponseBody) {
		t.Fatalf("expected valid utf-8 body")
	}
	if result.ResponseBody != strings.Repeat("a", maxResponseBodySize-1) {
		t.Fatalf("expected split rune to be dropped, got %d bytes", len(result.ResponseBody))
	}
}

func TestCleanBody(t *testing.T) {
	cases := map[string]string{
		"plain":        "plain",
		"nul\x00byte":  "nulbyte",
		"bad\xffbyte":  "bad\uFFFDbyte",
		"ok é":         "ok é",
		"cut \xe2\x82": "cut ",
		"\x00\x00":     "",
	}
	for in, want := range cases {
		if got := cleanBody([]byte(in)); got != want {
			t.Fatalf("cleanBody(%q): expected %q, got %q", in, want, got)
		}
	}
}
