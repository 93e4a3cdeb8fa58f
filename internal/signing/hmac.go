// Package signing implements the webhook signature scheme. Receivers verify a
// delivery by recomputing HMAC-SHA-256 over the raw request body with their
// secret and comparing it, in constant time, to the hex digest that follows
// "sha256=" in the X-Webhook-Signature header.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderWebhookID = "X-Webhook-ID"

	scheme = "sha256="
)

// Sign returns the lowercase hex HMAC-SHA-256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header formats a digest as the X-Webhook-Signature value.
func Header(digest string) string {
	return scheme + digest
}

func Verify(secret string, body []byte, header string) bool {
	digest, ok := strings.CutPrefix(strings.TrimSpace(header), scheme)
	if !ok {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(digest)))
}
