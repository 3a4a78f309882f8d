package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/synchub/backend/internal/domain/integration"
)

// SignatureHeader carries the hex-encoded HMAC of the request body
const SignatureHeader = "X-Webhook-Signature"

// SignPayload computes the hex-encoded HMAC-SHA256 of a payload
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the payload using a
// constant-time comparison. Returns ErrInvalidSignature on any mismatch,
// including a missing or malformed header.
func VerifySignature(payload []byte, headers map[string]string, secret string) error {
	provided := headerValue(headers, SignatureHeader)
	if provided == "" {
		return integration.ErrInvalidSignature
	}

	expected := SignPayload(payload, secret)
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return integration.ErrInvalidSignature
	}
	return nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
