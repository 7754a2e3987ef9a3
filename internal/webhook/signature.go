// Package webhook authenticates and applies provider completion callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the body signature on every callback.
const SignatureHeader = "X-Webhook-Signature"

const signaturePrefix = "sha256="

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of the raw bytes under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against body in constant time. A missing or
// malformed header is rejected the same way as a mismatch.
func Verify(secret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || len(got) != sha256.Size {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
