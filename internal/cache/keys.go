package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// RateLimitKey scopes a request counter to one session and one clock minute.
func RateLimitKey(sessionID uuid.UUID, minute int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", sessionID, minute)
}

// WebhookDeliveryKey identifies a webhook delivery by the digest of its raw body.
func WebhookDeliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "webhook:delivery:" + hex.EncodeToString(sum[:])
}
