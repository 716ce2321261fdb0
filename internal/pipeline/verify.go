package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ReplayWindow is how far a delivery timestamp may deviate from server time
// in either direction before the delivery is treated as a replay.
const ReplayWindow = 5 * time.Minute

// Sign computes the hex HMAC-SHA256 signature over the canonical base string
// `timestamp + "." + body`. Exported so the self-test and integration
// tooling can produce valid deliveries.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. A
// `sha256=` scheme prefix is tolerated.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	received := strings.TrimPrefix(signature, "sha256=")
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(received))
}

// CheckTimestamp validates the epoch-milliseconds delivery timestamp against
// the replay window. Both stale and future timestamps are rejected; clock
// skew beyond the window is indistinguishable from a replay.
func CheckTimestamp(timestamp string, now time.Time) error {
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return validationError("INVALID_TIMESTAMP", "Timestamp must be epoch milliseconds", err)
	}

	drift := now.Sub(time.UnixMilli(ms))
	if drift < 0 {
		drift = -drift
	}
	if drift > ReplayWindow {
		return authError("EXPIRED_TIMESTAMP", "Request timestamp outside the allowed window")
	}
	return nil
}
