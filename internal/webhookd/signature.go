package webhookd

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	signatureVersion = "v0"
	// maxSignatureSkew bounds how old a signed request may be. Requests
	// outside the window are rejected like a bad signature.
	maxSignatureSkew = 5 * time.Minute
)

// VerifySignature checks the Slack request signature: HMAC-SHA256 over
// "v0:{timestamp}:{rawBody}" with the signing secret, compared in constant
// time against the X-Slack-Signature header value.
func VerifySignature(secret, timestamp, signature string, body []byte, now time.Time) bool {
	secret = strings.TrimSpace(secret)
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}

	sentAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.UTC().Sub(time.Unix(sentAt, 0))
	if skew < -maxSignatureSkew || skew > maxSignatureSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
