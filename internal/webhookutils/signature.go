package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme tag WhatsApp puts in front of the hex digest
// in the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// VerifySignature checks a webhook body against its X-Hub-Signature-256
// header. The header carries the hex HMAC-SHA256 of the raw body keyed with
// the app secret. Comparison is constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}

	received := strings.TrimPrefix(header, SignaturePrefix)
	if received == header {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(received))
}
