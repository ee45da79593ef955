package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the callback signature as "sha256=<hex>"
const SignatureHeader = "X-Signature"

// SignaturePrefix names the algorithm in the signature header
const SignaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
// payload must be the exact bytes that go on the wire.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header holds a valid signature for payload
func Verify(secret string, payload []byte, header string) bool {
	expected := SignaturePrefix + Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(header))
}
