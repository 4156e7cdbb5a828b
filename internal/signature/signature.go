// Package signature computes and verifies the HMAC-SHA256 message
// authentication codes carried in the X-Webhook-Signature header.
//
// Signing must happen over the exact bytes written to the wire; signing a
// re-serialized copy of the payload will not verify on the receiving side.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix identifies the hash scheme in the signature header value.
const Prefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
// An empty secret is a caller programming error; the MAC is still computed
// but will never verify against a properly configured receiver.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header returns the full signature header value, e.g. "sha256=<hex>".
func Header(secret, payload []byte) string {
	return Prefix + Sign(secret, payload)
}

// Verify reports whether provided matches the signature of payload under
// secret. The "sha256=" prefix is accepted but not required. Comparison is
// constant time.
func Verify(secret, payload []byte, provided string) bool {
	got := strings.TrimPrefix(provided, Prefix)
	want := Sign(secret, payload)
	return hmac.Equal([]byte(got), []byte(want))
}
