// Package webhooks verifies that notification bodies were signed by the
// platform with the app secret.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"

	"github.com/goliatone/go-messenger/core"
)

const (
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"
)

// SignatureVerifier checks X-Hub-Signature-256 (sha256=<hex>) and falls
// back to the legacy X-Hub-Signature (sha1=<hex>) header.
type SignatureVerifier struct {
	Secret string
}

func NewSignatureVerifier(secret string) SignatureVerifier {
	return SignatureVerifier{Secret: strings.TrimSpace(secret)}
}

func (v SignatureVerifier) Enabled() bool {
	return strings.TrimSpace(v.Secret) != ""
}

func (v SignatureVerifier) Verify(headers http.Header, body []byte) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.ConfigurationError(nil, "webhooks: app secret is required", nil)
	}
	if value := strings.TrimSpace(headers.Get(HeaderSignature256)); value != "" {
		return verifyHMAC(sha256.New, secret, "sha256=", value, body)
	}
	if value := strings.TrimSpace(headers.Get(HeaderSignature)); value != "" {
		return verifyHMAC(sha1.New, secret, "sha1=", value, body)
	}
	return core.InvalidSignature("webhooks: signature header is required", map[string]any{
		"header": HeaderSignature256,
	})
}

func verifyHMAC(algorithm func() hash.Hash, secret, prefix, header string, body []byte) error {
	if !strings.HasPrefix(strings.ToLower(header), prefix) {
		return core.InvalidSignature("webhooks: unsupported signature scheme", map[string]any{"expected_prefix": prefix})
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return core.InvalidSignature("webhooks: signature is not hex", nil)
	}
	mac := hmac.New(algorithm, []byte(secret))
	_, _ = mac.Write(body)
	if subtle.ConstantTimeCompare(decoded, mac.Sum(nil)) != 1 {
		return core.InvalidSignature("webhooks: signature verification failed", nil)
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
