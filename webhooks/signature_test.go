package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/goliatone/go-messenger/core"
)

func TestSignatureVerifier(t *testing.T) {
	body := []byte(`{"object":"page","entry":[]}`)
	legacy := hmac.New(sha1.New, []byte("app-secret"))
	legacy.Write(body)

	cases := []struct {
		name    string
		headers http.Header
		wantErr bool
	}{
		{name: "sha256", headers: http.Header{HeaderSignature256: {Sign("app-secret", body)}}},
		{name: "sha256 uppercase prefix", headers: http.Header{HeaderSignature256: {"SHA256=" + Sign("app-secret", body)[len("sha256="):]}}},
		{name: "legacy sha1", headers: http.Header{HeaderSignature: {"sha1=" + hex.EncodeToString(legacy.Sum(nil))}}},
		{name: "wrong secret", headers: http.Header{HeaderSignature256: {Sign("other", body)}}, wantErr: true},
		{name: "not hex", headers: http.Header{HeaderSignature256: {"sha256=zz"}}, wantErr: true},
		{name: "wrong scheme", headers: http.Header{HeaderSignature256: {"md5=00"}}, wantErr: true},
		{name: "missing", headers: http.Header{}, wantErr: true},
	}
	verifier := NewSignatureVerifier(" app-secret ")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := verifier.Verify(tc.headers, body)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected verify error: %v", err)
				}
				return
			}
			if !core.IsInvalidSignature(err) {
				t.Fatalf("expected invalid signature error, got %v", err)
			}
		})
	}
}

func TestSignatureVerifier_RequiresSecret(t *testing.T) {
	verifier := NewSignatureVerifier("")
	if verifier.Enabled() {
		t.Fatalf("expected verifier without secret to be disabled")
	}
	err := verifier.Verify(http.Header{}, nil)
	if !core.HasTextCode(err, core.ErrorConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
