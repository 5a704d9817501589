package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pageinbox/internal/config"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body keyed with the
// app secret, formatted as "sha256=<hex>".
const SignatureHeader = "X-Hub-Signature-256"

// verifySignature reads the request body and checks it against the
// signature header. The body is restored on the request so later readers
// still see it. Without a secret the check is skipped outside production.
func verifySignature(r *http.Request, appSecret string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if appSecret == "" {
		if config.IsProduction() {
			return nil, fmt.Errorf("app secret is required in production mode")
		}
		return body, nil
	}

	signatureHeader := r.Header.Get(SignatureHeader)
	if signatureHeader == "" {
		return nil, fmt.Errorf("missing signature header: %s", SignatureHeader)
	}

	algo, expectedSignatureHex, ok := strings.Cut(signatureHeader, "=")
	if !ok || !strings.EqualFold(algo, "sha256") {
		return nil, fmt.Errorf("invalid signature format in header %s", SignatureHeader)
	}

	if !hmac.Equal([]byte(signBody(body, appSecret)), []byte(strings.ToLower(expectedSignatureHex))) {
		return nil, fmt.Errorf("signature mismatch")
	}

	return body, nil
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
