// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ComputeSignature computes the hex-encoded HMAC-SHA256 of body under secret,
// the scheme the voice platform applies to raw webhook bodies.
func ComputeSignature(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether signature is a valid HMAC-SHA256 of body
// under secret. A "sha256=" prefix on the header value is tolerated.
// Comparison is timing-safe.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	expected := ComputeSignature(body, secret)

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
