// Copyright 2025 The Pollinate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the payload HMAC on every GitHub delivery
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// ValidateSignature reports whether signature is exactly "sha256=" followed
// by the lowercase hex HMAC-SHA256 of payload keyed with secret. An empty
// signature or secret never validates.
func ValidateSignature(payload []byte, signature string, secret string) bool {
	return NewVerifier(secret).Verify(payload, signature)
}

// Sign returns the X-Hub-Signature-256 value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks deliveries against a shared webhook secret
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier for secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify reports whether signature is the X-Hub-Signature-256 value for payload
func (v *Verifier) Verify(payload []byte, signature string) bool {
	if v.secret == "" || !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(Sign(payload, v.secret)))
}
