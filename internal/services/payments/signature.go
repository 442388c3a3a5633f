package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
)

var (
	ErrSignatureMissing = errors.New("payments: callback signature missing")
	ErrSignatureInvalid = errors.New("payments: callback signature mismatch")
)

// Verifier authenticates inbound callback payloads with a shared-secret
// keyed hash over the raw body bytes.
type Verifier struct {
	secret       []byte
	allowMissing bool
}

// NewVerifier builds a Verifier. allowMissing tolerates an absent signature
// (dev/sandbox only); a present-but-wrong signature is never tolerated.
func NewVerifier(secret string, allowMissing bool) *Verifier {
	return &Verifier{secret: []byte(secret), allowMissing: allowMissing}
}

// Verify checks an HMAC-SHA256 hex signature over body.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		if v.allowMissing {
			return nil
		}
		return ErrSignatureMissing
	}

	expected := Sign(v.secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaystackSignature checks the x-paystack-signature header: hex
// HMAC-SHA512 of the raw body under the account secret key. Paystack
// always signs; there is no missing-signature tolerance on this rail.
func VerifyPaystackSignature(secretKey string, body []byte, signature string) error {
	if signature == "" {
		return ErrSignatureMissing
	}

	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
