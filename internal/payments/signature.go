package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrInvalidPaymentDetails is returned when the order id, payment id, or signature is missing.
	ErrInvalidPaymentDetails = errors.New("payments: invalid payment details")
	// ErrSignatureMismatch is returned when the provided signature does not match the recomputed one.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
)

// SignatureVerifier authenticates provider payment callbacks with a shared HMAC-SHA256 secret.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier for the given secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payments: signing secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign returns the hex encoded HMAC-SHA256 of "orderID|paymentID".
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the callback fields using a constant-time comparison.
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrInvalidPaymentDetails
	}
	expected := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
