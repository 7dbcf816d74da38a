package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMACHeader carries the signature Shopify computes over the raw request body.
const HMACHeader = "X-Shopify-Hmac-Sha256"

// Verifier checks that a webhook delivery genuinely originated from Shopify.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify computes an HMAC-SHA256 over the raw, unparsed request body and
// compares it to the provided signature in constant time. It fails closed:
// an unconfigured secret or a missing signature is a rejection, never a pass.
func (v *Verifier) Verify(rawBody []byte, providedSignature string) bool {
	if len(v.secret) == 0 || providedSignature == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(providedSignature))
}
