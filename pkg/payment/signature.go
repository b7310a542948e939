package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayload computes the hex HMAC-SHA256 of payload under secret, the
// scheme the gateway uses for webhook bodies.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the signature header against the raw
// request body. Must be called before the body is parsed or any state is
// read.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyCallbackSignature checks the redirect-callback signature, computed
// over "<gateway order id>|<payment id>" under the API key secret. The
// callback is advisory either way; this only picks the redirect target.
func VerifyCallbackSignature(secret, gatewayOrderID, paymentID, signature string) bool {
	expected := SignPayload(secret, []byte(gatewayOrderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}
