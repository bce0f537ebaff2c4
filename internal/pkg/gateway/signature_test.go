package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"eventId":"evt_001","status":"SUCCEEDED"}`)
	secret := "whsec_test"

	sig := SignWebhookPayload(payload, secret)
	assert.True(t, VerifyWebhookSignature(payload, sig, secret))
}

func TestVerifyWebhookSignatureUppercaseHex(t *testing.T) {
	payload := []byte(`{"eventId":"evt_001"}`)
	secret := "whsec_test"

	sig := SignWebhookPayload(payload, secret)
	upper := ""
	for _, r := range sig {
		if r >= 'a' && r <= 'f' {
			upper += string(r - 32)
		} else {
			upper += string(r)
		}
	}
	assert.True(t, VerifyWebhookSignature(payload, upper, secret))
}

func TestVerifyWebhookSignatureRejects(t *testing.T) {
	payload := []byte(`{"eventId":"evt_001"}`)
	secret := "whsec_test"
	sig := SignWebhookPayload(payload, secret)

	// tampered body
	assert.False(t, VerifyWebhookSignature([]byte(`{"eventId":"evt_002"}`), sig, secret))
	// wrong secret
	assert.False(t, VerifyWebhookSignature(payload, sig, "whsec_other"))
	// missing pieces
	assert.False(t, VerifyWebhookSignature(payload, "", secret))
	assert.False(t, VerifyWebhookSignature(payload, sig, ""))
	// not hex at all
	assert.False(t, VerifyWebhookSignature(payload, "zz-not-hex", secret))
}
