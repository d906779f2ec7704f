package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_AcceptsCorrectlySignedPayload(t *testing.T) {
	h := &CarrierWebhookHandler{webhookSecret: "shh"}
	payload := []byte(`{"session_id":"s1"}`)

	assert.True(t, h.verifySignature(payload, sign("shh", payload)))
}

func TestVerifySignature_RejectsTamperedPayload(t *testing.T) {
	h := &CarrierWebhookHandler{webhookSecret: "shh"}
	signature := sign("shh", []byte(`{"session_id":"s1"}`))

	assert.False(t, h.verifySignature([]byte(`{"session_id":"s2"}`), signature))
}

func TestVerifySignature_RejectsWrongSecret(t *testing.T) {
	h := &CarrierWebhookHandler{webhookSecret: "shh"}
	payload := []byte(`{"session_id":"s1"}`)

	assert.False(t, h.verifySignature(payload, sign("wrong", payload)))
}

func TestVerifySignature_SkipsVerificationWhenNoSecretConfigured(t *testing.T) {
	h := &CarrierWebhookHandler{webhookSecret: ""}

	assert.True(t, h.verifySignature([]byte(`anything`), "bogus"))
}
