package config

// SecretsConfig holds process secrets: carrier webhook verification,
// the admin API's JWT signing key, Twilio TURN credentials (§6), and
// the caller-fingerprint hashing salt (§4.7 privacy sanitization).
type SecretsConfig struct {
	CarrierWebhookSecret string
	JWTSigningKey         string
	JWTIssuer             string
	TwilioAccountSID      string
	TwilioAuthToken       string
	PrivacyHashSalt       string
}

func loadSecretsConfig() SecretsConfig {
	return SecretsConfig{
		CarrierWebhookSecret: getEnvOrDefault("CARRIER_WEBHOOK_SECRET", ""),
		JWTSigningKey:         getEnvOrDefault("JWT_SIGNING_KEY", ""),
		JWTIssuer:             getEnvOrDefault("JWT_ISSUER", "voicecore"),
		TwilioAccountSID:      getEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:       getEnvOrDefault("TWILIO_AUTH_TOKEN", ""),
		PrivacyHashSalt:       getEnvOrDefault("PRIVACY_HASH_SALT", ""),
	}
}
