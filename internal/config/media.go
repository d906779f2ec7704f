package config

// MediaConfig configures the carrier-facing WebRTC media bridge
// (internal/media): ICE server list for NAT traversal and the control
// data-channel name used to render session.Carrier commands (§4.1
// "Outputs") to the connected endpoint.
type MediaConfig struct {
	STUNServers     []string
	ControlChannel  string
}

func loadMediaConfig() MediaConfig {
	return MediaConfig{
		STUNServers:    splitAndTrimStrings(getEnvOrDefault("MEDIA_STUN_SERVERS", "stun:stun.l.google.com:19302"), ","),
		ControlChannel: getEnvOrDefault("MEDIA_CONTROL_CHANNEL", "voicecore-control"),
	}
}
