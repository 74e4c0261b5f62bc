package main

import "time"

// Config is the full configuration surface, populated by CLI flags in main.go.
type Config struct {
	BindHost    string
	ControlPort int
	VideoPort   int
	AudioPort   int

	SpoolDir        string
	MaxFileSize     int64
	ChatHistorySize int
	MaxParticipants int

	HeartbeatSoft int // seconds
	HeartbeatHard int // seconds

	AdminAddr   string
	AdminDBPath string

	MDNSEnable bool
	MDNSName   string

	ControlMsgsPerSecond float64
	LinkPreviewEnable    bool

	// LinkPreviewMaxPerMinute caps how many link-preview fetches the hub will
	// issue in aggregate, independent of how many participants are posting
	// links; protects the hub's own outbound bandwidth/LAN gateway from a
	// chat room full of pasted URLs.
	LinkPreviewMaxPerMinute float64

	// SlowModeSeconds seeds the hub-wide chat cooldown at startup; a host
	// can change it at runtime with set_slow_mode. 0 disables it.
	SlowModeSeconds int
}

func DefaultConfig() Config {
	return Config{
		BindHost:    "0.0.0.0",
		ControlPort: 8888,
		VideoPort:   8889,
		AudioPort:   8890,

		SpoolDir:        "uploads",
		MaxFileSize:     maxFileSize,
		ChatHistorySize: defaultChatHistory,
		MaxParticipants: defaultMaxParticipants,

		HeartbeatSoft: int(heartbeatSoftTimeout / time.Second),
		HeartbeatHard: int(heartbeatHardTimeout / time.Second),

		AdminDBPath: "hub.db",

		MDNSName: "confhub",

		ControlMsgsPerSecond:    20,
		LinkPreviewEnable:       true,
		LinkPreviewMaxPerMinute: 20,
		SlowModeSeconds:         0,
	}
}
