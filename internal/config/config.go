// Package config provides configuration management for chain-player.
package config

import "time"

// Config holds all configuration options for the player.
type Config struct {
	// Playback
	Sources       []string `json:"sources"`
	PlaylistFile  string   `json:"playlist"`
	WatchPlaylist bool     `json:"watch_playlist"`
	Rotation      int      `json:"rotate"`
	Loop          int      `json:"loop"` // 0 = none, -1 = forever, N = plays per item
	LoopAll       bool     `json:"loop_all"`
	Strategy      string   `json:"strategy"` // rebuild, seamless

	// Display
	Layer           int `json:"layer"`
	BackgroundLayer int `json:"background_layer"`

	// Engine
	BufferNum     int           `json:"buffer_num"`
	BufferSize    int           `json:"buffer_size"`
	FrameSize     int           `json:"frame_size"`
	FrameInterval time.Duration `json:"frame_interval"`

	// Restart policy
	RestartOnError  int           `json:"restart_on_error"` // 0 = never
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	LogFormat   string `json:"log_format"`   // json, text
	LogLevel    string `json:"log_level"`
	Verbose     bool   `json:"verbose"`
	TUIEnabled  bool   `json:"tui"`

	// Diagnostics
	SkipPreflight bool   `json:"skip_preflight"`
	ConfigFile    string `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Playback
		Strategy: "rebuild",

		// Display
		Layer:           128,
		BackgroundLayer: 64,

		// Engine
		BufferNum:     3,
		BufferSize:    64 * 1024,
		FrameSize:     16 * 1024,
		FrameInterval: 40 * time.Millisecond, // 25 fps

		// Restart policy
		RestartOnError:  0,
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
	}
}
