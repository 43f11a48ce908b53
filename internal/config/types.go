package config

// Config is the fractald configuration file (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
	Render  RenderConfig  `json:"render"`
	Server  ServerConfig  `json:"server"`

	// Tour and Storage are optional; nil disables them.
	Tour    *TourConfig    `json:"tour,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// RenderConfig holds engine settings plus the parameters used when a
// request leaves a field out.
type RenderConfig struct {
	QueueSize   int `json:"queue_size,omitempty"`   // default 1024
	HistorySize int `json:"history_size,omitempty"` // default 50
	MaxPixels   int `json:"max_pixels,omitempty"`   // 0: unlimited

	// Background is "r,g,b" for rows no worker delivered. Default black.
	Background string `json:"background,omitempty"`

	// RenderOnStart renders Defaults once the engine is up.
	RenderOnStart bool `json:"render_on_start,omitempty"`

	Defaults RenderDefaults `json:"defaults"`
}

type RenderDefaults struct {
	ScaleX     float64 `json:"scale_x"`
	ScaleY     float64 `json:"scale_y"`
	ScaleWidth float64 `json:"scale_width"`

	Width        int `json:"width"`
	Height       int `json:"height"`
	AntiAliasing int `json:"anti_aliasing"`
	MaxIteration int `json:"max_iteration"`
	ColorRange   int `json:"color_range"`

	// ColorMap is "r,g,b,r,g,b,...".
	ColorMap string `json:"color_map"`

	// Threads 0 means one worker per CPU.
	Threads int `json:"threads,omitempty"`
}

// ServerConfig controls the HTTP API and websocket event stream.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// ProgressPerSec caps progress events per websocket client; terminal
	// events are never throttled. Default 10.
	ProgressPerSec float64 `json:"progress_per_sec,omitempty"`

	// OriginPatterns are extra websocket origins to accept (host patterns).
	OriginPatterns []string `json:"origin_patterns,omitempty"`
}

// TourConfig drives scheduled renders through a list of stops.
//
// Example:
//
//	"tour": { "enabled": true, "schedule": "every:30s" }
type TourConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`

	// Stops default to a few well-known regions when empty.
	Stops []TourStop `json:"stops,omitempty"`
}

// TourStop is given by its centre so it fits any image aspect ratio.
type TourStop struct {
	Name         string  `json:"name"`
	CenterX      float64 `json:"center_x"`
	CenterY      float64 `json:"center_y"`
	Width        float64 `json:"width"`
	MaxIteration int     `json:"max_iteration,omitempty"`
}

// StorageConfig controls session history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./fractald.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	Retain      int    `json:"retain,omitempty"`
}
