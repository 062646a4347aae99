// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DownloadsConfig sets where artifacts land.
type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// FFmpegConfig locates the transcoding helper. An empty location falls back
// to the system PATH lookup; absence is reported, not fatal.
type FFmpegConfig struct {
	Location string `mapstructure:"location"`
}

// StreamConfig tunes the progress event stream protocol.
type StreamConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	HeartbeatMs    int `mapstructure:"heartbeat_ms"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ReaperConfig tunes eviction of terminal job records.
type ReaperConfig struct {
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	RetentionSeconds int `mapstructure:"retention_seconds"`
}

// HistoryConfig controls the persistent download ledger.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDIADL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://127.0.0.1:8080")
	v.SetDefault("downloads.dir", "downloads")
	v.SetDefault("ffmpeg.location", "")
	v.SetDefault("stream.poll_interval_ms", 300)
	v.SetDefault("stream.heartbeat_ms", 1000)
	v.SetDefault("stream.timeout_seconds", 600)
	v.SetDefault("reaper.interval_seconds", 300)
	v.SetDefault("reaper.retention_seconds", 3600)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Downloads.Dir == "" {
		return fmt.Errorf("downloads.dir must be set")
	}
	if c.Stream.PollIntervalMs <= 0 {
		return fmt.Errorf("stream.poll_interval_ms must be > 0")
	}
	if c.Stream.TimeoutSeconds <= 0 {
		return fmt.Errorf("stream.timeout_seconds must be > 0")
	}
	if c.Reaper.IntervalSeconds <= 0 {
		return fmt.Errorf("reaper.interval_seconds must be > 0")
	}
	if c.Reaper.RetentionSeconds <= 0 {
		return fmt.Errorf("reaper.retention_seconds must be > 0")
	}
	return nil
}

// StreamPollInterval returns the stream poll cadence as a duration.
func (c Config) StreamPollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMs) * time.Millisecond
}

// StreamHeartbeat returns the stream heartbeat as a duration.
func (c Config) StreamHeartbeat() time.Duration {
	return time.Duration(c.Stream.HeartbeatMs) * time.Millisecond
}

// StreamTimeout returns the absolute stream session budget.
func (c Config) StreamTimeout() time.Duration {
	return time.Duration(c.Stream.TimeoutSeconds) * time.Second
}

// ReaperInterval returns the sweep cadence as a duration.
func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalSeconds) * time.Second
}

// ReaperRetention returns the terminal-record retention window.
func (c Config) ReaperRetention() time.Duration {
	return time.Duration(c.Reaper.RetentionSeconds) * time.Second
}
