package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.qchat/config.toml.
type Config struct {
	DefaultProfile string            `toml:"default_profile"`
	Channel        ChannelConfig     `toml:"channel"`
	Store          StoreConfig       `toml:"store"`
	Verifier       VerifierConfig    `toml:"verifier"`
	Charts         ChartsConfig      `toml:"charts"`
	Attachments    AttachmentsConfig `toml:"attachments"`
	Presence       PresenceConfig    `toml:"presence"`
	Metrics        MetricsConfig     `toml:"metrics"`
	Log            LogConfig         `toml:"log"`
}

// ChannelConfig selects the broadcast transport: "bus" or "storage".
type ChannelConfig struct {
	Mode string `toml:"mode"`
}

// StoreConfig bounds the Local Store.
type StoreConfig struct {
	QuotaBytes int64 `toml:"quota_bytes"`
}

// VerifierConfig selects the sign-in code provider: "local" or "twilio".
type VerifierConfig struct {
	Kind             string `toml:"kind"`
	CountryCode      string `toml:"country_code"`
	TwilioAccountSID string `toml:"twilio_account_sid"`
	TwilioAuthToken  string `toml:"twilio_auth_token"`
	TwilioServiceSID string `toml:"twilio_service_sid"`
}

// ChartsConfig selects the chart backend: "local", "redis" or "postgres".
type ChartsConfig struct {
	Backend     string `toml:"backend"`
	RedisURL    string `toml:"redis_url"`
	DatabaseURL string `toml:"database_url"`
}

// AttachmentsConfig bounds attachment size and the loader retry budget.
type AttachmentsConfig struct {
	MaxBytes          int64 `toml:"max_bytes"`
	MissingRetries    int   `toml:"missing_retries"`
	MissingIntervalMS int   `toml:"missing_interval_ms"`
	ErrorRetries      int   `toml:"error_retries"`
	ErrorIntervalMS   int   `toml:"error_interval_ms"`
}

// PresenceConfig sets the heartbeat and live window.
type PresenceConfig struct {
	HeartbeatMS int `toml:"heartbeat_ms"`
	WindowMS    int `toml:"window_ms"`
}

// MetricsConfig enables the HTTP metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig sets the zap level name for the daemon and TUI logs.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Channel:        ChannelConfig{Mode: "bus"},
		Store:          StoreConfig{QuotaBytes: 5 << 20},
		Verifier:       VerifierConfig{Kind: "local", CountryCode: "+256"},
		Charts:         ChartsConfig{Backend: "local"},
		Attachments: AttachmentsConfig{
			MaxBytes:          25 << 20,
			MissingRetries:    10,
			MissingIntervalMS: 400,
			ErrorRetries:      5,
			ErrorIntervalMS:   600,
		},
		Presence: PresenceConfig{HeartbeatMS: 10_000, WindowMS: 60_000},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path over the defaults. A missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg.fillZero()
	return cfg, nil
}

// fillZero restores defaults for fields a partial file set to zero values.
func (c *Config) fillZero() {
	d := Default()
	if c.DefaultProfile == "" {
		c.DefaultProfile = d.DefaultProfile
	}
	if c.Channel.Mode == "" {
		c.Channel.Mode = d.Channel.Mode
	}
	if c.Store.QuotaBytes <= 0 {
		c.Store.QuotaBytes = d.Store.QuotaBytes
	}
	if c.Verifier.Kind == "" {
		c.Verifier.Kind = d.Verifier.Kind
	}
	if c.Verifier.CountryCode == "" {
		c.Verifier.CountryCode = d.Verifier.CountryCode
	}
	if c.Charts.Backend == "" {
		c.Charts.Backend = d.Charts.Backend
	}
	a := &c.Attachments
	if a.MaxBytes <= 0 {
		a.MaxBytes = d.Attachments.MaxBytes
	}
	if a.MissingRetries <= 0 {
		a.MissingRetries = d.Attachments.MissingRetries
	}
	if a.MissingIntervalMS <= 0 {
		a.MissingIntervalMS = d.Attachments.MissingIntervalMS
	}
	if a.ErrorRetries <= 0 {
		a.ErrorRetries = d.Attachments.ErrorRetries
	}
	if a.ErrorIntervalMS <= 0 {
		a.ErrorIntervalMS = d.Attachments.ErrorIntervalMS
	}
	if c.Presence.HeartbeatMS <= 0 {
		c.Presence.HeartbeatMS = d.Presence.HeartbeatMS
	}
	if c.Presence.WindowMS <= 0 {
		c.Presence.WindowMS = d.Presence.WindowMS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// ApplyEnv loads envFile into the process environment if it exists, without
// overriding variables already set, then overlays the known variables.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	overlay := map[string]*string{
		"QCHAT_REDIS_URL":           &c.Charts.RedisURL,
		"QCHAT_DATABASE_URL":        &c.Charts.DatabaseURL,
		"TWILIO_ACCOUNT_SID":        &c.Verifier.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":         &c.Verifier.TwilioAuthToken,
		"TWILIO_VERIFY_SERVICE_SID": &c.Verifier.TwilioServiceSID,
		"QCHAT_CHARTS_BACKEND":      &c.Charts.Backend,
		"QCHAT_VERIFIER":            &c.Verifier.Kind,
		"QCHAT_LOG_LEVEL":           &c.Log.Level,
	}
	for key, dst := range overlay {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	return nil
}

// HeartbeatInterval returns the presence heartbeat as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Presence.HeartbeatMS) * time.Millisecond
}

// PresenceWindow returns the active window as a duration.
func (c *Config) PresenceWindow() time.Duration {
	return time.Duration(c.Presence.WindowMS) * time.Millisecond
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
