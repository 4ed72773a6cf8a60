package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Charts.Backend = "redis"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Charts.Backend != "redis" || loaded.Attachments.MissingIntervalMS != 400 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProfile != "main" || cfg.Verifier.Kind != "local" || cfg.Verifier.CountryCode != "+256" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Store.QuotaBytes != 5<<20 {
		t.Errorf("quota = %d", cfg.Store.QuotaBytes)
	}
}

func TestLoadOrDefaultPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_profile = "work"

[channel]
mode = "storage"

[attachments]
missing_retries = 3
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProfile != "work" || cfg.Channel.Mode != "storage" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Attachments.MissingRetries != 3 || cfg.Attachments.MissingIntervalMS != 400 {
		t.Errorf("attachments = %+v", cfg.Attachments)
	}
	if cfg.HeartbeatInterval().Seconds() != 10 || cfg.PresenceWindow().Seconds() != 60 {
		t.Errorf("presence = %+v", cfg.Presence)
	}
}

func TestLoadOrDefaultInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_profile = ["), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "QCHAT_REDIS_URL=redis://from-file:6379/0\nTWILIO_ACCOUNT_SID=ACfile\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWILIO_ACCOUNT_SID", "ACprocess")
	// godotenv.Load sets variables; clear them after the test.
	t.Setenv("QCHAT_REDIS_URL", "")
	_ = os.Unsetenv("QCHAT_REDIS_URL")

	cfg := Default()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatal(err)
	}
	if cfg.Charts.RedisURL != "redis://from-file:6379/0" {
		t.Errorf("RedisURL = %q", cfg.Charts.RedisURL)
	}
	if cfg.Verifier.TwilioAccountSID != "ACprocess" {
		t.Errorf("process env must win, got %q", cfg.Verifier.TwilioAccountSID)
	}
}

func TestApplyEnvMissingFile(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	t.Setenv("QCHAT_LOG_LEVEL", "warn")
	if err := cfg.ApplyEnv(""); err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level after env = %q, want warn", cfg.Log.Level)
	}

	if lvl := Default().Log.Level; lvl != "info" {
		t.Errorf("default level = %q, want info", lvl)
	}
}
