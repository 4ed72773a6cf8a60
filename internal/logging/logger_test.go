package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "logs", "qchatd.log")
	var console bytes.Buffer

	logger, err := New(Options{Path: logPath, Profile: "work", Console: &console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if line["msg"] != "hello" || line["profile"] != "work" {
		t.Errorf("line = %v", line)
	}
	if _, ok := line["ts"]; !ok {
		t.Error("missing ts field")
	}
	if !strings.Contains(console.String(), "hello") {
		t.Errorf("console = %q", console.String())
	}
}

func TestNewFileOnly(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "qchattui.log")
	logger, err := New(Options{Path: logPath, Profile: "main"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	_ = logger.Sync()

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permission = %o, want 0600", info.Mode().Perm())
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := New(Options{Path: logPath, Profile: "main", Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("log = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zapcore.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", lvl, err)
	}
	if lvl, err := ParseLevel("debug"); err != nil || lvl != zapcore.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}
