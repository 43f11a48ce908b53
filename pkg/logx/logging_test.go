package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug").With(String("comp", "engine"))
	log.Info("render.started", Int("epoch", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["message"] != "render.started" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "engine" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["epoch"] != float64(3) {
		t.Fatalf("epoch = %v", m["epoch"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")
	log.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("ignored")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{"trace": LevelTrace, " DEBUG ": LevelDebug, "warning": LevelWarn, "bogus": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceApplySwitchesSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fractald.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })
	child := log.With(String("comp", "engine"))

	child.Debug("hidden")
	child.Info("render.completed", Int("lines", 8))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	child.Debug("visible")

	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), raw)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["message"] != "render.completed" || first["comp"] != "engine" || first["lines"] != float64(8) {
		t.Fatalf("unexpected entry: %v", first)
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want this file", c)
	}
	if !strings.Contains(lines[1], `"visible"`) {
		t.Fatalf("debug entry missing after Apply: %q", lines[1])
	}
}
