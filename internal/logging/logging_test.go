package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(empty) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded, want error")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("hello", "key", "value")
	log.Debug("filtered out")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"hello"`) {
		t.Errorf("log missing message: %s", content)
	}
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("log missing attribute: %s", content)
	}
	if strings.Contains(content, "filtered out") {
		t.Errorf("debug record written at info level: %s", content)
	}
}

func TestWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatal(err)
	}

	log.WithComponent("watcher").Info("scoped")
	log.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"component":"watcher"`) {
		t.Errorf("component attribute missing: %s", data)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	r, err := NewFileRotator(&Config{
		FilePath:   path,
		MaxSize:    1, // 1MB
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	line := []byte(strings.Repeat("x", 1024) + "\n")
	for i := 0; i < 1100; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rotated) == 0 {
		t.Error("no rotated file created after exceeding max size")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current log missing after rotation: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("current log size %d exceeds limit", info.Size())
	}
}

func TestDefaultLoggerReplaceable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatText,
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatal(err)
	}
	prev := Default()
	defer SetDefault(prev)

	SetDefault(log)
	Info("through the default")
	log.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "through the default") {
		t.Errorf("default logger did not write to configured file: %s", data)
	}
}

func TestLevelAliases(t *testing.T) {
	// The Level alias must interoperate with slog levels directly.
	var l Level = slog.LevelWarn
	if l != LevelWarn {
		t.Error("Level alias does not match slog.LevelWarn")
	}
}
