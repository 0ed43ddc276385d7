package logutil

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"text": FormatText,
		"TINT": FormatText,
		"json": FormatJSON,
		"":     FormatAuto,
		"xml":  FormatAuto,
	}
	for in, want := range tests {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != slog.LevelDebug {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("nonsense"); got != slog.LevelInfo {
		t.Errorf("ParseLevel(nonsense) = %v", got)
	}
}

func TestNewHandlerJSONForPipes(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, FormatAuto, slog.LevelInfo)
	slog.New(h).Info("selection changed", "length", 5)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output for non-tty writer, got %q", buf.String())
	}
}

func TestSetupFileLogging(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	dir := t.TempDir()
	var console bytes.Buffer
	closeLog := Setup(Options{Format: FormatJSON, Level: slog.LevelInfo, FileLogging: true, Dir: dir, Console: &console})
	slog.Info("hotkey grabbed", "chord", "Ctrl+Shift+M")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hotkey grabbed") {
		t.Fatalf("log file missing record: %q", data)
	}
	if !strings.Contains(console.String(), "hotkey grabbed") {
		t.Fatalf("console missing record: %q", console.String())
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logFileName)
	if err := os.WriteFile(path, []byte("current"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(archiveName(path, 1), []byte("older"), 0o644); err != nil {
		t.Fatal(err)
	}
	rotate(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected base file moved, stat err = %v", err)
	}
	got, _ := os.ReadFile(archiveName(path, 1))
	if string(got) != "current" {
		t.Fatalf(".1 = %q, want current", got)
	}
	got, _ = os.ReadFile(archiveName(path, 2))
	if string(got) != "older" {
		t.Fatalf(".2 = %q, want older", got)
	}
}

func TestRedactKey(t *testing.T) {
	if got := RedactKey("sk-or-1234567890abcd"); got != "sk-o...abcd" {
		t.Fatalf("RedactKey = %q", got)
	}
	if got := RedactKey("short"); got != "********" {
		t.Fatalf("RedactKey(short) = %q", got)
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("a\nb\tc\x01"); got != `a\nb\tc?` {
		t.Fatalf("Sanitize = %q", got)
	}
	long := strings.Repeat("x", 150)
	if got := Sanitize(long); len(got) != 103 {
		t.Fatalf("Sanitize long length = %d, want 103", len(got))
	}
}
