// Package logutil configures the process-wide slog logger: tinted text on a
// terminal, JSON otherwise, and an optional size-rotated log file.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

const (
	logFileName  = "instant_translator.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Format selects the console output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Options controls Setup.
type Options struct {
	Format Format
	Level  slog.Level
	// FileLogging additionally writes JSON records to a rotating file in Dir.
	FileLogging bool
	Dir         string
	Console     io.Writer
}

// Setup installs the default logger and returns a func that closes the log file.
func Setup(opts Options) func() {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handler := NewHandler(console, opts.Format, opts.Level)

	closer := func() {}
	if opts.FileLogging {
		w, err := openRotating(opts.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			fileHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: true})
			handler = fanout{handler, fileHandler}
			closer = func() { _ = w.Close() }
		}
	}
	slog.SetDefault(slog.New(handler))
	return closer
}

// NewHandler builds the console handler for w.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

type rotatingWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openRotating(dir string) (*rotatingWriter, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, logFileName)
	rotateIfNeeded(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &rotatingWriter{path: path, f: f}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		rotate(w.path)
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func rotateIfNeeded(path string) {
	if st, err := os.Stat(path); err == nil && st.Size() > maxSizeBytes {
		rotate(path)
	}
}

// rotate shifts path -> .1 -> .2 -> .3, discarding the oldest.
func rotate(path string) {
	_ = os.Remove(archiveName(path, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(path, i), archiveName(path, i+1))
	}
	_ = os.Rename(path, archiveName(path, 1))
}

func archiveName(path string, n int) string { return fmt.Sprintf("%s.%d", path, n) }

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// Sanitize shortens text and escapes control characters so selections can be
// logged without breaking line-oriented log readers.
func Sanitize(text string) string {
	const maxLogLength = 100
	r := []rune(text)
	truncated := len(r) > maxLogLength
	if truncated {
		r = r[:maxLogLength]
	}
	var b strings.Builder
	for _, c := range r {
		switch {
		case c == '\n' || c == '\r':
			b.WriteString("\\n")
		case c == '\t':
			b.WriteString("\\t")
		case c < 32 || c == 127:
			b.WriteByte('?')
		default:
			b.WriteRune(c)
		}
	}
	if truncated {
		b.WriteString("...")
	}
	return b.String()
}
