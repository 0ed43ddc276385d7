// Package handoff writes a chosen action to a well-known file when no
// in-process action handler is registered, for an external reader to pick up.
package handoff

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Format renders the file body: the action id, a tab, a newline, then the text.
func Format(actionID, text string) string {
	return fmt.Sprintf("%s\t\n%s\n", actionID, text)
}

// File is the hand-off location.
type File struct {
	Path string
}

// Write replaces the file contents under an exclusive advisory lock so that a
// reader holding a shared lock never observes a partial record.
func (f File) Write(actionID, text string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("handoff dir: %w", err)
	}
	fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open handoff file: %w", err)
	}
	defer fh.Close()

	fd := int(fh.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock handoff file: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	if err := fh.Truncate(0); err != nil {
		return fmt.Errorf("truncate handoff file: %w", err)
	}
	if _, err := fh.WriteString(Format(actionID, text)); err != nil {
		return fmt.Errorf("write handoff file: %w", err)
	}
	slog.Info("action handed off", "path", f.Path, "action", actionID, "length", len(text))
	return nil
}

// Read parses a hand-off file written by Write.
func Read(path string) (actionID, text string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer fh.Close()

	fd := int(fh.Fd())
	if err := unix.Flock(fd, unix.LOCK_SH); err != nil {
		return "", "", fmt.Errorf("lock handoff file: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	var buf []byte
	buf, err = os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return parse(string(buf))
}

func parse(body string) (string, string, error) {
	var id, rest string
	for i := 0; i+1 < len(body); i++ {
		if body[i] == '\t' && body[i+1] == '\n' {
			id, rest = body[:i], body[i+2:]
			if len(rest) > 0 && rest[len(rest)-1] == '\n' {
				rest = rest[:len(rest)-1]
			}
			return id, rest, nil
		}
	}
	return "", "", fmt.Errorf("malformed handoff record")
}
