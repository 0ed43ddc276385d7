// Package selection captures the current PRIMARY selection together with the
// pointer position and the name of the application that owns the focus.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNoSelection reports that nothing usable is selected.
var ErrNoSelection = errors.New("no text selected")

// UnknownApp is reported when the focused application cannot be identified.
const UnknownApp = "unknown"

// Snapshot is one immutable observation of the selection.
// X, Y are the pointer position after the coordinate transform; RootX, RootY
// are the untransformed root-window position that X11 requests take.
type Snapshot struct {
	Text         string
	X, Y         int
	RootX, RootY int
	App          string
	CapturedAt   time.Time
}

// Length is the number of characters in Text.
func (s Snapshot) Length() int { return utf8.RuneCountInString(s.Text) }

// Empty reports whether the snapshot carries no text.
func (s Snapshot) Empty() bool { return s.Text == "" }

// Source produces snapshots. Capture never fails loudly: anything that keeps a
// snapshot from being produced is reported as ok=false.
type Source interface {
	Capture(ctx context.Context) (Snapshot, bool)
}

// Reader returns the raw PRIMARY selection bytes.
type Reader interface {
	Read(ctx context.Context) ([]byte, error)
}

// Locator resolves where the user is pointing and what application is focused.
type Locator interface {
	Pointer() (int, int, error)
	ActiveApp() (string, error)
}

// X11Source combines a selection reader with an X11 locator.
type X11Source struct {
	reader    Reader
	locator   Locator
	transform CoordinateTransform
	now       func() time.Time
}

// NewX11Source builds a source. locator and transform may be nil.
func NewX11Source(reader Reader, locator Locator, transform CoordinateTransform) *X11Source {
	if transform == nil {
		transform = Identity
	}
	return &X11Source{reader: reader, locator: locator, transform: transform, now: time.Now}
}

// Capture reads the selection and decorates it with position and app name.
func (s *X11Source) Capture(ctx context.Context) (Snapshot, bool) {
	raw, err := s.reader.Read(ctx)
	if err != nil {
		return Snapshot{}, false
	}
	text, ok := Normalize(raw)
	if !ok {
		return Snapshot{}, false
	}

	snap := Snapshot{Text: text, App: UnknownApp, CapturedAt: s.now()}
	if s.locator == nil {
		return snap, true
	}
	if x, y, err := s.locator.Pointer(); err == nil {
		snap.RootX, snap.RootY = x, y
		snap.X, snap.Y = s.transform(x, y)
	} else {
		slog.Debug("pointer query failed", "err", err)
	}
	if app, err := s.locator.ActiveApp(); err == nil && app != "" {
		snap.App = app
	}
	return snap, true
}

// Normalize validates UTF-8 and strips trailing line breaks. Empty results are rejected.
func Normalize(raw []byte) (string, bool) {
	if len(raw) == 0 || !utf8.Valid(raw) {
		return "", false
	}
	text := strings.TrimRight(string(raw), "\r\n")
	if text == "" {
		return "", false
	}
	return text, true
}

// Preview shortens text to n runes for logs and labels, appending "...".
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "..."
}
