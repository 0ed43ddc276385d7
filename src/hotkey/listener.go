// Package hotkey grabs the global chord and turns each press into a request to
// the menu coordinator: close the open menu, open one for the current
// selection, or tell the user nothing is selected.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"instant-translator/src/logutil"
	"instant-translator/src/popup"
	"instant-translator/src/selection"
)

// DefaultInterval is how often the grabber is polled for chord events.
const DefaultInterval = 50 * time.Millisecond

// Coordinator is the part of the menu coordinator the listener talks to. All
// calls must be non-blocking hand-offs.
type Coordinator interface {
	SessionOpen() bool
	OpenMenu(p popup.Point, snap selection.Snapshot)
	CloseMenu()
	ShowNotice(message string)
}

// NoticeText is the message shown when the chord fires without a selection.
func NoticeText(c Chord) string {
	return fmt.Sprintf("Hotkey %s detected!\nPlease select some text first.", c)
}

// Listener polls a Grabber and drives the menu toggle.
type Listener struct {
	grabber  Grabber
	chord    Chord
	source   selection.Source
	coord    Coordinator
	interval time.Duration

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener builds a stopped listener. interval <= 0 uses DefaultInterval.
func NewListener(g Grabber, c Chord, src selection.Source, coord Coordinator, interval time.Duration) *Listener {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Listener{grabber: g, chord: c, source: src, coord: coord, interval: interval}
}

// Start grabs the chord and launches the poll loop. A grab failure is returned
// and nothing is started.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return nil
	}
	if err := l.grabber.Grab(l.chord); err != nil {
		return err
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.running.Store(true)
	l.wg.Add(1)
	go l.loop(ctx)
	slog.Info("hotkey listener started", "chord", l.chord.String(), "interval", l.interval)
	return nil
}

func (l *Listener) loop(ctx context.Context) {
	defer l.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in hotkey loop", "panic", r)
		}
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := l.grabber.Poll()
		if err != nil {
			slog.Warn("hotkey poll failed", "err", err)
		}
		for range n {
			if ctx.Err() != nil {
				return
			}
			l.Trigger(ctx)
		}
	}
}

// Trigger runs one chord press: toggle off an open menu, else open a menu for
// the current selection or show the no-selection notice.
func (l *Listener) Trigger(ctx context.Context) {
	if l.coord.SessionOpen() {
		slog.Debug("chord pressed with menu open, closing")
		l.coord.CloseMenu()
		return
	}

	snap, ok := l.source.Capture(ctx)
	if ctx.Err() != nil {
		return
	}
	if !ok || snap.Empty() {
		slog.Info("chord pressed without a selection")
		l.coord.ShowNotice(NoticeText(l.chord))
		return
	}
	slog.Info("chord pressed", "x", snap.RootX, "y", snap.RootY, "app", snap.App, "text", logutil.Sanitize(snap.Text))
	// The menu is placed with root-window requests.
	l.coord.OpenMenu(popup.Point{X: snap.RootX, Y: snap.RootY}, snap)
}

// Running reports whether the poll loop is active.
func (l *Listener) Running() bool { return l.running.Load() }

// Stop ends the loop, waits for it to exit and then releases the grab.
// Safe to call more than once.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return nil
	}
	l.cancel()
	l.wg.Wait()
	l.running.Store(false)
	err := l.grabber.Release()
	slog.Info("hotkey listener stopped")
	return err
}
