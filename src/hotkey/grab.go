package hotkey

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jezek/xgb/xproto"

	"instant-translator/src/display"
)

// ErrGrab is returned when the chord cannot be registered globally, usually
// because another client already holds it.
var ErrGrab = errors.New("global key grab failed")

// Grabber delivers chord matches. Poll never blocks.
type Grabber interface {
	Grab(c Chord) error
	// Poll returns how many times the chord fired since the previous call.
	Poll() (int, error)
	// Release undoes Grab and frees the underlying handle.
	Release() error
}

// X11Grabber uses XGrabKey on the root window of its own connection.
type X11Grabber struct {
	conn    *display.Conn
	code    xproto.Keycode
	mods    uint16
	grabbed []uint16
}

// NewX11Grabber takes ownership of conn; Release closes it.
func NewX11Grabber(conn *display.Conn) *X11Grabber {
	return &X11Grabber{conn: conn}
}

// Grab registers c for all lock variants. On partial failure the variants
// already grabbed are released again.
func (g *X11Grabber) Grab(c Chord) error {
	km, err := g.conn.Keymap()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGrab, err)
	}
	code, ok := km.Keycode(c.Keysym)
	if !ok {
		return fmt.Errorf("%w: no keycode for %s", ErrGrab, c)
	}
	g.code, g.mods = code, c.Mods

	for _, mods := range LockVariants(c.Mods) {
		err := xproto.GrabKeyChecked(g.conn.X, false, g.conn.Root, mods, code,
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			g.ungrab()
			return fmt.Errorf("%w: %s (mods %#x): %v", ErrGrab, c, mods, err)
		}
		g.grabbed = append(g.grabbed, mods)
	}
	slog.Info("hotkey grabbed", "chord", c.String(), "keycode", code, "variants", len(g.grabbed))
	return nil
}

// Poll drains pending events from the connection.
func (g *X11Grabber) Poll() (int, error) {
	n := 0
	for {
		ev, err := g.conn.X.PollForEvent()
		if err != nil {
			return n, fmt.Errorf("x event: %w", err)
		}
		if ev == nil {
			return n, nil
		}
		if kp, ok := ev.(xproto.KeyPressEvent); ok && g.matches(kp) {
			n++
		}
	}
}

func (g *X11Grabber) matches(ev xproto.KeyPressEvent) bool {
	state := ev.State &^ (xproto.ModMaskLock | xproto.ModMask2)
	return ev.Detail == g.code && state == g.mods
}

// Release ungrabs every registered variant and then closes the connection.
func (g *X11Grabber) Release() error {
	err := g.ungrab()
	g.conn.Close()
	return err
}

func (g *X11Grabber) ungrab() error {
	var errs []error
	for _, mods := range g.grabbed {
		if err := xproto.UngrabKeyChecked(g.conn.X, g.code, g.conn.Root, mods).Check(); err != nil {
			errs = append(errs, fmt.Errorf("ungrab mods %#x: %w", mods, err))
		}
	}
	if n := len(g.grabbed); n > 0 {
		slog.Debug("hotkey released", "variants", n)
	}
	g.grabbed = nil
	return errors.Join(errs...)
}
