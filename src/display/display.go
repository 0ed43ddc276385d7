// Package display owns X11 connections and the small set of protocol queries the
// rest of the program needs: pointer position, active window identity and the
// keysym to keycode mapping.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// ErrNoDisplay is returned when no X server can be reached.
var ErrNoDisplay = errors.New("cannot open display")

// Conn is one X connection plus the default screen's root window.
// Each actor opens its own Conn so that events and grabs stay with their owner.
type Conn struct {
	X    *xgb.Conn
	Root xproto.Window

	setup *xproto.SetupInfo

	mu     sync.Mutex
	atoms  map[string]xproto.Atom
	keymap *Keymap
	closed bool
}

// Open connects to the named display. An empty name uses $DISPLAY.
func Open(name string) (*Conn, error) {
	xc, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}
	setup := xproto.Setup(xc)
	screen := setup.DefaultScreen(xc)
	return &Conn{
		X:     xc,
		Root:  screen.Root,
		setup: setup,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

// Close releases the connection. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.X.Close()
}

// Atom interns name, caching the result.
func (c *Conn) Atom(name string) (xproto.Atom, error) {
	c.mu.Lock()
	if a, ok := c.atoms[name]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	reply, err := xproto.InternAtom(c.X, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	if reply.Atom == xproto.AtomNone {
		return 0, fmt.Errorf("atom %s not present", name)
	}

	c.mu.Lock()
	c.atoms[name] = reply.Atom
	c.mu.Unlock()
	return reply.Atom, nil
}

// Pointer returns the pointer position relative to the root window.
func (c *Conn) Pointer() (int, int, error) {
	reply, err := xproto.QueryPointer(c.X, c.Root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("query pointer: %w", err)
	}
	return int(reply.RootX), int(reply.RootY), nil
}

// ActiveWindow reads _NET_ACTIVE_WINDOW from the root window and falls back to
// the input focus when the window manager does not publish it.
func (c *Conn) ActiveWindow() (xproto.Window, error) {
	if atom, err := c.Atom("_NET_ACTIVE_WINDOW"); err == nil {
		prop, err := xproto.GetProperty(c.X, false, c.Root, atom, xproto.AtomWindow, 0, 1).Reply()
		if err == nil && prop.Format == 32 && len(prop.Value) >= 4 {
			if w := xproto.Window(xgb.Get32(prop.Value)); w != 0 {
				return w, nil
			}
		}
	}
	focus, err := xproto.GetInputFocus(c.X).Reply()
	if err != nil {
		return 0, fmt.Errorf("get input focus: %w", err)
	}
	if focus.Focus == 0 || focus.Focus == c.Root {
		return 0, errors.New("no focused window")
	}
	return focus.Focus, nil
}

// WindowClass returns the res_class half of WM_CLASS for w.
func (c *Conn) WindowClass(w xproto.Window) (string, error) {
	prop, err := xproto.GetProperty(c.X, false, w, xproto.AtomWmClass, xproto.AtomString, 0, 128).Reply()
	if err != nil {
		return "", fmt.Errorf("get WM_CLASS: %w", err)
	}
	return parseWMClass(prop.Value)
}

// ActiveApp resolves the class name of the active window.
func (c *Conn) ActiveApp() (string, error) {
	w, err := c.ActiveWindow()
	if err != nil {
		return "", err
	}
	return c.WindowClass(w)
}

// parseWMClass splits "instance\0class\0" and prefers the class.
func parseWMClass(value []byte) (string, error) {
	parts := strings.Split(strings.TrimRight(string(value), "\x00"), "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1], nil
	}
	if len(parts) == 1 && parts[0] != "" {
		return parts[0], nil
	}
	return "", errors.New("empty WM_CLASS")
}

// Keymap loads (once) and returns the keyboard mapping for this connection.
func (c *Conn) Keymap() (*Keymap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keymap != nil {
		return c.keymap, nil
	}
	lo, hi := c.setup.MinKeycode, c.setup.MaxKeycode
	reply, err := xproto.GetKeyboardMapping(c.X, lo, byte(hi-lo+1)).Reply()
	if err != nil {
		return nil, fmt.Errorf("get keyboard mapping: %w", err)
	}
	c.keymap = newKeymap(lo, hi, int(reply.KeysymsPerKeycode), reply.Keysyms)
	slog.Debug("keyboard mapping loaded", "min", lo, "max", hi, "per_keycode", reply.KeysymsPerKeycode)
	return c.keymap, nil
}
