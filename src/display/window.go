package display

import (
	"fmt"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// FindWindow returns the top-level client whose title is exactly title.
// It looks at _NET_CLIENT_LIST first and falls back to the root's children.
func (c *Conn) FindWindow(title string) (xproto.Window, bool) {
	for _, w := range c.clients() {
		if name, err := c.windowName(w); err == nil && name == title {
			return w, true
		}
	}
	return 0, false
}

func (c *Conn) clients() []xproto.Window {
	if atom, err := c.Atom("_NET_CLIENT_LIST"); err == nil {
		prop, err := xproto.GetProperty(c.X, false, c.Root, atom, xproto.AtomWindow, 0, 1024).Reply()
		if err == nil && prop.Format == 32 && len(prop.Value) >= 4 {
			out := make([]xproto.Window, 0, len(prop.Value)/4)
			for i := 0; i+4 <= len(prop.Value); i += 4 {
				out = append(out, xproto.Window(xgb.Get32(prop.Value[i:])))
			}
			return out
		}
	}
	tree, err := xproto.QueryTree(c.X, c.Root).Reply()
	if err != nil {
		return nil
	}
	return tree.Children
}

// windowName prefers _NET_WM_NAME (UTF-8) over WM_NAME.
func (c *Conn) windowName(w xproto.Window) (string, error) {
	if atom, err := c.Atom("_NET_WM_NAME"); err == nil {
		prop, err := xproto.GetProperty(c.X, false, w, atom, xproto.GetPropertyTypeAny, 0, 256).Reply()
		if err == nil && len(prop.Value) > 0 {
			return string(prop.Value), nil
		}
	}
	prop, err := xproto.GetProperty(c.X, false, w, xproto.AtomWmName, xproto.GetPropertyTypeAny, 0, 256).Reply()
	if err != nil {
		return "", err
	}
	return string(prop.Value), nil
}

// Move positions w at (x, y) in root coordinates.
func (c *Conn) Move(w xproto.Window, x, y int) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY)
	err := xproto.ConfigureWindowChecked(c.X, w, mask, []uint32{uint32(int32(x)), uint32(int32(y))}).Check()
	if err != nil {
		return fmt.Errorf("move window %d: %w", w, err)
	}
	return nil
}

// Place waits up to timeout for a window titled title to be mapped, then moves it.
func (c *Conn) Place(title string, x, y int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if w, ok := c.FindWindow(title); ok {
			return c.Move(w, x, y)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("window %q not found", title)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
