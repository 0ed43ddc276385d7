package inject

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"instant-translator/src/display"
)

// ErrUnmapped is returned by a Keyboard that has no key for a keysym.
var ErrUnmapped = errors.New("keysym not on keyboard")

// Keyboard synthesizes input into whatever window has focus.
type Keyboard interface {
	// Press presses keys in order and releases them in reverse.
	Press(keys ...xproto.Keysym) error
	// Click moves the pointer to (x, y) and clicks the left button.
	Click(x, y int) error
}

// XTestKeyboard injects through the XTEST extension on its own connection.
type XTestKeyboard struct {
	conn *display.Conn
	mu   sync.Mutex
}

// NewXTestKeyboard initializes XTEST on conn.
func NewXTestKeyboard(conn *display.Conn) (*XTestKeyboard, error) {
	if err := xtest.Init(conn.X); err != nil {
		return nil, fmt.Errorf("%w: XTEST extension: %v", display.ErrNoDisplay, err)
	}
	return &XTestKeyboard{conn: conn}, nil
}

func (k *XTestKeyboard) Press(keys ...xproto.Keysym) error {
	km, err := k.conn.Keymap()
	if err != nil {
		return err
	}

	codes := make([]xproto.Keycode, 0, len(keys)+1)
	needShift := false
	hasShift := false
	for _, sym := range keys {
		code, level, ok := km.Lookup(sym)
		if !ok {
			return fmt.Errorf("%w: %#x", ErrUnmapped, sym)
		}
		if sym == display.KeyShiftL {
			hasShift = true
		}
		if level == 1 {
			needShift = true
		}
		codes = append(codes, code)
	}
	if needShift && !hasShift {
		shift, ok := km.Keycode(display.KeyShiftL)
		if !ok {
			return fmt.Errorf("%w: Shift", ErrUnmapped)
		}
		codes = append([]xproto.Keycode{shift}, codes...)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	var pressed []xproto.Keycode
	var pressErr error
	for _, code := range codes {
		if pressErr = k.fake(xproto.KeyPress, byte(code)); pressErr != nil {
			break
		}
		pressed = append(pressed, code)
	}
	// Release whatever went down, even after a failure, so no key stays stuck.
	var errs []error
	for i := len(pressed) - 1; i >= 0; i-- {
		if err := k.fake(xproto.KeyRelease, byte(pressed[i])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(append([]error{pressErr}, errs...)...)
}

func (k *XTestKeyboard) Click(x, y int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	err := xproto.WarpPointerChecked(k.conn.X, 0, k.conn.Root, 0, 0, 0, 0, int16(x), int16(y)).Check()
	if err != nil {
		return fmt.Errorf("warp pointer: %w", err)
	}
	if err := k.fake(xproto.ButtonPress, 1); err != nil {
		return err
	}
	return k.fake(xproto.ButtonRelease, 1)
}

func (k *XTestKeyboard) fake(kind byte, detail byte) error {
	err := xtest.FakeInputChecked(k.conn.X, kind, detail, xproto.TimeCurrentTime, k.conn.Root, 0, 0, 0).Check()
	if err != nil {
		return fmt.Errorf("fake input %d/%d: %w", kind, detail, err)
	}
	return nil
}

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// XdotoolKeyboard shells out to xdotool.
type XdotoolKeyboard struct {
	Timeout time.Duration
	run     Runner
}

func NewXdotoolKeyboard() *XdotoolKeyboard {
	return &XdotoolKeyboard{Timeout: 2 * time.Second, run: execRunner}
}

func (k *XdotoolKeyboard) Press(keys ...xproto.Keysym) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, sym := range keys {
		names[i] = xdotoolName(sym)
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.Timeout)
	defer cancel()
	return k.run(ctx, "xdotool", "key", "--clearmodifiers", strings.Join(names, "+"))
}

func (k *XdotoolKeyboard) Click(x, y int) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.Timeout)
	defer cancel()
	return k.run(ctx, "xdotool", "mousemove", fmt.Sprint(x), fmt.Sprint(y), "click", "1")
}

func xdotoolName(sym xproto.Keysym) string {
	switch sym {
	case display.KeyControlL:
		return "ctrl"
	case display.KeyShiftL:
		return "shift"
	case display.KeyAltL:
		return "alt"
	case display.KeySuperL:
		return "super"
	}
	return fmt.Sprintf("0x%x", uint32(sym))
}
