package display

import (
	"github.com/jezek/xgb/xproto"
)

// Keysyms used across the program.
const (
	KeySpace     xproto.Keysym = 0x0020
	KeyBackSpace xproto.Keysym = 0xff08
	KeyTab       xproto.Keysym = 0xff09
	KeyReturn    xproto.Keysym = 0xff0d
	KeyEscape    xproto.Keysym = 0xff1b
	KeyInsert    xproto.Keysym = 0xff63
	KeyF1        xproto.Keysym = 0xffbe
	KeyShiftL    xproto.Keysym = 0xffe1
	KeyControlL  xproto.Keysym = 0xffe3
	KeyAltL      xproto.Keysym = 0xffe9
	KeySuperL    xproto.Keysym = 0xffeb
)

// Keymap is a snapshot of the server's keycode to keysym table.
type Keymap struct {
	lo, hi  xproto.Keycode
	perCode int
	syms    []xproto.Keysym
}

func newKeymap(lo, hi xproto.Keycode, perCode int, syms []xproto.Keysym) *Keymap {
	return &Keymap{lo: lo, hi: hi, perCode: perCode, syms: syms}
}

// Lookup finds the first keycode producing sym. level is 0 for the unshifted
// column and 1 when Shift is needed.
func (k *Keymap) Lookup(sym xproto.Keysym) (code xproto.Keycode, level int, ok bool) {
	if k == nil || k.perCode == 0 {
		return 0, 0, false
	}
	// Only the first two columns matter for a plain/shifted press.
	cols := k.perCode
	if cols > 2 {
		cols = 2
	}
	for col := 0; col < cols; col++ {
		for i := 0; i*k.perCode+col < len(k.syms); i++ {
			if k.syms[i*k.perCode+col] == sym {
				return k.lo + xproto.Keycode(i), col, true
			}
		}
	}
	return 0, 0, false
}

// Keycode is Lookup without the level.
func (k *Keymap) Keycode(sym xproto.Keysym) (xproto.Keycode, bool) {
	code, _, ok := k.Lookup(sym)
	return code, ok
}
