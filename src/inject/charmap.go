package inject

import (
	"github.com/jezek/xgb/xproto"

	"instant-translator/src/display"
)

// Stroke is how one character is typed: a key plus an optional Shift.
type Stroke struct {
	Keysym xproto.Keysym
	Shift  bool
}

// CharMap maps characters to strokes. Characters missing from the map are
// skipped when typing.
type CharMap map[rune]Stroke

const (
	plain   = "abcdefghijklmnopqrstuvwxyz0123456789-=[]\\;',./`"
	shifted = "ABCDEFGHIJKLMNOPQRSTUVWXYZ)!@#$%^&*(_+{}|:\"<>?~"
)

// USCharMap covers printable ASCII on a US layout. Latin-1 keysyms equal the
// character code, so the unshifted key of each pair is its own keysym.
func USCharMap() CharMap {
	m := CharMap{
		' ':  {Keysym: display.KeySpace},
		'\n': {Keysym: display.KeyReturn},
		'\t': {Keysym: display.KeyTab},
	}
	base := []rune(plain)
	for _, r := range base {
		m[r] = Stroke{Keysym: xproto.Keysym(r)}
	}
	for i, r := range []rune(shifted) {
		m[r] = Stroke{Keysym: xproto.Keysym(base[i]), Shift: true}
	}
	return m
}
