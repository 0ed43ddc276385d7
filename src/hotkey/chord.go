package hotkey

import (
	"fmt"
	"strings"

	"github.com/jezek/xgb/xproto"

	"instant-translator/src/display"
)

// Chord is a set of modifiers plus one key.
type Chord struct {
	Mods   uint16
	Keysym xproto.Keysym
	// Keys are the normalized names, modifiers first, in the form gohook expects.
	Keys []string
	// Text is the chord as the user wrote it, used in messages.
	Text string
}

func (c Chord) String() string { return c.Text }

// ParseChord converts a hotkey string like "Ctrl+Shift+M" into a chord.
// Exactly one non-modifier key is required.
func ParseChord(s string) (Chord, error) {
	names := parseHotkey(s)
	if len(names) == 0 {
		return Chord{}, fmt.Errorf("empty hotkey")
	}

	c := Chord{Text: strings.TrimSpace(s)}
	var key string
	for _, name := range names {
		if mask, ok := modifierMask(name); ok {
			c.Mods |= mask
			continue
		}
		if key != "" {
			return Chord{}, fmt.Errorf("hotkey %q has more than one key (%q, %q)", s, key, name)
		}
		key = name
	}
	if key == "" {
		return Chord{}, fmt.Errorf("hotkey %q has no key", s)
	}
	sym, ok := keyNameToKeysym(key)
	if !ok {
		return Chord{}, fmt.Errorf("hotkey %q: unknown key %q", s, key)
	}
	c.Keysym = sym
	// gohook matches on names; modifiers go first.
	for _, name := range names {
		if name != key {
			c.Keys = append(c.Keys, name)
		}
	}
	c.Keys = append(c.Keys, key)
	return c, nil
}

// LockVariants returns mods combined with every lock-key state: none, CapsLock,
// NumLock, both. A grab must be registered for each so the chord fires
// regardless of lock keys.
func LockVariants(mods uint16) []uint16 {
	return []uint16{
		mods,
		mods | xproto.ModMaskLock,
		mods | xproto.ModMask2,
		mods | xproto.ModMaskLock | xproto.ModMask2,
	}
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

func modifierMask(name string) (uint16, bool) {
	switch name {
	case "ctrl":
		return xproto.ModMaskControl, true
	case "shift":
		return xproto.ModMaskShift, true
	case "alt":
		return xproto.ModMask1, true
	case "cmd":
		return xproto.ModMask4, true
	}
	return 0, false
}

// keyNameToKeysym maps a key name to its X keysym.
func keyNameToKeysym(name string) (xproto.Keysym, bool) {
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			return xproto.Keysym(c), true
		}
	}
	if len(name) >= 2 && name[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprint(n) == name[1:] {
			return display.KeyF1 + xproto.Keysym(n-1), true
		}
	}

	switch name {
	case "space":
		return display.KeySpace, true
	case "enter", "return":
		return display.KeyReturn, true
	case "esc", "escape":
		return display.KeyEscape, true
	case "tab":
		return display.KeyTab, true
	case "backspace":
		return display.KeyBackSpace, true
	case "delete", "del":
		return 0xffff, true
	case "insert", "ins":
		return display.KeyInsert, true
	case "home":
		return 0xff50, true
	case "end":
		return 0xff57, true
	case "pageup", "pgup":
		return 0xff55, true
	case "pagedown", "pgdn":
		return 0xff56, true

	// Arrow keys
	case "left":
		return 0xff51, true
	case "up":
		return 0xff52, true
	case "right":
		return 0xff53, true
	case "down":
		return 0xff54, true
	}
	return 0, false
}
