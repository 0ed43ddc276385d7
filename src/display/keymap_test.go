package display

import (
	"testing"

	"github.com/jezek/xgb/xproto"
)

func TestKeymapLookup(t *testing.T) {
	// keycodes 8..10, two syms per code
	km := newKeymap(8, 10, 2, []xproto.Keysym{
		'a', 'A',
		'1', '!',
		KeyControlL, 0,
	})

	tests := []struct {
		name  string
		sym   xproto.Keysym
		code  xproto.Keycode
		level int
		ok    bool
	}{
		{"plain letter", 'a', 8, 0, true},
		{"shifted letter", 'A', 8, 1, true},
		{"shifted punctuation", '!', 9, 1, true},
		{"modifier", KeyControlL, 10, 0, true},
		{"missing", 0xe9, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, level, ok := km.Lookup(tt.sym)
			if ok != tt.ok || code != tt.code || level != tt.level {
				t.Fatalf("Lookup(%#x) = (%d, %d, %v), want (%d, %d, %v)", tt.sym, code, level, ok, tt.code, tt.level, tt.ok)
			}
		})
	}
}

func TestKeymapNil(t *testing.T) {
	var km *Keymap
	if _, ok := km.Keycode('a'); ok {
		t.Fatal("nil keymap should not resolve keysyms")
	}
}

func TestParseWMClass(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"gnome-terminal-server\x00Gnome-terminal\x00", "Gnome-terminal", false},
		{"firefox\x00", "firefox", false},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseWMClass([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseWMClass(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseWMClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
