package input

import (
	"strings"
)

// Layout converts evdev keycodes into logical keys and layout text. The only
// built-in layout is US; NewLayout returns it whatever the xkb fields say.
type Layout struct {
	name  string
	base  map[uint16]rune
	shift map[uint16]rune
}

// LayoutOptions mirror the xkb configuration fields.
type LayoutOptions struct {
	Rules   string
	Model   string
	Layout  string
	Variant string
	Options string
}

// NewLayout builds the layout for the given xkb selection.
func NewLayout(opts LayoutOptions) *Layout {
	switch strings.ToLower(opts.Layout) {
	default:
		return usLayout()
	}
}

// Name returns the layout name.
func (l *Layout) Name() string { return l.name }

// evdev keycodes (linux/input-event-codes.h).
const (
	codeEsc        = 1
	codeBackspace  = 14
	codeTab        = 15
	codeEnter      = 28
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeSpace      = 57
	codeCapsLock   = 58
	codeF1         = 59
	codeNumLock    = 69
	codeScrollLock = 70
	codeF11        = 87
	codeF12        = 88
	codeKPEnter    = 96
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeHome       = 102
	codeUp         = 103
	codePageUp     = 104
	codeLeft       = 105
	codeRight      = 106
	codeEnd        = 107
	codeDown       = 108
	codePageDown   = 109
	codeInsert     = 110
	codeDelete     = 111
)

// namedKeys are layout-independent.
var namedKeys = map[uint16]Key{
	codeEsc:        KeyEscape,
	codeBackspace:  KeyBackspace,
	codeTab:        KeyTab,
	codeEnter:      KeyEnter,
	codeKPEnter:    KeyEnter,
	codeHome:       KeyHome,
	codeEnd:        KeyEnd,
	codePageUp:     KeyPageUp,
	codePageDown:   KeyPageDown,
	codeUp:         KeyUp,
	codeDown:       KeyDown,
	codeLeft:       KeyLeft,
	codeRight:      KeyRight,
	codeInsert:     KeyInsert,
	codeDelete:     KeyDelete,
	codeCapsLock:   KeyCapsLock,
	codeNumLock:    KeyNumLock,
	codeScrollLock: KeyScrollLock,
	codeLeftShift:  KeyLeftShift,
	codeRightShift: KeyRightShift,
	codeLeftCtrl:   KeyLeftCtrl,
	codeRightCtrl:  KeyRightCtrl,
	codeLeftAlt:    KeyLeftAlt,
	codeRightAlt:   KeyRightAlt,
}

func usLayout() *Layout {
	base := map[uint16]rune{}
	shift := map[uint16]rune{}

	row := func(start uint16, plain, shifted string) {
		pr := []rune(plain)
		sr := []rune(shifted)
		for i := range pr {
			base[start+uint16(i)] = pr[i]
			shift[start+uint16(i)] = sr[i]
		}
	}
	row(2, "1234567890-=", "!@#$%^&*()_+")
	row(16, "qwertyuiop[]", "QWERTYUIOP{}")
	row(30, "asdfghjkl;'`", "ASDFGHJKL:\"~")
	row(44, "zxcvbnm,./", "ZXCVBNM<>?")
	base[43], shift[43] = '\\', '|'
	base[codeSpace], shift[codeSpace] = ' ', ' '

	return &Layout{name: "us", base: base, shift: shift}
}

// Translate converts an evdev keycode plus modifier snapshot into a
// KeyEvent body (key + text). ok is false for keycodes the layout does not
// map.
func (l *Layout) Translate(code uint16, mods Modifiers) (Key, string, bool) {
	if k, ok := namedKeys[code]; ok {
		return k, "", true
	}
	if code >= codeF1 && code < codeF1+10 {
		return KeyF1 - Key(code-codeF1), "", true
	}
	if code == codeF11 {
		return KeyF11, "", true
	}
	if code == codeF12 {
		return KeyF12, "", true
	}

	table := l.base
	if mods.Shift {
		table = l.shift
	}
	r, ok := table[code]
	if !ok {
		return KeyNone, "", false
	}
	text := string(r)
	if mods.Ctrl || mods.Alt {
		// The translator decides the encoding for modified printables.
		text = ""
	}
	return Key(r), text, true
}
