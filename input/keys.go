// Package input multiplexes evdev devices, translates physical key events
// into the byte encodings terminals expect (legacy xterm, modifyOtherKeys,
// and the Kitty keyboard protocol), and encodes mouse reports.
package input

// Key identifies a logical key: either a printable rune or one of the
// named function keys below (negative values so they never collide with
// runes).
type Key int32

const (
	KeyNone Key = -iota - 1
	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeyInsert
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	KeyCapsLock
	KeyNumLock
	KeyScrollLock
	KeyPrintScreen
	KeyPause
	KeyMenu
	KeyLeftShift
	KeyRightShift
	KeyLeftCtrl
	KeyRightCtrl
	KeyLeftAlt
	KeyRightAlt
)

// Modifiers is a snapshot of the held modifier keys.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
}

// bitmask returns the xterm modifier encoding: shift=1, alt=2, ctrl=4.
func (m Modifiers) bitmask() int {
	v := 0
	if m.Shift {
		v |= 1
	}
	if m.Alt {
		v |= 2
	}
	if m.Ctrl {
		v |= 4
	}
	return v
}

// Any reports whether any modifier is held.
func (m Modifiers) Any() bool { return m.Shift || m.Ctrl || m.Alt }

// KeyEvent is one physical key transition with its layout-produced text.
type KeyEvent struct {
	// Code is the evdev keycode.
	Code uint16
	// Key is the xkb-derived logical key.
	Key Key
	// Text is the UTF-8 the active layout produces, empty for function
	// keys and modified combinations.
	Text string
	Mods Modifiers
	// Press is true for press and repeat, false for release.
	Press bool
	// Repeat marks synthetic repeat events.
	Repeat bool
}

// IsModifier reports whether the key is a modifier (never repeated, never
// encoded on its own outside the Kitty all-keys mode).
func (k Key) IsModifier() bool {
	switch k {
	case KeyLeftShift, KeyRightShift, KeyLeftCtrl, KeyRightCtrl,
		KeyLeftAlt, KeyRightAlt, KeyCapsLock, KeyNumLock, KeyScrollLock:
		return true
	}
	return false
}

// Name returns the chord-matching name for the key carried by an event:
// the lowercase text for printable keys, or a named key.
func (e KeyEvent) Name() string {
	switch e.Key {
	case KeyEscape:
		return "escape"
	case KeyEnter:
		return "enter"
	case KeyTab:
		return "tab"
	case KeyBackspace:
		return "backspace"
	case KeyInsert:
		return "insert"
	case KeyDelete:
		return "delete"
	case KeyHome:
		return "home"
	case KeyEnd:
		return "end"
	case KeyPageUp:
		return "pageup"
	case KeyPageDown:
		return "pagedown"
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyF1, KeyF2, KeyF3, KeyF4, KeyF5, KeyF6,
		KeyF7, KeyF8, KeyF9, KeyF10, KeyF11, KeyF12:
		return fKeyNames[KeyF1-e.Key]
	}
	if e.Key >= 0 {
		r := rune(e.Key)
		switch r {
		case ' ':
			return "space"
		case '+':
			return "plus"
		case '-':
			return "minus"
		case '=':
			return "equal"
		case '/':
			return "slash"
		case '\\':
			return "backslash"
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		return string(r)
	}
	return ""
}

var fKeyNames = []string{"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12"}
