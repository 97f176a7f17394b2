package input

import (
	"fmt"
	"strings"
)

// Kitty keyboard protocol flag bits.
const (
	KittyDisambiguate  = 1 << 0
	KittyReportEvents  = 1 << 1
	KittyReportAltKeys = 1 << 2
	KittyReportAllKeys = 1 << 3
	KittyReportText    = 1 << 4
)

// TermState is the keyboard-relevant terminal state sampled at encode time.
type TermState struct {
	KittyFlags      uint8
	ModifyOtherKeys int
	AppCursorKeys   bool
}

// Encode translates a key press into the byte sequence written to the PTY.
// Release events produce output only under the Kitty report-events flag.
// A nil return means the event produces no bytes.
func Encode(ev KeyEvent, st TermState) []byte {
	if ev.Key.IsModifier() && st.KittyFlags&KittyReportAllKeys == 0 {
		return nil
	}
	if !ev.Press && st.KittyFlags&KittyReportEvents == 0 {
		return nil
	}

	// 1. Kitty protocol first.
	if st.KittyFlags&KittyReportAllKeys != 0 {
		return encodeKitty(ev, st)
	}
	if st.KittyFlags&KittyDisambiguate != 0 && kittyAmbiguous(ev) {
		return encodeKitty(ev, st)
	}
	if !ev.Press {
		return nil
	}

	mods := ev.Mods.bitmask()

	// 2. Cursor keys.
	if letter, ok := cursorKeyLetter(ev.Key); ok {
		if mods != 0 {
			return []byte(fmt.Sprintf("\x1b[1;%d%c", mods+1, letter))
		}
		if st.AppCursorKeys {
			return []byte{0x1b, 'O', letter}
		}
		return []byte{0x1b, '[', letter}
	}

	// 3. Navigation keys.
	if num, ok := navKeyNumber(ev.Key); ok {
		if mods != 0 {
			return []byte(fmt.Sprintf("\x1b[%d;%d~", num, mods+1))
		}
		return []byte(fmt.Sprintf("\x1b[%d~", num))
	}

	// 4. Function keys.
	if b := encodeFunctionKey(ev.Key, mods); b != nil {
		return b
	}

	// Specials before the printable paths.
	switch ev.Key {
	case KeyEnter:
		return withAltPrefix(ev.Mods, []byte{0x0d})
	case KeyTab:
		if ev.Mods.Shift {
			return withAltPrefix(ev.Mods, []byte("\x1b[Z"))
		}
		return withAltPrefix(ev.Mods, []byte{0x09})
	case KeyBackspace:
		return withAltPrefix(ev.Mods, []byte{0x7f})
	case KeyEscape:
		return withAltPrefix(ev.Mods, []byte{0x1b})
	}

	if ev.Key < 0 {
		return nil
	}
	r := rune(ev.Key)

	// 7. modifyOtherKeys levels.
	if st.ModifyOtherKeys == 2 && ev.Mods.Any() && !onlyShift(ev.Mods) {
		return []byte(fmt.Sprintf("\x1b[27;%d;%d~", mods+1, r))
	}
	if st.ModifyOtherKeys == 1 && ev.Mods.Ctrl && !ev.Mods.Alt && !ev.Mods.Shift && isLetter(r) {
		return []byte(fmt.Sprintf("\x1b[27;%d;%d~", mods+1, lowerRune(r)))
	}

	// 5. Ctrl+letter collapses to the control byte unless Alt or Shift
	// also held.
	if ev.Mods.Ctrl {
		if ctrl, ok := controlByte(r); ok && !ev.Mods.Shift {
			return withAltPrefix(ev.Mods, []byte{ctrl})
		}
		// Ctrl with no control-byte mapping produces nothing at level 0.
		return nil
	}

	// 6/8. Alt prefixes the base encoding; otherwise the layout text.
	text := ev.Text
	if text == "" {
		text = string(r)
	}
	return withAltPrefix(ev.Mods, []byte(text))
}

func onlyShift(m Modifiers) bool { return m.Shift && !m.Ctrl && !m.Alt }

func withAltPrefix(m Modifiers, b []byte) []byte {
	if m.Alt {
		return append([]byte{0x1b}, b...)
	}
	return b
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func lowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 'a' - 'A'
	}
	return r
}

// controlByte maps Ctrl+key to its ASCII control code.
func controlByte(r rune) (byte, bool) {
	r = lowerRune(r)
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r - 'a' + 1), true
	case r == ' ', r == '@', r == '2':
		return 0x00, true
	case r == '[', r == '3':
		return 0x1b, true
	case r == '\\', r == '4':
		return 0x1c, true
	case r == ']', r == '5':
		return 0x1d, true
	case r == '^', r == '6':
		return 0x1e, true
	case r == '_', r == '-', r == '/', r == '7':
		return 0x1f, true
	case r == '8':
		return 0x7f, true
	}
	return 0, false
}

func cursorKeyLetter(k Key) (byte, bool) {
	switch k {
	case KeyUp:
		return 'A', true
	case KeyDown:
		return 'B', true
	case KeyRight:
		return 'C', true
	case KeyLeft:
		return 'D', true
	case KeyHome:
		return 'H', true
	case KeyEnd:
		return 'F', true
	}
	return 0, false
}

func navKeyNumber(k Key) (int, bool) {
	switch k {
	case KeyInsert:
		return 2, true
	case KeyDelete:
		return 3, true
	case KeyPageUp:
		return 5, true
	case KeyPageDown:
		return 6, true
	}
	return 0, false
}

// encodeFunctionKey handles F1-F12: SS3 P/Q/R/S unmodified for F1-F4,
// CSI 1;mods P/Q/R/S modified, CSI n;mods ~ for F5-F12.
func encodeFunctionKey(k Key, mods int) []byte {
	switch k {
	case KeyF1, KeyF2, KeyF3, KeyF4:
		letter := byte('P' + (KeyF1 - k))
		if mods != 0 {
			return []byte(fmt.Sprintf("\x1b[1;%d%c", mods+1, letter))
		}
		return []byte{0x1b, 'O', letter}
	case KeyF5, KeyF6, KeyF7, KeyF8, KeyF9, KeyF10, KeyF11, KeyF12:
		nums := map[Key]int{
			KeyF5: 15, KeyF6: 17, KeyF7: 18, KeyF8: 19,
			KeyF9: 20, KeyF10: 21, KeyF11: 23, KeyF12: 24,
		}
		if mods != 0 {
			return []byte(fmt.Sprintf("\x1b[%d;%d~", nums[k], mods+1))
		}
		return []byte(fmt.Sprintf("\x1b[%d~", nums[k]))
	}
	return nil
}

// kittyAmbiguous reports keys that are indistinguishable in the legacy
// encoding: Escape, modified printables that collapse, and anything with
// Ctrl or Alt.
func kittyAmbiguous(ev KeyEvent) bool {
	if ev.Key == KeyEscape {
		return true
	}
	if ev.Mods.Ctrl || ev.Mods.Alt {
		return true
	}
	return false
}

// kittyFunctionalCode maps named keys to the protocol's private-use
// codepoints.
func kittyFunctionalCode(k Key) (int, bool) {
	codes := map[Key]int{
		KeyEscape:      57344,
		KeyEnter:       57345,
		KeyTab:         57346,
		KeyBackspace:   57347,
		KeyInsert:      57348,
		KeyDelete:      57349,
		KeyLeft:        57350,
		KeyRight:       57351,
		KeyUp:          57352,
		KeyDown:        57353,
		KeyPageUp:      57354,
		KeyPageDown:    57355,
		KeyHome:        57356,
		KeyEnd:         57357,
		KeyCapsLock:    57358,
		KeyScrollLock:  57359,
		KeyNumLock:     57360,
		KeyPrintScreen: 57361,
		KeyPause:       57362,
		KeyMenu:        57363,
		KeyF1:          57364,
		KeyF2:          57365,
		KeyF3:          57366,
		KeyF4:          57367,
		KeyF5:          57368,
		KeyF6:          57369,
		KeyF7:          57370,
		KeyF8:          57371,
		KeyF9:          57372,
		KeyF10:         57373,
		KeyF11:         57374,
		KeyF12:         57375,
		KeyLeftShift:   57441,
		KeyLeftCtrl:    57442,
		KeyLeftAlt:     57443,
		KeyRightShift:  57447,
		KeyRightCtrl:   57448,
		KeyRightAlt:    57449,
	}
	c, ok := codes[k]
	return c, ok
}

// encodeKitty produces `CSI code;mods[:event] u` with the protocol's
// modifier encoding (value = bitmask + 1).
func encodeKitty(ev KeyEvent, st TermState) []byte {
	var code int
	if ev.Key < 0 {
		c, ok := kittyFunctionalCode(ev.Key)
		if !ok {
			return nil
		}
		code = c
	} else {
		code = int(lowerRune(rune(ev.Key)))
	}

	mods := ev.Mods.bitmask() + 1
	var b strings.Builder
	fmt.Fprintf(&b, "\x1b[%d", code)
	event := 1
	if ev.Repeat {
		event = 2
	}
	if !ev.Press {
		event = 3
	}
	switch {
	case st.KittyFlags&KittyReportEvents != 0:
		fmt.Fprintf(&b, ";%d:%d", mods, event)
	case mods > 1:
		fmt.Fprintf(&b, ";%d", mods)
	}
	if st.KittyFlags&KittyReportText != 0 && ev.Text != "" && ev.Press {
		r := []rune(ev.Text)[0]
		fmt.Fprintf(&b, ";%d", r)
	}
	b.WriteByte('u')
	return []byte(b.String())
}
