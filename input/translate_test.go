package input

import (
	"bytes"
	"testing"
	"time"

	"github.com/crucible-term/crucible/config"
	"github.com/crucible-term/crucible/grid"
)

func press(k Key, text string, mods Modifiers) KeyEvent {
	return KeyEvent{Key: k, Text: text, Mods: mods, Press: true}
}

func TestPlainTextPassthrough(t *testing.T) {
	got := Encode(press('a', "a", Modifiers{}), TermState{})
	if string(got) != "a" {
		t.Errorf("got %q", got)
	}
	got = Encode(press('A', "A", Modifiers{Shift: true}), TermState{})
	if string(got) != "A" {
		t.Errorf("shifted: got %q", got)
	}
}

func TestSpecialKeys(t *testing.T) {
	cases := []struct {
		key  Key
		want string
	}{
		{KeyBackspace, "\x7f"},
		{KeyEnter, "\r"},
		{KeyTab, "\t"},
		{KeyEscape, "\x1b"},
	}
	for _, tc := range cases {
		got := Encode(press(tc.key, "", Modifiers{}), TermState{})
		if string(got) != tc.want {
			t.Errorf("key %d: got %q want %q", tc.key, got, tc.want)
		}
	}
}

func TestCursorKeys(t *testing.T) {
	// Normal mode.
	if got := Encode(press(KeyUp, "", Modifiers{}), TermState{}); string(got) != "\x1b[A" {
		t.Errorf("normal up: %q", got)
	}
	// Application cursor keys.
	st := TermState{AppCursorKeys: true}
	if got := Encode(press(KeyUp, "", Modifiers{}), st); string(got) != "\x1bOA" {
		t.Errorf("app up: %q", got)
	}
	// Modified always uses CSI 1;mods.
	if got := Encode(press(KeyRight, "", Modifiers{Ctrl: true}), st); string(got) != "\x1b[1;5C" {
		t.Errorf("ctrl-right: %q", got)
	}
	if got := Encode(press(KeyHome, "", Modifiers{Shift: true}), TermState{}); string(got) != "\x1b[1;2H" {
		t.Errorf("shift-home: %q", got)
	}
}

func TestNavigationKeys(t *testing.T) {
	if got := Encode(press(KeyPageUp, "", Modifiers{}), TermState{}); string(got) != "\x1b[5~" {
		t.Errorf("pageup: %q", got)
	}
	if got := Encode(press(KeyDelete, "", Modifiers{Ctrl: true}), TermState{}); string(got) != "\x1b[3;5~" {
		t.Errorf("ctrl-delete: %q", got)
	}
}

func TestFunctionKeys(t *testing.T) {
	if got := Encode(press(KeyF1, "", Modifiers{}), TermState{}); string(got) != "\x1bOP" {
		t.Errorf("f1: %q", got)
	}
	if got := Encode(press(KeyF3, "", Modifiers{Shift: true}), TermState{}); string(got) != "\x1b[1;2R" {
		t.Errorf("shift-f3: %q", got)
	}
	if got := Encode(press(KeyF5, "", Modifiers{}), TermState{}); string(got) != "\x1b[15~" {
		t.Errorf("f5: %q", got)
	}
	if got := Encode(press(KeyF12, "", Modifiers{Ctrl: true}), TermState{}); string(got) != "\x1b[24;5~" {
		t.Errorf("ctrl-f12: %q", got)
	}
}

func TestCtrlLetterCollapses(t *testing.T) {
	if got := Encode(press('c', "", Modifiers{Ctrl: true}), TermState{}); !bytes.Equal(got, []byte{0x03}) {
		t.Errorf("ctrl-c: %v", got)
	}
	// Ctrl+Alt prepends ESC to the control byte.
	if got := Encode(press('c', "", Modifiers{Ctrl: true, Alt: true}), TermState{}); !bytes.Equal(got, []byte{0x1b, 0x03}) {
		t.Errorf("ctrl-alt-c: %v", got)
	}
}

func TestAltPrefix(t *testing.T) {
	if got := Encode(press('x', "x", Modifiers{Alt: true}), TermState{}); string(got) != "\x1bx" {
		t.Errorf("alt-x: %q", got)
	}
}

func TestModifyOtherKeys(t *testing.T) {
	// Level 1 encodes Ctrl+letter.
	st := TermState{ModifyOtherKeys: 1}
	if got := Encode(press('a', "", Modifiers{Ctrl: true}), st); string(got) != "\x1b[27;5;97~" {
		t.Errorf("level1 ctrl-a: %q", got)
	}
	// Level 1 leaves plain keys alone.
	if got := Encode(press('a', "a", Modifiers{}), st); string(got) != "a" {
		t.Errorf("level1 plain a: %q", got)
	}
	// Level 2 encodes any modified printable.
	st.ModifyOtherKeys = 2
	if got := Encode(press('1', "", Modifiers{Alt: true}), st); string(got) != "\x1b[27;3;49~" {
		t.Errorf("level2 alt-1: %q", got)
	}
}

func TestKittyAllKeys(t *testing.T) {
	st := TermState{KittyFlags: KittyReportAllKeys}
	if got := Encode(press('a', "a", Modifiers{}), st); string(got) != "\x1b[97u" {
		t.Errorf("kitty a: %q", got)
	}
	if got := Encode(press('a', "", Modifiers{Ctrl: true}), st); string(got) != "\x1b[97;5u" {
		t.Errorf("kitty ctrl-a: %q", got)
	}
	if got := Encode(press(KeyUp, "", Modifiers{}), st); string(got) != "\x1b[57352u" {
		t.Errorf("kitty up: %q", got)
	}
	if got := Encode(press(KeyF1, "", Modifiers{Shift: true}), st); string(got) != "\x1b[57364;2u" {
		t.Errorf("kitty shift-f1: %q", got)
	}
}

func TestKittyDisambiguateOnly(t *testing.T) {
	st := TermState{KittyFlags: KittyDisambiguate}
	// Escape is ambiguous: CSI u form.
	if got := Encode(press(KeyEscape, "", Modifiers{}), st); string(got) != "\x1b[57344u" {
		t.Errorf("kitty esc: %q", got)
	}
	// Plain printables keep the legacy encoding.
	if got := Encode(press('a', "a", Modifiers{}), st); string(got) != "a" {
		t.Errorf("plain a: %q", got)
	}
	// Ctrl combinations are ambiguous.
	if got := Encode(press('i', "", Modifiers{Ctrl: true}), st); string(got) != "\x1b[105;5u" {
		t.Errorf("ctrl-i: %q", got)
	}
}

func TestKittyReleaseEvents(t *testing.T) {
	st := TermState{KittyFlags: KittyReportAllKeys | KittyReportEvents}
	ev := press('a', "a", Modifiers{})
	ev.Press = false
	if got := Encode(ev, st); string(got) != "\x1b[97;1:3u" {
		t.Errorf("release: %q", got)
	}
	// Without the events flag releases produce nothing.
	if got := Encode(ev, TermState{KittyFlags: KittyReportAllKeys}); got != nil {
		t.Errorf("unexpected release bytes: %q", got)
	}
}

func TestModifierKeysProduceNothingInLegacyModes(t *testing.T) {
	if got := Encode(press(KeyLeftShift, "", Modifiers{Shift: true}), TermState{}); got != nil {
		t.Errorf("shift alone: %q", got)
	}
}

func TestMouseEncodingSGR(t *testing.T) {
	ev := MouseEvent{Col: 4, Row: 9, Button: MouseLeft, Press: true}
	got := EncodeMouse(ev, grid.MouseButton, true)
	if string(got) != "\x1b[<0;5;10M" {
		t.Errorf("press: %q", got)
	}
	ev.Press = false
	got = EncodeMouse(ev, grid.MouseButton, true)
	if string(got) != "\x1b[<0;5;10m" {
		t.Errorf("release: %q", got)
	}
}

func TestMouseEncodingLegacy(t *testing.T) {
	ev := MouseEvent{Col: 0, Row: 0, Button: MouseLeft, Press: true}
	got := EncodeMouse(ev, grid.MouseX10, false)
	want := []byte{0x1b, '[', 'M', 32, 33, 33}
	if !bytes.Equal(got, want) {
		t.Errorf("x10 press: %v", got)
	}
	// X10 never reports release.
	ev.Press = false
	if got := EncodeMouse(ev, grid.MouseX10, false); got != nil {
		t.Errorf("x10 release: %q", got)
	}
}

func TestMouseWheel(t *testing.T) {
	ev := MouseEvent{Col: 2, Row: 3, Button: WheelUp, Press: true}
	if got := EncodeMouse(ev, grid.MouseX10, true); got != nil {
		t.Errorf("wheel in x10 mode: %q", got)
	}
	got := EncodeMouse(ev, grid.MouseButton, true)
	if string(got) != "\x1b[<64;3;4M" {
		t.Errorf("wheel: %q", got)
	}
}

func TestMouseMotionModes(t *testing.T) {
	drag := MouseEvent{Col: 1, Row: 1, Button: MouseLeft, Motion: true}
	if got := EncodeMouse(drag, grid.MouseButton, true); string(got) != "\x1b[<32;2;2M" {
		t.Errorf("drag: %q", got)
	}
	hover := MouseEvent{Col: 1, Row: 1, Button: MouseRelease, Motion: true}
	if got := EncodeMouse(hover, grid.MouseButton, true); got != nil {
		t.Errorf("hover in button mode: %q", got)
	}
	if got := EncodeMouse(hover, grid.MouseAll, true); string(got) != "\x1b[<35;2;2M" {
		t.Errorf("hover in all mode: %q", got)
	}
}

func TestRepeatTracker(t *testing.T) {
	now := time.Now()
	rt := NewRepeatTracker(200*time.Millisecond, 20)
	rt.KeyDown(press('a', "a", Modifiers{}), now)

	if evs := rt.Tick(now.Add(100 * time.Millisecond)); evs != nil {
		t.Errorf("repeat before delay: %d events", len(evs))
	}
	evs := rt.Tick(now.Add(250 * time.Millisecond))
	if len(evs) == 0 {
		t.Fatal("no repeat after delay")
	}
	if !evs[0].Repeat || evs[0].Key != 'a' {
		t.Errorf("bad repeat event: %+v", evs[0])
	}
	rt.KeyUp(evs[0].Code)
	if evs := rt.Tick(now.Add(time.Second)); evs != nil {
		t.Errorf("repeat after release: %d events", len(evs))
	}
}

func TestRepeatNeverFiresForModifiers(t *testing.T) {
	now := time.Now()
	rt := NewRepeatTracker(100*time.Millisecond, 20)
	rt.KeyDown(KeyEvent{Key: KeyLeftShift, Code: 42, Press: true}, now)
	if evs := rt.Tick(now.Add(time.Second)); evs != nil {
		t.Errorf("modifier repeated: %d events", len(evs))
	}
}

func TestBindingsMatch(t *testing.T) {
	b := NewBindings(config.KeybindConfig{
		Copy:     config.ChordList{"ctrl+shift+c"},
		ScrollUp: config.ChordList{"shift+pageup"},
	})
	action, _ := b.Match(press('c', "", Modifiers{Ctrl: true, Shift: true}))
	if action != ActionCopy {
		t.Errorf("got action %d", action)
	}
	action, _ = b.Match(press(KeyPageUp, "", Modifiers{Shift: true}))
	if action != ActionScrollUp {
		t.Errorf("got action %d", action)
	}
	action, _ = b.Match(press('c', "c", Modifiers{}))
	if action != ActionNone {
		t.Errorf("unbound chord matched: %d", action)
	}
}

func TestVTSwitchChord(t *testing.T) {
	b := NewBindings(config.KeybindConfig{})
	action, vt := b.Match(press(KeyF2, "", Modifiers{Ctrl: true, Alt: true}))
	if action != ActionVTSwitch || vt != 2 {
		t.Errorf("got action %d vt %d", action, vt)
	}
}

func TestLayoutTranslate(t *testing.T) {
	l := NewLayout(LayoutOptions{})
	k, text, ok := l.Translate(30, Modifiers{}) // KEY_A
	if !ok || k != 'a' || text != "a" {
		t.Errorf("KEY_A: %v %q %v", k, text, ok)
	}
	k, text, ok = l.Translate(30, Modifiers{Shift: true})
	if !ok || k != 'A' || text != "A" {
		t.Errorf("shift KEY_A: %v %q %v", k, text, ok)
	}
	k, _, ok = l.Translate(codeUp, Modifiers{})
	if !ok || k != KeyUp {
		t.Errorf("KEY_UP: %v %v", k, ok)
	}
}
