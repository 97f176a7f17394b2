package input

import (
	"github.com/crucible-term/crucible/config"
)

// Action identifies a key binding handled by the terminal itself instead of
// being forwarded to the PTY.
type Action int

const (
	ActionNone Action = iota
	ActionCopy
	ActionPaste
	ActionScreenshot
	ActionSearch
	ActionCopyMode
	ActionFontIncrease
	ActionFontDecrease
	ActionFontReset
	ActionScrollUp
	ActionScrollDown
	ActionIMEToggle
	// ActionVTSwitch is routed to the session layer, carrying the target
	// VT number in Data.
	ActionVTSwitch
)

// Binding pairs a chord with its action.
type Binding struct {
	Chord  config.Chord
	Action Action
}

// Bindings matches key events against the configured chords.
type Bindings struct {
	bindings []Binding
}

// NewBindings compiles the keybind configuration; invalid chords are
// dropped (the parse error is aggregated by the config layer).
func NewBindings(kb config.KeybindConfig) *Bindings {
	b := &Bindings{}
	add := func(list config.ChordList, action Action) {
		chords, _ := config.ParseChords(list)
		for _, c := range chords {
			b.bindings = append(b.bindings, Binding{Chord: c, Action: action})
		}
	}
	add(kb.Copy, ActionCopy)
	add(kb.Paste, ActionPaste)
	add(kb.Screenshot, ActionScreenshot)
	add(kb.Search, ActionSearch)
	add(kb.CopyMode, ActionCopyMode)
	add(kb.FontIncrease, ActionFontIncrease)
	add(kb.FontDecrease, ActionFontDecrease)
	add(kb.FontReset, ActionFontReset)
	add(kb.ScrollUp, ActionScrollUp)
	add(kb.ScrollDown, ActionScrollDown)
	add(kb.IMEToggle, ActionIMEToggle)
	return b
}

// Match returns the action bound to a key event, with target data for VT
// switches. Matching happens before PTY translation, so bound chords never
// reach the application.
func (b *Bindings) Match(ev KeyEvent) (Action, int) {
	if !ev.Press {
		return ActionNone, 0
	}

	// Ctrl+Alt+Fn switches VTs regardless of configuration.
	if ev.Mods.Ctrl && ev.Mods.Alt {
		if ev.Key <= KeyF1 && ev.Key >= KeyF12 {
			return ActionVTSwitch, int(KeyF1-ev.Key) + 1
		}
	}

	mods := 0
	if ev.Mods.Shift {
		mods |= config.ModShift
	}
	if ev.Mods.Ctrl {
		mods |= config.ModCtrl
	}
	if ev.Mods.Alt {
		mods |= config.ModAlt
	}
	name := ev.Name()
	if name == "" {
		return ActionNone, 0
	}
	for _, bind := range b.bindings {
		if bind.Chord.Mods == mods && bind.Chord.Key == name {
			return bind.Action, 0
		}
	}
	return ActionNone, 0
}
