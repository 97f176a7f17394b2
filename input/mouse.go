package input

import (
	"fmt"

	"github.com/crucible-term/crucible/grid"
)

// MouseButton numbers follow the xterm encoding.
type MouseButton int

const (
	MouseLeft    MouseButton = 0
	MouseMiddle  MouseButton = 1
	MouseRight   MouseButton = 2
	MouseRelease MouseButton = 3
	WheelUp      MouseButton = 64
	WheelDown    MouseButton = 65
)

// MouseEvent is a pointer transition in cell coordinates (0-based).
type MouseEvent struct {
	Col    int
	Row    int
	Button MouseButton
	Press  bool
	Motion bool
	Mods   Modifiers
}

// EncodeMouse translates a mouse event per the active tracking mode. A nil
// return means the event is not reported.
func EncodeMouse(ev MouseEvent, mode grid.MouseMode, sgr bool) []byte {
	if mode == grid.MouseOff {
		return nil
	}
	isWheel := ev.Button == WheelUp || ev.Button == WheelDown
	if isWheel && mode == grid.MouseX10 {
		// X10 reports button presses only; wheel events are suppressed.
		return nil
	}
	if ev.Motion {
		switch mode {
		case grid.MouseX10:
			return nil
		case grid.MouseButton:
			// Drag only: motion without a held button is not reported.
			if ev.Button == MouseRelease {
				return nil
			}
		}
	}
	if !ev.Press && !ev.Motion {
		if mode == grid.MouseX10 || isWheel {
			return nil
		}
	}

	btn := int(ev.Button)
	if ev.Motion {
		btn += 32
	}
	if ev.Mods.Shift {
		btn += 4
	}
	if ev.Mods.Alt {
		btn += 8
	}
	if ev.Mods.Ctrl {
		btn += 16
	}

	// Wire coordinates are 1-indexed.
	col := ev.Col + 1
	row := ev.Row + 1

	if sgr {
		final := byte('M')
		if !ev.Press && !ev.Motion && !isWheel {
			final = 'm'
		}
		return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", btn, col, row, final))
	}

	// Legacy encoding: release collapses to button 3, coordinates are
	// offset by 32 and saturate at 223.
	if !ev.Press && !ev.Motion && !isWheel {
		btn = int(MouseRelease)
	}
	if col > 223 {
		col = 223
	}
	if row > 223 {
		row = 223
	}
	return []byte{0x1b, '[', 'M', byte(32 + btn), byte(32 + col), byte(32 + row)}
}
