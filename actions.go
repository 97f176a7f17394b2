package main

import (
	"github.com/crucible-term/crucible/input"
)

// minFontSize/maxFontSize bound runtime font size changes.
const (
	minFontSize = 6
	maxFontSize = 72
)

// performAction runs a bound key action. Bound chords never reach the PTY.
func (a *App) performAction(action input.Action, arg int) {
	switch action {
	case input.ActionCopy:
		text := a.sel.text(a.grid)
		if a.copyMode.active && a.copyMode.sel.Active {
			text = a.grid.SelectionText(a.copyMode.sel)
		}
		if text != "" {
			a.copyToClipboard(text)
		}
	case input.ActionPaste:
		a.paste()
	case input.ActionScreenshot:
		if path, err := a.saveScreenshot(); err != nil {
			a.log.WithError(err).Warn("screenshot failed")
		} else {
			a.log.WithField("path", path).Info("screenshot saved")
			a.triggerBell() // positive feedback
		}
	case input.ActionSearch:
		if a.search.active {
			a.search.close()
		} else {
			a.search.open()
		}
		a.grid.MarkAllDirty()
	case input.ActionCopyMode:
		if a.copyMode.active {
			a.copyMode.exit(a.grid)
		} else {
			a.copyMode.enter(a.grid)
		}
	case input.ActionFontIncrease:
		a.setFontSize(a.fontSize + 1)
	case input.ActionFontDecrease:
		a.setFontSize(a.fontSize - 1)
	case input.ActionFontReset:
		a.setFontSize(a.baseFontSize)
	case input.ActionScrollUp:
		a.grid.ScrollView(a.grid.Rows / 2)
	case input.ActionScrollDown:
		a.grid.ScrollView(-a.grid.Rows / 2)
	case input.ActionIMEToggle:
		if a.imec != nil {
			a.imec.SetEnabled(!a.imec.Enabled())
		}
	case input.ActionVTSwitch:
		if err := a.backend.SwitchVT(arg); err != nil {
			a.log.WithError(err).WithField("vt", arg).Warn("VT switch failed")
		}
	}
}

// copyToClipboard hands text to the clipboard collaborator and flashes a
// confirmation.
func (a *App) copyToClipboard(text string) {
	if err := a.clip.SetClipboard([]byte(text)); err != nil {
		a.log.WithError(err).Warn("clipboard write failed")
		return
	}
	a.triggerBell()
}

// paste writes the clipboard to the PTY, wrapped in bracketed-paste
// markers when the mode is active.
func (a *App) paste() {
	data, err := a.clip.GetClipboard()
	if err != nil || len(data) == 0 {
		return
	}
	if a.grid.Modes().BracketedPaste {
		out := make([]byte, 0, len(data)+12)
		out = append(out, []byte("\x1b[200~")...)
		out = append(out, data...)
		out = append(out, []byte("\x1b[201~")...)
		a.writePty(out)
		return
	}
	a.writePty(data)
}

// setFontSize rebuilds faces and atlases at the new size and resizes the
// grid to the resulting cell geometry.
func (a *App) setFontSize(size float32) {
	if size < minFontSize {
		size = minFontSize
	}
	if size > maxFontSize {
		size = maxFontSize
	}
	if size == a.fontSize {
		return
	}
	if err := a.rebuildFonts(size); err != nil {
		a.log.WithError(err).Warn("font size change failed")
		return
	}
	a.fontSize = size
	a.renderer.UpdateMetrics()
	cw, ch := a.renderer.CellSize()
	a.emoji.SetCellSize(cw, ch)
	a.resizeGrid()
	a.grid.MarkAllDirty()
}
