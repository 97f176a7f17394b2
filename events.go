package main

import (
	"time"

	"github.com/crucible-term/crucible/gpu"
	"github.com/crucible-term/crucible/grid"
	"github.com/crucible-term/crucible/ime"
	"github.com/crucible-term/crucible/input"
)

// handleInput routes one device event: pointer motion, buttons, or keys.
func (a *App) handleInput(ev input.Event) {
	switch {
	case ev.Rel != nil:
		a.handlePointer(ev.Rel)
	case ev.Btn != nil:
		a.handleButton(ev.Btn)
	case ev.Key != nil:
		k := *ev.Key
		now := time.Now()
		if k.Press {
			a.repeat.KeyDown(k, now)
		} else {
			a.repeat.KeyUp(k.Code)
		}
		a.dispatchKey(k)
	}
}

// dispatchKey runs the full key pipeline: bound actions first, then modal
// states, then the IME, then PTY translation.
func (a *App) dispatchKey(ev input.KeyEvent) {
	if action, arg := a.bindings.Match(ev); action != input.ActionNone {
		a.performAction(action, arg)
		return
	}

	// Search edits take precedence over copy mode, so '/' from copy mode
	// drops straight into the search bar and Escape returns to it.
	if a.search.active {
		a.handleSearchKey(ev)
		return
	}

	if a.copyMode.active {
		yanked, openSearch, _ := a.copyMode.handleKey(a.grid, ev)
		if yanked != "" {
			a.copyToClipboard(yanked)
		}
		if openSearch {
			a.search.open()
			a.grid.MarkAllDirty()
		}
		return
	}

	// Typing (except shift-modified selection chords) clears the
	// selection and snaps out of scrollback.
	if ev.Press && !ev.Key.IsModifier() {
		if !ev.Mods.Shift {
			a.sel.clear(a.grid)
		}
		a.grid.ResetView()
	}

	if a.imec != nil && a.imec.Enabled() && ev.Press && !ev.Mods.Ctrl && !ev.Mods.Alt {
		// Route through the IME; the reply either commits text or
		// forwards the key back to us.
		select {
		case a.imec.Keys() <- ime.KeyRequest{
			Keysym:  uint32(ev.Key),
			Keycode: uint32(ev.Code),
			State:   imeState(ev.Mods),
			Release: !ev.Press,
		}:
			return
		default:
			// IME task is stalled: fall through to direct input.
		}
	}

	a.encodeAndSend(ev)
}

func (a *App) encodeAndSend(ev input.KeyEvent) {
	m := a.grid.Modes()
	st := input.TermState{
		KittyFlags:      a.grid.KittyFlags(),
		ModifyOtherKeys: a.grid.ModifyOtherKeys,
		AppCursorKeys:   m.AppCursorKeys,
	}
	a.writePty(input.Encode(ev, st))
}

func imeState(m input.Modifiers) uint32 {
	// X11 modifier mask: shift=1, ctrl=4, mod1(alt)=8.
	var s uint32
	if m.Shift {
		s |= 1 << 0
	}
	if m.Ctrl {
		s |= 1 << 2
	}
	if m.Alt {
		s |= 1 << 3
	}
	return s
}

// handleSearchKey edits the query or navigates matches.
func (a *App) handleSearchKey(ev input.KeyEvent) {
	if !ev.Press {
		return
	}
	switch ev.Key {
	case input.KeyEscape:
		a.search.close()
		a.grid.ResetView()
		a.grid.MarkAllDirty()
		return
	case input.KeyEnter:
		a.search.next(a.grid, ev.Mods.Shift)
		return
	case input.KeyBackspace:
		a.search.backspace(a.grid)
		return
	}
	if ev.Key >= 0 && ev.Text != "" {
		for _, r := range ev.Text {
			a.search.input(a.grid, r)
		}
	}
}

// handleIMEUpdate applies messages from the IME task on the main thread.
func (a *App) handleIMEUpdate(u ime.Update) {
	switch {
	case u.Commit != "":
		a.insertText(u.Commit)
		a.preedit = nil
		a.cands = nil
	case u.HasPreedit:
		if u.Preedit == "" {
			a.preedit = nil
		} else {
			a.preedit = &gpu.Preedit{
				Text:        u.Preedit,
				CursorBegin: u.PreeditCursor,
				CursorEnd:   u.PreeditCursor,
			}
		}
		a.grid.MarkDirty(a.grid.Cursor.Row)
	case u.HasCandidates:
		if len(u.Candidates) == 0 {
			a.cands = nil
		} else {
			a.cands = &gpu.Candidates{Items: u.Candidates, Selected: u.CandidateSel}
		}
		a.grid.MarkAllDirty()
	case u.ForwardKey != nil:
		// The IME passed the key back; encode it directly.
		a.encodeForwardedKey(u.ForwardKey)
	}
}

// insertText writes committed IME text to the PTY as plain input.
func (a *App) insertText(s string) {
	a.writePty([]byte(s))
}

// encodeForwardedKey re-dispatches a key the IME declined, bypassing the
// IME to avoid a loop.
func (a *App) encodeForwardedKey(req *ime.KeyRequest) {
	ev := input.KeyEvent{
		Key:   input.Key(req.Keysym),
		Code:  uint16(req.Keycode),
		Press: !req.Release,
	}
	if req.State&(1<<0) != 0 {
		ev.Mods.Shift = true
	}
	if req.State&(1<<2) != 0 {
		ev.Mods.Ctrl = true
	}
	if req.State&(1<<3) != 0 {
		ev.Mods.Alt = true
	}
	if ev.Key > 0 && ev.Key < 0x110000 && ev.Mods == (input.Modifiers{}) {
		ev.Text = string(rune(ev.Key))
	}
	a.encodeAndSend(ev)
}

// handlePointer applies relative motion and wheel events.
func (a *App) handlePointer(rel *input.RelEvent) {
	if rel.DX != 0 || rel.DY != 0 {
		a.mouseX = clampF32(a.mouseX+float32(rel.DX), 0, float32(a.widthPx()-1))
		a.mouseY = clampF32(a.mouseY+float32(rel.DY), 0, float32(a.heightPx()-1))
		a.mouseMoved = time.Now()
		col, row := a.mouseCell()
		if a.sel.selecting {
			a.sel.drag(a.grid, col, row)
		}
		m := a.grid.Modes()
		if m.Mouse == grid.MouseAll || (m.Mouse == grid.MouseButton && a.buttonHeld != input.MouseRelease) {
			a.sendMouse(input.MouseEvent{
				Col: col, Row: row, Button: a.buttonHeld, Motion: true,
				Mods: a.inputs.Modifiers(),
			})
		}
	}
	if rel.Wheel != 0 {
		a.handleWheel(int(rel.Wheel))
	}
}

// handleWheel scrolls the view, or reports wheel buttons to the
// application when a mouse mode is on and we are on the live screen.
// While a selection is active the wheel only moves the view; the selection
// stays anchored in absolute coordinates.
func (a *App) handleWheel(delta int) {
	m := a.grid.Modes()
	if m.Mouse != grid.MouseOff && a.grid.ViewOffset() == 0 && !a.sel.sel.Active {
		btn := input.WheelUp
		if delta < 0 {
			btn = input.WheelDown
		}
		col, row := a.mouseCell()
		for i := 0; i < absI(delta); i++ {
			a.sendMouse(input.MouseEvent{Col: col, Row: row, Button: btn, Press: true,
				Mods: a.inputs.Modifiers()})
		}
		return
	}
	if a.grid.AltActive() {
		// Alternate screen without mouse mode: wheel maps to arrow keys.
		seq := "\x1b[A"
		if delta < 0 {
			seq = "\x1b[B"
		}
		for i := 0; i < absI(delta)*3; i++ {
			a.writePty([]byte(seq))
		}
		return
	}
	a.grid.ScrollView(delta * 3)
}

func (a *App) handleButton(btn *input.ButtonEvent) {
	col, row := a.mouseCell()
	mods := a.inputs.Modifiers()
	m := a.grid.Modes()

	if btn.Press {
		a.buttonHeld = btn.Button
	} else if a.buttonHeld == btn.Button {
		a.buttonHeld = input.MouseRelease
	}

	// Application mouse reporting wins unless shift overrides it for
	// local selection.
	if m.Mouse != grid.MouseOff && !mods.Shift {
		a.sendMouse(input.MouseEvent{Col: col, Row: row, Button: btn.Button, Press: btn.Press, Mods: mods})
		return
	}

	if btn.Button == input.MouseLeft {
		if btn.Press {
			a.sel.press(a.grid, col, row, mods.Shift)
		} else {
			a.sel.release()
			if text := a.sel.text(a.grid); text != "" {
				a.copyToClipboard(text)
			}
		}
	}
}

func (a *App) sendMouse(ev input.MouseEvent) {
	m := a.grid.Modes()
	a.writePty(input.EncodeMouse(ev, m.Mouse, m.SGRMouse))
}

func (a *App) mouseCell() (col, row int) {
	cw, ch := a.renderer.CellSize()
	if cw <= 0 || ch <= 0 {
		return 0, 0
	}
	col = clampI(int(a.mouseX)/cw, 0, a.grid.Cols-1)
	row = clampI(int(a.mouseY)/ch, 0, a.grid.Rows-1)
	return col, row
}

func (a *App) widthPx() int {
	w, _ := a.ctx.Size()
	return w
}

func (a *App) heightPx() int {
	_, h := a.ctx.Size()
	return h
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absI(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
