package parser

import (
	"fmt"

	"github.com/crucible-term/crucible/grid"
)

func (p *Parser) executeCSI(final byte) {
	if len(p.csiIntermediates) > 0 {
		p.executeCSIIntermediate(final)
		return
	}
	if p.csiPrivate == '?' {
		p.executeCSIPrivate(final)
		return
	}
	if p.csiPrivate == '>' || p.csiPrivate == '<' || p.csiPrivate == '=' {
		p.executeCSIKeyboard(final)
		return
	}

	g := p.Grid
	switch final {
	case 'A': // CUU
		g.MoveCursor(0, -p.param(0, 1))
	case 'B', 'e': // CUD / VPR
		g.MoveCursor(0, p.param(0, 1))
	case 'C', 'a': // CUF / HPR
		g.MoveCursor(p.param(0, 1), 0)
	case 'D': // CUB
		g.MoveCursor(-p.param(0, 1), 0)
	case 'E': // CNL
		g.CarriageReturn()
		g.MoveCursor(0, p.param(0, 1))
	case 'F': // CPL
		g.CarriageReturn()
		g.MoveCursor(0, -p.param(0, 1))
	case 'G', '`': // CHA / HPA
		g.SetCursor(p.param(0, 1)-1, g.Cursor.Row)
	case 'H', 'f': // CUP / HVP
		g.SetCursor(p.param(1, 1)-1, p.param(0, 1)-1)
	case 'd': // VPA
		g.SetCursor(g.Cursor.Col, p.param(0, 1)-1)
	case 'J': // ED
		switch p.paramRaw(0) {
		case 0:
			g.EraseBelow()
		case 1:
			g.EraseAbove()
		case 2:
			g.EraseAll()
		case 3:
			g.EraseAll()
			g.EraseScrollback()
		}
	case 'K': // EL
		switch p.paramRaw(0) {
		case 0:
			g.EraseLineRight()
		case 1:
			g.EraseLineLeft()
		case 2:
			g.EraseLine()
		}
	case 'L': // IL
		g.InsertLines(p.param(0, 1))
	case 'M': // DL
		g.DeleteLines(p.param(0, 1))
	case 'P': // DCH
		g.DeleteChars(p.param(0, 1))
	case '@': // ICH
		g.InsertChars(p.param(0, 1))
	case 'X': // ECH
		g.EraseChars(p.param(0, 1))
	case 'S': // SU
		g.ScrollUp(p.param(0, 1))
	case 'T': // SD
		g.ScrollDown(p.param(0, 1))
	case 'b': // REP
		g.RepeatLast(p.param(0, 1))
	case 'm': // SGR
		p.executeSGR()
	case 'r': // DECSTBM
		g.SetScrollRegion(p.paramRaw(0), p.paramRaw(1))
	case 's': // SCOSC
		g.SaveCursor()
	case 'u': // SCORC, or Kitty query/pop without private marker
		g.RestoreCursor()
	case 'h', 'l':
		// ANSI modes without private marker: only IRM/KAM-class modes
		// arrive here; all are accepted and ignored.
	case 'n': // DSR
		p.handleDSR()
	case 'c': // DA1
		p.reply("\x1b[?62;22c") // VT220-class with color
	case 'q': // DECSCUSR (with space intermediate normally; accept bare)
		p.setCursorStyle(p.paramRaw(0))
	case 't': // window manipulation: ignored
	default:
		p.log.WithField("final", string(final)).Debug("ignoring CSI")
	}
}

func (p *Parser) executeCSIIntermediate(final byte) {
	switch {
	case p.csiIntermediates[0] == ' ' && final == 'q': // DECSCUSR
		p.setCursorStyle(p.paramRaw(0))
	case p.csiIntermediates[0] == '!' && final == 'p': // DECSTR soft reset
		p.Grid.Reset()
	default:
		// Unknown intermediate form; ignored.
	}
}

func (p *Parser) setCursorStyle(n int) {
	g := p.Grid
	switch n {
	case 0, 1, 2:
		g.Cursor.Style = grid.CursorBlock
	case 3, 4:
		g.Cursor.Style = grid.CursorUnderline
	case 5, 6:
		g.Cursor.Style = grid.CursorBar
	default:
		return
	}
	// Odd numbers blink; 0 behaves like 1.
	g.Cursor.Blink = n == 0 || n%2 == 1
	g.MarkDirty(g.Cursor.Row)
}

// executeCSIPrivate handles DECSET/DECRST and `CSI ? u` (Kitty query).
func (p *Parser) executeCSIPrivate(final byte) {
	switch final {
	case 'h':
		p.setPrivateModes(true)
	case 'l':
		p.setPrivateModes(false)
	case 'u': // query Kitty keyboard flags
		p.reply(fmt.Sprintf("\x1b[?%du", p.Grid.KittyFlags()))
	}
}

func (p *Parser) setPrivateModes(set bool) {
	g := p.Grid
	m := g.ModesRef()
	for i := range p.csiParams {
		switch p.csiParams[i].first(0) {
		case 1: // DECCKM
			m.AppCursorKeys = set
		case 7: // DECAWM
			m.AutoWrap = set
		case 12: // att610 cursor blink
			g.Cursor.Blink = set
		case 25: // DECTCEM
			m.CursorVisible = set
			g.MarkDirty(g.Cursor.Row)
		case 1000:
			if set {
				m.Mouse = grid.MouseX10
			} else {
				m.Mouse = grid.MouseOff
			}
		case 1002:
			if set {
				m.Mouse = grid.MouseButton
			} else {
				m.Mouse = grid.MouseOff
			}
		case 1003:
			if set {
				m.Mouse = grid.MouseAll
			} else {
				m.Mouse = grid.MouseOff
			}
		case 1004:
			m.FocusEvents = set
		case 1006:
			m.SGRMouse = set
		case 47, 1047:
			if set {
				g.EnterAlternateScreen()
			} else {
				g.LeaveAlternateScreen()
			}
		case 1049:
			// Entering while already in the alternate screen is a no-op.
			if set {
				if !g.AltActive() {
					g.SaveCursor()
					g.EnterAlternateScreen()
				}
			} else if g.AltActive() {
				g.LeaveAlternateScreen()
				g.RestoreCursor()
			}
		case 2004:
			m.BracketedPaste = set
		case 2026:
			m.SyncUpdate = set
		default:
			// Accepted and ignored.
		}
	}
}

// executeCSIKeyboard handles `CSI > flags u` (push), `CSI < n u` (pop),
// `CSI = flags ; mode u` (set), and `CSI > 4 ; level m` (modifyOtherKeys).
func (p *Parser) executeCSIKeyboard(final byte) {
	g := p.Grid
	switch {
	case p.csiPrivate == '>' && final == 'u':
		g.PushKittyFlags(uint8(p.paramRaw(0)))
	case p.csiPrivate == '<' && final == 'u':
		g.PopKittyFlags(p.param(0, 1))
	case p.csiPrivate == '=' && final == 'u':
		flags := uint8(p.paramRaw(0))
		switch p.param(1, 1) {
		case 1: // set all
			g.SetKittyFlags(flags)
		case 2: // set given bits
			g.SetKittyFlags(g.KittyFlags() | flags)
		case 3: // clear given bits
			g.SetKittyFlags(g.KittyFlags() &^ flags)
		}
	case p.csiPrivate == '>' && final == 'm':
		if p.paramRaw(0) == 4 {
			level := p.paramRaw(1)
			if level >= 0 && level <= 2 {
				g.ModifyOtherKeys = level
			}
		}
	case p.csiPrivate == '>' && final == 'c': // DA2
		p.reply("\x1b[>1;10;0c")
	}
}

func (p *Parser) handleDSR() {
	switch p.paramRaw(0) {
	case 5:
		p.reply("\x1b[0n")
	case 6:
		p.reply(fmt.Sprintf("\x1b[%d;%dR", p.Grid.Cursor.Row+1, p.Grid.Cursor.Col+1))
	}
}
