package main

import (
	"unicode"

	"github.com/crucible-term/crucible/grid"
	"github.com/crucible-term/crucible/input"
)

// copyModeState is the modal keyboard-driven selection mode. It has its
// own cursor; leaving restores normal mode and returns the view to the live
// screen without changing the grid contents.
type copyModeState struct {
	active bool
	row    int // viewport row
	col    int

	selecting bool
	sel       grid.Selection
}

func (c *copyModeState) enter(g *grid.Grid) {
	c.active = true
	c.row = g.Cursor.Row
	c.col = g.Cursor.Col
	c.selecting = false
	c.sel = grid.Selection{}
	g.MarkAllDirty()
}

func (c *copyModeState) exit(g *grid.Grid) {
	c.active = false
	c.selecting = false
	c.sel = grid.Selection{}
	g.ResetView()
	g.MarkAllDirty()
}

// handleKey processes one key in copy mode. It returns the yanked text
// when 'y' completes a selection, openSearch=true when '/' asks for an
// incremental search, and exited=true when the mode ends.
func (c *copyModeState) handleKey(g *grid.Grid, ev input.KeyEvent) (yanked string, openSearch, exited bool) {
	if !ev.Press {
		return "", false, false
	}

	move := func(dCol, dRow int) {
		c.col = clampI(c.col+dCol, 0, g.Cols-1)
		next := c.row + dRow
		// Moving past the viewport edges scrolls the history view.
		if next < 0 {
			g.ScrollView(-next)
			next = 0
		} else if next >= g.Rows {
			g.ScrollView(g.Rows - 1 - next)
			next = g.Rows - 1
		}
		c.row = next
		if c.selecting {
			c.sel.EndRow = g.ViewRowToAbs(c.row)
			c.sel.EndCol = c.col
		}
		g.MarkAllDirty()
	}

	switch ev.Key {
	case input.KeyEscape:
		c.exit(g)
		return "", false, true
	case input.KeyUp:
		move(0, -1)
		return "", false, false
	case input.KeyDown:
		move(0, 1)
		return "", false, false
	case input.KeyLeft:
		move(-1, 0)
		return "", false, false
	case input.KeyRight:
		move(1, 0)
		return "", false, false
	}

	if ev.Key < 0 {
		return "", false, false
	}
	switch rune(ev.Key) {
	case 'h':
		move(-1, 0)
	case 'j':
		move(0, 1)
	case 'k':
		move(0, -1)
	case 'l':
		move(1, 0)
	case '0':
		c.col = 0
		g.MarkAllDirty()
	case '$':
		c.col = lastUsedCol(g, c.row)
		g.MarkAllDirty()
	case 'g':
		g.ScrollView(g.ScrollbackLen())
		c.row = 0
		g.MarkAllDirty()
	case 'G':
		g.ResetView()
		c.row = g.Rows - 1
		g.MarkAllDirty()
	case 'w':
		c.wordForward(g)
	case 'b':
		c.wordBackward(g)
	case 'u':
		if ev.Mods.Ctrl {
			move(0, -g.Rows/2)
		}
	case 'd':
		if ev.Mods.Ctrl {
			move(0, g.Rows/2)
		}
	case 'v':
		if c.selecting {
			c.selecting = false
			c.sel = grid.Selection{}
		} else {
			abs := g.ViewRowToAbs(c.row)
			c.sel = grid.Selection{Active: true, AnchorRow: abs, AnchorCol: c.col, EndRow: abs, EndCol: c.col}
			c.selecting = true
		}
		g.MarkAllDirty()
	case 'y':
		if c.sel.Active {
			text := g.SelectionText(c.sel)
			c.exit(g)
			return text, false, true
		}
	case '/':
		return "", true, false
	case 'q':
		c.exit(g)
		return "", false, true
	}
	return "", false, false
}

func (c *copyModeState) wordForward(g *grid.Grid) {
	cells := g.AbsRow(g.ViewRowToAbs(c.row))
	if cells == nil {
		return
	}
	col := c.col
	// Skip the current word, then whitespace.
	for col < len(cells)-1 && !cellIsSpace(&cells[col]) {
		col++
	}
	for col < len(cells)-1 && cellIsSpace(&cells[col]) {
		col++
	}
	c.col = col
	g.MarkAllDirty()
}

func (c *copyModeState) wordBackward(g *grid.Grid) {
	cells := g.AbsRow(g.ViewRowToAbs(c.row))
	if cells == nil {
		return
	}
	col := c.col
	for col > 0 && cellIsSpace(&cells[col-1]) {
		col--
	}
	for col > 0 && !cellIsSpace(&cells[col-1]) {
		col--
	}
	c.col = col
	g.MarkAllDirty()
}

func cellIsSpace(c *grid.Cell) bool {
	if c.Width == 0 {
		return false
	}
	return unicode.IsSpace(c.Ch()) || c.Grapheme == ""
}

func lastUsedCol(g *grid.Grid, row int) int {
	cells := g.AbsRow(g.ViewRowToAbs(row))
	for col := len(cells) - 1; col >= 0; col-- {
		if !cells[col].IsBlank() {
			return col
		}
	}
	return 0
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
