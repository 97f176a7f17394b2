package main

import (
	"time"

	"github.com/crucible-term/crucible/grid"
)

// selectionState tracks the live mouse selection in absolute row
// coordinates, so scrollback motion underneath does not move it.
type selectionState struct {
	sel       grid.Selection
	selecting bool

	// Click chain for double/triple click detection.
	lastClick  time.Time
	clickCount int
	lastRow    int
	lastCol    int
}

const multiClickWindow = 400 * time.Millisecond

// press starts or extends a selection. Shift extends from the existing
// anchor; double-click selects the word, triple-click the line.
func (s *selectionState) press(g *grid.Grid, col, row int, shift bool) {
	abs := g.ViewRowToAbs(row)

	if shift && s.sel.Active {
		s.sel.EndRow = abs
		s.sel.EndCol = col
		s.selecting = true
		g.MarkAllDirty()
		return
	}

	now := time.Now()
	if now.Sub(s.lastClick) < multiClickWindow && s.lastRow == abs && s.lastCol == col {
		s.clickCount++
	} else {
		s.clickCount = 1
	}
	s.lastClick = now
	s.lastRow = abs
	s.lastCol = col

	switch s.clickCount {
	case 2:
		start, end := g.WordSpan(abs, col)
		s.sel = grid.Selection{Active: true, AnchorRow: abs, AnchorCol: start, EndRow: abs, EndCol: end}
	case 3:
		s.sel = grid.Selection{Active: true, AnchorRow: abs, AnchorCol: 0, EndRow: abs, EndCol: g.Cols - 1}
		s.clickCount = 0
	default:
		s.sel = grid.Selection{Active: true, AnchorRow: abs, AnchorCol: col, EndRow: abs, EndCol: col}
	}
	s.selecting = true
	g.MarkAllDirty()
}

// drag extends the selection to the current cell.
func (s *selectionState) drag(g *grid.Grid, col, row int) {
	if !s.selecting {
		return
	}
	abs := g.ViewRowToAbs(row)
	if abs != s.sel.EndRow || col != s.sel.EndCol {
		s.sel.EndRow = abs
		s.sel.EndCol = col
		g.MarkAllDirty()
	}
}

// release finishes the gesture; the selection stays visible until cleared.
func (s *selectionState) release() string {
	s.selecting = false
	return ""
}

// clear drops the selection (new output, typing, fresh click).
func (s *selectionState) clear(g *grid.Grid) {
	if s.sel.Active {
		s.sel = grid.Selection{}
		s.selecting = false
		g.MarkAllDirty()
	}
}

// text serializes the current selection.
func (s *selectionState) text(g *grid.Grid) string {
	return g.SelectionText(s.sel)
}
