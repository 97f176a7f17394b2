package grid

import (
	"strings"
	"unicode"
)

// Selection is a live anchor + end pair in absolute row coordinates, so it
// stays put while the scrollback view moves underneath it.
type Selection struct {
	Active    bool
	AnchorRow int
	AnchorCol int
	EndRow    int
	EndCol    int
}

// Normalized returns the selection ordered for iteration.
func (s Selection) Normalized() (startRow, startCol, endRow, endCol int) {
	if s.EndRow < s.AnchorRow || (s.EndRow == s.AnchorRow && s.EndCol < s.AnchorCol) {
		return s.EndRow, s.EndCol, s.AnchorRow, s.AnchorCol
	}
	return s.AnchorRow, s.AnchorCol, s.EndRow, s.EndCol
}

// RowSpan returns the selected [startCol,endCol) for an absolute row, with
// ok=false when the row is outside the selection.
func (s Selection) RowSpan(absRow, cols int) (startCol, endCol int, ok bool) {
	if !s.Active {
		return 0, 0, false
	}
	sr, sc, er, ec := s.Normalized()
	if absRow < sr || absRow > er {
		return 0, 0, false
	}
	startCol = 0
	endCol = cols
	if absRow == sr {
		startCol = sc
	}
	if absRow == er {
		endCol = ec + 1
		if endCol > cols {
			endCol = cols
		}
	}
	if startCol >= endCol {
		return 0, 0, false
	}
	return startCol, endCol, true
}

// SelectionText serializes the selection as line-joined UTF-8, skipping wide
// continuation cells and trimming trailing blanks per row.
func (g *Grid) SelectionText(s Selection) string {
	if !s.Active {
		return ""
	}
	sr, _, er, _ := s.Normalized()
	var lines []string
	for abs := sr; abs <= er; abs++ {
		cells := g.AbsRow(abs)
		if cells == nil {
			continue
		}
		startCol, endCol, ok := s.RowSpan(abs, len(cells))
		if !ok {
			continue
		}
		var b strings.Builder
		for col := startCol; col < endCol && col < len(cells); col++ {
			c := &cells[col]
			if c.Width == 0 {
				continue
			}
			b.WriteString(c.Grapheme)
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return strings.Join(lines, "\n")
}

// WordSpan expands the position to the contiguous run of non-whitespace at
// the given absolute row and column (double-click selection).
func (g *Grid) WordSpan(absRow, col int) (startCol, endCol int) {
	cells := g.AbsRow(absRow)
	if cells == nil || col < 0 || col >= len(cells) {
		return col, col
	}
	isWord := func(c *Cell) bool {
		if c.Width == 0 {
			return true
		}
		r := c.Ch()
		return r != 0 && !unicode.IsSpace(r)
	}
	if !isWord(&cells[col]) {
		return col, col
	}
	startCol, endCol = col, col
	for startCol > 0 && isWord(&cells[startCol-1]) {
		startCol--
	}
	for endCol < len(cells)-1 && isWord(&cells[endCol+1]) {
		endCol++
	}
	return startCol, endCol
}
