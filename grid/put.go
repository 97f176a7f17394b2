package grid

import (
	"golang.org/x/text/unicode/norm"
)

const (
	runeZWJ  = 0x200D
	runeVS16 = 0xFE0F
	runeVS15 = 0xFE0E
)

// PutChar writes one codepoint at the cursor, implementing wide-character
// pairs, auto-wrap, and grapheme attachment: ZWJ and variation selectors
// extend the previous cell, a regional indicator merges with a preceding
// lone regional indicator into a flag, and zero-width combining marks
// attach with NFC re-normalization.
func (g *Grid) PutChar(r rune) {
	switch {
	case r == runeZWJ:
		if g.appendToLast(string(r)) {
			g.joinNext = true
		}
		return
	case r == runeVS16:
		if c := g.lastCell(); c != nil {
			c.Grapheme += string(r)
			c.Flags |= FlagEmoji
			g.MarkDirty(g.lastRow)
		}
		return
	case r == runeVS15:
		g.appendToLast(string(r))
		return
	}

	if g.joinNext {
		g.joinNext = false
		if g.appendToLast(string(r)) {
			return
		}
	}

	if IsRegionalIndicator(r) {
		if c := g.lastCell(); c != nil && isLoneRegionalIndicator(c.Grapheme) {
			c.Grapheme += string(r)
			c.Flags |= FlagEmoji
			g.MarkDirty(g.lastRow)
			g.lastValid = false
			return
		}
	}

	w := RuneWidth(r)
	if w == 0 {
		// Combining mark: attach to the previous grapheme, NFC-normalized.
		if c := g.lastCell(); c != nil {
			c.Grapheme = norm.NFC.String(c.Grapheme + string(r))
			g.MarkDirty(g.lastRow)
		}
		return
	}

	g.putGrapheme(string(r), uint8(w))
}

// PutGrapheme writes a pre-composed grapheme cluster (IME commit path).
func (g *Grid) PutGrapheme(s string) {
	if s == "" {
		return
	}
	w := StringWidth(s)
	if w <= 0 {
		w = 1
	}
	if w > 2 {
		w = 2
	}
	g.putGrapheme(s, uint8(w))
}

func (g *Grid) putGrapheme(s string, width uint8) {
	if g.wrapPending {
		if g.modes.AutoWrap {
			g.wrapPending = false
			g.CarriageReturn()
			g.Linefeed()
		} else {
			g.wrapPending = false
		}
	}

	// A wide head that would straddle the right margin blanks the last
	// column and wraps first.
	if width == 2 && g.Cursor.Col == g.Cols-1 {
		if g.modes.AutoWrap {
			g.eraseSpan(g.Cursor.Row, g.Cursor.Col, g.Cursor.Col)
			g.CarriageReturn()
			g.Linefeed()
		} else {
			// No wrap: write in place as a narrow cell.
			width = 1
		}
	}

	row, col := g.Cursor.Row, g.Cursor.Col

	g.cleanWidePair(col, row)
	cell := g.pen.apply(s, width)
	if IsEmojiGrapheme(s) {
		cell.Flags |= FlagEmoji
	}
	g.cells[g.index(col, row)] = cell

	if width == 2 {
		g.cleanWidePair(col+1, row)
		cont := g.pen.apply("", 0)
		g.cells[g.index(col+1, row)] = cont
	}

	g.lastGrapheme = s
	g.lastWidth = width
	g.lastRow, g.lastCol = row, col
	g.lastValid = true
	g.MarkDirty(row)

	next := col + int(width)
	if next >= g.Cols {
		if g.modes.AutoWrap {
			g.Cursor.Col = g.Cols - 1
			g.wrapPending = true
		} else {
			g.Cursor.Col = g.Cols - 1
		}
	} else {
		g.Cursor.Col = next
	}
}

// RepeatLast repeats the last printed grapheme n times (REP).
func (g *Grid) RepeatLast(n int) {
	if g.lastGrapheme == "" {
		return
	}
	if n <= 0 {
		n = 1
	}
	s, w := g.lastGrapheme, g.lastWidth
	for i := 0; i < n; i++ {
		g.putGrapheme(s, w)
	}
}

func (g *Grid) lastCell() *Cell {
	if !g.lastValid {
		return nil
	}
	return g.CellRef(g.lastCol, g.lastRow)
}

func (g *Grid) appendToLast(s string) bool {
	c := g.lastCell()
	if c == nil {
		return false
	}
	c.Grapheme += s
	g.MarkDirty(g.lastRow)
	return true
}

func isLoneRegionalIndicator(s string) bool {
	count := 0
	for _, r := range s {
		if !IsRegionalIndicator(r) {
			return false
		}
		count++
	}
	return count == 1
}
