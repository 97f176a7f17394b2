package gpu

import (
	"github.com/crucible-term/crucible/grid"
)

// BgRun is one run of consecutive cells sharing a background color.
type BgRun struct {
	StartCol int
	EndCol   int // exclusive
	Color    grid.Color
}

// BackgroundRuns run-length-encodes the backgrounds of a row, skipping
// width-0 continuation cells (they inherit the head cell's background run).
// Inverse cells swap fg into the background, so the run carries the color
// actually painted.
func BackgroundRuns(cells []grid.Cell) []BgRun {
	var runs []BgRun
	var cur *BgRun
	for col := range cells {
		c := &cells[col]
		if c.Width == 0 {
			if cur != nil {
				cur.EndCol = col + 1
			}
			continue
		}
		bg := c.Bg
		if c.HasFlag(grid.FlagInverse) {
			bg = c.Fg
		}
		if cur != nil && cur.Color == bg {
			cur.EndCol = col + 1
			continue
		}
		runs = append(runs, BgRun{StartCol: col, EndCol: col + 1, Color: bg})
		cur = &runs[len(runs)-1]
	}
	return runs
}

// UnderlineRun batches consecutive cells sharing underline style, color,
// and hyperlink state. Hyperlink cells default to a single underline.
type UnderlineRun struct {
	StartCol int
	EndCol   int // exclusive
	Style    grid.UnderlineStyle
	Color    *grid.Color // nil = cell foreground
	Fg       grid.Color  // foreground of the first cell, for nil Color
}

// underlineStyleOf returns the effective style for a cell: explicit styles
// win, hyperlinks fall back to single.
func underlineStyleOf(c *grid.Cell) grid.UnderlineStyle {
	if c.HasFlag(grid.FlagUnderline) && c.UnderlineStyle != grid.UnderlineNone {
		return c.UnderlineStyle
	}
	if c.Hyperlink != nil {
		return grid.UnderlineSingle
	}
	return grid.UnderlineNone
}

// UnderlineRuns batches the decorated spans of a row.
func UnderlineRuns(cells []grid.Cell) []UnderlineRun {
	var runs []UnderlineRun
	var cur *UnderlineRun
	var curLink *grid.Hyperlink
	for col := range cells {
		c := &cells[col]
		if c.Width == 0 {
			if cur != nil {
				cur.EndCol = col + 1
			}
			continue
		}
		style := underlineStyleOf(c)
		if style == grid.UnderlineNone {
			cur = nil
			continue
		}
		if cur != nil && cur.Style == style && curLink == c.Hyperlink &&
			sameColorPtr(cur.Color, c.UnderlineColor) {
			cur.EndCol = col + 1
			continue
		}
		runs = append(runs, UnderlineRun{
			StartCol: col,
			EndCol:   col + 1,
			Style:    style,
			Color:    c.UnderlineColor,
			Fg:       c.Fg,
		})
		cur = &runs[len(runs)-1]
		curLink = c.Hyperlink
	}
	return runs
}

func sameColorPtr(a, b *grid.Color) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Rect is a pixel-space rectangle emitted by the decoration passes.
type Rect struct {
	X, Y, W, H float32
}

// UnderlineRects decomposes a non-curly underline run into rectangles:
// one for single, two for double, N dots or dashes otherwise. Curly runs
// are drawn by the SDF shader instead and return nil here.
func UnderlineRects(run UnderlineRun, cellW, cellH, baseline, thickness float32) []Rect {
	x := float32(run.StartCol) * cellW
	w := float32(run.EndCol-run.StartCol) * cellW
	y := baseline + thickness
	switch run.Style {
	case grid.UnderlineSingle:
		return []Rect{{X: x, Y: y, W: w, H: thickness}}
	case grid.UnderlineDouble:
		return []Rect{
			{X: x, Y: y, W: w, H: thickness},
			{X: x, Y: y + 2*thickness, W: w, H: thickness},
		}
	case grid.UnderlineDotted:
		var rects []Rect
		dot := thickness
		for px := x; px < x+w; px += dot * 2 {
			rw := dot
			if px+rw > x+w {
				rw = x + w - px
			}
			rects = append(rects, Rect{X: px, Y: y, W: rw, H: thickness})
		}
		return rects
	case grid.UnderlineDashed:
		var rects []Rect
		dash := cellW / 2
		for px := x; px < x+w; px += dash + thickness*2 {
			rw := dash
			if px+rw > x+w {
				rw = x + w - px
			}
			rects = append(rects, Rect{X: px, Y: y, W: rw, H: thickness})
		}
		return rects
	}
	return nil
}
