package main

import (
	"strings"

	"github.com/crucible-term/crucible/gpu"
	"github.com/crucible-term/crucible/grid"
)

// searchState is the incremental search over the visible grid plus
// scrollback. Matches live in absolute row coordinates and are translated
// to viewport rows at draw time.
type searchState struct {
	active  bool
	query   string
	matches []gpu.Match
	current int
}

func (s *searchState) open() {
	s.active = true
	s.query = ""
	s.matches = nil
	s.current = 0
}

func (s *searchState) close() {
	s.active = false
	s.matches = nil
}

// input feeds one typed rune into the query and re-evaluates.
func (s *searchState) input(g *grid.Grid, r rune) {
	s.query += string(r)
	s.evaluate(g)
}

func (s *searchState) backspace(g *grid.Grid) {
	if s.query == "" {
		return
	}
	runes := []rune(s.query)
	s.query = string(runes[:len(runes)-1])
	s.evaluate(g)
}

// evaluate rescans all rows for the query. Rows are compared as plain
// text with wide continuation cells skipped, so matches line up with
// cells.
func (s *searchState) evaluate(g *grid.Grid) {
	s.matches = s.matches[:0]
	if s.query == "" {
		return
	}
	needle := strings.ToLower(s.query)
	total := g.TotalRows()
	for abs := 0; abs < total; abs++ {
		cells := g.AbsRow(abs)
		if cells == nil {
			continue
		}
		s.scanRow(abs, cells, needle)
	}
	if s.current >= len(s.matches) {
		s.current = 0
	}
	g.MarkAllDirty()
}

func (s *searchState) scanRow(abs int, cells []grid.Cell, needle string) {
	// Build the row text and a byte-offset -> column map (one entry per byte
	// of each grapheme, matching the offsets strings.Index returns).
	var b strings.Builder
	var cols []int
	for col := range cells {
		c := &cells[col]
		if c.Width == 0 {
			continue
		}
		b.WriteString(c.Grapheme)
		for i := 0; i < len(c.Grapheme); i++ {
			cols = append(cols, col)
		}
	}
	hay := strings.ToLower(b.String())
	from := 0
	for {
		idx := strings.Index(hay[from:], needle)
		if idx < 0 {
			return
		}
		start := from + idx
		end := start + len(needle)
		if start < len(cols) {
			endCol := cols[minI(end-1, len(cols)-1)] + 1
			s.matches = append(s.matches, gpu.Match{
				AbsRow:   abs,
				StartCol: cols[start],
				EndCol:   endCol,
			})
		}
		from = end
	}
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// next advances the current match and scrolls the view to it.
func (s *searchState) next(g *grid.Grid, backward bool) {
	if len(s.matches) == 0 {
		return
	}
	if backward {
		s.current--
		if s.current < 0 {
			s.current = len(s.matches) - 1
		}
	} else {
		s.current = (s.current + 1) % len(s.matches)
	}
	s.scrollToCurrent(g)
}

// scrollToCurrent adjusts the scrollback view so the current match is
// visible.
func (s *searchState) scrollToCurrent(g *grid.Grid) {
	m := s.matches[s.current]
	top := g.ViewRowToAbs(0)
	bottom := top + g.Rows - 1
	if m.AbsRow >= top && m.AbsRow <= bottom {
		g.MarkAllDirty()
		return
	}
	// Center the match.
	offset := g.ScrollbackLen() - m.AbsRow + g.Rows/2
	if offset < 0 {
		offset = 0
	}
	g.ResetView()
	g.ScrollView(offset)
}
