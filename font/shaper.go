package font

import (
	"bytes"

	"github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/harfbuzz"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/crucible-term/crucible/grid"
)

// ShapedGlyph is one shaping result mapped back onto the grid.
type ShapedGlyph struct {
	// GlyphID in the main font; 0 means unshaped rune fallback.
	GlyphID uint16
	// Cluster is the source cell column within the row (run start column
	// plus the offset inside the run).
	Cluster int
	// CellSpan is how many cells the glyph covers (ligatures span 2+).
	CellSpan int
	// Rune is the first rune of the source cell, for fallback rendering.
	Rune rune
}

// Shaper runs complex-text shaping (calt, liga, clig) over grid rows.
// Positions stay locked to the cell grid; shaping only affects glyph
// selection.
type Shaper struct {
	hbFont   *harfbuzz.Font
	buf      *harfbuzz.Buffer
	features []harfbuzz.Feature

	log *logrus.Entry
}

// NewShaper parses the main font for shaping. The font bytes are shared
// with the rasterizing face.
func NewShaper(mainFontData []byte) (*Shaper, error) {
	face, err := font.ParseTTF(bytes.NewReader(mainFontData))
	if err != nil {
		return nil, trace.Wrap(err, "parsing font for shaping")
	}
	feats := make([]harfbuzz.Feature, 0, 3)
	for _, tag := range []ot.Tag{
		ot.NewTag('c', 'a', 'l', 't'),
		ot.NewTag('l', 'i', 'g', 'a'),
		ot.NewTag('c', 'l', 'i', 'g'),
	} {
		feats = append(feats, harfbuzz.Feature{
			Tag:   tag,
			Value: 1,
			Start: harfbuzz.FeatureGlobalStart,
			End:   harfbuzz.FeatureGlobalEnd,
		})
	}
	return &Shaper{
		hbFont:   harfbuzz.NewFont(face),
		buf:      harfbuzz.NewBuffer(),
		features: feats,
		log:      logrus.WithField("component", "shaper"),
	}, nil
}

// RunSpan is a shapeable stretch of a row: consecutive narrow cells whose
// first rune the main font can map.
type RunSpan struct {
	StartCol int
	Runes    []rune
}

// CollectRuns gathers the shapeable runs of a row. Cells qualify when they
// are narrow, hold a printable non-space rune, and the predicate confirms
// main-font coverage. Wide characters and non-qualifying cells pass through
// unshaped.
func CollectRuns(cells []grid.Cell, inMainFont func(rune) bool) []RunSpan {
	var runs []RunSpan
	var cur *RunSpan
	flush := func() { cur = nil }

	for col := range cells {
		c := &cells[col]
		if c.Width != 1 {
			flush()
			continue
		}
		r := c.Ch()
		if r == 0 || r == ' ' || !inMainFont(r) || c.HasFlag(grid.FlagEmoji) {
			flush()
			continue
		}
		if cur == nil {
			runs = append(runs, RunSpan{StartCol: col})
			cur = &runs[len(runs)-1]
		}
		cur.Runes = append(cur.Runes, r)
	}
	return runs
}

// ShapeRun shapes one run. Each output glyph keeps its source cell index;
// the cell span of a glyph is the distance to the next glyph's cluster, or
// to the run's end.
func (s *Shaper) ShapeRun(run RunSpan) []ShapedGlyph {
	s.buf.Clear()
	s.buf.AddRunes(run.Runes, 0, len(run.Runes))
	s.buf.GuessSegmentProperties()
	s.buf.Shape(s.hbFont, s.features)

	info := s.buf.Info
	out := make([]ShapedGlyph, 0, len(info))
	for i := range info {
		cluster := info[i].Cluster
		next := len(run.Runes)
		if i+1 < len(info) {
			next = info[i+1].Cluster
		}
		span := next - cluster
		if span < 1 {
			span = 1
		}
		out = append(out, ShapedGlyph{
			GlyphID:  uint16(info[i].Glyph),
			Cluster:  run.StartCol + cluster,
			CellSpan: span,
			Rune:     run.Runes[cluster],
		})
	}
	return out
}

// SpanFromClusters computes cell spans for a cluster sequence against a run
// length; exported for testing the mapping independent of a real font.
func SpanFromClusters(clusters []int, runLen int) []int {
	spans := make([]int, len(clusters))
	for i := range clusters {
		next := runLen
		if i+1 < len(clusters) {
			next = clusters[i+1]
		}
		span := next - clusters[i]
		if span < 1 {
			span = 1
		}
		spans[i] = span
	}
	return spans
}
