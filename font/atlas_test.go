package font

import (
	"testing"

	"github.com/crucible-term/crucible/grid"
)

func TestAtlasSolidPixel(t *testing.T) {
	a := NewAtlas(64, FormatR8)
	x, y := a.SolidUV()
	if x != 0 || y != 0 {
		t.Errorf("solid pixel at (%d,%d)", x, y)
	}
	if a.Pixels()[0] != 0xff {
		t.Error("solid pixel not opaque")
	}
	a.Reset()
	if a.Pixels()[0] != 0xff {
		t.Error("solid pixel lost after reset")
	}
}

func TestAtlasShelfPacking(t *testing.T) {
	a := NewAtlas(64, FormatR8)
	pix := make([]byte, 10*10)
	for i := range pix {
		pix[i] = 0x80
	}

	var entries []*GlyphInfo
	for i := 0; i < 8; i++ {
		key := GlyphKey{GlyphID: uint16(i + 1)}
		gi := a.Insert(key, 10, 10, pix, 0, 0, 10)
		entries = append(entries, gi)
	}
	// Entries must not overlap.
	for i, gi := range entries {
		if gi.Width == 0 {
			continue
		}
		for j, gj := range entries {
			if i == j || gj.Width == 0 {
				continue
			}
			if gi.X < gj.X+gj.Width+glyphPad && gj.X < gi.X+gi.Width+glyphPad &&
				gi.Y < gj.Y+gj.Height && gj.Y < gi.Y+gi.Height {
				t.Errorf("entries %d and %d overlap: %+v %+v", i, j, gi, gj)
			}
		}
	}
	// Later entries wrapped to a new shelf.
	sawSecondShelf := false
	for _, gi := range entries {
		if gi.Y > 0 {
			sawSecondShelf = true
		}
	}
	if !sawSecondShelf {
		t.Error("packing never opened a second shelf")
	}
}

func TestAtlasOverflowDropsGlyph(t *testing.T) {
	a := NewAtlas(32, FormatR8)
	big := make([]byte, 64*64)
	gi := a.Insert(GlyphKey{GlyphID: 1}, 64, 64, big, 0, 0, 64)
	if gi.Width != 0 {
		t.Error("oversized glyph was not dropped")
	}
	// The dropped entry is cached so lookups do not retry.
	if _, ok := a.Lookup(GlyphKey{GlyphID: 1}); !ok {
		t.Error("dropped glyph not cached")
	}
}

func TestAtlasRGBPacksTriples(t *testing.T) {
	a := NewAtlas(64, FormatRGB8)
	// 9 subpixel samples = 3 texels.
	pix := []byte{10, 20, 30, 40, 50, 60, 70, 80, 90}
	gi := a.Insert(GlyphKey{GlyphID: 7}, 9, 1, pix, 0, 0, 3)
	if gi.Width != 3 {
		t.Fatalf("texel width %d, expected 3", gi.Width)
	}
	base := (gi.Y*a.Size() + gi.X) * 3
	got := a.Pixels()[base : base+9]
	for i, want := range pix {
		if got[i] != want {
			t.Errorf("texel byte %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestAtlasDirtyLifecycle(t *testing.T) {
	a := NewAtlas(64, FormatR8)
	if !a.Dirty() {
		t.Error("new atlas should be dirty (solid pixel)")
	}
	a.MarkUploaded()
	if a.Dirty() {
		t.Error("dirty after upload")
	}
	a.Insert(GlyphKey{GlyphID: 2}, 4, 4, make([]byte, 16), 0, 0, 4)
	if !a.Dirty() {
		t.Error("insert did not mark dirty")
	}
	a.MarkUploaded()
	a.MarkLost()
	if !a.Dirty() {
		t.Error("MarkLost did not mark dirty")
	}
}

func TestLCDFilterSpreadsCoverage(t *testing.T) {
	// A single full-coverage sample should spread into neighbors.
	w, h := 9, 1
	pix := make([]byte, w*h)
	pix[4] = 255
	out := ApplyLCDFilter(pix, w, h, LCDOptions{Filter: FilterByName("default", nil), Gamma: 1, Contrast: 1})
	if out[4] == 0 {
		t.Error("center sample lost")
	}
	if out[3] == 0 || out[5] == 0 {
		t.Error("filter did not spread coverage")
	}
	if out[4] <= out[3] {
		t.Error("center should dominate neighbors")
	}
}

func TestLCDFilterBGRSwapsChannels(t *testing.T) {
	w := 3
	pix := []byte{200, 100, 50}
	rgb := ApplyLCDFilter(pix, w, 1, LCDOptions{Filter: lcdFilterNone, Gamma: 1, Contrast: 1, Order: SubpixelRGB})
	bgr := ApplyLCDFilter(pix, w, 1, LCDOptions{Filter: lcdFilterNone, Gamma: 1, Contrast: 1, Order: SubpixelBGR})
	if rgb[0] != bgr[2] || rgb[2] != bgr[0] {
		t.Errorf("BGR did not swap: rgb=%v bgr=%v", rgb, bgr)
	}
}

func TestFilterByName(t *testing.T) {
	if got := FilterByName("custom", []uint8{1, 2, 3, 4, 5}); got[0] != 1 || got[4] != 5 {
		t.Errorf("custom weights: %v", got)
	}
	// Custom without weights falls back to default.
	if got := FilterByName("custom", nil); got[2] != lcdFilterDefault[2] {
		t.Errorf("custom fallback: %v", got)
	}
}

func TestPhaseFor(t *testing.T) {
	c := &Cache{phases: true}
	cases := []struct {
		x     float32
		phase uint8
	}{
		{10.0, 0},
		{10.3, 1},
		{10.64, 2},
		{10.95, 0},
	}
	for _, tc := range cases {
		if got := c.PhaseFor(tc.x); got != tc.phase {
			t.Errorf("PhaseFor(%v) = %d, want %d", tc.x, got, tc.phase)
		}
	}
	c.phases = false
	if got := c.PhaseFor(10.5); got != 0 {
		t.Errorf("phase with positioning disabled: %d", got)
	}
}

func TestPhaseOffsetNegatesPhase(t *testing.T) {
	if PhaseOffset(0) != 0 {
		t.Error("phase 0 offset")
	}
	if off := PhaseOffset(1); off >= 0 || off < -0.34 {
		t.Errorf("phase 1 offset %v", off)
	}
}

func TestCollectRuns(t *testing.T) {
	mkCell := func(s string, width uint8) grid.Cell {
		c := grid.NewCell()
		c.Grapheme = s
		c.Width = width
		return c
	}
	cells := []grid.Cell{
		mkCell("f", 1), mkCell("o", 1), mkCell("o", 1),
		mkCell(" ", 1),
		mkCell("一", 2), mkCell("", 0),
		mkCell("!", 1), mkCell("=", 1),
	}
	inFont := func(r rune) bool { return r < 0x2000 }
	runs := CollectRuns(cells, inFont)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d: %+v", len(runs), runs)
	}
	if runs[0].StartCol != 0 || string(runs[0].Runes) != "foo" {
		t.Errorf("run 0: %+v", runs[0])
	}
	if runs[1].StartCol != 6 || string(runs[1].Runes) != "!=" {
		t.Errorf("run 1: %+v", runs[1])
	}
}

func TestSpanFromClusters(t *testing.T) {
	// A ligature collapsing two cells: one glyph at cluster 0 spanning 2.
	spans := SpanFromClusters([]int{0}, 2)
	if len(spans) != 1 || spans[0] != 2 {
		t.Errorf("ligature span: %v", spans)
	}
	// Three glyphs, no ligation.
	spans = SpanFromClusters([]int{0, 1, 2}, 3)
	for i, s := range spans {
		if s != 1 {
			t.Errorf("glyph %d span %d", i, s)
		}
	}
}
