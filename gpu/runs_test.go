package gpu

import (
	"math"
	"testing"

	"github.com/crucible-term/crucible/grid"
)

func cellWithBg(bg grid.Color) grid.Cell {
	c := grid.NewCell()
	c.Bg = bg
	return c
}

func TestBackgroundRunsMerge(t *testing.T) {
	red := grid.RGBColor(255, 0, 0)
	blue := grid.RGBColor(0, 0, 255)
	cells := []grid.Cell{
		cellWithBg(red), cellWithBg(red), cellWithBg(blue),
		cellWithBg(blue), cellWithBg(red),
	}
	runs := BackgroundRuns(cells)
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(runs), runs)
	}
	if runs[0].StartCol != 0 || runs[0].EndCol != 2 || runs[0].Color != red {
		t.Errorf("run 0: %+v", runs[0])
	}
	if runs[1].StartCol != 2 || runs[1].EndCol != 4 {
		t.Errorf("run 1: %+v", runs[1])
	}
}

func TestBackgroundRunsSkipContinuations(t *testing.T) {
	red := grid.RGBColor(255, 0, 0)
	head := cellWithBg(red)
	head.Width = 2
	cont := cellWithBg(grid.RGBColor(9, 9, 9)) // color ignored for width-0
	cont.Width = 0
	cells := []grid.Cell{head, cont, cellWithBg(red)}
	runs := BackgroundRuns(cells)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d: %+v", len(runs), runs)
	}
	if runs[0].EndCol != 3 {
		t.Errorf("continuation broke the run: %+v", runs[0])
	}
}

func TestBackgroundRunsInverse(t *testing.T) {
	c := grid.NewCell()
	c.Fg = grid.RGBColor(1, 2, 3)
	c.Flags |= grid.FlagInverse
	runs := BackgroundRuns([]grid.Cell{c})
	if runs[0].Color != c.Fg {
		t.Errorf("inverse cell background: %+v", runs[0])
	}
}

func TestUnderlineRunsBatch(t *testing.T) {
	mk := func(style grid.UnderlineStyle) grid.Cell {
		c := grid.NewCell()
		if style != grid.UnderlineNone {
			c.Flags |= grid.FlagUnderline
		}
		c.UnderlineStyle = style
		return c
	}
	cells := []grid.Cell{
		mk(grid.UnderlineSingle), mk(grid.UnderlineSingle),
		mk(grid.UnderlineCurly),
		mk(grid.UnderlineNone),
		mk(grid.UnderlineSingle),
	}
	runs := UnderlineRuns(cells)
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(runs), runs)
	}
	if runs[0].EndCol != 2 || runs[0].Style != grid.UnderlineSingle {
		t.Errorf("run 0: %+v", runs[0])
	}
	if runs[1].Style != grid.UnderlineCurly {
		t.Errorf("run 1: %+v", runs[1])
	}
}

func TestHyperlinkDefaultsToSingleUnderline(t *testing.T) {
	link := &grid.Hyperlink{URL: "https://example"}
	a := grid.NewCell()
	a.Hyperlink = link
	b := grid.NewCell()
	b.Hyperlink = link
	other := grid.NewCell()
	other.Hyperlink = &grid.Hyperlink{URL: "https://other"}
	runs := UnderlineRuns([]grid.Cell{a, b, other})
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs (distinct links), got %d", len(runs))
	}
	if runs[0].Style != grid.UnderlineSingle || runs[0].EndCol != 2 {
		t.Errorf("run 0: %+v", runs[0])
	}
}

func TestUnderlineRects(t *testing.T) {
	run := UnderlineRun{StartCol: 2, EndCol: 4, Style: grid.UnderlineSingle}
	rects := UnderlineRects(run, 10, 20, 16, 2)
	if len(rects) != 1 {
		t.Fatalf("single: %d rects", len(rects))
	}
	if rects[0].X != 20 || rects[0].W != 20 {
		t.Errorf("single rect: %+v", rects[0])
	}

	run.Style = grid.UnderlineDouble
	if rects := UnderlineRects(run, 10, 20, 16, 2); len(rects) != 2 {
		t.Errorf("double: %d rects", len(rects))
	}

	run.Style = grid.UnderlineDotted
	dotted := UnderlineRects(run, 10, 20, 16, 2)
	if len(dotted) < 3 {
		t.Errorf("dotted: %d rects", len(dotted))
	}

	run.Style = grid.UnderlineCurly
	if rects := UnderlineRects(run, 10, 20, 16, 2); rects != nil {
		t.Errorf("curly should be shader-drawn, got %d rects", len(rects))
	}
}

func TestSrgbLinearRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.01, 0.2, 0.5, 0.9, 1} {
		got := LinearToSrgb(SrgbToLinear(v))
		if math.Abs(float64(got-v)) > 1e-4 {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestBlendLinearEndpoints(t *testing.T) {
	base := RGBA{0.2, 0.4, 0.6, 1}
	overlay := RGBA{1, 0, 0, 0}
	if got := BlendLinear(base, overlay); got != base {
		t.Errorf("zero-alpha blend changed base: %v", got)
	}
	overlay[3] = 1
	got := BlendLinear(base, overlay)
	if math.Abs(float64(got[0]-1)) > 1e-4 || got[1] > 1e-4 {
		t.Errorf("full-alpha blend: %v", got)
	}
}

func TestBlendLinearDiffersFromSrgbLerp(t *testing.T) {
	// Blending mid-gray over black in linear light is brighter than the
	// naive sRGB lerp; this is the whole point of linear compositing.
	base := RGBA{0, 0, 0, 1}
	overlay := RGBA{1, 1, 1, 0.5}
	got := BlendLinear(base, overlay)
	if got[0] <= 0.5 {
		t.Errorf("linear blend %v not brighter than sRGB lerp", got[0])
	}
}
