// Package font implements glyph rasterization, the shelf-packed glyph
// atlas, the RGBA emoji atlas, and complex-text shaping mapped onto the
// monospace grid.
package font

import (
	"image"
	"math"
	"os"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Hinting mirrors the config hinting modes. The mode is stored on the face;
// Rasterize and the metric queries apply no grid fitting for any mode.
type Hinting int

const (
	HintingNormal Hinting = iota
	HintingLight
	HintingNone
)

// italicShear is tan(12°), applied for synthetic italics.
var italicShear = float32(math.Tan(12 * math.Pi / 180))

// Metrics are the logical pixel cell metrics derived from the main font.
type Metrics struct {
	CellWidth  int
	CellHeight int
	Ascent     int
	Descent    int
}

// Face wraps one parsed font with a rasterizer at a fixed pixel size.
type Face struct {
	font    *sfnt.Font
	data    []byte
	sizePx  float32
	hinting Hinting

	buf sfnt.Buffer

	metrics Metrics
}

// LoadFace parses a font file and prepares it at the given pixel size.
func LoadFace(path string, sizePx float32, hinting Hinting) (*Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return NewFaceFromData(data, sizePx, hinting)
}

// NewFaceFromData parses font bytes and prepares the face.
func NewFaceFromData(data []byte, sizePx float32, hinting Hinting) (*Face, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, trace.Wrap(err, "parsing font")
	}
	face := &Face{font: f, data: data, sizePx: sizePx, hinting: hinting}
	if err := face.computeMetrics(); err != nil {
		return nil, trace.Wrap(err)
	}
	return face, nil
}

// Data returns the raw font bytes (shared with the shaper and emoji
// loader).
func (f *Face) Data() []byte { return f.data }

// SizePx returns the configured pixel size.
func (f *Face) SizePx() float32 { return f.sizePx }

// Metrics returns the cell metrics.
func (f *Face) Metrics() Metrics { return f.metrics }

func (f *Face) ppem() fixed.Int26_6 {
	return fixed.Int26_6(f.sizePx * 64)
}

func (f *Face) computeMetrics() error {
	m, err := f.font.Metrics(&f.buf, f.ppem(), fontHintingNone)
	if err != nil {
		return trace.Wrap(err, "reading font metrics")
	}
	ascent := m.Ascent.Ceil()
	descent := m.Descent.Ceil()
	f.metrics.Ascent = ascent
	f.metrics.Descent = descent
	f.metrics.CellHeight = ascent + descent

	// The advance of 'M' defines the cell width.
	gid, err := f.font.GlyphIndex(&f.buf, 'M')
	if err != nil || gid == 0 {
		return trace.NotFound("font has no 'M' glyph")
	}
	adv, err := f.font.GlyphAdvance(&f.buf, gid, f.ppem(), fontHintingNone)
	if err != nil {
		return trace.Wrap(err, "reading advance")
	}
	f.metrics.CellWidth = adv.Ceil()
	return nil
}

// GlyphIndex returns the glyph id for a rune, 0 when absent.
func (f *Face) GlyphIndex(r rune) uint16 {
	gid, err := f.font.GlyphIndex(&f.buf, r)
	if err != nil {
		return 0
	}
	return uint16(gid)
}

// HasGlyph reports whether the font maps the rune.
func (f *Face) HasGlyph(r rune) bool { return f.GlyphIndex(r) != 0 }

// Advance returns the pixel advance for a glyph id.
func (f *Face) Advance(gid uint16) float32 {
	adv, err := f.font.GlyphAdvance(&f.buf, sfnt.GlyphIndex(gid), f.ppem(), fontHintingNone)
	if err != nil {
		return float32(f.metrics.CellWidth)
	}
	return float32(adv) / 64
}

// RasterOptions select the variant rasterized for one atlas entry.
type RasterOptions struct {
	// Phase is the subpixel phase: 0, 1, or 2 (thirds of a pixel).
	Phase uint8
	// SyntheticBold embolden the outline when the font lacks a bold
	// variant.
	SyntheticBold bool
	// SyntheticItalic shears the outline by tan 12 degrees.
	SyntheticItalic bool
	// XScale supersamples horizontally (3 for LCD rendering).
	XScale int
}

// RasterizedGlyph is a coverage bitmap plus placement metrics in logical
// (unscaled) pixels. For XScale > 1 the bitmap width is in subpixel units.
type RasterizedGlyph struct {
	// Pix is a tightly packed coverage bitmap, Width*Height bytes.
	Pix    []byte
	Width  int
	Height int
	// BearingX/BearingY position the bitmap's top-left relative to the
	// baseline origin, in logical pixels.
	BearingX int
	BearingY int
	Advance  float32
}

// Rasterize renders a glyph id into a coverage bitmap.
func (f *Face) Rasterize(gid uint16, opts RasterOptions) (*RasterizedGlyph, error) {
	if opts.XScale <= 0 {
		opts.XScale = 1
	}
	segs, err := f.font.LoadGlyph(&f.buf, sfnt.GlyphIndex(gid), f.ppem(), nil)
	if err != nil {
		return nil, trace.Wrap(err, "loading glyph %d", gid)
	}
	if len(segs) == 0 {
		// Whitespace: advance only.
		return &RasterizedGlyph{Advance: f.Advance(gid)}, nil
	}

	xs := float32(opts.XScale)
	phase := float32(opts.Phase) / 3.0

	// Transform segment points: shear, phase offset, horizontal
	// supersampling.
	type pt struct{ x, y float32 }
	conv := func(p fixed.Point26_6) pt {
		x := float32(p.X) / 64
		y := float32(p.Y) / 64
		if opts.SyntheticItalic {
			x -= y * italicShear
		}
		x += phase
		return pt{x * xs, y}
	}

	// Bounding box over transformed points.
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	visit := func(p pt) {
		minX = minF(minX, p.x)
		minY = minF(minY, p.y)
		maxX = maxF(maxX, p.x)
		maxY = maxF(maxY, p.y)
	}
	for _, seg := range segs {
		for i := 0; i < segArgs(seg.Op); i++ {
			visit(conv(seg.Args[i]))
		}
	}
	if minX > maxX {
		return &RasterizedGlyph{Advance: f.Advance(gid)}, nil
	}

	pad := float32(1)
	if opts.SyntheticBold {
		pad += 1
	}
	originX := floorF(minX - pad*xs)
	originY := floorF(minY - pad)
	w := int(ceilF(maxX+pad*xs)) - int(originX)
	h := int(ceilF(maxY+pad)) - int(originY)
	if w <= 0 || h <= 0 || w > 4096 || h > 4096 {
		return nil, trace.BadParameter("glyph %d bounds %dx%d out of range", gid, w, h)
	}

	ras := vector.NewRasterizer(w, h)
	ras.DrawOp = rasterDrawOp
	for _, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			p := conv(seg.Args[0])
			ras.MoveTo(p.x-originX, p.y-originY)
		case sfnt.SegmentOpLineTo:
			p := conv(seg.Args[0])
			ras.LineTo(p.x-originX, p.y-originY)
		case sfnt.SegmentOpQuadTo:
			p1, p2 := conv(seg.Args[0]), conv(seg.Args[1])
			ras.QuadTo(p1.x-originX, p1.y-originY, p2.x-originX, p2.y-originY)
		case sfnt.SegmentOpCubeTo:
			p1, p2, p3 := conv(seg.Args[0]), conv(seg.Args[1]), conv(seg.Args[2])
			ras.CubeTo(p1.x-originX, p1.y-originY, p2.x-originX, p2.y-originY, p3.x-originX, p3.y-originY)
		}
	}
	ras.ClosePath()

	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	ras.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})

	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], dst.Pix[y*dst.Stride:y*dst.Stride+w])
	}
	if opts.SyntheticBold {
		pix = emboldenH(pix, w, h, opts.XScale)
	}

	return &RasterizedGlyph{
		Pix:      pix,
		Width:    w,
		Height:   h,
		BearingX: int(originX) / opts.XScale,
		BearingY: int(originY),
		Advance:  f.Advance(gid),
	}, nil
}

// emboldenH is a cheap synthetic bold: each coverage value is ORed with its
// left neighbor, widening stems by roughly one logical pixel.
func emboldenH(pix []byte, w, h, xscale int) []byte {
	out := make([]byte, len(pix))
	copy(out, pix)
	for y := 0; y < h; y++ {
		row := out[y*w : (y+1)*w]
		src := pix[y*w : (y+1)*w]
		for x := w - 1; x >= xscale; x-- {
			if v := src[x-xscale]; v > row[x] {
				row[x] = v
			}
		}
	}
	return out
}

func segArgs(op sfnt.SegmentOp) int {
	switch op {
	case sfnt.SegmentOpQuadTo:
		return 2
	case sfnt.SegmentOpCubeTo:
		return 3
	default:
		return 1
	}
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func floorF(v float32) float32 { return float32(math.Floor(float64(v))) }
func ceilF(v float32) float32  { return float32(math.Ceil(float64(v))) }

// FallbackChain consults the main font first, then the CJK fallback.
type FallbackChain struct {
	Main *Face
	CJK  *Face

	log *logrus.Entry
}

// NewFallbackChain builds the lookup chain; cjk may be nil.
func NewFallbackChain(main, cjk *Face) *FallbackChain {
	return &FallbackChain{
		Main: main,
		CJK:  cjk,
		log:  logrus.WithField("component", "font"),
	}
}

// Lookup returns the face and glyph id for a rune; ok=false when neither
// font maps it.
func (c *FallbackChain) Lookup(r rune) (*Face, uint16, uint8, bool) {
	if gid := c.Main.GlyphIndex(r); gid != 0 {
		return c.Main, gid, FontIndexMain, true
	}
	if c.CJK != nil {
		if gid := c.CJK.GlyphIndex(r); gid != 0 {
			return c.CJK, gid, FontIndexCJK, true
		}
	}
	return nil, 0, 0, false
}

// ByIndex returns the face for a font index.
func (c *FallbackChain) ByIndex(idx uint8) *Face {
	if idx == FontIndexCJK && c.CJK != nil {
		return c.CJK
	}
	return c.Main
}
