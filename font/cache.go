package font

import (
	"github.com/sirupsen/logrus"
)

// RenderMode selects grayscale or LCD subpixel rendering.
type RenderMode int

const (
	RenderGrayscale RenderMode = iota
	RenderLCD
)

// Cache ties the fallback chain to the atlas: it rasterizes glyphs on
// demand, applies the LCD pipeline, and caches per (font, glyph, phase,
// style).
type Cache struct {
	chain *FallbackChain
	atlas *Atlas

	mode    RenderMode
	lcd     LCDOptions
	phases  bool // subpixel positioning enabled

	log *logrus.Entry
}

// NewCache builds a glyph cache over the chain and atlas.
func NewCache(chain *FallbackChain, atlas *Atlas, mode RenderMode, lcd LCDOptions, subpixelPositioning bool) *Cache {
	return &Cache{
		chain:  chain,
		atlas:  atlas,
		mode:   mode,
		lcd:    lcd,
		phases: subpixelPositioning,
		log:    logrus.WithField("component", "glyph-cache"),
	}
}

// Atlas returns the backing atlas.
func (c *Cache) Atlas() *Atlas { return c.atlas }

// Chain returns the font fallback chain.
func (c *Cache) Chain() *FallbackChain { return c.chain }

// Metrics returns the main face cell metrics.
func (c *Cache) Metrics() Metrics { return c.chain.Main.Metrics() }

// PhaseFor quantizes a fractional X coordinate into a subpixel phase tag.
// With subpixel positioning disabled the phase is always 0.
func (c *Cache) PhaseFor(x float32) uint8 {
	if !c.phases {
		return 0
	}
	frac := x - floorF(x)
	switch {
	case frac < 1.0/6:
		return 0
	case frac < 0.5:
		return 1
	case frac < 5.0/6:
		return 2
	default:
		return 0
	}
}

// PhaseOffset returns the draw-time X offset compensating a phase tag: the
// glyph was rasterized shifted right by phase/3, so drawing shifts left.
func PhaseOffset(phase uint8) float32 {
	return -float32(phase) / 3.0
}

// EnsureRune returns atlas placement for a rune, rasterizing on first use.
// ok=false when no font in the chain maps the rune.
func (c *Cache) EnsureRune(r rune, bold, italic bool, phase uint8) (*GlyphInfo, bool) {
	_, gid, idx, ok := c.chain.Lookup(r)
	if !ok {
		return nil, false
	}
	return c.EnsureGlyph(idx, gid, bold, italic, phase), true
}

// EnsureGlyph returns atlas placement for a known (font, glyph) pair.
func (c *Cache) EnsureGlyph(fontIndex uint8, gid uint16, bold, italic bool, phase uint8) *GlyphInfo {
	if !c.phases {
		phase = 0
	}
	key := GlyphKey{FontIndex: fontIndex, GlyphID: gid, Phase: phase, Bold: bold, Italic: italic}
	if gi, ok := c.atlas.Lookup(key); ok {
		return gi
	}

	face := c.chain.ByIndex(fontIndex)
	opts := RasterOptions{
		Phase:           phase,
		SyntheticBold:   bold,
		SyntheticItalic: italic,
		XScale:          1,
	}
	if c.mode == RenderLCD {
		opts.XScale = 3
	}
	rg, err := face.Rasterize(gid, opts)
	if err != nil {
		c.log.WithError(err).WithField("glyph", gid).Warn("rasterization failed")
		return c.atlas.Insert(key, 0, 0, nil, 0, 0, float32(face.Metrics().CellWidth))
	}

	pix := rg.Pix
	if c.mode == RenderLCD && len(pix) > 0 {
		pix = ApplyLCDFilter(pix, rg.Width, rg.Height, c.lcd)
	}
	return c.atlas.Insert(key, rg.Width, rg.Height, pix, rg.BearingX, rg.BearingY, rg.Advance)
}

// Reset clears the atlas (font size change, GPU loss does not need this —
// only MarkLost).
func (c *Cache) Reset() { c.atlas.Reset() }
