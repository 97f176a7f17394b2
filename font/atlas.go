package font

import (
	"image/draw"

	xfont "golang.org/x/image/font"
	"github.com/sirupsen/logrus"
)

// Font indices for atlas keys.
const (
	FontIndexMain uint8 = 0
	FontIndexCJK  uint8 = 1
)

const (
	fontHintingNone = xfont.HintingNone
	rasterDrawOp    = draw.Src
)

// AtlasFormat selects the texel layout of the glyph atlas.
type AtlasFormat int

const (
	// FormatR8 is single-channel coverage (grayscale rendering).
	FormatR8 AtlasFormat = iota
	// FormatRGB8 carries per-subpixel coverage (LCD rendering).
	FormatRGB8
)

// Channels returns bytes per texel.
func (f AtlasFormat) Channels() int {
	if f == FormatRGB8 {
		return 3
	}
	return 1
}

// glyphPad keeps packed glyphs from bleeding into each other under linear
// sampling.
const glyphPad = 4

// GlyphKey addresses one atlas entry: font, glyph, subpixel phase, and
// synthetic style bits.
type GlyphKey struct {
	FontIndex uint8
	GlyphID   uint16
	Phase     uint8
	Bold      bool
	Italic    bool
}

// GlyphInfo records where a glyph landed in the atlas and how to place it.
type GlyphInfo struct {
	// UV rectangle in texels.
	X, Y          int
	Width, Height int
	BearingX      int
	BearingY      int
	Advance       float32
}

// Atlas is a shelf-packed CPU-side glyph texture, uploaded lazily when
// dirty. Texel (0,0) is reserved as an always-opaque pixel used for solid
// rectangle draws.
type Atlas struct {
	format AtlasFormat
	size   int
	pix    []byte

	glyphs map[GlyphKey]*GlyphInfo

	// Shelf packing cursor.
	cursorX     int
	cursorY     int
	shelfHeight int

	dirty bool

	log *logrus.Entry
}

// NewAtlas creates an empty atlas of size x size texels.
func NewAtlas(size int, format AtlasFormat) *Atlas {
	a := &Atlas{
		format: format,
		size:   size,
		pix:    make([]byte, size*size*format.Channels()),
		glyphs: make(map[GlyphKey]*GlyphInfo),
		log:    logrus.WithField("component", "atlas"),
	}
	a.reserveSolidPixel()
	return a
}

func (a *Atlas) reserveSolidPixel() {
	ch := a.format.Channels()
	for c := 0; c < ch; c++ {
		a.pix[c] = 0xff
	}
	// The first shelf starts past the reserved pixel.
	a.cursorX = 1 + glyphPad
	a.cursorY = 0
	a.shelfHeight = 1 + glyphPad
	a.dirty = true
}

// Size returns the atlas dimension in texels.
func (a *Atlas) Size() int { return a.size }

// Format returns the texel layout.
func (a *Atlas) Format() AtlasFormat { return a.format }

// Pixels returns the CPU-side texel buffer.
func (a *Atlas) Pixels() []byte { return a.pix }

// Dirty reports whether the GPU copy is stale.
func (a *Atlas) Dirty() bool { return a.dirty }

// MarkUploaded clears the dirty flag after a texture upload.
func (a *Atlas) MarkUploaded() { a.dirty = false }

// MarkLost marks the atlas dirty after GPU state loss (VT switch).
func (a *Atlas) MarkLost() { a.dirty = true }

// SolidUV returns the reserved opaque texel.
func (a *Atlas) SolidUV() (int, int) { return 0, 0 }

// Lookup returns a cached entry.
func (a *Atlas) Lookup(key GlyphKey) (*GlyphInfo, bool) {
	gi, ok := a.glyphs[key]
	return gi, ok
}

// Insert packs a rasterized bitmap (width in texels, possibly subpixel
// triples) and caches it under key. A glyph that cannot fit anywhere is
// dropped with a warning and recorded as an empty entry so the lookup does
// not retry every frame.
func (a *Atlas) Insert(key GlyphKey, width, height int, pix []byte, bearingX, bearingY int, advance float32) *GlyphInfo {
	ch := a.format.Channels()
	texW := width
	if a.format == FormatRGB8 {
		// Subpixel triples collapse 3 coverage samples into one texel.
		texW = (width + 2) / 3
	}

	gi := &GlyphInfo{BearingX: bearingX, BearingY: bearingY, Advance: advance}
	if texW == 0 || height == 0 {
		a.glyphs[key] = gi
		return gi
	}

	x, y, ok := a.allocate(texW, height)
	if !ok {
		a.log.WithFields(logrus.Fields{
			"glyph": key.GlyphID,
			"w":     texW,
			"h":     height,
		}).Warn("glyph atlas full, dropping glyph")
		a.glyphs[key] = gi
		return gi
	}

	gi.X, gi.Y, gi.Width, gi.Height = x, y, texW, height
	for row := 0; row < height; row++ {
		dst := ((y+row)*a.size + x) * ch
		if a.format == FormatRGB8 {
			for tx := 0; tx < texW; tx++ {
				for c := 0; c < 3; c++ {
					sx := tx*3 + c
					var v byte
					if sx < width {
						v = pix[row*width+sx]
					}
					a.pix[dst+tx*3+c] = v
				}
			}
		} else {
			copy(a.pix[dst:dst+texW], pix[row*width:row*width+texW])
		}
	}
	a.glyphs[key] = gi
	a.dirty = true
	return gi
}

// allocate finds space via shelf packing: fill the current shelf left to
// right, open a new shelf below when it overflows.
func (a *Atlas) allocate(w, h int) (int, int, bool) {
	w += glyphPad
	h += glyphPad
	if w > a.size || h > a.size {
		return 0, 0, false
	}
	if a.cursorX+w > a.size {
		// New shelf.
		a.cursorY += a.shelfHeight
		a.cursorX = 0
		a.shelfHeight = h
	}
	if h > a.shelfHeight {
		a.shelfHeight = h
	}
	if a.cursorY+a.shelfHeight > a.size {
		return 0, 0, false
	}
	x, y := a.cursorX, a.cursorY
	a.cursorX += w
	return x, y, true
}

// Reset drops every entry and restores the solid pixel; called on font size
// changes.
func (a *Atlas) Reset() {
	for i := range a.pix {
		a.pix[i] = 0
	}
	a.glyphs = make(map[GlyphKey]*GlyphInfo)
	a.reserveSolidPixel()
}
