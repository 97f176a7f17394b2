package font

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/harfbuzz"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/vector"
)

// EmojiKeyKind discriminates the three key spaces of the emoji atlas.
type EmojiKeyKind uint8

const (
	EmojiKeyCodepoint EmojiKeyKind = iota
	EmojiKeyGlyph
	EmojiKeyCluster
)

// EmojiKey addresses one emoji atlas entry: a codepoint, a glyph id, or a
// 64-bit hash of a grapheme cluster (flags and ZWJ sequences).
type EmojiKey struct {
	Kind  EmojiKeyKind
	Value uint64
}

// ClusterKey hashes a multi-codepoint grapheme cluster.
func ClusterKey(cluster string) EmojiKey {
	h := fnv.New64a()
	h.Write([]byte(cluster))
	return EmojiKey{Kind: EmojiKeyCluster, Value: h.Sum64()}
}

// EmojiInfo locates a rendered emoji in the RGBA atlas.
type EmojiInfo struct {
	X, Y          int
	Width, Height int
	// CellWidth is the logical cell span (normally 2).
	CellWidth int
}

// EmojiAtlas rasterizes color glyphs into a shared sRGB RGBA texture. The
// source order of preference is: bitmap strike closest to the cell height,
// COLR/CPAL vector layers composited in linear light, OT-SVG, monochrome
// outline fallback.
type EmojiAtlas struct {
	face   *font.Face
	hbFont *harfbuzz.Font
	buf    *harfbuzz.Buffer
	colr   *colrTable

	size   int
	pix    []byte // RGBA
	glyphs map[EmojiKey]*EmojiInfo

	cursorX, cursorY, shelfHeight int

	cellW, cellH int

	dirty bool

	log *logrus.Entry
}

// NewEmojiAtlas parses the emoji font and prepares an atlas sized for the
// given cell metrics.
func NewEmojiAtlas(fontData []byte, atlasSize, cellW, cellH int) (*EmojiAtlas, error) {
	face, err := font.ParseTTF(bytes.NewReader(fontData))
	if err != nil {
		return nil, trace.Wrap(err, "parsing emoji font")
	}
	// Ppem selects the nearest bitmap strike for CBDT/sbix fonts.
	face.XPpem = uint16(cellH)
	face.YPpem = uint16(cellH)

	return &EmojiAtlas{
		face:   face,
		hbFont: harfbuzz.NewFont(face),
		buf:    harfbuzz.NewBuffer(),
		colr:   parseCOLR(fontData),
		size:   atlasSize,
		pix:    make([]byte, atlasSize*atlasSize*4),
		glyphs: make(map[EmojiKey]*EmojiInfo),
		cellW:  cellW,
		cellH:  cellH,
		log:    logrus.WithField("component", "emoji"),
	}, nil
}

// Size returns the atlas dimension.
func (a *EmojiAtlas) Size() int { return a.size }

// Pixels returns the CPU-side RGBA buffer.
func (a *EmojiAtlas) Pixels() []byte { return a.pix }

// Dirty reports whether the GPU copy is stale.
func (a *EmojiAtlas) Dirty() bool { return a.dirty }

// MarkUploaded clears the dirty flag.
func (a *EmojiAtlas) MarkUploaded() { a.dirty = false }

// MarkLost marks the atlas for re-upload after GPU state loss.
func (a *EmojiAtlas) MarkLost() { a.dirty = true }

// SetCellSize updates the target cell box (font size change) and resets
// the atlas.
func (a *EmojiAtlas) SetCellSize(cellW, cellH int) {
	a.cellW, a.cellH = cellW, cellH
	a.face.XPpem = uint16(cellH)
	a.face.YPpem = uint16(cellH)
	for i := range a.pix {
		a.pix[i] = 0
	}
	a.glyphs = make(map[EmojiKey]*EmojiInfo)
	a.cursorX, a.cursorY, a.shelfHeight = 0, 0, 0
	a.dirty = true
}

// Ensure renders a grapheme cluster on first use and returns its atlas
// placement; ok=false when the cluster cannot be rendered at all.
func (a *EmojiAtlas) Ensure(cluster string) (*EmojiInfo, bool) {
	runes := []rune(cluster)
	if len(runes) == 0 {
		return nil, false
	}

	var key EmojiKey
	var gid font.GID
	if len(runes) == 1 {
		key = EmojiKey{Kind: EmojiKeyCodepoint, Value: uint64(runes[0])}
		if info, ok := a.glyphs[key]; ok {
			return info, info != nil
		}
		g, ok := a.face.NominalGlyph(runes[0])
		if !ok {
			a.glyphs[key] = nil
			return nil, false
		}
		gid = g
	} else {
		key = ClusterKey(cluster)
		if info, ok := a.glyphs[key]; ok {
			return info, info != nil
		}
		gid = a.shapeCluster(runes)
		if gid == 0 {
			// Shaping failed: fall back to the first emoji character.
			for _, r := range runes {
				if g, ok := a.face.NominalGlyph(r); ok {
					gid = g
					break
				}
			}
		}
		if gid == 0 {
			a.glyphs[key] = nil
			return nil, false
		}
	}

	img := a.renderGlyph(gid)
	if img == nil {
		a.glyphs[key] = nil
		return nil, false
	}
	info := a.pack(img)
	a.glyphs[key] = info
	return info, info != nil
}

// shapeCluster shapes the whole cluster against the emoji font; a
// single-glyph outcome yields that glyph id, anything else 0.
func (a *EmojiAtlas) shapeCluster(runes []rune) font.GID {
	a.buf.Clear()
	a.buf.AddRunes(runes, 0, len(runes))
	a.buf.GuessSegmentProperties()
	a.buf.Shape(a.hbFont, nil)
	if len(a.buf.Info) != 1 {
		return 0
	}
	return font.GID(a.buf.Info[0].Glyph)
}

// renderGlyph rasterizes one glyph id to an RGBA image of the logical
// emoji box (2 cells wide).
func (a *EmojiAtlas) renderGlyph(gid font.GID) *image.RGBA {
	boxW := a.cellW * 2
	boxH := a.cellH
	if boxW <= 0 || boxH <= 0 {
		return nil
	}

	if data, ok := a.face.GlyphData(gid).(font.GlyphBitmap); ok {
		if img := a.renderBitmap(data, boxW, boxH); img != nil {
			return img
		}
	}
	if layers := a.colr.Layers(uint16(gid)); len(layers) > 0 {
		if img := a.renderColrLayers(layers, boxW, boxH); img != nil {
			return img
		}
	}
	switch data := a.face.GlyphData(gid).(type) {
	case font.GlyphSVG:
		return a.renderSVG(data.Source, boxW, boxH)
	case font.GlyphOutline:
		return a.renderOutline(data, boxW, boxH)
	}
	return nil
}

// renderColrLayers composites each COLR layer's outline, tinted with its
// CPAL color, over the previous layers. The blend runs in linear light and
// converts back to sRGB once at the end.
func (a *EmojiAtlas) renderColrLayers(layers []colrLayer, boxW, boxH int) *image.RGBA {
	acc := make([]float32, boxW*boxH*4) // linear RGB + alpha
	drew := false
	for _, layer := range layers {
		mask := a.outlineMask(font.GID(layer.glyphID), boxW, boxH)
		if mask == nil {
			continue
		}
		col := a.colr.Color(layer.paletteIndex)
		lr := srgb8ToLinear(col.R)
		lg := srgb8ToLinear(col.G)
		lb := srgb8ToLinear(col.B)
		la := float32(col.A) / 255
		for i := 0; i < boxW*boxH; i++ {
			cov := float32(mask.Pix[i]) / 255
			if cov == 0 {
				continue
			}
			sa := cov * la
			px := acc[i*4:]
			px[0] = lr*sa + px[0]*(1-sa)
			px[1] = lg*sa + px[1]*(1-sa)
			px[2] = lb*sa + px[2]*(1-sa)
			px[3] = sa + px[3]*(1-sa)
			drew = true
		}
	}
	if !drew {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	for i := 0; i < boxW*boxH; i++ {
		px := acc[i*4:]
		img.Pix[i*4+0] = linearToSrgb8(px[0])
		img.Pix[i*4+1] = linearToSrgb8(px[1])
		img.Pix[i*4+2] = linearToSrgb8(px[2])
		img.Pix[i*4+3] = uint8(clampF32(px[3], 0, 1) * 255)
	}
	return img
}

// outlineMask rasterizes one glyph's outline into a coverage mask of the
// emoji box.
func (a *EmojiAtlas) outlineMask(gid font.GID, boxW, boxH int) *image.Alpha {
	outline, ok := a.face.GlyphData(gid).(font.GlyphOutline)
	if !ok {
		return nil
	}
	return a.outlineMaskFromSegments(outline.Segments, boxW, boxH)
}

// outlineMaskFromSegments rasterizes outline segments (font units, y-up)
// into the emoji box.
func (a *EmojiAtlas) outlineMaskFromSegments(segs []font.Segment, boxW, boxH int) *image.Alpha {
	if len(segs) == 0 {
		return nil
	}
	upem := float32(a.face.Upem())
	if upem == 0 {
		upem = 1000
	}
	scale := float32(boxH) / upem
	baseline := float32(boxH) * 0.8

	ras := vector.NewRasterizer(boxW, boxH)
	ras.DrawOp = draw.Src
	for _, seg := range segs {
		pts := seg.Args
		switch seg.Op {
		case font.SegmentOpMoveTo:
			ras.MoveTo(pts[0].X*scale, baseline-pts[0].Y*scale)
		case font.SegmentOpLineTo:
			ras.LineTo(pts[0].X*scale, baseline-pts[0].Y*scale)
		case font.SegmentOpQuadTo:
			ras.QuadTo(pts[0].X*scale, baseline-pts[0].Y*scale,
				pts[1].X*scale, baseline-pts[1].Y*scale)
		case font.SegmentOpCubeTo:
			ras.CubeTo(pts[0].X*scale, baseline-pts[0].Y*scale,
				pts[1].X*scale, baseline-pts[1].Y*scale,
				pts[2].X*scale, baseline-pts[2].Y*scale)
		}
	}
	mask := image.NewAlpha(image.Rect(0, 0, boxW, boxH))
	ras.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

func (a *EmojiAtlas) renderBitmap(data font.GlyphBitmap, boxW, boxH int) *image.RGBA {
	var src image.Image
	var err error
	switch data.Format {
	case font.PNG:
		src, err = png.Decode(bytes.NewReader(data.Data))
	case font.JPG:
		src, err = jpeg.Decode(bytes.NewReader(data.Data))
	default:
		return nil
	}
	if err != nil {
		a.log.WithError(err).Debug("decoding bitmap strike")
		return nil
	}
	return scaleInto(src, boxW, boxH)
}

func (a *EmojiAtlas) renderSVG(svg []byte, boxW, boxH int) *image.RGBA {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		a.log.WithError(err).Debug("parsing SVG glyph")
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	icon.SetTarget(0, 0, float64(boxW), float64(boxH))
	scanner := rasterx.NewScannerGV(boxW, boxH, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(boxW, boxH, scanner), 1.0)
	return img
}

// renderOutline draws the monochrome glyph in white; the text shader tints
// it no further (emoji pass draws untinted).
func (a *EmojiAtlas) renderOutline(outline font.GlyphOutline, boxW, boxH int) *image.RGBA {
	alpha := a.outlineMaskFromSegments(outline.Segments, boxW, boxH)
	if alpha == nil {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	for i := 0; i < boxW*boxH; i++ {
		v := alpha.Pix[i]
		img.Pix[i*4+0] = v
		img.Pix[i*4+1] = v
		img.Pix[i*4+2] = v
		img.Pix[i*4+3] = v
	}
	return img
}

// scaleInto fits src into a boxW x boxH RGBA image with nearest-neighbor
// sampling, preserving aspect ratio.
func scaleInto(src image.Image, boxW, boxH int) *image.RGBA {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, boxW, boxH))

	scaleX := float64(boxW) / float64(sb.Dx())
	scaleY := float64(boxH) / float64(sb.Dy())
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	outW := int(float64(sb.Dx()) * scale)
	outH := int(float64(sb.Dy()) * scale)
	offX := (boxW - outW) / 2
	offY := (boxH - outH) / 2

	for y := 0; y < outH; y++ {
		sy := sb.Min.Y + int(float64(y)/scale)
		for x := 0; x < outW; x++ {
			sx := sb.Min.X + int(float64(x)/scale)
			dst.Set(offX+x, offY+y, src.At(sx, sy))
		}
	}
	return dst
}

// pack copies an RGBA image into the atlas via shelf packing.
func (a *EmojiAtlas) pack(img *image.RGBA) *EmojiInfo {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pw := w + glyphPad
	ph := h + glyphPad
	if pw > a.size || ph > a.size {
		return nil
	}
	if a.cursorX+pw > a.size {
		a.cursorY += a.shelfHeight
		a.cursorX = 0
		a.shelfHeight = ph
	}
	if ph > a.shelfHeight {
		a.shelfHeight = ph
	}
	if a.cursorY+a.shelfHeight > a.size {
		a.log.Warn("emoji atlas full, dropping glyph")
		return nil
	}
	x, y := a.cursorX, a.cursorY
	a.cursorX += pw

	for row := 0; row < h; row++ {
		dst := ((y+row)*a.size + x) * 4
		srcRow := img.Pix[row*img.Stride : row*img.Stride+w*4]
		copy(a.pix[dst:dst+w*4], srcRow)
	}
	a.dirty = true
	return &EmojiInfo{X: x, Y: y, Width: w, Height: h, CellWidth: 2}
}
