package gpu

import (
	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/crucible-term/crucible/font"
	"github.com/crucible-term/crucible/grid"
)

// Theme holds the resolved appearance colors.
type Theme struct {
	Background    RGBA
	Foreground    RGBA
	Cursor        RGBA
	Selection     RGBA
	CursorOpacity float32
}

// Match locates one search hit in absolute row coordinates.
type Match struct {
	AbsRow   int
	StartCol int
	EndCol   int
}

// Preedit carries the IME composition drawn at the cursor.
type Preedit struct {
	Text string
	// CursorBegin/CursorEnd mark the highlighted segment, rune-indexed.
	CursorBegin int
	CursorEnd   int
}

// Candidate window content from the IME.
type Candidates struct {
	Items    []string
	Selected int
}

// FrameState is everything the renderer consumes for one frame.
type FrameState struct {
	Grid *grid.Grid

	Selection grid.Selection

	Matches      []Match
	CurrentMatch int
	SearchActive bool
	SearchQuery  string

	CopyMode       bool
	CopyModeCursor grid.Cursor
	StatusLine     string

	Preedit    *Preedit
	Candidates *Candidates

	// BellFlash is the border flash intensity, 0 = off.
	BellFlash float32

	// CursorOn is false during the blink-off half period.
	CursorOn bool

	MouseX, MouseY float32
	MouseVisible   bool
}

// textInstance mirrors the per-instance vertex layout of the text shader.
type textInstance struct {
	x, y, w, h     float32
	u, v, uw, vh   float32
	fr, fg, fb, fa float32
	br, bg, bb     float32
	flags          float32 // bit 0: disable LCD (grayscale fallback)
}

const textInstanceFloats = 16

// Renderer draws the terminal into a cached FBO and blits it to the
// default framebuffer.
type Renderer struct {
	width  int
	height int

	cellW    float32
	cellH    float32
	baseline float32

	glyphs *font.Cache
	emoji  *font.EmojiAtlas
	shaper *font.Shaper

	store    *Store
	textures *TextureCache

	theme Theme

	rectProg  uint32
	textProg  uint32
	emojiProg uint32
	imageProg uint32
	curlyProg uint32
	blitProg  uint32

	atlasTex uint32
	emojiTex uint32

	fbo    uint32
	fboTex uint32

	emptyVAO    uint32
	instanceVAO uint32
	instanceVBO uint32

	instances []float32

	// Columns touched by translucent overlays this frame; their glyphs
	// fall back to grayscale compositing.
	lcdDisabled map[[2]int]bool

	log *logrus.Entry
}

// NewRenderer compiles programs and allocates GPU state. The GL context
// must be current.
func NewRenderer(width, height int, glyphs *font.Cache, emoji *font.EmojiAtlas, shaper *font.Shaper, store *Store, theme Theme) (*Renderer, error) {
	m := glyphs.Metrics()
	r := &Renderer{
		width:    width,
		height:   height,
		cellW:    float32(m.CellWidth),
		cellH:    float32(m.CellHeight),
		baseline: float32(m.Ascent),
		glyphs:   glyphs,
		emoji:    emoji,
		shaper:   shaper,
		store:    store,
		textures: NewTextureCache(store, 16),
		theme:    theme,
		log:      logrus.WithField("component", "renderer"),
	}

	var err error
	if r.rectProg, err = createProgram(rectVert, rectFrag); err != nil {
		return nil, trace.Wrap(err, "rect program")
	}
	if r.textProg, err = createProgram(textVert, textFrag); err != nil {
		return nil, trace.Wrap(err, "text program")
	}
	if r.emojiProg, err = createProgram(textVert, emojiFrag); err != nil {
		return nil, trace.Wrap(err, "emoji program")
	}
	if r.imageProg, err = createProgram(textVert, imageFrag); err != nil {
		return nil, trace.Wrap(err, "image program")
	}
	if r.curlyProg, err = createProgram(rectVert, curlyFrag); err != nil {
		return nil, trace.Wrap(err, "curly program")
	}
	if r.blitProg, err = createProgram(blitVert, blitFrag); err != nil {
		return nil, trace.Wrap(err, "blit program")
	}

	gl.GenVertexArrays(1, &r.emptyVAO)
	r.initInstanceBuffers()
	r.createTextures()
	if err := r.createFBO(); err != nil {
		return nil, trace.Wrap(err)
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	return r, nil
}

func (r *Renderer) initInstanceBuffers() {
	gl.GenVertexArrays(1, &r.instanceVAO)
	gl.GenBuffers(1, &r.instanceVBO)
	gl.BindVertexArray(r.instanceVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.instanceVBO)
	stride := int32(textInstanceFloats * 4)
	for i, size := range []int32{4, 4, 4, 4} {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointerWithOffset(uint32(i), size, gl.FLOAT, false, stride, uintptr(i*16))
		gl.VertexAttribDivisor(uint32(i), 1)
	}
	gl.BindVertexArray(0)
}

func (r *Renderer) createTextures() {
	gl.GenTextures(1, &r.atlasTex)
	gl.GenTextures(1, &r.emojiTex)
	for _, tex := range []uint32{r.atlasTex, r.emojiTex} {
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (r *Renderer) createFBO() error {
	gl.GenFramebuffers(1, &r.fbo)
	gl.GenTextures(1, &r.fboTex)
	gl.BindTexture(gl.TEXTURE_2D, r.fboTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(r.width), int32(r.height), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.fboTex, 0)
	if gl.CheckFramebufferStatus(gl.FRAMEBUFFER) != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return trace.BadParameter("framebuffer incomplete")
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return nil
}

// SetTheme replaces the appearance colors.
func (r *Renderer) SetTheme(t Theme) { r.theme = t }

// CellSize returns the pixel cell metrics.
func (r *Renderer) CellSize() (int, int) { return int(r.cellW), int(r.cellH) }

// GridSize returns the cell dimensions that fit the display.
func (r *Renderer) GridSize() (cols, rows int) {
	return int(float32(r.width) / r.cellW), int(float32(r.height) / r.cellH)
}

// UpdateMetrics re-reads cell metrics after a font size change; atlases are
// reset by the caller.
func (r *Renderer) UpdateMetrics() {
	m := r.glyphs.Metrics()
	r.cellW = float32(m.CellWidth)
	r.cellH = float32(m.CellHeight)
	r.baseline = float32(m.Ascent)
}

// InvalidateGPUState re-creates textures and the FBO after DRM master was
// reacquired; texture contents may have been lost across a suspend.
func (r *Renderer) InvalidateGPUState() {
	r.glyphs.Atlas().MarkLost()
	r.emoji.MarkLost()
	r.textures.Invalidate()
	gl.DeleteFramebuffers(1, &r.fbo)
	gl.DeleteTextures(1, &r.fboTex)
	if err := r.createFBO(); err != nil {
		r.log.WithError(err).Error("recreating FBO after session resume")
	}
}

// uploadAtlases refreshes the GPU copies of dirty atlases before drawing.
func (r *Renderer) uploadAtlases() {
	if a := r.glyphs.Atlas(); a.Dirty() {
		gl.BindTexture(gl.TEXTURE_2D, r.atlasTex)
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
		if a.Format() == font.FormatRGB8 {
			gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB8, int32(a.Size()), int32(a.Size()), 0,
				gl.RGB, gl.UNSIGNED_BYTE, gl.Ptr(a.Pixels()))
		} else {
			gl.TexImage2D(gl.TEXTURE_2D, 0, gl.R8, int32(a.Size()), int32(a.Size()), 0,
				gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(a.Pixels()))
			// Coverage replicates across channels so the shader's RGB
			// reads see grayscale.
			gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_SWIZZLE_G, gl.RED)
			gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_SWIZZLE_B, gl.RED)
		}
		a.MarkUploaded()
	}
	if r.emoji != nil && r.emoji.Dirty() {
		gl.BindTexture(gl.TEXTURE_2D, r.emojiTex)
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(r.emoji.Size()), int32(r.emoji.Size()), 0,
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(r.emoji.Pixels()))
		r.emoji.MarkUploaded()
	}
}

// NeedsFrame reports whether the dirty state or time-driven overlays demand
// a redraw.
func (r *Renderer) NeedsFrame(fs *FrameState) bool {
	if fs.Grid.HasDirty() {
		return true
	}
	return fs.BellFlash > 0 || fs.Selection.Active || fs.SearchActive || fs.CopyMode
}

// RenderFrame draws all passes into the FBO and blits to the default
// framebuffer. The caller decides whether to swap (synchronized update and
// session state gate presentation).
func (r *Renderer) RenderFrame(fs *FrameState) {
	g := fs.Grid
	r.uploadAtlases()
	r.lcdDisabled = make(map[[2]int]bool)

	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.Viewport(0, 0, int32(r.width), int32(r.height))

	fullClear := g.AllDirty() || fs.Selection.Active || fs.SearchActive || fs.CopyMode
	bg := r.theme.Background
	gl.ClearColor(bg[0], bg[1], bg[2], 1)
	if fullClear {
		gl.Clear(gl.COLOR_BUFFER_BIT)
	} else {
		// Clear only dirty rows under a scissor per row run.
		gl.Enable(gl.SCISSOR_TEST)
		g.DirtyRows(func(row int) {
			y := r.height - int((float32(row)+1)*r.cellH)
			gl.Scissor(0, int32(y), int32(r.width), int32(r.cellH))
			gl.Clear(gl.COLOR_BUFFER_BIT)
		})
		gl.Disable(gl.SCISSOR_TEST)
	}

	rowFilter := func(row int) bool {
		return fullClear || g.IsDirty(row)
	}

	r.drawBackgrounds(fs, rowFilter)
	r.drawSelection(fs)
	r.drawSearchMatches(fs)
	r.drawImages(fs)
	r.drawText(fs, rowFilter)
	r.drawUnderlines(fs, rowFilter)
	r.drawEmoji(fs, rowFilter)
	r.drawCursor(fs)
	r.drawPreedit(fs)
	r.drawOverlays(fs)
	r.drawMouseCursor(fs)

	r.blit()
}

// --- rectangles ---

// drawRect pushes one solid rectangle through the rect program.
func (r *Renderer) drawRect(x, y, w, h float32, color RGBA) {
	gl.UseProgram(r.rectProg)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.rectProg, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.Uniform4f(gl.GetUniformLocation(r.rectProg, gl.Str("rect\x00")), x, y, w, h)
	gl.Uniform4f(gl.GetUniformLocation(r.rectProg, gl.Str("color\x00")), color[0], color[1], color[2], color[3])
	gl.BindVertexArray(r.emptyVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
}

func (r *Renderer) resolve(c grid.Color, g *grid.Grid, isFg bool) RGBA {
	if c.Type == grid.ColorDefault {
		if isFg {
			return r.theme.Foreground
		}
		return r.theme.Background
	}
	red, green, blue := g.Resolve(c, isFg)
	return FromBytes(red, green, blue, 1)
}

// --- pass 1: background runs ---

func (r *Renderer) drawBackgrounds(fs *FrameState, rowFilter func(int) bool) {
	g := fs.Grid
	for row := 0; row < g.Rows; row++ {
		if !rowFilter(row) {
			continue
		}
		cells := r.viewRow(g, row)
		if cells == nil {
			continue
		}
		for _, run := range BackgroundRuns(cells) {
			c := run.Color
			if c.Type == grid.ColorDefault {
				continue // FBO clear already painted the default
			}
			col := r.resolve(c, g, false)
			r.drawRect(float32(run.StartCol)*r.cellW, float32(row)*r.cellH,
				float32(run.EndCol-run.StartCol)*r.cellW, r.cellH, col)
		}
	}
}

// viewRow returns the cells shown at a viewport row under the scrollback
// view offset.
func (r *Renderer) viewRow(g *grid.Grid, row int) []grid.Cell {
	return g.AbsRow(g.ViewRowToAbs(row))
}

// --- pass 2+3: selection and search highlights ---

func (r *Renderer) drawSelection(fs *FrameState) {
	if !fs.Selection.Active {
		return
	}
	g := fs.Grid
	sel := r.theme.Selection
	for row := 0; row < g.Rows; row++ {
		abs := g.ViewRowToAbs(row)
		start, end, ok := fs.Selection.RowSpan(abs, g.Cols)
		if !ok {
			continue
		}
		r.drawHighlight(row, start, end, sel)
	}
}

func (r *Renderer) drawSearchMatches(fs *FrameState) {
	if len(fs.Matches) == 0 {
		return
	}
	g := fs.Grid
	base := RGBA{0.95, 0.76, 0.25, 0.35}
	current := RGBA{0.98, 0.55, 0.15, 0.55}
	top := g.ViewRowToAbs(0)
	for i, m := range fs.Matches {
		row := m.AbsRow - top
		if row < 0 || row >= g.Rows {
			continue
		}
		c := base
		if i == fs.CurrentMatch {
			c = current
		}
		r.drawHighlight(row, m.StartCol, m.EndCol, c)
	}
}

// drawHighlight paints a highlight rectangle. The blend against the theme
// background happens in linear light CPU-side (matching the text shader's
// compositing), so the rectangle itself is drawn opaque and covers any cell
// background color beneath it. Covered cells are flagged for grayscale text
// compositing.
func (r *Renderer) drawHighlight(row, startCol, endCol int, color RGBA) {
	blended := BlendLinear(r.theme.Background, color)
	blended[3] = 1
	r.drawRect(float32(startCol)*r.cellW, float32(row)*r.cellH,
		float32(endCol-startCol)*r.cellW, r.cellH, blended)
	for col := startCol; col < endCol; col++ {
		r.lcdDisabled[[2]int{row, col}] = true
	}
}

// --- pass 4: images ---

func (r *Renderer) drawImages(fs *FrameState) {
	g := fs.Grid
	if g.ViewOffset() != 0 {
		return // placements anchor to the live screen only
	}
	for _, p := range g.Placements() {
		tex, ok := r.textures.Bind(p.ID)
		if !ok {
			continue
		}
		x := float32(p.Col) * r.cellW
		y := float32(p.Row) * r.cellH
		r.drawTexturedQuad(r.imageProg, tex, x, y, float32(p.PixelWidth), float32(p.PixelHeight))
	}
}

func (r *Renderer) drawTexturedQuad(prog, tex uint32, x, y, w, h float32) {
	gl.UseProgram(prog)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(prog, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("tex\x00")), 0)

	inst := []float32{
		x, y, w, h,
		0, 0, 1, 1,
		1, 1, 1, 1,
		0, 0, 0, 0,
	}
	r.drawInstances(inst, 1)
}

// drawInstances uploads per-instance data and issues one instanced draw of
// a 4-vertex strip synthesized from gl_VertexID.
func (r *Renderer) drawInstances(data []float32, count int) {
	gl.BindVertexArray(r.instanceVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.instanceVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STREAM_DRAW)
	gl.DrawArraysInstanced(gl.TRIANGLE_STRIP, 0, 4, int32(count))
	gl.BindVertexArray(0)
}

// --- pass 5: text ---

func (r *Renderer) drawText(fs *FrameState, rowFilter func(int) bool) {
	g := fs.Grid
	r.instances = r.instances[:0]

	inMain := func(rn rune) bool { return r.glyphs.Chain().Main.HasGlyph(rn) }

	for row := 0; row < g.Rows; row++ {
		if !rowFilter(row) {
			continue
		}
		cells := r.viewRow(g, row)
		if cells == nil {
			continue
		}

		shaped := make(map[int]bool)
		if r.shaper != nil {
			for _, run := range font.CollectRuns(cells, inMain) {
				for _, sg := range r.shaper.ShapeRun(run) {
					r.emitGlyph(fs, cells, row, sg.Cluster, sg.GlyphID, sg.Rune)
					for i := 0; i < sg.CellSpan; i++ {
						shaped[sg.Cluster+i] = true
					}
				}
			}
		}

		for col := range cells {
			c := &cells[col]
			if shaped[col] || c.Width == 0 || c.IsBlank() {
				continue
			}
			if c.HasFlag(grid.FlagEmoji) || c.HasFlag(grid.FlagHidden) {
				continue
			}
			r.emitGlyph(fs, cells, row, col, 0, c.Ch())
		}
	}

	if len(r.instances) == 0 {
		return
	}

	gl.UseProgram(r.textProg)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.textProg, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.atlasTex)
	gl.Uniform1i(gl.GetUniformLocation(r.textProg, gl.Str("atlas\x00")), 0)
	atlasSize := float32(r.glyphs.Atlas().Size())
	gl.Uniform1f(gl.GetUniformLocation(r.textProg, gl.Str("atlasSize\x00")), atlasSize)

	r.drawInstances(r.instances, len(r.instances)/textInstanceFloats)
}

// emitGlyph appends one text instance. glyphID 0 falls back to rune lookup
// through the fallback chain.
func (r *Renderer) emitGlyph(fs *FrameState, cells []grid.Cell, row, col int, glyphID uint16, rn rune) {
	g := fs.Grid
	if col >= len(cells) {
		return
	}
	c := &cells[col]
	if c.HasFlag(grid.FlagHidden) {
		return
	}

	baseX := float32(col) * r.cellW
	phase := r.glyphs.PhaseFor(baseX)

	bold := c.HasFlag(grid.FlagBold)
	italic := c.HasFlag(grid.FlagItalic)

	var gi *font.GlyphInfo
	if glyphID != 0 {
		gi = r.glyphs.EnsureGlyph(font.FontIndexMain, glyphID, bold, italic, phase)
	} else {
		var ok bool
		gi, ok = r.glyphs.EnsureRune(rn, bold, italic, phase)
		if !ok {
			return
		}
	}
	if gi.Width == 0 || gi.Height == 0 {
		return
	}

	fg := c.Fg
	bgc := c.Bg
	if c.HasFlag(grid.FlagInverse) {
		fg, bgc = bgc, fg
	}
	fgc := r.resolve(fg, g, true)
	if c.HasFlag(grid.FlagDim) {
		for i := 0; i < 3; i++ {
			fgc[i] *= 0.6
		}
	}
	bgRGBA := r.resolve(bgc, g, false)

	flags := float32(0)
	if r.lcdDisabled[[2]int{row, col}] {
		flags = 1
	}

	x := baseX + float32(gi.BearingX) + font.PhaseOffset(phase)
	y := float32(row)*r.cellH + r.baseline + float32(gi.BearingY)

	r.instances = append(r.instances,
		x, y, float32(gi.Width), float32(gi.Height),
		float32(gi.X), float32(gi.Y), float32(gi.Width), float32(gi.Height),
		fgc[0], fgc[1], fgc[2], fgc[3],
		bgRGBA[0], bgRGBA[1], bgRGBA[2],
		flags,
	)
}

// --- pass 6: underlines ---

func (r *Renderer) drawUnderlines(fs *FrameState, rowFilter func(int) bool) {
	g := fs.Grid
	thickness := maxF32(1, r.cellH/14)
	for row := 0; row < g.Rows; row++ {
		if !rowFilter(row) {
			continue
		}
		cells := r.viewRow(g, row)
		if cells == nil {
			continue
		}
		for _, run := range UnderlineRuns(cells) {
			var color RGBA
			if run.Color != nil {
				color = r.resolve(*run.Color, g, true)
			} else {
				color = r.resolve(run.Fg, g, true)
			}
			y0 := float32(row) * r.cellH
			if run.Style == grid.UnderlineCurly {
				r.drawCurly(run, y0, color, thickness)
				continue
			}
			for _, rect := range UnderlineRects(run, r.cellW, r.cellH, r.baseline, thickness) {
				r.drawRect(rect.X, y0+rect.Y, rect.W, rect.H, color)
			}
		}
	}
}

// drawCurly draws one SDF-antialiased wave over the run's envelope.
func (r *Renderer) drawCurly(run UnderlineRun, y0 float32, color RGBA, thickness float32) {
	x := float32(run.StartCol) * r.cellW
	w := float32(run.EndCol-run.StartCol) * r.cellW
	amp := thickness * 1.5
	y := y0 + r.baseline
	h := amp*2 + thickness*2

	gl.UseProgram(r.curlyProg)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.curlyProg, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.Uniform4f(gl.GetUniformLocation(r.curlyProg, gl.Str("rect\x00")), x, y, w, h)
	gl.Uniform4f(gl.GetUniformLocation(r.curlyProg, gl.Str("color\x00")), color[0], color[1], color[2], color[3])
	gl.Uniform1f(gl.GetUniformLocation(r.curlyProg, gl.Str("thickness\x00")), thickness)
	gl.Uniform1f(gl.GetUniformLocation(r.curlyProg, gl.Str("period\x00")), r.cellW)
	gl.BindVertexArray(r.emptyVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
}

// --- pass 7: emoji ---

func (r *Renderer) drawEmoji(fs *FrameState, rowFilter func(int) bool) {
	if r.emoji == nil {
		return
	}
	g := fs.Grid
	r.instances = r.instances[:0]
	for row := 0; row < g.Rows; row++ {
		if !rowFilter(row) {
			continue
		}
		cells := r.viewRow(g, row)
		for col := range cells {
			c := &cells[col]
			if c.Width == 0 || !c.HasFlag(grid.FlagEmoji) {
				continue
			}
			info, ok := r.emoji.Ensure(c.Grapheme)
			if !ok {
				continue
			}
			x := float32(col) * r.cellW
			y := float32(row) * r.cellH
			r.instances = append(r.instances,
				x, y, float32(info.Width), float32(info.Height),
				float32(info.X), float32(info.Y), float32(info.Width), float32(info.Height),
				1, 1, 1, 1,
				0, 0, 0, 0,
			)
		}
	}
	if len(r.instances) == 0 {
		return
	}
	// Emoji atlas may have grown this frame.
	r.uploadAtlases()

	gl.UseProgram(r.emojiProg)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.emojiProg, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.emojiTex)
	gl.Uniform1i(gl.GetUniformLocation(r.emojiProg, gl.Str("atlas\x00")), 0)
	gl.Uniform1f(gl.GetUniformLocation(r.emojiProg, gl.Str("atlasSize\x00")), float32(r.emoji.Size()))
	r.drawInstances(r.instances, len(r.instances)/textInstanceFloats)
}

// --- pass 8: cursor ---

func (r *Renderer) drawCursor(fs *FrameState) {
	g := fs.Grid
	if fs.CopyMode || g.ViewOffset() != 0 {
		return // copy mode draws its own cursor; scrollback hides it
	}
	if !g.Modes().CursorVisible || !fs.CursorOn {
		return
	}
	cur := g.Cursor
	x := float32(cur.Col) * r.cellW
	y := float32(cur.Row) * r.cellH
	color := r.theme.Cursor
	color[3] = r.theme.CursorOpacity

	switch cur.Style {
	case grid.CursorBlock:
		r.drawRect(x, y, r.cellW, r.cellH, color)
	case grid.CursorUnderline:
		h := maxF32(2, r.cellH/8)
		r.drawRect(x, y+r.cellH-h, r.cellW, h, color)
	case grid.CursorBar:
		r.drawRect(x, y, maxF32(2, r.cellW/8), r.cellH, color)
	}
}

// --- pass 9: preedit ---

func (r *Renderer) drawPreedit(fs *FrameState) {
	if fs.Preedit == nil || fs.Preedit.Text == "" {
		return
	}
	g := fs.Grid
	runes := []rune(fs.Preedit.Text)
	col := g.Cursor.Col
	row := g.Cursor.Row
	y := float32(row) * r.cellH

	for i, rn := range runes {
		w := grid.RuneWidth(rn)
		if w == 0 {
			continue
		}
		x := float32(col) * r.cellW
		cw := float32(w) * r.cellW
		highlighted := i >= fs.Preedit.CursorBegin && i < fs.Preedit.CursorEnd
		if highlighted {
			r.drawRect(x, y, cw, r.cellH, r.theme.Foreground)
		}
		phase := r.glyphs.PhaseFor(x)
		if gi, ok := r.glyphs.EnsureRune(rn, false, false, phase); ok && gi.Width > 0 {
			fg := r.theme.Foreground
			if highlighted {
				fg = r.theme.Background
			}
			inst := []float32{
				x + float32(gi.BearingX), y + r.baseline + float32(gi.BearingY),
				float32(gi.Width), float32(gi.Height),
				float32(gi.X), float32(gi.Y), float32(gi.Width), float32(gi.Height),
				fg[0], fg[1], fg[2], 1,
				0, 0, 0, 1,
			}
			gl.UseProgram(r.textProg)
			proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
			gl.UniformMatrix4fv(gl.GetUniformLocation(r.textProg, gl.Str("projection\x00")), 1, false, &proj[0])
			gl.ActiveTexture(gl.TEXTURE0)
			gl.BindTexture(gl.TEXTURE_2D, r.atlasTex)
			gl.Uniform1i(gl.GetUniformLocation(r.textProg, gl.Str("atlas\x00")), 0)
			gl.Uniform1f(gl.GetUniformLocation(r.textProg, gl.Str("atlasSize\x00")), float32(r.glyphs.Atlas().Size()))
			r.drawInstances(inst, 1)
		}
		// Composing text is underlined.
		thickness := maxF32(1, r.cellH/14)
		r.drawRect(x, y+r.baseline+thickness, cw, thickness, r.theme.Foreground)
		col += w
	}
}

// --- pass 10: overlays ---

func (r *Renderer) drawOverlays(fs *FrameState) {
	if fs.CopyMode {
		// Copy mode draws its own block cursor.
		x := float32(fs.CopyModeCursor.Col) * r.cellW
		y := float32(fs.CopyModeCursor.Row) * r.cellH
		r.drawRect(x, y, r.cellW, r.cellH, RGBA{r.theme.Cursor[0], r.theme.Cursor[1], r.theme.Cursor[2], 0.6})
	}
	if fs.Candidates != nil && len(fs.Candidates.Items) > 0 {
		r.drawCandidateWindow(fs)
	}
	if fs.CopyMode || fs.SearchActive {
		r.drawStatusBar(fs)
	}
	if fs.BellFlash > 0 {
		r.drawBellFlash(fs.BellFlash)
	}
}

func (r *Renderer) drawCandidateWindow(fs *FrameState) {
	g := fs.Grid
	x := float32(g.Cursor.Col) * r.cellW
	y := float32(g.Cursor.Row+1) * r.cellH
	pad := float32(6)

	maxLen := 0
	for _, item := range fs.Candidates.Items {
		if l := grid.StringWidth(item); l > maxLen {
			maxLen = l
		}
	}
	w := float32(maxLen)*r.cellW + pad*2
	h := float32(len(fs.Candidates.Items))*r.cellH + pad*2
	if x+w > float32(r.width) {
		x = float32(r.width) - w
	}
	if y+h > float32(r.height) {
		y = float32(g.Cursor.Row)*r.cellH - h
	}

	// Drop shadow, then the panel. Both are plain rectangles; the corners
	// are not rounded.
	r.drawRect(x+3, y+3, w, h, RGBA{0, 0, 0, 0.4})
	r.drawRect(x, y, w, h, RGBA{0.12, 0.12, 0.16, 0.95})

	for i, item := range fs.Candidates.Items {
		iy := y + pad + float32(i)*r.cellH
		if i == fs.Candidates.Selected {
			r.drawRect(x+pad/2, iy, w-pad, r.cellH, r.theme.Selection)
		}
		r.drawOverlayText(item, x+pad, iy)
	}
}

func (r *Renderer) drawStatusBar(fs *FrameState) {
	barH := r.cellH
	y := float32(r.height) - barH
	r.drawRect(0, y, float32(r.width), barH, RGBA{0.1, 0.1, 0.14, 0.92})
	text := fs.StatusLine
	if fs.SearchActive {
		text = "/" + fs.SearchQuery
	}
	r.drawOverlayText(text, 4, y)
}

// drawOverlayText draws a short UI string straight through the glyph cache.
func (r *Renderer) drawOverlayText(s string, x, y float32) {
	var inst []float32
	count := 0
	penX := x
	for _, rn := range s {
		w := grid.RuneWidth(rn)
		if w == 0 {
			continue
		}
		phase := r.glyphs.PhaseFor(penX)
		if gi, ok := r.glyphs.EnsureRune(rn, false, false, phase); ok && gi.Width > 0 {
			inst = append(inst,
				penX+float32(gi.BearingX), y+r.baseline+float32(gi.BearingY),
				float32(gi.Width), float32(gi.Height),
				float32(gi.X), float32(gi.Y), float32(gi.Width), float32(gi.Height),
				r.theme.Foreground[0], r.theme.Foreground[1], r.theme.Foreground[2], 1,
				0, 0, 0, 1,
			)
			count++
		}
		penX += float32(w) * r.cellW
	}
	if count == 0 {
		return
	}
	r.uploadAtlases()
	gl.UseProgram(r.textProg)
	proj := orthoMatrix(0, float32(r.width), float32(r.height), 0, -1, 1)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.textProg, gl.Str("projection\x00")), 1, false, &proj[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.atlasTex)
	gl.Uniform1i(gl.GetUniformLocation(r.textProg, gl.Str("atlas\x00")), 0)
	gl.Uniform1f(gl.GetUniformLocation(r.textProg, gl.Str("atlasSize\x00")), float32(r.glyphs.Atlas().Size()))
	r.drawInstances(inst, count)
}

// drawBellFlash draws border-only rectangles so the flash does not obscure
// content.
func (r *Renderer) drawBellFlash(intensity float32) {
	c := RGBA{1, 1, 1, 0.35 * intensity}
	t := float32(6)
	w := float32(r.width)
	h := float32(r.height)
	r.drawRect(0, 0, w, t, c)
	r.drawRect(0, h-t, w, t, c)
	r.drawRect(0, t, t, h-2*t, c)
	r.drawRect(w-t, t, t, h-2*t, c)
}

// --- pass 11: mouse cursor ---

func (r *Renderer) drawMouseCursor(fs *FrameState) {
	if !fs.MouseVisible {
		return
	}
	c := RGBA{1, 1, 1, 0.9}
	size := float32(8)
	r.drawRect(fs.MouseX-size, fs.MouseY-1, size*2, 2, c)
	r.drawRect(fs.MouseX-1, fs.MouseY-size, 2, size*2, c)
}

// --- final blit ---

// blit copies the FBO to the default framebuffer with one full-screen quad
// synthesized from gl_VertexID.
func (r *Renderer) blit() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(r.width), int32(r.height))
	gl.Disable(gl.BLEND)
	gl.UseProgram(r.blitProg)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.fboTex)
	gl.Uniform1i(gl.GetUniformLocation(r.blitProg, gl.Str("tex\x00")), 0)
	gl.BindVertexArray(r.emptyVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
	gl.Enable(gl.BLEND)
}

// Release frees GPU objects (clean shutdown).
func (r *Renderer) Release() {
	r.textures.Release()
	gl.DeleteProgram(r.rectProg)
	gl.DeleteProgram(r.textProg)
	gl.DeleteProgram(r.emojiProg)
	gl.DeleteProgram(r.imageProg)
	gl.DeleteProgram(r.curlyProg)
	gl.DeleteProgram(r.blitProg)
	gl.DeleteTextures(1, &r.atlasTex)
	gl.DeleteTextures(1, &r.emojiTex)
	gl.DeleteFramebuffers(1, &r.fbo)
	gl.DeleteTextures(1, &r.fboTex)
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
