package grid

// ColorType identifies the type of color
type ColorType uint8

const (
	ColorDefault ColorType = iota
	ColorIndexed
	ColorRGB
)

// Color represents a terminal color
type Color struct {
	Type    ColorType
	Index   uint8 // For indexed colors (0-255)
	R, G, B uint8 // For RGB colors
}

// DefaultFg returns the default foreground color
func DefaultFg() Color {
	return Color{Type: ColorDefault}
}

// DefaultBg returns the default background color
func DefaultBg() Color {
	return Color{Type: ColorDefault}
}

// IndexedColor creates an indexed color
func IndexedColor(index uint8) Color {
	return Color{Type: ColorIndexed, Index: index}
}

// RGBColor creates an RGB color
func RGBColor(r, g, b uint8) Color {
	return Color{Type: ColorRGB, R: r, G: g, B: b}
}

// palette is the 256-color lookup table. Entries 0-15 are the standard and
// bright ANSI colors, 16-231 the 6x6x6 color cube, 232-255 the gray ramp.
var palette = buildPalette()

func buildPalette() [256][3]uint8 {
	var p [256][3]uint8

	standard := [16][3]uint8{
		{0x00, 0x00, 0x00}, {0xcd, 0x00, 0x00}, {0x00, 0xcd, 0x00}, {0xcd, 0xcd, 0x00},
		{0x00, 0x00, 0xee}, {0xcd, 0x00, 0xcd}, {0x00, 0xcd, 0xcd}, {0xe5, 0xe5, 0xe5},
		{0x7f, 0x7f, 0x7f}, {0xff, 0x00, 0x00}, {0x00, 0xff, 0x00}, {0xff, 0xff, 0x00},
		{0x5c, 0x5c, 0xff}, {0xff, 0x00, 0xff}, {0x00, 0xff, 0xff}, {0xff, 0xff, 0xff},
	}
	copy(p[:16], standard[:])

	cube := func(v int) uint8 {
		if v == 0 {
			return 0
		}
		return uint8(55 + v*40)
	}
	for i := 0; i < 216; i++ {
		p[16+i] = [3]uint8{cube(i / 36), cube((i / 6) % 6), cube(i % 6)}
	}

	for i := 0; i < 24; i++ {
		v := uint8(8 + i*10)
		p[232+i] = [3]uint8{v, v, v}
	}
	return p
}

// paletteOverrides holds OSC 4 palette redefinitions; nil entry means the built-in
// palette value is in effect.
type paletteOverrides [256]*[3]uint8

// PaletteRGB returns the RGB value for a palette index, honoring any OSC 4
// override installed on the grid.
func (g *Grid) PaletteRGB(idx uint8) (r, gg, b uint8) {
	if o := g.paletteOv[idx]; o != nil {
		return o[0], o[1], o[2]
	}
	c := palette[idx]
	return c[0], c[1], c[2]
}

// SetPaletteColor installs an OSC 4 palette override.
func (g *Grid) SetPaletteColor(idx uint8, r, gg, b uint8) {
	g.paletteOv[idx] = &[3]uint8{r, gg, b}
}

// ResetPalette removes all OSC 4 overrides.
func (g *Grid) ResetPalette() {
	g.paletteOv = paletteOverrides{}
}

// Resolve converts a Color to concrete RGB given the grid's dynamic default
// colors. isFg selects which dynamic default applies for ColorDefault.
func (g *Grid) Resolve(c Color, isFg bool) (r, gg, b uint8) {
	switch c.Type {
	case ColorIndexed:
		return g.PaletteRGB(c.Index)
	case ColorRGB:
		return c.R, c.G, c.B
	default:
		if isFg {
			d := g.DynamicFg
			return d[0], d[1], d[2]
		}
		d := g.DynamicBg
		return d[0], d[1], d[2]
	}
}
