package parser

import (
	"image"
	"image/color"

	"github.com/gravitational/trace"
)

// sixelMaxDim bounds decoded image dimensions.
const sixelMaxDim = 4096

// decodeSixel decodes the data portion of a Sixel DCS (after the 'q') into
// an RGBA image. The decoder understands raster attributes ("), color
// introducers (#), repeats (!), carriage return ($) and newline (-).
func decodeSixel(data []byte) (*image.RGBA, error) {
	d := &sixelDecoder{
		data:    data,
		palette: defaultSixelPalette(),
	}
	if err := d.run(); err != nil {
		return nil, trace.Wrap(err)
	}
	if d.maxX == 0 || d.maxY == 0 {
		return nil, nil
	}
	return d.finish(), nil
}

type sixelDecoder struct {
	data []byte
	pos  int

	palette map[int]color.RGBA
	current int

	x, y       int
	maxX, maxY int

	// Sparse pixel writes collected before the final image size is known.
	pixels map[[2]int]color.RGBA

	// Raster-attribute suggested size.
	hintW, hintH int
}

func defaultSixelPalette() map[int]color.RGBA {
	// The canonical VT340 16-color startup palette.
	base := [][3]uint8{
		{0, 0, 0}, {51, 51, 204}, {204, 36, 36}, {51, 204, 51},
		{204, 51, 204}, {51, 204, 204}, {204, 204, 51}, {135, 135, 135},
		{66, 66, 66}, {84, 84, 153}, {153, 66, 66}, {84, 153, 84},
		{153, 84, 153}, {84, 153, 153}, {153, 153, 84}, {204, 204, 204},
	}
	p := make(map[int]color.RGBA, len(base))
	for i, c := range base {
		p[i] = color.RGBA{c[0], c[1], c[2], 255}
	}
	return p
}

func (d *sixelDecoder) run() error {
	d.pixels = make(map[[2]int]color.RGBA)
	for d.pos < len(d.data) {
		b := d.data[d.pos]
		switch {
		case b == '"':
			d.pos++
			d.rasterAttributes()
		case b == '#':
			d.pos++
			d.colorIntroducer()
		case b == '!':
			d.pos++
			n := d.number(1)
			if d.pos < len(d.data) {
				d.sixel(d.data[d.pos], n)
				d.pos++
			}
		case b == '$':
			d.x = 0
			d.pos++
		case b == '-':
			d.x = 0
			d.y += 6
			d.pos++
		case b >= '?' && b <= '~':
			d.sixel(b, 1)
			d.pos++
		default:
			// Whitespace and unknown bytes skipped.
			d.pos++
		}
		if d.y > sixelMaxDim {
			return trace.LimitExceeded("sixel image exceeds %d rows", sixelMaxDim)
		}
	}
	return nil
}

func (d *sixelDecoder) number(def int) int {
	start := d.pos
	v := 0
	for d.pos < len(d.data) && d.data[d.pos] >= '0' && d.data[d.pos] <= '9' {
		v = v*10 + int(d.data[d.pos]-'0')
		d.pos++
		if v > 1<<20 {
			break
		}
	}
	if d.pos == start {
		return def
	}
	return v
}

// rasterAttributes parses `" pan;pad;ph;pv`.
func (d *sixelDecoder) rasterAttributes() {
	var vals []int
	for {
		vals = append(vals, d.number(0))
		if d.pos < len(d.data) && d.data[d.pos] == ';' {
			d.pos++
			continue
		}
		break
	}
	if len(vals) >= 4 {
		d.hintW = clampInt(vals[2], 0, sixelMaxDim)
		d.hintH = clampInt(vals[3], 0, sixelMaxDim)
	}
}

// colorIntroducer parses `# idx` or `# idx;2;r;g;b` (RGB 0-100) or
// `# idx;1;h;l;s` (HLS, converted).
func (d *sixelDecoder) colorIntroducer() {
	idx := d.number(0)
	if d.pos >= len(d.data) || d.data[d.pos] != ';' {
		d.current = idx
		return
	}
	var vals []int
	for d.pos < len(d.data) && d.data[d.pos] == ';' {
		d.pos++
		vals = append(vals, d.number(0))
	}
	if len(vals) >= 4 {
		switch vals[0] {
		case 2:
			d.palette[idx] = color.RGBA{
				uint8(clampInt(vals[1], 0, 100) * 255 / 100),
				uint8(clampInt(vals[2], 0, 100) * 255 / 100),
				uint8(clampInt(vals[3], 0, 100) * 255 / 100),
				255,
			}
		case 1:
			d.palette[idx] = hlsToRGB(vals[1], vals[2], vals[3])
		}
	}
	d.current = idx
}

func (d *sixelDecoder) sixel(b byte, repeat int) {
	bits := b - '?'
	col, ok := d.palette[d.current]
	if !ok {
		col = color.RGBA{255, 255, 255, 255}
	}
	if repeat < 1 {
		repeat = 1
	}
	if d.x+repeat > sixelMaxDim {
		repeat = sixelMaxDim - d.x
		if repeat <= 0 {
			return
		}
	}
	for i := 0; i < repeat; i++ {
		for bit := 0; bit < 6; bit++ {
			if bits&(1<<bit) != 0 {
				y := d.y + bit
				d.pixels[[2]int{d.x, y}] = col
				if y+1 > d.maxY {
					d.maxY = y + 1
				}
			}
		}
		d.x++
		if d.x > d.maxX {
			d.maxX = d.x
		}
	}
}

func (d *sixelDecoder) finish() *image.RGBA {
	w, h := d.maxX, d.maxY
	if d.hintW > w {
		w = d.hintW
	}
	if d.hintH > h {
		h = d.hintH
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for pos, c := range d.pixels {
		img.SetRGBA(pos[0], pos[1], c)
	}
	return img
}

// hlsToRGB converts the Sixel HLS color space (h 0-360, l/s 0-100). Sixel
// puts blue at hue 0, red at 120 and green at 240, so the hue is turned by
// 240 degrees onto the standard HLS circle (red at 0).
func hlsToRGB(h, l, s int) color.RGBA {
	hf := float64((h+240)%360) / 360.0
	lf := clampF(float64(l)/100.0, 0, 1)
	sf := clampF(float64(s)/100.0, 0, 1)

	if sf == 0 {
		v := uint8(lf * 255)
		return color.RGBA{v, v, v, 255}
	}
	var q float64
	if lf < 0.5 {
		q = lf * (1 + sf)
	} else {
		q = lf + sf - lf*sf
	}
	pp := 2*lf - q
	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = pp + (q-pp)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = pp + (q-pp)*(2.0/3-t)*6
		default:
			v = pp
		}
		return uint8(clampF(v, 0, 1) * 255)
	}
	return color.RGBA{conv(hf + 1.0/3), conv(hf), conv(hf - 1.0/3), 255}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
