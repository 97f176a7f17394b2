package parser

import (
	"github.com/crucible-term/crucible/grid"
)

// executeSGR applies Select Graphic Rendition parameters to the pen,
// including `:`-subparameter forms for extended underlines and colors.
func (p *Parser) executeSGR() {
	pen := p.Grid.PenRef()
	params := p.csiParams
	if len(params) == 0 {
		// Hyperlink state is OSC 8 territory and survives SGR reset.
		link := pen.Hyperlink
		*pen = grid.DefaultPen()
		pen.Hyperlink = link
		return
	}

	i := 0
	for i < len(params) {
		v := 0
		if len(params[i].values) > 0 {
			v = params[i].values[0]
		}
		switch {
		case v == 0:
			link := pen.Hyperlink
			*pen = grid.DefaultPen()
			pen.Hyperlink = link
		case v == 1:
			pen.Flags |= grid.FlagBold
		case v == 2:
			pen.Flags |= grid.FlagDim
		case v == 3:
			pen.Flags |= grid.FlagItalic
		case v == 4:
			pen.Flags |= grid.FlagUnderline
			pen.UnderlineStyle = grid.UnderlineSingle
			if len(params[i].values) > 1 {
				p.setUnderlineStyle(pen, params[i].values[1])
			}
		case v == 5, v == 6:
			pen.Flags |= grid.FlagBlink
		case v == 7:
			pen.Flags |= grid.FlagInverse
		case v == 8:
			pen.Flags |= grid.FlagHidden
		case v == 9:
			pen.Flags |= grid.FlagStrikethrough
		case v == 21: // double underline
			pen.Flags |= grid.FlagUnderline
			pen.UnderlineStyle = grid.UnderlineDouble
		case v == 22:
			pen.Flags &^= grid.FlagBold | grid.FlagDim
		case v == 23:
			pen.Flags &^= grid.FlagItalic
		case v == 24:
			pen.Flags &^= grid.FlagUnderline
			pen.UnderlineStyle = grid.UnderlineNone
		case v == 25:
			pen.Flags &^= grid.FlagBlink
		case v == 27:
			pen.Flags &^= grid.FlagInverse
		case v == 28:
			pen.Flags &^= grid.FlagHidden
		case v == 29:
			pen.Flags &^= grid.FlagStrikethrough
		case v >= 30 && v <= 37:
			pen.Fg = grid.IndexedColor(uint8(v - 30))
		case v == 38:
			if c, consumed, ok := p.extendedColor(params, i); ok {
				pen.Fg = c
				i += consumed
			}
		case v == 39:
			pen.Fg = grid.DefaultFg()
		case v >= 40 && v <= 47:
			pen.Bg = grid.IndexedColor(uint8(v - 40))
		case v == 48:
			if c, consumed, ok := p.extendedColor(params, i); ok {
				pen.Bg = c
				i += consumed
			}
		case v == 49:
			pen.Bg = grid.DefaultBg()
		case v == 53:
			pen.Flags |= grid.FlagOverline
		case v == 55:
			pen.Flags &^= grid.FlagOverline
		case v == 58:
			if c, consumed, ok := p.extendedColor(params, i); ok {
				col := c
				pen.UnderlineColor = &col
				i += consumed
			}
		case v == 59:
			pen.UnderlineColor = nil
		case v >= 90 && v <= 97:
			pen.Fg = grid.IndexedColor(uint8(v - 90 + 8))
		case v >= 100 && v <= 107:
			pen.Bg = grid.IndexedColor(uint8(v - 100 + 8))
		}
		i++
	}
}

func (p *Parser) setUnderlineStyle(pen *grid.Pen, style int) {
	switch style {
	case 0:
		pen.Flags &^= grid.FlagUnderline
		pen.UnderlineStyle = grid.UnderlineNone
	case 1:
		pen.UnderlineStyle = grid.UnderlineSingle
	case 2:
		pen.UnderlineStyle = grid.UnderlineDouble
	case 3:
		pen.UnderlineStyle = grid.UnderlineCurly
	case 4:
		pen.UnderlineStyle = grid.UnderlineDotted
	case 5:
		pen.UnderlineStyle = grid.UnderlineDashed
	}
}

// extendedColor parses 38/48/58 in both `;5;idx` / `;2;r;g;b` and
// `:5:idx` / `:2:r:g:b` forms. It returns the color and the number of
// extra semicolon parameters consumed.
func (p *Parser) extendedColor(params []csiParam, i int) (grid.Color, int, bool) {
	sub := params[i].values
	if len(sub) > 1 {
		// Colon form: everything is inside this parameter.
		switch sub[1] {
		case 5:
			if len(sub) >= 3 {
				return grid.IndexedColor(uint8(sub[2])), 0, true
			}
		case 2:
			// Allow the optional colorspace id: 38:2::r:g:b.
			if len(sub) >= 5 {
				off := 2
				if len(sub) >= 6 {
					off = 3
				}
				return grid.RGBColor(uint8(sub[off]), uint8(sub[off+1]), uint8(sub[off+2])), 0, true
			}
		}
		return grid.Color{}, 0, false
	}

	// Semicolon form.
	if i+1 >= len(params) {
		return grid.Color{}, 0, false
	}
	switch params[i+1].first(0) {
	case 5:
		if i+2 < len(params) {
			return grid.IndexedColor(uint8(p.rawAt(params, i+2))), 2, true
		}
	case 2:
		if i+4 < len(params) {
			return grid.RGBColor(
				uint8(p.rawAt(params, i+2)),
				uint8(p.rawAt(params, i+3)),
				uint8(p.rawAt(params, i+4))), 4, true
		}
	}
	return grid.Color{}, 0, false
}

func (p *Parser) rawAt(params []csiParam, i int) int {
	if i >= len(params) || len(params[i].values) == 0 {
		return 0
	}
	return params[i].values[0]
}
