package parser

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/crucible-term/crucible/grid"
)

func (p *Parser) dispatchOSC() {
	payload := string(p.oscBuf)
	p.oscBuf = p.oscBuf[:0]

	cmd, rest, _ := strings.Cut(payload, ";")
	switch cmd {
	case "0", "2":
		p.Grid.Title = rest
	case "4":
		p.oscSetPalette(rest)
	case "7":
		if path := parseFileURL(rest); path != "" {
			p.workingDir = path
		}
	case "8":
		p.oscHyperlink(rest)
	case "10":
		p.oscDynamicColor(rest, 10)
	case "11":
		p.oscDynamicColor(rest, 11)
	case "12":
		p.oscDynamicColor(rest, 12)
	case "52":
		p.oscClipboard(rest)
	case "104":
		p.Grid.ResetPalette()
	case "133":
		p.oscShellIntegration(rest)
	default:
		// Unknown OSC commands are discarded.
	}
}

// oscSetPalette handles `4;idx;color` pairs, possibly repeated.
func (p *Parser) oscSetPalette(rest string) {
	parts := strings.Split(rest, ";")
	for i := 0; i+1 < len(parts); i += 2 {
		idx, err := strconv.Atoi(parts[i])
		if err != nil || idx < 0 || idx > 255 {
			continue
		}
		if r, g, b, ok := ParseColorSpec(parts[i+1]); ok {
			p.Grid.SetPaletteColor(uint8(idx), r, g, b)
			p.Grid.MarkAllDirty()
		}
	}
}

// oscHyperlink handles `8;params;url`; an empty URL closes the link.
func (p *Parser) oscHyperlink(rest string) {
	params, u, ok := strings.Cut(rest, ";")
	if !ok {
		return
	}
	pen := p.Grid.PenRef()
	if u == "" {
		pen.Hyperlink = nil
		return
	}
	id := ""
	for _, kv := range strings.Split(params, ":") {
		if v, found := strings.CutPrefix(kv, "id="); found {
			id = v
		}
	}
	pen.Hyperlink = &grid.Hyperlink{ID: id, URL: u}
}

func (p *Parser) oscDynamicColor(rest string, code int) {
	g := p.Grid
	var target *[3]uint8
	switch code {
	case 10:
		target = &g.DynamicFg
	case 11:
		target = &g.DynamicBg
	case 12:
		target = &g.DynamicCursor
	}
	if rest == "?" {
		c := *target
		p.reply(fmt.Sprintf("\x1b]%d;rgb:%02x%02x/%02x%02x/%02x%02x\x1b\\",
			code, c[0], c[0], c[1], c[1], c[2], c[2]))
		return
	}
	if r, gg, b, ok := ParseColorSpec(rest); ok {
		*target = [3]uint8{r, gg, b}
		g.MarkAllDirty()
	}
}

// oscClipboard handles `52;c;base64` set, `52;c;?` query, and `52;c;!`
// (and any undecodable payload) clear.
func (p *Parser) oscClipboard(rest string) {
	if p.clipboard == nil {
		return
	}
	_, data, ok := strings.Cut(rest, ";")
	if !ok {
		return
	}
	switch data {
	case "?":
		buf, err := p.clipboard.GetClipboard()
		if err != nil {
			return
		}
		p.reply("\x1b]52;c;" + base64.StdEncoding.EncodeToString(buf) + "\x1b\\")
	default:
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			if err := p.clipboard.ClearClipboard(); err != nil {
				p.log.WithError(err).Warn("clipboard clear failed")
			}
			return
		}
		if err := p.clipboard.SetClipboard(decoded); err != nil {
			p.log.WithError(err).Warn("clipboard write failed")
		}
	}
}

// oscShellIntegration records OSC 133 prompt markers on the grid.
func (p *Parser) oscShellIntegration(rest string) {
	kind, args, _ := strings.Cut(rest, ";")
	if kind == "" {
		return
	}
	k := kind[0]
	switch k {
	case 'A', 'B', 'C', 'D':
		exit := -1
		if k == 'D' && args != "" {
			if n, err := strconv.Atoi(args); err == nil {
				exit = n
			}
		}
		p.Grid.AddPromptMark(k, exit)
	}
}

// WorkingDir returns the last OSC 7 reported directory.
func (p *Parser) WorkingDir() string { return p.workingDir }

func parseFileURL(value string) string {
	if strings.HasPrefix(value, "file://") {
		parsed, err := url.Parse(value)
		if err != nil || parsed.Path == "" {
			return ""
		}
		path, err := url.PathUnescape(parsed.Path)
		if err != nil {
			return ""
		}
		return path
	}
	if strings.HasPrefix(value, "/") {
		return value
	}
	return ""
}

// ParseColorSpec parses `#RGB`, `#RRGGBB`, and `rgb:RR/GG/BB` (components
// of 1-4 hex digits, scaled down from their natural width).
func ParseColorSpec(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		switch len(hex) {
		case 3:
			vals, err := parseHexComponents([]string{hex[0:1], hex[1:2], hex[2:3]})
			if err {
				return 0, 0, 0, false
			}
			return vals[0], vals[1], vals[2], true
		case 6:
			vals, err := parseHexComponents([]string{hex[0:2], hex[2:4], hex[4:6]})
			if err {
				return 0, 0, 0, false
			}
			return vals[0], vals[1], vals[2], true
		}
		return 0, 0, 0, false
	}
	if rest, found := strings.CutPrefix(s, "rgb:"); found {
		parts := strings.Split(rest, "/")
		if len(parts) != 3 {
			return 0, 0, 0, false
		}
		vals, err := parseHexComponents(parts)
		if err {
			return 0, 0, 0, false
		}
		return vals[0], vals[1], vals[2], true
	}
	return 0, 0, 0, false
}

// parseHexComponents scales hex components of 1-4 digits to 8 bits.
func parseHexComponents(parts []string) ([3]uint8, bool) {
	var out [3]uint8
	for i, part := range parts {
		n := len(part)
		if n < 1 || n > 4 {
			return out, true
		}
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return out, true
		}
		switch n {
		case 1:
			out[i] = uint8(v * 0x11)
		case 2:
			out[i] = uint8(v)
		case 3:
			out[i] = uint8(v >> 4)
		case 4:
			out[i] = uint8(v >> 8)
		}
	}
	return out, false
}
