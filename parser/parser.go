package parser

import (
	"image"

	"github.com/sirupsen/logrus"

	"github.com/crucible-term/crucible/grid"
)

// ParserState represents the current state of the ANSI parser
type ParserState int

const (
	StateGround ParserState = iota
	StateEscape
	StateCSIEntry
	StateCSIParam
	StateCSIIntermediate
	StateOSC
	StateOSCEsc // saw ESC inside OSC, expecting ST
	StateDCS
	StateDCSEsc
	StateSosPmApc
	StateSosPmApcEsc
	StateCharset
	StateHash
)

// maxOSCLen bounds buffered OSC/DCS payloads so a malicious stream cannot
// grow memory without bound.
const maxOSCLen = 8 * 1024 * 1024

// Clipboard is the collaborator OSC 52 writes through.
type Clipboard interface {
	SetClipboard(data []byte) error
	GetClipboard() ([]byte, error)
	ClearClipboard() error
}

// ImageStore keeps decoded image pixels addressable by id for the GPU
// texture cache to (re-)upload from.
type ImageStore interface {
	Store(id uint32, img *image.RGBA)
}

// Parser consumes PTY bytes and drives the grid. Truncated sequences at
// end-of-input are held until more bytes arrive; malformed input returns the
// state machine to ground without desynchronizing.
type Parser struct {
	Grid *grid.Grid

	state ParserState

	// CSI accumulation.
	csiPrivate       byte // '?', '>', '<', '=' or 0
	csiParams        []csiParam
	csiIntermediates []byte

	oscBuf []byte
	dcsBuf []byte

	// UTF-8 decoding state.
	utf8Buf       []byte
	utf8Remaining int

	respond   func([]byte)
	clipboard Clipboard
	images    ImageStore

	// Cell metrics for image placement.
	cellWidth  int
	cellHeight int

	// Last OSC 7 reported working directory.
	workingDir string

	log *logrus.Entry
}

// csiParam is one semicolon-separated parameter with its colon-separated
// subparameters.
type csiParam struct {
	values []int
}

func (p csiParam) first(def int) int {
	if len(p.values) == 0 || p.values[0] == 0 {
		return def
	}
	return p.values[0]
}

// NewParser creates a parser driving the given grid.
func NewParser(g *grid.Grid) *Parser {
	return &Parser{
		Grid:  g,
		state: StateGround,
		log:   logrus.WithField("component", "parser"),
	}
}

// SetResponseWriter installs the callback used to answer device queries
// back to the PTY.
func (p *Parser) SetResponseWriter(w func([]byte)) { p.respond = w }

// SetClipboard installs the OSC 52 collaborator.
func (p *Parser) SetClipboard(c Clipboard) { p.clipboard = c }

// SetImageStore installs the sixel image sink.
func (p *Parser) SetImageStore(s ImageStore) { p.images = s }

// SetCellSize records the pixel cell metrics used for image placement.
func (p *Parser) SetCellSize(w, h int) { p.cellWidth, p.cellHeight = w, h }

// Process feeds a chunk of PTY bytes through the state machine.
func (p *Parser) Process(data []byte) {
	for _, b := range data {
		p.processByte(b)
	}
}

func (p *Parser) processByte(b byte) {
	switch p.state {
	case StateGround:
		p.processGround(b)
	case StateEscape:
		p.processEscape(b)
	case StateCSIEntry, StateCSIParam, StateCSIIntermediate:
		p.processCSI(b)
	case StateOSC:
		p.processOSC(b)
	case StateOSCEsc:
		if b == '\\' {
			p.dispatchOSC()
			p.state = StateGround
		} else {
			// ESC not followed by ST aborts the string; the new escape
			// sequence proceeds.
			p.oscBuf = p.oscBuf[:0]
			p.state = StateEscape
			p.processEscape(b)
		}
	case StateDCS:
		p.processDCS(b)
	case StateDCSEsc:
		if b == '\\' {
			p.dispatchDCS()
			p.state = StateGround
		} else {
			p.dcsBuf = p.dcsBuf[:0]
			p.state = StateEscape
			p.processEscape(b)
		}
	case StateSosPmApc:
		if b == 0x1b {
			p.state = StateSosPmApcEsc
		} else if b == 0x07 {
			p.state = StateGround
		}
	case StateSosPmApcEsc:
		if b == '\\' {
			p.state = StateGround
		} else {
			p.state = StateSosPmApc
		}
	case StateCharset:
		// Designator byte consumed; charset selection is accepted but a
		// no-op.
		p.state = StateGround
	case StateHash:
		if b == '8' {
			p.Grid.AlignmentFill()
		}
		p.state = StateGround
	}
}

func (p *Parser) processGround(b byte) {
	if p.utf8Remaining > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf = append(p.utf8Buf, b)
			p.utf8Remaining--
			if p.utf8Remaining == 0 {
				p.Grid.PutChar(decodeUTF8(p.utf8Buf))
				p.utf8Buf = p.utf8Buf[:0]
			}
			return
		}
		// Invalid continuation: emit replacement and reprocess this byte.
		p.utf8Buf = p.utf8Buf[:0]
		p.utf8Remaining = 0
		p.Grid.PutChar(0xFFFD)
	}

	switch {
	case b == 0x1b:
		p.state = StateEscape
	case b == 0x07: // BEL
		p.Grid.TriggerBell()
	case b == 0x08: // BS
		p.Grid.Backspace()
	case b == 0x09: // HT
		p.Grid.Tab()
	case b == 0x0a, b == 0x0b, b == 0x0c: // LF, VT, FF
		p.Grid.Linefeed()
	case b == 0x0d: // CR
		p.Grid.CarriageReturn()
	case b == 0x0e, b == 0x0f: // SO/SI charset shifts: accepted, no-op
	case b < 0x20:
		// Other C0 controls ignored.
	case b < 0x7f:
		p.Grid.PutChar(rune(b))
	case b == 0x7f:
		// DEL ignored.
	case b >= 0xC2 && b < 0xE0:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 1
	case b >= 0xE0 && b < 0xF0:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 2
	case b >= 0xF0 && b < 0xF5:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 3
	default:
		// Invalid UTF-8 start byte.
		p.Grid.PutChar(0xFFFD)
	}
}

// decodeUTF8 decodes a complete buffered sequence, yielding U+FFFD for
// overlong or invalid encodings.
func decodeUTF8(buf []byte) rune {
	switch len(buf) {
	case 2:
		if buf[0]&0xE0 == 0xC0 {
			r := rune(buf[0]&0x1F)<<6 | rune(buf[1]&0x3F)
			if r >= 0x80 {
				return r
			}
		}
	case 3:
		if buf[0]&0xF0 == 0xE0 {
			r := rune(buf[0]&0x0F)<<12 | rune(buf[1]&0x3F)<<6 | rune(buf[2]&0x3F)
			if r >= 0x800 && (r < 0xD800 || r > 0xDFFF) {
				return r
			}
		}
	case 4:
		if buf[0]&0xF8 == 0xF0 {
			r := rune(buf[0]&0x07)<<18 | rune(buf[1]&0x3F)<<12 | rune(buf[2]&0x3F)<<6 | rune(buf[3]&0x3F)
			if r >= 0x10000 && r <= 0x10FFFF {
				return r
			}
		}
	}
	return 0xFFFD
}

func (p *Parser) processEscape(b byte) {
	switch b {
	case '[':
		p.state = StateCSIEntry
		p.csiPrivate = 0
		p.csiParams = p.csiParams[:0]
		p.csiIntermediates = p.csiIntermediates[:0]
	case ']':
		p.state = StateOSC
		p.oscBuf = p.oscBuf[:0]
	case 'P':
		p.state = StateDCS
		p.dcsBuf = p.dcsBuf[:0]
	case 'X', '^', '_': // SOS, PM, APC: consumed to ST and ignored
		p.state = StateSosPmApc
	case '7': // DECSC
		p.Grid.SaveCursor()
		p.state = StateGround
	case '8': // DECRC
		p.Grid.RestoreCursor()
		p.state = StateGround
	case 'c': // RIS
		p.Grid.Reset()
		p.state = StateGround
	case 'D': // IND
		p.Grid.Linefeed()
		p.state = StateGround
	case 'M': // RI
		p.Grid.ReverseIndex()
		p.state = StateGround
	case 'E': // NEL
		p.Grid.CarriageReturn()
		p.Grid.Linefeed()
		p.state = StateGround
	case '(', ')', '*', '+':
		p.state = StateCharset
	case '#':
		p.state = StateHash
	case '=', '>': // DECKPAM / DECKPNM accepted
		p.state = StateGround
	case '\\': // stray ST
		p.state = StateGround
	default:
		p.state = StateGround
	}
}

func (p *Parser) processCSI(b byte) {
	switch {
	case b >= '0' && b <= '9':
		p.csiDigit(int(b - '0'))
		p.state = StateCSIParam
	case b == ';':
		p.csiParams = append(p.csiParams, csiParam{})
		p.state = StateCSIParam
	case b == ':':
		p.csiSubparam()
		p.state = StateCSIParam
	case b == '?' || b == '>' || b == '<' || b == '=':
		if p.state == StateCSIEntry {
			p.csiPrivate = b
		}
		// A private marker after parameters is malformed; ignore it.
	case b >= 0x20 && b <= 0x2f:
		p.csiIntermediates = append(p.csiIntermediates, b)
		p.state = StateCSIIntermediate
	case b >= 0x40 && b <= 0x7e:
		p.executeCSI(b)
		p.state = StateGround
	case b == 0x1b:
		p.state = StateEscape
	case b < 0x20:
		// Embedded C0 controls execute immediately (per ECMA-48).
		p.processGround(b)
	default:
		p.state = StateGround
	}
}

func (p *Parser) csiDigit(d int) {
	if len(p.csiParams) == 0 {
		p.csiParams = append(p.csiParams, csiParam{})
	}
	cp := &p.csiParams[len(p.csiParams)-1]
	if len(cp.values) == 0 {
		cp.values = append(cp.values, 0)
	}
	v := &cp.values[len(cp.values)-1]
	if *v < 1<<24 {
		*v = *v*10 + d
	}
}

func (p *Parser) csiSubparam() {
	if len(p.csiParams) == 0 {
		p.csiParams = append(p.csiParams, csiParam{})
	}
	cp := &p.csiParams[len(p.csiParams)-1]
	if len(cp.values) == 0 {
		cp.values = append(cp.values, 0)
	}
	cp.values = append(cp.values, 0)
}

// param returns the primary value of parameter i with a default.
func (p *Parser) param(i, def int) int {
	if i >= len(p.csiParams) {
		return def
	}
	return p.csiParams[i].first(def)
}

// paramRaw returns the primary value without zero-defaulting.
func (p *Parser) paramRaw(i int) int {
	if i >= len(p.csiParams) || len(p.csiParams[i].values) == 0 {
		return 0
	}
	return p.csiParams[i].values[0]
}

func (p *Parser) processOSC(b byte) {
	switch b {
	case 0x07:
		p.dispatchOSC()
		p.state = StateGround
	case 0x1b:
		p.state = StateOSCEsc
	default:
		if len(p.oscBuf) < maxOSCLen {
			p.oscBuf = append(p.oscBuf, b)
		}
	}
}

func (p *Parser) processDCS(b byte) {
	switch b {
	case 0x1b:
		p.state = StateDCSEsc
	case 0x07:
		// BEL does not terminate DCS, but some emitters use it; accept.
		p.dispatchDCS()
		p.state = StateGround
	default:
		if len(p.dcsBuf) < maxOSCLen {
			p.dcsBuf = append(p.dcsBuf, b)
		}
	}
}

func (p *Parser) reply(s string) {
	if p.respond != nil {
		p.respond([]byte(s))
	}
}
