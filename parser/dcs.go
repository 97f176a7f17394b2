package parser

import (
	"bytes"
)

// dispatchDCS routes a complete DCS payload: Sixel images, DECRQSS status
// requests, everything else discarded.
func (p *Parser) dispatchDCS() {
	buf := p.dcsBuf
	p.dcsBuf = p.dcsBuf[:0]
	if len(buf) == 0 {
		return
	}

	if bytes.HasPrefix(buf, []byte("$q")) {
		// DECRQSS: report "invalid request" rather than guessing settings.
		p.reply("\x1bP0$r\x1b\\")
		return
	}

	// Sixel: parameters then 'q' then data.
	if i := bytes.IndexByte(buf, 'q'); i >= 0 && isSixelHeader(buf[:i]) {
		img, err := decodeSixel(buf[i+1:])
		if err != nil {
			p.log.WithError(err).Debug("sixel decode failed")
			return
		}
		if img == nil || p.images == nil {
			return
		}
		bounds := img.Bounds()
		id := p.Grid.NextImageID()
		p.images.Store(id, img)
		if p.cellWidth > 0 && p.cellHeight > 0 {
			p.Grid.PlaceImage(id, bounds.Dx(), bounds.Dy(), p.cellWidth, p.cellHeight)
		}
		return
	}
	// Other DCS content discarded to ST.
}

func isSixelHeader(header []byte) bool {
	for _, b := range header {
		if (b < '0' || b > '9') && b != ';' {
			return false
		}
	}
	return true
}
