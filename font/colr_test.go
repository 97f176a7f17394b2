package font

import (
	"encoding/binary"
	"testing"
)

// buildColrFont assembles a minimal sfnt blob carrying only COLR and CPAL
// tables: base glyph 5 with two layers (glyphs 7 and 8, palette entries 0
// and 1).
func buildColrFont(t *testing.T) []byte {
	t.Helper()

	var colr []byte
	colr = be16(colr, 0)  // version
	colr = be16(colr, 1)  // numBaseGlyphRecords
	colr = be32(colr, 14) // baseGlyphRecordsOffset
	colr = be32(colr, 20) // layerRecordsOffset
	colr = be16(colr, 2)  // numLayerRecords
	// Base glyph record: gid 5, first layer 0, 2 layers.
	colr = be16(colr, 5)
	colr = be16(colr, 0)
	colr = be16(colr, 2)
	// Layer records: (gid 7, palette 0), (gid 8, palette 1).
	colr = be16(colr, 7)
	colr = be16(colr, 0)
	colr = be16(colr, 8)
	colr = be16(colr, 1)

	var cpal []byte
	cpal = be16(cpal, 0)  // version
	cpal = be16(cpal, 2)  // numPaletteEntries
	cpal = be16(cpal, 1)  // numPalettes
	cpal = be16(cpal, 2)  // numColorRecords
	cpal = be32(cpal, 14) // colorRecordsArrayOffset
	cpal = be16(cpal, 0)  // colorRecordIndices[0]
	// Color records are BGRA.
	cpal = append(cpal, 0x30, 0x20, 0x10, 0xff)
	cpal = append(cpal, 0x00, 0x00, 0xff, 0x80)

	// sfnt container: header + two directory entries.
	dirLen := 12 + 2*16
	colrOff := dirLen
	cpalOff := colrOff + len(colr)

	var out []byte
	out = be32(out, 0x00010000)
	out = be16(out, 2) // numTables
	out = be16(out, 0) // searchRange
	out = be16(out, 0) // entrySelector
	out = be16(out, 0) // rangeShift
	out = append(out, []byte("COLR")...)
	out = be32(out, 0)
	out = be32(out, uint32(colrOff))
	out = be32(out, uint32(len(colr)))
	out = append(out, []byte("CPAL")...)
	out = be32(out, 0)
	out = be32(out, uint32(cpalOff))
	out = be32(out, uint32(len(cpal)))
	out = append(out, colr...)
	out = append(out, cpal...)
	return out
}

func be16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func be32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func TestParseCOLR(t *testing.T) {
	tbl := parseCOLR(buildColrFont(t))
	if tbl == nil {
		t.Fatal("parseCOLR returned nil")
	}
	layers := tbl.Layers(5)
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[0].glyphID != 7 || layers[0].paletteIndex != 0 {
		t.Errorf("layer 0: %+v", layers[0])
	}
	if layers[1].glyphID != 8 || layers[1].paletteIndex != 1 {
		t.Errorf("layer 1: %+v", layers[1])
	}
	if tbl.Layers(6) != nil {
		t.Error("glyph without layers returned some")
	}

	c0 := tbl.Color(0)
	if c0.R != 0x10 || c0.G != 0x20 || c0.B != 0x30 || c0.A != 0xff {
		t.Errorf("palette 0: %+v", c0)
	}
	c1 := tbl.Color(1)
	if c1.R != 0xff || c1.A != 0x80 {
		t.Errorf("palette 1: %+v", c1)
	}
	// 0xFFFF is the "foreground" sentinel.
	if fg := tbl.Color(0xFFFF); fg.R != 255 || fg.A != 255 {
		t.Errorf("foreground sentinel: %+v", fg)
	}
}

func TestParseCOLRMissingTables(t *testing.T) {
	if parseCOLR([]byte("not a font")) != nil {
		t.Error("garbage input parsed")
	}
	if parseCOLR(nil) != nil {
		t.Error("nil input parsed")
	}
}

func TestColrNilReceiver(t *testing.T) {
	var tbl *colrTable
	if tbl.Layers(1) != nil {
		t.Error("nil table returned layers")
	}
}

func TestSrgbLinearHelpers(t *testing.T) {
	for _, v := range []uint8{0, 1, 64, 128, 200, 255} {
		got := linearToSrgb8(srgb8ToLinear(v))
		if d := int(got) - int(v); d < -1 || d > 1 {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
	// Mid-gray over black in linear light is brighter than the naive
	// sRGB midpoint.
	if srgb8ToLinear(128) >= 0.5 {
		t.Error("sRGB 128 should be darker than linear 0.5")
	}
}
