package parser

import (
	"image"
	"testing"
)

func TestParseColorSpec(t *testing.T) {
	cases := []struct {
		in      string
		r, g, b uint8
		ok      bool
	}{
		{"#fff", 0xff, 0xff, 0xff, true},
		{"#f00", 0xff, 0x00, 0x00, true},
		{"#1e1e2e", 0x1e, 0x1e, 0x2e, true},
		{"rgb:12/34/56", 0x12, 0x34, 0x56, true},
		{"rgb:ffff/0000/8080", 0xff, 0x00, 0x80, true},
		{"rgb:1/2/3", 0x11, 0x22, 0x33, true},
		{"#12345", 0, 0, 0, false},
		{"rgb:12/34", 0, 0, 0, false},
		{"notacolor", 0, 0, 0, false},
	}
	for _, tc := range cases {
		r, g, b, ok := ParseColorSpec(tc.in)
		if ok != tc.ok {
			t.Errorf("%q: ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && (r != tc.r || g != tc.g || b != tc.b) {
			t.Errorf("%q: got %02x%02x%02x, want %02x%02x%02x", tc.in, r, g, b, tc.r, tc.g, tc.b)
		}
	}
}

func TestOSCDynamicColors(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b]10;#ff8000\x1b\\")
	if g.DynamicFg != [3]uint8{0xff, 0x80, 0x00} {
		t.Errorf("dynamic fg %v", g.DynamicFg)
	}
	feed(p, "\x1b]11;rgb:10/20/30\x07")
	if g.DynamicBg != [3]uint8{0x10, 0x20, 0x30} {
		t.Errorf("dynamic bg %v", g.DynamicBg)
	}

	var out []byte
	p.SetResponseWriter(func(b []byte) { out = append(out, b...) })
	feed(p, "\x1b]10;?\x07")
	want := "\x1b]10;rgb:ffff/8080/0000\x1b\\"
	if string(out) != want {
		t.Errorf("query response %q, want %q", out, want)
	}
}

func TestOSCPaletteOverride(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b]4;1;#102030\x07")
	r, gg, b := g.PaletteRGB(1)
	if r != 0x10 || gg != 0x20 || b != 0x30 {
		t.Errorf("palette override: %02x%02x%02x", r, gg, b)
	}
	feed(p, "\x1b]104\x07")
	r, _, _ = g.PaletteRGB(1)
	if r == 0x10 {
		t.Error("palette reset did not restore the builtin color")
	}
}

type fakeClipboard struct {
	data    []byte
	cleared bool
}

func (f *fakeClipboard) SetClipboard(b []byte) error { f.data = b; return nil }
func (f *fakeClipboard) GetClipboard() ([]byte, error) {
	return f.data, nil
}
func (f *fakeClipboard) ClearClipboard() error { f.cleared = true; return nil }

func TestOSC52Clipboard(t *testing.T) {
	p, _ := newTestParser(80, 24)
	clip := &fakeClipboard{}
	p.SetClipboard(clip)

	feed(p, "\x1b]52;c;aGVsbG8=\x07") // "hello"
	if string(clip.data) != "hello" {
		t.Errorf("clipboard %q", clip.data)
	}

	var out []byte
	p.SetResponseWriter(func(b []byte) { out = append(out, b...) })
	feed(p, "\x1b]52;c;?\x07")
	if string(out) != "\x1b]52;c;aGVsbG8=\x1b\\" {
		t.Errorf("query response %q", out)
	}

	feed(p, "\x1b]52;c;!\x07") // undecodable: clears
	if !clip.cleared {
		t.Error("clipboard not cleared")
	}
}

func TestOSC7WorkingDir(t *testing.T) {
	p, _ := newTestParser(80, 24)
	feed(p, "\x1b]7;file://host/home/user/src\x1b\\")
	if p.WorkingDir() != "/home/user/src" {
		t.Errorf("working dir %q", p.WorkingDir())
	}
	feed(p, "\x1b]7;not-a-url\x1b\\")
	if p.WorkingDir() != "/home/user/src" {
		t.Errorf("bad OSC 7 overwrote the directory: %q", p.WorkingDir())
	}
}

func TestSixelDecode(t *testing.T) {
	// One color register set to red, a full sixel column pattern.
	img, err := decodeSixel([]byte("#0;2;100;0;0#0~~~-"))
	if err != nil {
		t.Fatal(err)
	}
	if img == nil {
		t.Fatal("no image decoded")
	}
	b := img.Bounds()
	if b.Dx() != 3 || b.Dy() != 6 {
		t.Fatalf("bounds %v", b)
	}
	r, _, _, a := img.At(0, 0).RGBA()
	if r>>8 != 255 || a == 0 {
		t.Errorf("pixel (0,0): r=%d a=%d", r>>8, a)
	}
}

func TestSixelRepeat(t *testing.T) {
	img, err := decodeSixel([]byte("#0;2;0;100;0!10?!5~"))
	if err != nil {
		t.Fatal(err)
	}
	if img == nil {
		t.Fatal("no image")
	}
	// 10 empty columns then 5 full ones.
	if img.Bounds().Dx() != 15 {
		t.Errorf("width %d", img.Bounds().Dx())
	}
	_, g, _, _ := img.At(12, 3).RGBA()
	if g>>8 != 255 {
		t.Errorf("repeat column not painted: g=%d", g>>8)
	}
}

func TestSixelPlacement(t *testing.T) {
	p, g := newTestParser(40, 10)
	store := &fakeImageStore{}
	p.SetImageStore(store)
	p.SetCellSize(10, 20)

	feed(p, "\x1bPq#0;2;0;0;100~~~~~~~~~~~~~~~~~~~~-\x1b\\")
	if store.count != 1 {
		t.Fatalf("stored %d images", store.count)
	}
	ps := g.Placements()
	if len(ps) != 1 {
		t.Fatalf("placements %d", len(ps))
	}
	if ps[0].WidthCells != 2 || ps[0].HeightCells != 1 {
		t.Errorf("cells %dx%d", ps[0].WidthCells, ps[0].HeightCells)
	}
	if g.Cursor.Row != 1 || g.Cursor.Col != 0 {
		t.Errorf("cursor at (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
}

type fakeImageStore struct {
	count int
}

func (f *fakeImageStore) Store(id uint32, img *image.RGBA) { f.count++ }
