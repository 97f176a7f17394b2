package parser

import (
	"strings"
	"testing"

	"github.com/crucible-term/crucible/grid"
)

func newTestParser(cols, rows int) (*Parser, *grid.Grid) {
	g := grid.NewGrid(cols, rows)
	return NewParser(g), g
}

func feed(p *Parser, s string) {
	p.Process([]byte(s))
}

func rowText(g *grid.Grid, row int) string {
	var b strings.Builder
	for col := 0; col < g.Cols; col++ {
		c := g.Cell(col, row)
		if c.Width == 0 {
			continue
		}
		b.WriteString(c.Grapheme)
	}
	return strings.TrimRight(b.String(), " ")
}

func TestBasicEcho(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "hello\r\n")
	if got := rowText(g, 0); got != "hello" {
		t.Errorf("row 0: expected %q, got %q", "hello", got)
	}
	if g.Cursor.Row != 1 || g.Cursor.Col != 0 {
		t.Errorf("cursor at (%d,%d), expected (1,0)", g.Cursor.Row, g.Cursor.Col)
	}
}

func TestCursorMotion(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[5;10H")
	if g.Cursor.Row != 4 || g.Cursor.Col != 9 {
		t.Errorf("CUP: cursor at (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
	feed(p, "\x1b[2A\x1b[3C")
	if g.Cursor.Row != 2 || g.Cursor.Col != 12 {
		t.Errorf("CUU/CUF: cursor at (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
	feed(p, "\x1b[999;999H")
	if g.Cursor.Row != 23 || g.Cursor.Col != 79 {
		t.Errorf("clamping: cursor at (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
}

func TestWideCharDeleteLeavesNoOrphan(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "一")
	feed(p, "\x1b[1;1H\x1b[1P")
	c0 := g.Cell(0, 0)
	c1 := g.Cell(1, 0)
	if c0.Ch() != ' ' || c0.Width != 1 {
		t.Errorf("cell (0,0) not default: %q width %d", c0.Ch(), c0.Width)
	}
	if c1.Width == 0 {
		t.Error("orphan continuation remains after DCH")
	}
}

func TestScrollRegionIsolationSequence(t *testing.T) {
	p, g := newTestParser(20, 8)
	for row := 0; row < 8; row++ {
		feed(p, "\x1b["+itoa(row+1)+";1H")
		feed(p, string(rune('0'+row)))
	}
	feed(p, "\x1b[2;4r") // rows 1..3 0-based
	feed(p, "\x1b[4;1H\n")
	if got := rowText(g, 0); got != "0" {
		t.Errorf("row 0 disturbed: %q", got)
	}
	if got := rowText(g, 1); got != "2" {
		t.Errorf("row 1: expected shifted %q, got %q", "2", got)
	}
	if got := rowText(g, 3); got != "" {
		t.Errorf("region bottom not blanked: %q", got)
	}
	if got := rowText(g, 4); got != "4" {
		t.Errorf("row 4 disturbed: %q", got)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestOSCHyperlink(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b]8;id=x;https://example\x1b\\abc\x1b]8;;\x1b\\de")
	var link *grid.Hyperlink
	for i, want := range "abc" {
		c := g.Cell(i, 0)
		if c.Ch() != want {
			t.Fatalf("col %d: got %q", i, c.Ch())
		}
		if c.Hyperlink == nil {
			t.Fatalf("col %d: no hyperlink", i)
		}
		if link == nil {
			link = c.Hyperlink
		} else if c.Hyperlink != link {
			t.Error("cells do not share one hyperlink reference")
		}
	}
	if link.URL != "https://example" || link.ID != "x" {
		t.Errorf("bad link: %+v", link)
	}
	if c := g.Cell(3, 0); c.Hyperlink != nil {
		t.Error("hyperlink leaked past OSC 8 close")
	}
}

func TestOSCTitleAndBELTerminator(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b]0;my title\x07")
	if g.Title != "my title" {
		t.Errorf("title %q", g.Title)
	}
}

func TestSGRReset(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[1;3;4;7;9;53;38;5;100;48;2;1;2;3m")
	pen := g.Pen()
	if pen.Flags == 0 || pen.Fg.Type != grid.ColorIndexed || pen.Bg.Type != grid.ColorRGB {
		t.Fatalf("attributes not applied: %+v", pen)
	}
	feed(p, "\x1b[0m")
	pen = g.Pen()
	if pen.Flags != 0 || pen.Fg != grid.DefaultFg() || pen.Bg != grid.DefaultBg() ||
		pen.UnderlineStyle != grid.UnderlineNone || pen.UnderlineColor != nil {
		t.Errorf("SGR 0 did not reset pen: %+v", pen)
	}
}

func TestSGRColonForms(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[38:2:10:20:30m")
	if got := g.Pen().Fg; got != grid.RGBColor(10, 20, 30) {
		t.Errorf("colon truecolor: %+v", got)
	}
	feed(p, "\x1b[38:5:99m")
	if got := g.Pen().Fg; got != grid.IndexedColor(99) {
		t.Errorf("colon palette: %+v", got)
	}
	feed(p, "\x1b[4:3m")
	if got := g.Pen().UnderlineStyle; got != grid.UnderlineCurly {
		t.Errorf("curly underline: %v", got)
	}
	feed(p, "\x1b[4:0m")
	if got := g.Pen().UnderlineStyle; got != grid.UnderlineNone {
		t.Errorf("underline off: %v", got)
	}
	feed(p, "\x1b[21m")
	if got := g.Pen().UnderlineStyle; got != grid.UnderlineDouble {
		t.Errorf("double underline alias: %v", got)
	}
	feed(p, "\x1b[58;2;5;6;7m")
	uc := g.Pen().UnderlineColor
	if uc == nil || *uc != grid.RGBColor(5, 6, 7) {
		t.Errorf("underline color: %+v", uc)
	}
	feed(p, "\x1b[59m")
	if g.Pen().UnderlineColor != nil {
		t.Error("underline color not reset")
	}
}

func TestPrivateModes(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[?1h\x1b[?2004h\x1b[?1006h\x1b[?1002h\x1b[?1004h\x1b[?2026h")
	m := g.Modes()
	if !m.AppCursorKeys || !m.BracketedPaste || !m.SGRMouse || !m.FocusEvents || !m.SyncUpdate {
		t.Errorf("modes not set: %+v", m)
	}
	if m.Mouse != grid.MouseButton {
		t.Errorf("mouse mode %v", m.Mouse)
	}
	feed(p, "\x1b[?25l")
	if g.Modes().CursorVisible {
		t.Error("cursor still visible after DECRST 25")
	}
	feed(p, "\x1b[?7l")
	if g.Modes().AutoWrap {
		t.Error("auto-wrap still on")
	}
}

func TestAlternateScreen1049(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "main")
	feed(p, "\x1b[?1049h")
	if rowText(g, 0) != "" {
		t.Error("alt screen not cleared")
	}
	feed(p, "alt")
	feed(p, "\x1b[?1049h") // already active: no-op
	if rowText(g, 0) != "alt" {
		t.Error("second 1049h disturbed alt screen")
	}
	feed(p, "\x1b[?1049l")
	if rowText(g, 0) != "main" {
		t.Errorf("primary not restored: %q", rowText(g, 0))
	}
	if g.Cursor.Col != 4 {
		t.Errorf("cursor not restored, col %d", g.Cursor.Col)
	}
}

func TestDECSCUSR(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[4 q")
	if g.Cursor.Style != grid.CursorUnderline || g.Cursor.Blink {
		t.Errorf("style %v blink %v", g.Cursor.Style, g.Cursor.Blink)
	}
	feed(p, "\x1b[5 q")
	if g.Cursor.Style != grid.CursorBar || !g.Cursor.Blink {
		t.Errorf("style %v blink %v", g.Cursor.Style, g.Cursor.Blink)
	}
	feed(p, "\x1b[0 q")
	if g.Cursor.Style != grid.CursorBlock {
		t.Errorf("style %v", g.Cursor.Style)
	}
}

func TestKittyKeyboardStack(t *testing.T) {
	p, g := newTestParser(80, 24)
	var out []byte
	p.SetResponseWriter(func(b []byte) { out = append(out, b...) })

	feed(p, "\x1b[>5u")
	if g.KittyFlags() != 5 {
		t.Errorf("flags %d after push", g.KittyFlags())
	}
	feed(p, "\x1b[?u")
	if string(out) != "\x1b[?5u" {
		t.Errorf("query response %q", out)
	}
	feed(p, "\x1b[<u")
	if g.KittyFlags() != 0 {
		t.Errorf("flags %d after pop", g.KittyFlags())
	}
	feed(p, "\x1b[=3;1u")
	if g.KittyFlags() != 3 {
		t.Errorf("flags %d after set", g.KittyFlags())
	}
}

func TestModifyOtherKeys(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[>4;2m")
	if g.ModifyOtherKeys != 2 {
		t.Errorf("modifyOtherKeys %d", g.ModifyOtherKeys)
	}
	feed(p, "\x1b[>4;0m")
	if g.ModifyOtherKeys != 0 {
		t.Errorf("modifyOtherKeys %d", g.ModifyOtherKeys)
	}
}

func TestDeviceQueries(t *testing.T) {
	p, _ := newTestParser(80, 24)
	var out []byte
	p.SetResponseWriter(func(b []byte) { out = append(out, b...) })
	feed(p, "\x1b[5;3H\x1b[6n")
	if string(out) != "\x1b[5;3R" {
		t.Errorf("DSR 6 response %q", out)
	}
	out = nil
	feed(p, "\x1b[c")
	if !strings.HasPrefix(string(out), "\x1b[?62") {
		t.Errorf("DA response %q", out)
	}
}

func TestInvalidUTF8YieldsReplacement(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "a\xc3(b") // truncated 2-byte start followed by ASCII
	if c := g.Cell(0, 0); c.Ch() != 'a' {
		t.Errorf("cell 0 %q", c.Ch())
	}
	if c := g.Cell(1, 0); c.Ch() != 0xFFFD {
		t.Errorf("expected U+FFFD, got %q", c.Ch())
	}
	if c := g.Cell(2, 0); c.Ch() != '(' {
		t.Errorf("byte after invalid sequence lost: %q", c.Ch())
	}
	if c := g.Cell(3, 0); c.Ch() != 'b' {
		t.Errorf("parser desynchronized: %q", c.Ch())
	}
}

func TestTruncatedSequenceHeldAcrossReads(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[3")
	feed(p, "1m")
	if got := g.Pen().Fg; got != grid.IndexedColor(1) {
		t.Errorf("split CSI not reassembled: %+v", got)
	}
	feed(p, "\xe4\xb8")
	feed(p, "\x80")
	if c := g.Cell(0, 0); c.Ch() != '一' {
		t.Errorf("split UTF-8 not reassembled: %q", c.Ch())
	}
}

func TestREPSequence(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "x\x1b[4b")
	if got := rowText(g, 0); got != "xxxxx" {
		t.Errorf("REP: %q", got)
	}
}

func TestDECALN(t *testing.T) {
	p, g := newTestParser(10, 4)
	feed(p, "\x1b#8")
	if c := g.Cell(9, 3); c.Ch() != 'E' {
		t.Errorf("DECALN fill missing: %q", c.Ch())
	}
}

func TestOSC133Markers(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b]133;A\x07$ ls\r\n\x1b]133;C\x07out\r\n\x1b]133;D;0\x07")
	marks := g.PromptMarks()
	if len(marks) != 3 {
		t.Fatalf("expected 3 marks, got %d", len(marks))
	}
	if marks[0].Kind != 'A' || marks[1].Kind != 'C' || marks[2].Kind != 'D' {
		t.Errorf("mark kinds: %+v", marks)
	}
	if marks[2].Exit != 0 {
		t.Errorf("exit status %d", marks[2].Exit)
	}
}

func TestUnknownSequencesIgnored(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1b[>999;1;2w") // unknown private CSI
	feed(p, "\x1b]777;whatever\x07")
	feed(p, "\x1b_apc payload\x1b\\")
	feed(p, "ok")
	if got := rowText(g, 0); got != "ok" {
		t.Errorf("parser desynchronized by unknown sequences: %q", got)
	}
}

func TestSosPmApcSwallowed(t *testing.T) {
	p, g := newTestParser(80, 24)
	feed(p, "\x1bXsos data with \x1b[31m inside\x1b\\after")
	if got := rowText(g, 0); got != "after" {
		t.Errorf("SOS payload leaked: %q", got)
	}
	if g.Pen().Fg != grid.DefaultFg() {
		t.Error("CSI inside SOS was executed")
	}
}
