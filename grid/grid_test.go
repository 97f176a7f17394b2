package grid

import (
	"testing"
)

func TestNewGrid(t *testing.T) {
	g := NewGrid(80, 24)
	if g.Cols != 80 || g.Rows != 24 {
		t.Fatalf("expected 80x24, got %dx%d", g.Cols, g.Rows)
	}
	top, bottom := g.ScrollRegion()
	if top != 0 || bottom != 23 {
		t.Errorf("expected full scroll region, got [%d,%d]", top, bottom)
	}
}

func TestPutCharAdvances(t *testing.T) {
	g := NewGrid(80, 24)
	for _, r := range "hello" {
		g.PutChar(r)
	}
	want := "hello"
	for i, r := range want {
		c := g.Cell(i, 0)
		if c.Ch() != r {
			t.Errorf("col %d: expected %q, got %q", i, r, c.Ch())
		}
	}
	if g.Cursor.Col != 5 || g.Cursor.Row != 0 {
		t.Errorf("expected cursor at (0,5), got (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
}

func TestWideCharPair(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar('一')
	head := g.Cell(0, 0)
	cont := g.Cell(1, 0)
	if head.Width != 2 {
		t.Errorf("expected head width 2, got %d", head.Width)
	}
	if cont.Width != 0 {
		t.Errorf("expected continuation width 0, got %d", cont.Width)
	}
	if g.Cursor.Col != 2 {
		t.Errorf("expected cursor col 2, got %d", g.Cursor.Col)
	}
}

func TestOverwriteWideHeadClearsOrphan(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar('一')
	g.SetCursor(0, 0)
	g.PutChar('x')
	cont := g.Cell(1, 0)
	if cont.Width != 1 {
		t.Errorf("expected orphan continuation reset to narrow, got width %d", cont.Width)
	}
	checkNoOrphans(t, g)
}

func TestOverwriteContinuationClearsHead(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar('一')
	g.SetCursor(1, 0)
	g.PutChar('x')
	head := g.Cell(0, 0)
	if head.Width != 1 || head.Ch() != ' ' {
		t.Errorf("expected head reset, got width=%d ch=%q", head.Width, head.Ch())
	}
	checkNoOrphans(t, g)
}

func TestDeleteCharsRepairsWidePair(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar('一')
	g.SetCursor(0, 0)
	g.DeleteChars(1)
	if c := g.Cell(0, 0); c.Width != 1 || c.Ch() != ' ' {
		t.Errorf("cell (0,0) not default after DCH: width=%d ch=%q", c.Width, c.Ch())
	}
	if c := g.Cell(1, 0); c.Width == 0 {
		t.Error("orphan continuation remains after DCH")
	}
	checkNoOrphans(t, g)
}

func TestWideCharAtRightMarginWraps(t *testing.T) {
	g := NewGrid(10, 4)
	g.SetCursor(9, 0)
	g.PutChar('一')
	if c := g.Cell(9, 0); c.Ch() != ' ' {
		t.Errorf("expected blanked last column, got %q", c.Ch())
	}
	if c := g.Cell(0, 1); c.Ch() != '一' {
		t.Errorf("expected wide char at (1,0), got %q", c.Ch())
	}
	checkNoOrphans(t, g)
}

func TestAutoWrapOffOverwritesInPlace(t *testing.T) {
	g := NewGrid(10, 4)
	g.ModesRef().AutoWrap = false
	g.SetCursor(9, 0)
	g.PutChar('a')
	g.PutChar('b')
	g.PutChar('c')
	if c := g.Cell(9, 0); c.Ch() != 'c' {
		t.Errorf("expected 'c' at right margin, got %q", c.Ch())
	}
	if g.Cursor.Row != 0 {
		t.Errorf("cursor moved to row %d with auto-wrap off", g.Cursor.Row)
	}
}

func TestAutoWrapScrollsAtBottom(t *testing.T) {
	g := NewGrid(4, 2)
	for _, r := range "abcdefgh" {
		g.PutChar(r)
	}
	// Writing the 9th char wraps and scrolls "abcd" into scrollback.
	g.PutChar('i')
	if g.ScrollbackLen() != 1 {
		t.Fatalf("expected 1 scrollback row, got %d", g.ScrollbackLen())
	}
	if c := g.ScrollbackRow(0)[0]; c.Ch() != 'a' {
		t.Errorf("expected 'a' in scrollback, got %q", c.Ch())
	}
	if c := g.Cell(0, 1); c.Ch() != 'i' {
		t.Errorf("expected 'i' at (1,0), got %q", c.Ch())
	}
}

func TestZWJSequenceStaysInOneCell(t *testing.T) {
	g := NewGrid(80, 24)
	// woman + ZWJ + laptop
	g.PutChar(0x1F469)
	g.PutChar(0x200D)
	g.PutChar(0x1F4BB)
	c := g.Cell(0, 0)
	want := string(rune(0x1F469)) + string(rune(0x200D)) + string(rune(0x1F4BB))
	if c.Grapheme != want {
		t.Errorf("expected joined grapheme %q, got %q", want, c.Grapheme)
	}
	if !c.HasFlag(FlagEmoji) {
		t.Error("expected emoji flag on ZWJ sequence")
	}
	if g.Cursor.Col != 2 {
		t.Errorf("expected cursor col 2 after single wide grapheme, got %d", g.Cursor.Col)
	}
}

func TestRegionalIndicatorsMergeIntoFlag(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar(0x1F1EF) // J
	g.PutChar(0x1F1F5) // P
	c := g.Cell(0, 0)
	want := string(rune(0x1F1EF)) + string(rune(0x1F1F5))
	if c.Grapheme != want {
		t.Errorf("expected flag grapheme %q, got %q", want, c.Grapheme)
	}
	if g.Cursor.Col != 2 {
		t.Errorf("expected cursor col 2, got %d", g.Cursor.Col)
	}
	// A third indicator starts a new flag cell.
	g.PutChar(0x1F1FA)
	if c := g.Cell(2, 0); c.Grapheme != string(rune(0x1F1FA)) {
		t.Errorf("expected new lone indicator cell, got %q", c.Grapheme)
	}
}

func TestCombiningMarkAttaches(t *testing.T) {
	g := NewGrid(80, 24)
	g.PutChar('e')
	g.PutChar(0x0301) // combining acute
	c := g.Cell(0, 0)
	if c.Grapheme != "é" { // NFC composes to é
		t.Errorf("expected NFC-composed grapheme, got %q", c.Grapheme)
	}
	if g.Cursor.Col != 1 {
		t.Errorf("combining mark advanced cursor to %d", g.Cursor.Col)
	}
}

func TestScrollRegionIsolation(t *testing.T) {
	g := NewGrid(10, 6)
	for row := 0; row < 6; row++ {
		g.SetCursor(0, row)
		g.PutChar(rune('0' + row))
	}
	g.SetScrollRegion(3, 5) // rows 2..4 0-based
	g.SetCursor(0, 4)
	g.Linefeed()
	if c := g.Cell(0, 0); c.Ch() != '0' {
		t.Errorf("row 0 disturbed: %q", c.Ch())
	}
	if c := g.Cell(0, 1); c.Ch() != '1' {
		t.Errorf("row 1 disturbed: %q", c.Ch())
	}
	if c := g.Cell(0, 2); c.Ch() != '3' {
		t.Errorf("expected row 2 to hold former row 3, got %q", c.Ch())
	}
	if c := g.Cell(0, 4); c.Ch() != ' ' {
		t.Errorf("expected blanked region bottom, got %q", c.Ch())
	}
	if c := g.Cell(0, 5); c.Ch() != '5' {
		t.Errorf("row 5 disturbed: %q", c.Ch())
	}
	if g.ScrollbackLen() != 0 {
		t.Error("partial-region scroll fed scrollback")
	}
}

func TestScrollUpBeyondRegionHeightEmptiesRegion(t *testing.T) {
	g := NewGrid(10, 6)
	for row := 0; row < 6; row++ {
		g.SetCursor(0, row)
		g.PutChar('x')
	}
	g.SetScrollRegion(2, 4)
	g.ScrollUp(99)
	for row := 1; row <= 3; row++ {
		if c := g.Cell(0, row); c.Ch() != ' ' {
			t.Errorf("row %d not emptied", row)
		}
	}
}

func TestScrollUpUsesPenBackground(t *testing.T) {
	g := NewGrid(10, 4)
	p := g.Pen()
	p.Bg = IndexedColor(4)
	g.SetPen(p)
	g.ScrollUp(1)
	c := g.Cell(0, 3)
	if c.Bg.Type != ColorIndexed || c.Bg.Index != 4 {
		t.Errorf("expected pen background on vacated row, got %+v", c.Bg)
	}
}

func TestInsertDeleteLinesOutsideRegionNoop(t *testing.T) {
	g := NewGrid(10, 6)
	g.SetCursor(0, 0)
	g.PutChar('a')
	g.SetScrollRegion(3, 5)
	g.SetCursor(0, 0)
	g.InsertLines(2)
	g.DeleteLines(2)
	if c := g.Cell(0, 0); c.Ch() != 'a' {
		t.Errorf("IL/DL outside region mutated the grid: %q", c.Ch())
	}
}

func TestEraseLineRightOnContinuationClearsHead(t *testing.T) {
	g := NewGrid(10, 4)
	g.PutChar('一')
	g.SetCursor(1, 0)
	g.EraseLineRight()
	if c := g.Cell(0, 0); c.Width != 1 || c.Ch() != ' ' {
		t.Errorf("head cell not cleared: width=%d ch=%q", c.Width, c.Ch())
	}
	checkNoOrphans(t, g)
}

func TestAlternateScreenRoundTrip(t *testing.T) {
	g := NewGrid(20, 5)
	for _, r := range "main" {
		g.PutChar(r)
	}
	p := g.Pen()
	p.Fg = RGBColor(1, 2, 3)
	g.SetPen(p)
	g.SetScrollRegion(2, 4)
	g.SetCursor(3, 2)
	savedCursor := g.Cursor

	g.EnterAlternateScreen()
	if c := g.Cell(0, 0); c.Ch() != ' ' {
		t.Error("alternate screen not cleared")
	}
	for _, r := range "alt" {
		g.PutChar(r)
	}
	g.EnterAlternateScreen() // double enter is a no-op
	if c := g.Cell(0, 0); c.Ch() != 'a' {
		t.Error("double enter cleared the alternate screen")
	}

	g.LeaveAlternateScreen()
	if c := g.Cell(0, 0); c.Ch() != 'm' {
		t.Errorf("primary screen not restored, got %q", c.Ch())
	}
	if g.Cursor != savedCursor {
		t.Errorf("cursor not restored: %+v != %+v", g.Cursor, savedCursor)
	}
	if got := g.Pen().Fg; got != RGBColor(1, 2, 3) {
		t.Errorf("pen not restored: %+v", got)
	}
	top, bottom := g.ScrollRegion()
	if top != 1 || bottom != 3 {
		t.Errorf("scroll region not restored: [%d,%d]", top, bottom)
	}

	g.LeaveAlternateScreen() // leave with no saved state is a no-op
}

func TestSaveRestoreCursor(t *testing.T) {
	g := NewGrid(20, 5)
	p := g.Pen()
	p.Flags |= FlagBold
	g.SetPen(p)
	g.SetCursor(7, 3)
	g.SaveCursor()
	g.SetCursor(0, 0)
	g.SetPen(DefaultPen())
	g.RestoreCursor()
	if g.Cursor.Col != 7 || g.Cursor.Row != 3 {
		t.Errorf("cursor not restored: (%d,%d)", g.Cursor.Row, g.Cursor.Col)
	}
	if !g.Pen().Flags.has(FlagBold) {
		t.Error("pen not restored")
	}
}

func (f CellFlags) has(flag CellFlags) bool { return f&flag != 0 }

func TestScrollbackCap(t *testing.T) {
	g := NewGrid(4, 2)
	g.SetMaxScrollback(5)
	for i := 0; i < 20; i++ {
		g.ScrollUp(1)
	}
	if g.ScrollbackLen() > 5 {
		t.Errorf("scrollback exceeds cap: %d", g.ScrollbackLen())
	}
}

func TestKittyStack(t *testing.T) {
	g := NewGrid(4, 2)
	g.PushKittyFlags(1)
	g.PushKittyFlags(3)
	if g.KittyFlags() != 3 {
		t.Errorf("expected flags 3, got %d", g.KittyFlags())
	}
	g.PopKittyFlags(1)
	if g.KittyFlags() != 1 {
		t.Errorf("expected flags 1 after pop, got %d", g.KittyFlags())
	}
	g.PopKittyFlags(5)
	if g.KittyFlags() != 0 {
		t.Errorf("expected flags 0 after over-pop, got %d", g.KittyFlags())
	}
	for i := 0; i < 300; i++ {
		g.PushKittyFlags(uint8(i))
	}
	if g.KittyStackDepth() > 256 {
		t.Errorf("stack depth %d exceeds 256", g.KittyStackDepth())
	}
}

func TestResizePreservesTopLeft(t *testing.T) {
	g := NewGrid(10, 4)
	for _, r := range "keep" {
		g.PutChar(r)
	}
	g.Resize(6, 3)
	for i, r := range "keep" {
		if c := g.Cell(i, 0); c.Ch() != r {
			t.Errorf("col %d lost after resize: %q", i, c.Ch())
		}
	}
	top, bottom := g.ScrollRegion()
	if top != 0 || bottom != 2 {
		t.Errorf("scroll region not reset: [%d,%d]", top, bottom)
	}
	if !g.AllDirty() {
		t.Error("resize did not mark all dirty")
	}
}

func TestRepeatLast(t *testing.T) {
	g := NewGrid(20, 4)
	g.PutChar('z')
	g.RepeatLast(3)
	for i := 0; i < 4; i++ {
		if c := g.Cell(i, 0); c.Ch() != 'z' {
			t.Errorf("col %d: expected z, got %q", i, c.Ch())
		}
	}
}

func TestDirtyTracking(t *testing.T) {
	g := NewGrid(10, 4)
	g.ClearDirty()
	g.SetCursor(0, 2)
	g.PutChar('x')
	if !g.IsDirty(2) {
		t.Error("row 2 not marked dirty after write")
	}
	if g.IsDirty(0) {
		t.Error("row 0 spuriously dirty")
	}
	g.ClearDirty()
	if g.HasDirty() {
		t.Error("dirty state survives ClearDirty")
	}
}

func TestImagePlacementScrollsAndClips(t *testing.T) {
	g := NewGrid(20, 6)
	id := g.NextImageID()
	g.SetCursor(0, 1)
	g.PlaceImage(id, 40, 30, 10, 10) // 4x3 cells
	ps := g.Placements()
	if len(ps) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(ps))
	}
	if ps[0].WidthCells != 4 || ps[0].HeightCells != 3 {
		t.Errorf("unexpected cell size %dx%d", ps[0].WidthCells, ps[0].HeightCells)
	}
	g.ScrollUp(2)
	ps = g.Placements()
	if len(ps) != 1 {
		t.Fatalf("expected clipped placement to survive, got %d", len(ps))
	}
	if ps[0].Row != 0 || ps[0].HeightCells != 2 {
		t.Errorf("expected clip to row 0 height 2, got row %d height %d", ps[0].Row, ps[0].HeightCells)
	}
	g.ScrollUp(4)
	if len(g.Placements()) != 0 {
		t.Error("fully consumed placement not removed")
	}
}

func TestImagePlacementClippedAtRightMargin(t *testing.T) {
	g := NewGrid(20, 6)
	id := g.NextImageID()
	g.SetCursor(17, 0)
	g.PlaceImage(id, 60, 10, 10, 10) // 6 cells wide, 3 columns available
	ps := g.Placements()
	if len(ps) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(ps))
	}
	if ps[0].Col+ps[0].WidthCells > g.Cols {
		t.Errorf("placement exceeds grid: col %d width %d cols %d",
			ps[0].Col, ps[0].WidthCells, g.Cols)
	}
	if ps[0].WidthCells != 3 {
		t.Errorf("expected clipped width 3, got %d", ps[0].WidthCells)
	}
}

func TestEraseRemovesTouchedImages(t *testing.T) {
	g := NewGrid(20, 6)
	id := g.NextImageID()
	g.SetCursor(0, 0)
	g.PlaceImage(id, 20, 10, 10, 10)
	g.SetCursor(0, 0)
	g.EraseLine()
	if len(g.Placements()) != 0 {
		t.Error("erase left a touched image placement")
	}
}

func TestSelectionText(t *testing.T) {
	g := NewGrid(10, 3)
	for _, r := range "hello" {
		g.PutChar(r)
	}
	g.SetCursor(0, 1)
	for _, r := range "world" {
		g.PutChar(r)
	}
	base := g.ScrollbackLen()
	sel := Selection{Active: true, AnchorRow: base, AnchorCol: 1, EndRow: base + 1, EndCol: 2}
	got := g.SelectionText(sel)
	want := "ello\nwor"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSelectionNormalizesReversed(t *testing.T) {
	sel := Selection{Active: true, AnchorRow: 5, AnchorCol: 3, EndRow: 2, EndCol: 7}
	sr, sc, er, ec := sel.Normalized()
	if sr != 2 || sc != 7 || er != 5 || ec != 3 {
		t.Errorf("bad normalization: %d,%d..%d,%d", sr, sc, er, ec)
	}
}

func TestWordSpan(t *testing.T) {
	g := NewGrid(20, 2)
	for _, r := range "foo bar-baz qux" {
		g.PutChar(r)
	}
	abs := g.ScrollbackLen()
	start, end := g.WordSpan(abs, 5)
	if start != 4 || end != 10 {
		t.Errorf("expected [4,10], got [%d,%d]", start, end)
	}
	start, end = g.WordSpan(abs, 3)
	if start != 3 || end != 3 {
		t.Errorf("whitespace click expanded to [%d,%d]", start, end)
	}
}

func TestViewOffsetClamped(t *testing.T) {
	g := NewGrid(4, 2)
	for i := 0; i < 10; i++ {
		g.ScrollUp(1)
	}
	g.ScrollView(1000)
	if g.ViewOffset() != g.ScrollbackLen() {
		t.Errorf("view offset %d not clamped to %d", g.ViewOffset(), g.ScrollbackLen())
	}
	g.ScrollView(-1000)
	if g.ViewOffset() != 0 {
		t.Errorf("view offset %d below zero", g.ViewOffset())
	}
}

// checkNoOrphans asserts the wide-pair invariant: every width-0 cell is
// immediately right of a width-2 cell.
func checkNoOrphans(t *testing.T, g *Grid) {
	t.Helper()
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			c := g.Cell(col, row)
			if c.Width == 0 {
				left := g.Cell(col-1, row)
				if col == 0 || left.Width != 2 {
					t.Errorf("orphan continuation at (%d,%d)", row, col)
				}
			}
		}
	}
}
