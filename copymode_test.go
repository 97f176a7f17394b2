package main

import (
	"testing"

	"github.com/crucible-term/crucible/grid"
	"github.com/crucible-term/crucible/input"
)

func cmKey(r rune, mods input.Modifiers) input.KeyEvent {
	return input.KeyEvent{Key: input.Key(r), Text: string(r), Mods: mods, Press: true}
}

func TestCopyModeMotionAndYank(t *testing.T) {
	g := grid.NewGrid(20, 5)
	for _, r := range "hello world" {
		g.PutChar(r)
	}

	var cm copyModeState
	cm.enter(g)
	cm.row, cm.col = 0, 0

	// Select "hello" with v + llll + y.
	if _, _, exited := cm.handleKey(g, cmKey('v', input.Modifiers{})); exited {
		t.Fatal("v exited copy mode")
	}
	for i := 0; i < 4; i++ {
		cm.handleKey(g, cmKey('l', input.Modifiers{}))
	}
	yanked, _, exited := cm.handleKey(g, cmKey('y', input.Modifiers{}))
	if yanked != "hello" {
		t.Errorf("yanked %q", yanked)
	}
	if !exited || cm.active {
		t.Error("yank did not exit copy mode")
	}
}

func TestCopyModeSlashOpensSearch(t *testing.T) {
	g := grid.NewGrid(20, 5)
	var cm copyModeState
	cm.enter(g)

	_, openSearch, exited := cm.handleKey(g, cmKey('/', input.Modifiers{}))
	if !openSearch {
		t.Error("'/' did not request search")
	}
	if exited || !cm.active {
		t.Error("'/' left copy mode")
	}
}

func TestCopyModeEscapeExits(t *testing.T) {
	g := grid.NewGrid(20, 5)
	var cm copyModeState
	cm.enter(g)
	ev := input.KeyEvent{Key: input.KeyEscape, Press: true}
	if _, _, exited := cm.handleKey(g, ev); !exited || cm.active {
		t.Error("escape did not exit copy mode")
	}
}

func TestCopyModeLineMotion(t *testing.T) {
	g := grid.NewGrid(20, 5)
	for _, r := range "foo bar" {
		g.PutChar(r)
	}
	var cm copyModeState
	cm.enter(g)
	cm.row, cm.col = 0, 0

	cm.handleKey(g, cmKey('$', input.Modifiers{}))
	if cm.col != 6 {
		t.Errorf("$ moved to col %d", cm.col)
	}
	cm.handleKey(g, cmKey('0', input.Modifiers{}))
	if cm.col != 0 {
		t.Errorf("0 moved to col %d", cm.col)
	}
	cm.handleKey(g, cmKey('w', input.Modifiers{}))
	if cm.col != 4 {
		t.Errorf("w moved to col %d", cm.col)
	}
	cm.handleKey(g, cmKey('b', input.Modifiers{}))
	if cm.col != 0 {
		t.Errorf("b moved to col %d", cm.col)
	}
}
