package config

import (
	"strings"

	"github.com/gravitational/trace"
)

// Modifier bits for chord matching.
const (
	ModShift = 1 << iota
	ModCtrl
	ModAlt
)

// Chord is a parsed key binding: modifier mask plus a lowercase key name
// (either a single character or a named key like "pageup").
type Chord struct {
	Mods int
	Key  string
}

// ParseChord parses a `+`-delimited chord string such as "ctrl+shift+c".
// The last component is the key; everything before it must be a modifier.
func ParseChord(s string) (Chord, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return Chord{}, trace.BadParameter("empty chord %q", s)
	}
	var c Chord
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "ctrl", "control":
			c.Mods |= ModCtrl
		case "shift":
			c.Mods |= ModShift
		case "alt", "meta":
			c.Mods |= ModAlt
		default:
			return Chord{}, trace.BadParameter("unknown modifier %q in chord %q", mod, s)
		}
	}
	c.Key = normalizeKeyName(parts[len(parts)-1])
	return c, nil
}

// ParseChords parses a chord list, skipping (and reporting) invalid
// entries.
func ParseChords(list ChordList) ([]Chord, error) {
	var out []Chord
	var errs []error
	for _, s := range list {
		c, err := ParseChord(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, trace.NewAggregate(errs...)
}

// normalizeKeyName maps aliases to canonical key names.
func normalizeKeyName(key string) string {
	switch key {
	case "pgup":
		return "pageup"
	case "pgdn", "pgdown":
		return "pagedown"
	case "esc":
		return "escape"
	case "return":
		return "enter"
	case "spacebar":
		return "space"
	case "+":
		return "plus"
	case "-":
		return "minus"
	case "=":
		return "equal"
	case "/":
		return "slash"
	case "\\":
		return "backslash"
	}
	return key
}
