package grid

import (
	"github.com/mattn/go-runewidth"
)

// RuneWidth returns the display width of a rune (0, 1, or 2 cells)
// 0 = zero-width (combining marks, null)
// 1 = normal single-width character
// 2 = wide character (CJK, emoji, etc.)
func RuneWidth(r rune) int {
	if r == 0 {
		return 0
	}
	if IsEmojiRune(r) {
		return 2
	}
	return runewidth.RuneWidth(r)
}

// StringWidth returns the total display width of a string
func StringWidth(s string) int {
	w := 0
	for _, r := range s {
		w += RuneWidth(r)
	}
	return w
}

// IsEmojiRune reports whether the rune is forced to width 2 as emoji.
// Only SMP emoji blocks and regional indicators are forced; BMP symbols keep
// their East Asian width so applications that assume width 1 keep working.
func IsEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF: // Miscellaneous Symbols and Pictographs
		return true
	case r >= 0x1F600 && r <= 0x1F64F: // Emoticons
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // Transport and Map Symbols
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // Supplemental Symbols and Pictographs
		return true
	case r >= 0x1FA00 && r <= 0x1FAFF: // Symbols and Pictographs Extended-A
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // Regional Indicator Symbols
		return true
	}
	return false
}

// IsRegionalIndicator reports whether r is one of the 26 flag halves.
func IsRegionalIndicator(r rune) bool {
	return r >= 0x1F1E6 && r <= 0x1F1FF
}

// IsEmojiGrapheme reports whether a grapheme cluster renders as emoji: it
// starts with an emoji codepoint, carries VS16, or joins runes with ZWJ.
func IsEmojiGrapheme(s string) bool {
	first := true
	for _, r := range s {
		if first {
			if IsEmojiRune(r) {
				return true
			}
			first = false
			continue
		}
		if r == 0xFE0F || r == 0x200D {
			return true
		}
	}
	return false
}
