package font

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"
)

// fontDirs are scanned in order when the configuration leaves a font path
// empty.
var fontDirs = []string{
	"/usr/share/fonts",
	"/usr/local/share/fonts",
	"~/.local/share/fonts",
	"~/.fonts",
}

// Preferred file names, most preferred first.
var (
	monoCandidates = []string{
		"DejaVuSansMono.ttf", "LiberationMono-Regular.ttf",
		"UbuntuMono-R.ttf", "Hack-Regular.ttf", "FiraCode-Regular.ttf",
		"JetBrainsMono-Regular.ttf", "NotoSansMono-Regular.ttf",
	}
	cjkCandidates = []string{
		"NotoSansCJK-Regular.ttc", "NotoSansCJK.ttc",
		"SourceHanSansJP-Regular.otf", "wqy-zenhei.ttc",
	}
	emojiCandidates = []string{
		"NotoColorEmoji.ttf", "TwemojiMozilla.ttf", "JoyPixels.ttf",
	}
)

// DiscoverMain finds a monospace font file.
func DiscoverMain() (string, error) {
	return discover(monoCandidates, "Mono")
}

// DiscoverCJK finds a CJK-capable font file; absence is not an error.
func DiscoverCJK() string {
	path, err := discover(cjkCandidates, "CJK")
	if err != nil {
		return ""
	}
	return path
}

// DiscoverEmoji finds a color emoji font file; absence is not an error.
func DiscoverEmoji() string {
	path, err := discover(emojiCandidates, "Emoji")
	if err != nil {
		return ""
	}
	return path
}

func discover(candidates []string, nameFragment string) (string, error) {
	home, _ := os.UserHomeDir()
	var exact, fallback string
	best := len(candidates)
	for _, dir := range fontDirs {
		if strings.HasPrefix(dir, "~") && home != "" {
			dir = filepath.Join(home, dir[1:])
		}
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			for i, want := range candidates[:best] {
				if base == want {
					exact, best = path, i
					if i == 0 {
						return filepath.SkipAll
					}
					break
				}
			}
			if fallback == "" && nameFragment != "" &&
				strings.Contains(base, nameFragment) && isFontFile(base) {
				fallback = path
			}
			return nil
		})
		if exact != "" {
			return exact, nil
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", trace.NotFound("no suitable font found under %v", fontDirs)
}

func isFontFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf", ".ttc":
		return true
	}
	return false
}
