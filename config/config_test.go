package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Font.Size != 16.0 {
		t.Errorf("font size %v", cfg.Font.Size)
	}
	if cfg.Terminal.ScrollbackLines != 10000 {
		t.Errorf("scrollback %d", cfg.Terminal.ScrollbackLines)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[font]
size = 14.0

[terminal]
bell = "none"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Font.Size != 14.0 {
		t.Errorf("font size %v", cfg.Font.Size)
	}
	if cfg.Terminal.Bell != "none" {
		t.Errorf("bell %q", cfg.Terminal.Bell)
	}
	if cfg.Appearance.Background != "#0d101a" {
		t.Errorf("background default lost: %q", cfg.Appearance.Background)
	}
}

func TestKeybindSingleOrList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[keybinds]
copy = "ctrl+c"
paste = ["ctrl+v", "shift+insert"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Keybinds.Copy) != 1 || cfg.Keybinds.Copy[0] != "ctrl+c" {
		t.Errorf("copy %v", cfg.Keybinds.Copy)
	}
	if len(cfg.Keybinds.Paste) != 2 || cfg.Keybinds.Paste[1] != "shift+insert" {
		t.Errorf("paste %v", cfg.Keybinds.Paste)
	}
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[font]
size = -3.0
render_mode = "psychedelic"
lcd_filter = "custom"

[appearance]
cursor_opacity = 7.5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Font.Size != 16.0 {
		t.Errorf("size %v", cfg.Font.Size)
	}
	if cfg.Font.RenderMode != "lcd" {
		t.Errorf("render mode %q", cfg.Font.RenderMode)
	}
	if cfg.Font.LCDFilter != "default" {
		t.Errorf("custom filter without weights kept: %q", cfg.Font.LCDFilter)
	}
	if cfg.Appearance.CursorOpacity != 1.0 {
		t.Errorf("cursor opacity %v", cfg.Appearance.CursorOpacity)
	}
}

func TestParseChord(t *testing.T) {
	cases := []struct {
		in   string
		mods int
		key  string
		err  bool
	}{
		{"ctrl+shift+c", ModCtrl | ModShift, "c", false},
		{"alt+PageUp", ModAlt, "pageup", false},
		{"ctrl+plus", ModCtrl, "plus", false},
		{"f5", 0, "f5", false},
		{"ctrl+", 0, "", true},
		{"hyper+x", 0, "", true},
	}
	for _, tc := range cases {
		c, err := ParseChord(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if c.Mods != tc.mods || c.Key != tc.key {
			t.Errorf("%q: got mods=%d key=%q", tc.in, c.Mods, c.Key)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/shots"); got != filepath.Join(home, "shots") {
		t.Errorf("got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("got %q", got)
	}
}
