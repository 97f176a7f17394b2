package config

import (
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
)

// WriteTemplate writes a commented config template for the given preset
// ("default", "emacs", "vim") and returns the path written.
func WriteTemplate(preset string) (string, error) {
	var keybinds string
	switch preset {
	case "", "default":
		keybinds = defaultKeybindTemplate
	case "emacs":
		keybinds = emacsKeybindTemplate
	case "vim":
		keybinds = vimKeybindTemplate
	default:
		return "", trace.BadParameter("unknown preset %q (want default, emacs, or vim)", preset)
	}

	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", trace.ConvertSystemError(err)
	}
	if _, err := os.Stat(path); err == nil {
		return "", trace.AlreadyExists("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(templateHeader+keybinds), 0o644); err != nil {
		return "", trace.ConvertSystemError(err)
	}
	return path, nil
}

const templateHeader = `# Crucible configuration

[font]
# Paths to font files; leave empty to auto-discover.
main = ""
cjk = ""
emoji = ""
size = 16.0
# "lcd" enables subpixel rendering, "grayscale" plain antialiasing.
render_mode = "lcd"
# "none", "default", "light", "legacy", or "custom" (set lcd_weights).
lcd_filter = "default"
# lcd_weights = [8, 77, 86, 77, 8]
# "rgb", "bgr", "vrgb", "vbgr", or "auto".
subpixel = "auto"
gamma = 1.0
stem_darkening = 0.0
contrast = 1.0
fringe_reduction = 0.0
subpixel_positioning = true
# "normal", "light", or "none".
hinting = "light"

[paths]
screenshot_dir = "~/Pictures"
clipboard_file = "/tmp/crucible-clipboard"

[appearance]
background = "#0d101a"
foreground = "#e8edf7"
cursor = "#a2e0c7"
selection = "#74b6ff"
cursor_opacity = 1.0

[terminal]
scrollback_lines = 10000
# "visual" or "none".
bell = "visual"
term_env = "xterm-256color"
ime_disabled_apps = ["vim", "nvim", "emacs"]

`

const defaultKeybindTemplate = `[keybinds]
copy = "ctrl+shift+c"
paste = "ctrl+shift+v"
screenshot = "ctrl+shift+s"
search = "ctrl+shift+f"
copy_mode = "ctrl+shift+space"
font_increase = ["ctrl+plus", "ctrl+equal"]
font_decrease = "ctrl+minus"
font_reset = "ctrl+0"
scroll_up = "shift+pageup"
scroll_down = "shift+pagedown"
ime_toggle = "ctrl+space"
`

const emacsKeybindTemplate = `[keybinds]
copy = "alt+w"
paste = "ctrl+y"
screenshot = "ctrl+shift+s"
search = "ctrl+s"
copy_mode = "ctrl+shift+space"
font_increase = ["ctrl+plus", "ctrl+equal"]
font_decrease = "ctrl+minus"
font_reset = "ctrl+0"
scroll_up = "alt+v"
scroll_down = "ctrl+v"
ime_toggle = "ctrl+backslash"
`

const vimKeybindTemplate = `[keybinds]
copy = "ctrl+shift+y"
paste = "ctrl+shift+p"
screenshot = "ctrl+shift+s"
search = "ctrl+shift+slash"
copy_mode = "ctrl+shift+v"
font_increase = ["ctrl+plus", "ctrl+equal"]
font_decrease = "ctrl+minus"
font_reset = "ctrl+0"
scroll_up = "ctrl+shift+u"
scroll_down = "ctrl+shift+d"
ime_toggle = "ctrl+space"
`
