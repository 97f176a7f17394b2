// Package config loads the TOML configuration file and provides defaults
// for every field, so a missing or partial file always yields a usable
// configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Config holds the terminal configuration
type Config struct {
	Font       FontConfig       `toml:"font"`
	Paths      PathConfig       `toml:"paths"`
	Keybinds   KeybindConfig    `toml:"keybinds"`
	Appearance AppearanceConfig `toml:"appearance"`
	Terminal   TerminalConfig   `toml:"terminal"`
}

// FontConfig selects fonts and rasterization behavior.
type FontConfig struct {
	// Font file paths; empty means auto-discover.
	Main  string `toml:"main"`
	CJK   string `toml:"cjk"`
	Emoji string `toml:"emoji"`

	Size float32 `toml:"size"`

	// RenderMode is "grayscale" or "lcd".
	RenderMode string `toml:"render_mode"`
	// LCDFilter is "none", "default", "light", "legacy", or "custom".
	LCDFilter string `toml:"lcd_filter"`
	// LCDWeights are the custom 5-tap filter weights when LCDFilter is
	// "custom".
	LCDWeights []uint8 `toml:"lcd_weights"`
	// Subpixel order: "rgb", "bgr", "vrgb", "vbgr", or "auto".
	Subpixel string `toml:"subpixel"`

	Gamma             float32 `toml:"gamma"`
	StemDarkening     float32 `toml:"stem_darkening"`
	Contrast          float32 `toml:"contrast"`
	FringeReduction   float32 `toml:"fringe_reduction"`
	SubpixelPositions bool    `toml:"subpixel_positioning"`
	// Hinting is "normal", "light", or "none".
	Hinting string `toml:"hinting"`
}

// PathConfig locates files the terminal writes.
type PathConfig struct {
	ScreenshotDir string `toml:"screenshot_dir"`
	ClipboardFile string `toml:"clipboard_file"`
}

// AppearanceConfig holds colors as hex strings.
type AppearanceConfig struct {
	Background    string  `toml:"background"`
	Foreground    string  `toml:"foreground"`
	Cursor        string  `toml:"cursor"`
	Selection     string  `toml:"selection"`
	CursorOpacity float32 `toml:"cursor_opacity"`
}

// TerminalConfig holds terminal behavior knobs.
type TerminalConfig struct {
	ScrollbackLines int `toml:"scrollback_lines"`
	// Bell is "visual" or "none".
	Bell    string `toml:"bell"`
	TermEnv string `toml:"term_env"`
	// IMEDisabledApps lists process basenames that auto-disable the IME.
	IMEDisabledApps []string `toml:"ime_disabled_apps"`
}

// KeybindConfig maps actions to chord strings. Each field accepts a single
// chord or a list of chords in TOML.
type KeybindConfig struct {
	Copy         ChordList `toml:"copy"`
	Paste        ChordList `toml:"paste"`
	Screenshot   ChordList `toml:"screenshot"`
	Search       ChordList `toml:"search"`
	CopyMode     ChordList `toml:"copy_mode"`
	FontIncrease ChordList `toml:"font_increase"`
	FontDecrease ChordList `toml:"font_decrease"`
	FontReset    ChordList `toml:"font_reset"`
	ScrollUp     ChordList `toml:"scroll_up"`
	ScrollDown   ChordList `toml:"scroll_down"`
	IMEToggle    ChordList `toml:"ime_toggle"`
}

// ChordList accepts either "ctrl+c" or ["ctrl+c", "ctrl+shift+c"] in TOML.
type ChordList []string

// UnmarshalTOML implements toml.Unmarshaler.
func (c *ChordList) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*c = ChordList{val}
	case []interface{}:
		out := make(ChordList, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return trace.BadParameter("keybind entries must be strings, got %T", item)
			}
			out = append(out, s)
		}
		*c = out
	default:
		return trace.BadParameter("keybind must be a string or list of strings, got %T", v)
	}
	return nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Font: FontConfig{
			Size:              16.0,
			RenderMode:        "lcd",
			LCDFilter:         "default",
			Subpixel:          "auto",
			Gamma:             1.0,
			Contrast:          1.0,
			SubpixelPositions: true,
			Hinting:           "light",
		},
		Paths: PathConfig{
			ScreenshotDir: "~/Pictures",
			ClipboardFile: "/tmp/crucible-clipboard",
		},
		Keybinds: KeybindConfig{
			Copy:         ChordList{"ctrl+shift+c"},
			Paste:        ChordList{"ctrl+shift+v"},
			Screenshot:   ChordList{"ctrl+shift+s"},
			Search:       ChordList{"ctrl+shift+f"},
			CopyMode:     ChordList{"ctrl+shift+space"},
			FontIncrease: ChordList{"ctrl+plus", "ctrl+equal"},
			FontDecrease: ChordList{"ctrl+minus"},
			FontReset:    ChordList{"ctrl+0"},
			ScrollUp:     ChordList{"shift+pageup"},
			ScrollDown:   ChordList{"shift+pagedown"},
			IMEToggle:    ChordList{"ctrl+space"},
		},
		Appearance: AppearanceConfig{
			Background:    "#0d101a",
			Foreground:    "#e8edf7",
			Cursor:        "#a2e0c7",
			Selection:     "#74b6ff",
			CursorOpacity: 1.0,
		},
		Terminal: TerminalConfig{
			ScrollbackLines: 10000,
			Bell:            "visual",
			TermEnv:         "xterm-256color",
			IMEDisabledApps: []string{"vim", "nvim", "emacs"},
		},
	}
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "crucible", "config.toml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "crucible.toml"
	}
	return filepath.Join(homeDir, ".config", "crucible", "config.toml")
}

// Load reads the config file, falling back to defaults when it is missing
// or malformed.
func Load() *Config {
	cfg, err := LoadFrom(ConfigPath())
	if err != nil {
		logrus.WithError(err).Warn("using default configuration")
		return DefaultConfig()
	}
	return cfg
}

// LoadFrom reads and validates a config file at an explicit path. Values
// absent from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, nil
		}
		return nil, trace.ConvertSystemError(err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, trace.Wrap(err, "parsing %s", path)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Font.Size <= 0 {
		c.Font.Size = 16.0
	}
	if c.Terminal.ScrollbackLines < 0 {
		c.Terminal.ScrollbackLines = 0
	}
	if c.Appearance.CursorOpacity <= 0 || c.Appearance.CursorOpacity > 1 {
		c.Appearance.CursorOpacity = 1.0
	}
	switch c.Font.RenderMode {
	case "grayscale", "lcd":
	default:
		c.Font.RenderMode = "lcd"
	}
	switch c.Font.Hinting {
	case "normal", "light", "none":
	default:
		c.Font.Hinting = "light"
	}
	if c.Font.LCDFilter == "custom" && len(c.Font.LCDWeights) != 5 {
		c.Font.LCDFilter = "default"
		c.Font.LCDWeights = nil
	}
	switch c.Terminal.Bell {
	case "visual", "none":
	default:
		c.Terminal.Bell = "visual"
	}
	c.Paths.ScreenshotDir = ExpandPath(c.Paths.ScreenshotDir)
	c.Paths.ClipboardFile = ExpandPath(c.Paths.ClipboardFile)
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
