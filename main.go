package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/crucible-term/crucible/clipboard"
	"github.com/crucible-term/crucible/config"
	"github.com/crucible-term/crucible/drm"
	"github.com/crucible-term/crucible/font"
	"github.com/crucible-term/crucible/gpu"
	"github.com/crucible-term/crucible/grid"
	"github.com/crucible-term/crucible/ime"
	"github.com/crucible-term/crucible/input"
	"github.com/crucible-term/crucible/parser"
	"github.com/crucible-term/crucible/session"
	"github.com/crucible-term/crucible/shell"
)

func init() {
	// The EGL context is bound to the main thread for the process
	// lifetime.
	runtime.LockOSThread()
}

func main() {
	setupLogging()

	for _, arg := range os.Args[1:] {
		if arg == "--init-config" || strings.HasPrefix(arg, "--init-config=") {
			preset := strings.TrimPrefix(arg, "--init-config")
			preset = strings.TrimPrefix(preset, "=")
			path, err := config.WriteTemplate(preset)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println("wrote", path)
			os.Exit(0)
		}
		if arg == "--help" || arg == "-h" {
			fmt.Println("usage: crucible [--init-config[=default|emacs|vim]]")
			os.Exit(0)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "crucible:", err)
		os.Exit(1)
	}
}

func setupLogging() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	level := logrus.InfoLevel
	if l, err := logrus.ParseLevel(os.Getenv("CRUCIBLE_LOG")); err == nil {
		level = l
	}
	logrus.SetLevel(level)
}

func run() error {
	defer session.HandlePanic()

	cfg := config.Load()
	session.InstallShutdownHandler()

	app := &App{
		cfg:        cfg,
		fbIDs:      make(map[uint32]uint32),
		buttonHeld: input.MouseRelease,
		log:        logrus.WithField("component", "main"),
	}

	// 1. Session backend: seatd when its socket is reachable, otherwise
	// direct VT ioctls.
	backend, vtb, err := openSessionBackend()
	if err != nil {
		return trace.Wrap(err)
	}
	app.backend = backend
	app.vtb = vtb
	defer backend.Close()

	if vtb != nil {
		session.InstallPanicHook(vtb.RestoreTextMode)
		defer session.ClearPanicHook()
	}

	// 2. DRM device, connector, and mode.
	cardPath, err := drm.FindCard()
	if err != nil {
		return trace.Wrap(err)
	}
	dev, err := drm.Open(cardPath, backend.OpenDevice)
	if err != nil {
		return trace.Wrap(err, "opening %s", cardPath)
	}
	app.dev = dev
	defer dev.Close()
	if err := dev.SetMaster(); err != nil {
		app.log.WithError(err).Debug("not DRM master yet (mediated session)")
	}
	defer dev.RestoreCrtc()

	connectors, err := dev.Connectors()
	if err != nil {
		return trace.Wrap(err)
	}
	conn, err := drm.PickConnector(connectors, true)
	if err != nil {
		return trace.Wrap(err)
	}
	mode, err := drm.PickMode(conn)
	if err != nil {
		return trace.Wrap(err)
	}
	app.log.WithFields(logrus.Fields{
		"connector": conn.TypeName(),
		"mode":      mode.Name(),
	}).Info("selected display")
	// Record the chosen connector and mode; the first present performs
	// the actual modeset with a real framebuffer.
	if err := dev.Modeset(conn, mode, 0); err != nil {
		app.log.WithError(err).Debug("initial modeset deferred to first frame")
	}

	// 3. EGL/GBM context and GL bindings.
	ctx, err := gpu.NewContext(dev.Fd(), mode.Width, mode.Height)
	if err != nil {
		return trace.Wrap(err)
	}
	app.ctx = ctx
	defer ctx.Destroy()
	if err := gl.InitWithProcAddrFunc(ctx.GetProcAddress); err != nil {
		return trace.Wrap(err, "loading GL")
	}

	// 4. Fonts, atlases, shaper, renderer.
	if err := app.initFonts(); err != nil {
		return trace.Wrap(err)
	}
	theme, err := themeFromConfig(cfg)
	if err != nil {
		return trace.Wrap(err)
	}
	app.store = gpu.NewStore()
	renderer, err := gpu.NewRenderer(mode.Width, mode.Height, app.glyphs, app.emoji, app.shaper, app.store, theme)
	if err != nil {
		return trace.Wrap(err)
	}
	app.renderer = renderer
	defer renderer.Release()

	// 5. Grid, parser, clipboard, PTY.
	cols, rows := renderer.GridSize()
	app.grid = grid.NewGrid(cols, rows)
	app.grid.SetMaxScrollback(cfg.Terminal.ScrollbackLines)
	app.clip = clipboard.NewStore(cfg.Paths.ClipboardFile)
	defer app.clip.Remove()

	app.parser = parser.NewParser(app.grid)
	app.parser.SetClipboard(app.clip)
	app.parser.SetImageStore(app.store)
	cw, ch := renderer.CellSize()
	app.parser.SetCellSize(cw, ch)

	pty, err := shell.NewPtySession(uint16(cols), uint16(rows), shell.Options{TermEnv: cfg.Terminal.TermEnv})
	if err != nil {
		return trace.Wrap(err)
	}
	app.pty = pty
	defer pty.Close()
	app.parser.SetResponseWriter(func(b []byte) { app.writePty(b) })

	// 6. Input devices and key repeat.
	layout := input.NewLayout(input.LayoutOptions{})
	inputs, err := input.NewManager(layout)
	if err != nil {
		return trace.Wrap(err)
	}
	app.inputs = inputs
	defer inputs.Close()
	app.bindings = input.NewBindings(cfg.Keybinds)
	app.repeat = input.NewRepeatTracker(400*time.Millisecond, 25)

	// 7. Hotplug watcher.
	hotplug, err := drm.NewHotplugWatcher()
	if err != nil {
		return trace.Wrap(err)
	}
	app.hotplug = hotplug
	defer hotplug.Close()

	// 8. IME, best effort.
	if imec, err := ime.Connect(); err != nil {
		app.log.WithError(err).Info("IME unavailable, continuing with direct input")
	} else {
		app.imec = imec
		defer imec.Close()
	}

	app.active = true
	app.log.Info("entering main loop")
	err = app.Run()

	// Shutdown: text mode restore, CRTC restore, and clipboard removal
	// run in the defers above.
	return trace.Wrap(err)
}

// openSessionBackend prefers seatd, falling back to direct VT control.
func openSessionBackend() (session.Backend, *session.VTBackend, error) {
	if b, err := session.NewSeatdBackend(); err == nil {
		return b, nil, nil
	} else {
		logrus.WithError(err).Debug("seatd unavailable, trying direct VT")
	}
	vtb, err := session.NewVTBackend(session.ShutdownRequested)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return vtb, vtb, nil
}

// initFonts loads the configured or discovered fonts and builds the glyph
// pipeline.
func (a *App) initFonts() error {
	cfg := a.cfg
	a.fontSize = cfg.Font.Size
	a.baseFontSize = cfg.Font.Size

	mainPath := cfg.Font.Main
	if mainPath == "" {
		p, err := font.DiscoverMain()
		if err != nil {
			return trace.Wrap(err)
		}
		mainPath = p
	}
	cjkPath := cfg.Font.CJK
	if cjkPath == "" {
		cjkPath = font.DiscoverCJK()
	}
	emojiPath := cfg.Font.Emoji
	if emojiPath == "" {
		emojiPath = font.DiscoverEmoji()
	}

	mainData, err := os.ReadFile(mainPath)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	a.mainFontData = mainData
	if cjkPath != "" {
		if data, err := os.ReadFile(cjkPath); err == nil {
			a.cjkFontData = data
		}
	}

	if err := a.rebuildFonts(a.fontSize); err != nil {
		return trace.Wrap(err)
	}

	if shaper, err := font.NewShaper(mainData); err != nil {
		a.log.WithError(err).Warn("shaping disabled")
	} else {
		a.shaper = shaper
	}

	m := a.glyphs.Metrics()
	if emojiPath != "" {
		if data, err := os.ReadFile(emojiPath); err == nil {
			emoji, err := font.NewEmojiAtlas(data, 2048, m.CellWidth, m.CellHeight)
			if err != nil {
				a.log.WithError(err).Warn("emoji font unusable")
			} else {
				a.emoji = emoji
			}
		}
	}
	if a.emoji == nil {
		// Fall back to the main font so the emoji pass still has an
		// atlas to draw monochrome glyphs from.
		emoji, err := font.NewEmojiAtlas(a.mainFontData, 1024, m.CellWidth, m.CellHeight)
		if err != nil {
			return trace.Wrap(err, "building emoji atlas")
		}
		a.emoji = emoji
	}
	return nil
}

// rebuildFonts (re)creates the faces and glyph cache at a pixel size.
func (a *App) rebuildFonts(size float32) error {
	hinting := font.HintingLight
	switch a.cfg.Font.Hinting {
	case "normal":
		hinting = font.HintingNormal
	case "none":
		hinting = font.HintingNone
	}

	mainFace, err := font.NewFaceFromData(a.mainFontData, size, hinting)
	if err != nil {
		return trace.Wrap(err, "loading main font")
	}
	var cjkFace *font.Face
	if a.cjkFontData != nil {
		if f, err := font.NewFaceFromData(a.cjkFontData, size, hinting); err == nil {
			cjkFace = f
		}
	}

	if a.glyphs == nil {
		mode := font.RenderGrayscale
		atlasFormat := font.FormatR8
		if a.cfg.Font.RenderMode == "lcd" {
			mode = font.RenderLCD
			atlasFormat = font.FormatRGB8
		}
		lcd := font.LCDOptions{
			Filter:          font.FilterByName(a.cfg.Font.LCDFilter, a.cfg.Font.LCDWeights),
			Order:           font.OrderByName(a.cfg.Font.Subpixel),
			Gamma:           a.cfg.Font.Gamma,
			Contrast:        a.cfg.Font.Contrast,
			StemDarkening:   a.cfg.Font.StemDarkening,
			FringeReduction: a.cfg.Font.FringeReduction,
		}
		chain := font.NewFallbackChain(mainFace, cjkFace)
		atlas := font.NewAtlas(2048, atlasFormat)
		a.glyphs = font.NewCache(chain, atlas, mode, lcd, a.cfg.Font.SubpixelPositions)
		return nil
	}

	chain := a.glyphs.Chain()
	chain.Main = mainFace
	chain.CJK = cjkFace
	a.glyphs.Reset()
	return nil
}

// themeFromConfig parses the appearance hex colors.
func themeFromConfig(cfg *config.Config) (gpu.Theme, error) {
	parse := func(s string, what string) (gpu.RGBA, error) {
		r, g, b, ok := parser.ParseColorSpec(s)
		if !ok {
			return gpu.RGBA{}, trace.BadParameter("invalid %s color %q", what, s)
		}
		return gpu.FromBytes(r, g, b, 1), nil
	}
	bg, err := parse(cfg.Appearance.Background, "background")
	if err != nil {
		return gpu.Theme{}, err
	}
	fg, err := parse(cfg.Appearance.Foreground, "foreground")
	if err != nil {
		return gpu.Theme{}, err
	}
	cur, err := parse(cfg.Appearance.Cursor, "cursor")
	if err != nil {
		return gpu.Theme{}, err
	}
	sel, err := parse(cfg.Appearance.Selection, "selection")
	if err != nil {
		return gpu.Theme{}, err
	}
	sel[3] = 0.35
	return gpu.Theme{
		Background:    bg,
		Foreground:    fg,
		Cursor:        cur,
		Selection:     sel,
		CursorOpacity: cfg.Appearance.CursorOpacity,
	}, nil
}
