package main

import (
	"time"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

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

// frameTick paces the render loop when no event wakes it earlier.
const frameTick = 16 * time.Millisecond

// maxConsecutiveSwapFailures is the device-error exit threshold.
const maxConsecutiveSwapFailures = 3

// App owns the grid, parser, renderer, and every device. Nothing else may
// touch them; all events funnel into the single run loop.
type App struct {
	cfg *config.Config

	grid   *grid.Grid
	parser *parser.Parser
	pty    *shell.PtySession

	backend session.Backend
	vtb     *session.VTBackend // non-nil for the direct backend

	dev      *drm.Device
	ctx      *gpu.Context
	renderer *gpu.Renderer
	store    *gpu.Store
	hotplug  *drm.HotplugWatcher

	glyphs *font.Cache
	emoji  *font.EmojiAtlas
	shaper *font.Shaper

	mainFontData []byte
	cjkFontData  []byte

	inputs   *input.Manager
	bindings *input.Bindings
	repeat   *input.RepeatTracker
	imec     *ime.Client
	clip     *clipboard.Store

	fontSize     float32
	baseFontSize float32

	// Session/display state.
	active       bool
	swapFailures int

	// Page flip bookkeeping: fb ids cached per GBM handle, and the buffer
	// on scanout.
	fbIDs       map[uint32]uint32
	onScreen    *gpu.FrontBuffer
	pendingBuf  *gpu.FrontBuffer
	pendingFlip bool
	modesetDone bool

	// Presentation gating for synchronized update.
	needPresent bool

	// Selection / modal state.
	sel       selectionState
	search    searchState
	copyMode  copyModeState
	preedit   *gpu.Preedit
	cands     *gpu.Candidates

	// Mouse pointer in pixels, and the button held for drag reporting.
	mouseX, mouseY float32
	mouseMoved     time.Time
	buttonHeld     input.MouseButton

	bellUntil  time.Time
	blinkEpoch time.Time

	// Channels feeding the loop.
	ptyCh   chan []byte
	ptyErr  chan error
	fdReady chan fdEvent

	log *logrus.Entry
}

type fdEvent int

const (
	fdSession fdEvent = iota
	fdHotplug
	fdDRM
)

// startPtyReader pumps PTY bytes into the loop. Bytes from one read are
// fed to the parser before any input-derived mutation observes the grid.
func (a *App) startPtyReader() {
	a.ptyCh = make(chan []byte, 64)
	a.ptyErr = make(chan error, 1)
	go func() {
		buf := make([]byte, 65536)
		for {
			n, err := a.pty.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				a.ptyCh <- chunk
			}
			if err != nil {
				a.ptyErr <- err
				return
			}
		}
	}()
}

// startFdWatcher polls the session, hotplug, and DRM fds and surfaces
// readiness as channel events, so the run loop can select over everything.
func (a *App) startFdWatcher() {
	a.fdReady = make(chan fdEvent, 16)
	fds := []struct {
		fd int
		ev fdEvent
	}{
		{a.backend.Fd(), fdSession},
		{a.hotplug.Fd(), fdHotplug},
		{a.dev.Fd(), fdDRM},
	}
	go func() {
		pollFds := make([]unix.PollFd, len(fds))
		for i, f := range fds {
			pollFds[i] = unix.PollFd{Fd: int32(f.fd), Events: unix.POLLIN}
		}
		for {
			n, err := unix.Poll(pollFds, 500)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return
			}
			if n == 0 {
				continue
			}
			for i := range pollFds {
				if pollFds[i].Revents&unix.POLLIN != 0 {
					select {
					case a.fdReady <- fds[i].ev:
					default:
					}
				}
			}
		}
	}()
}

// Run is the main loop: fan in PTY, input, IME, session, hotplug, and the
// frame tick; every path ends in PTY bytes, grid mutations, or a dirty
// mark.
func (a *App) Run() error {
	a.startPtyReader()
	a.startFdWatcher()
	a.blinkEpoch = time.Now()

	ticker := time.NewTicker(frameTick)
	defer ticker.Stop()

	var imeUpdates <-chan ime.Update
	if a.imec != nil {
		imeUpdates = a.imec.Updates()
	}

	for {
		if session.ShutdownRequested() {
			return nil
		}
		select {
		case chunk := <-a.ptyCh:
			a.handlePtyBytes(chunk)
			// Drain follow-up chunks before rendering.
			for drained := false; !drained; {
				select {
				case more := <-a.ptyCh:
					a.handlePtyBytes(more)
				default:
					drained = true
				}
			}
		case err := <-a.ptyErr:
			a.log.WithError(err).Info("PTY closed, shutting down")
			return nil
		case ev := <-a.inputs.Events():
			a.handleInput(ev)
		case u := <-imeUpdates:
			a.handleIMEUpdate(u)
		case fd := <-a.fdReady:
			switch fd {
			case fdSession:
				if err := a.handleSessionEvents(); err != nil {
					return trace.Wrap(err)
				}
			case fdHotplug:
				a.handleHotplug()
			case fdDRM:
				a.handleDRMEvents()
			}
		case now := <-ticker.C:
			a.handleTick(now)
		}

		if err := a.maybeRender(); err != nil {
			return trace.Wrap(err)
		}
	}
}

func (a *App) handlePtyBytes(chunk []byte) {
	a.parser.Process(chunk)
	// New output snaps out of scrollback view and drops the selection.
	a.grid.ResetView()
	if a.sel.sel.Active {
		a.sel.clear(a.grid)
	}
	if a.grid.TakeBell() {
		a.triggerBell()
	}
}

func (a *App) triggerBell() {
	if a.cfg.Terminal.Bell == "visual" {
		a.bellUntil = time.Now().Add(150 * time.Millisecond)
		a.grid.MarkAllDirty()
	}
}

func (a *App) handleTick(now time.Time) {
	for _, ev := range a.repeat.Tick(now) {
		a.dispatchKey(ev)
	}
	// While the cursor blinks or the bell flashes, the cursor row is marked
	// dirty on every tick.
	if a.grid.Cursor.Blink || a.bellActive(now) {
		a.grid.MarkDirty(a.grid.Cursor.Row)
	}
}

func (a *App) bellActive(now time.Time) bool {
	return now.Before(a.bellUntil)
}

// cursorOn computes the blink phase (600ms half-period).
func (a *App) cursorOn(now time.Time) bool {
	if !a.grid.Cursor.Blink {
		return true
	}
	return (now.Sub(a.blinkEpoch)/(600*time.Millisecond))%2 == 0
}

func (a *App) handleSessionEvents() error {
	events, err := a.backend.Dispatch()
	if err != nil {
		return trace.Wrap(err)
	}
	for _, ev := range events {
		switch ev {
		case session.EventDisable:
			a.log.Info("session disabled, releasing devices")
			a.sendFocus(false)
			a.repeat.Stop()
			if err := a.dev.DropMaster(); err != nil {
				a.log.WithError(err).Warn("dropping DRM master")
			}
			a.active = false
			if err := a.backend.AckRelease(); err != nil {
				a.log.WithError(err).Warn("acknowledging release")
			}
		case session.EventEnable:
			a.log.Info("session enabled, reclaiming devices")
			if err := a.dev.SetMaster(); err != nil {
				a.log.WithError(err).Warn("acquiring DRM master")
			}
			// GPU state may be gone after suspend: invalidate atlases,
			// image textures, and the FBO; repaint everything.
			a.renderer.InvalidateGPUState()
			a.grid.MarkAllDirty()
			a.modesetDone = false
			a.active = true
			if err := a.backend.AckAcquire(); err != nil {
				a.log.WithError(err).Warn("acknowledging acquire")
			}
			a.sendFocus(true)
		}
	}
	return nil
}

// sendFocus reports focus transitions when the application asked for them.
func (a *App) sendFocus(in bool) {
	if !a.grid.Modes().FocusEvents {
		return
	}
	if in {
		a.writePty([]byte("\x1b[I"))
	} else {
		a.writePty([]byte("\x1b[O"))
	}
}

func (a *App) handleHotplug() {
	if !a.hotplug.Drain() {
		return
	}
	connectors, err := a.dev.Connectors()
	if err != nil {
		a.log.WithError(err).Warn("re-enumerating connectors after hotplug")
		return
	}
	conn, err := drm.PickConnector(connectors, true)
	if err != nil {
		a.log.Info("no display connected, keeping current configuration")
		return
	}
	mode, err := drm.PickMode(conn)
	if err != nil {
		return
	}
	cur := a.dev.ActiveMode()
	if mode.Width == cur.Width && mode.Height == cur.Height {
		// Same resolution: swap seamlessly on the next frame.
		if err := a.dev.Modeset(conn, mode, 0); err == nil {
			a.modesetDone = false
			a.grid.MarkAllDirty()
		}
		return
	}
	a.log.WithFields(logrus.Fields{
		"connector": conn.TypeName(),
		"mode":      mode.Name(),
	}).Info("display changed resolution; keeping existing configuration")
}

func (a *App) handleDRMEvents() {
	flipDone, err := a.dev.ReadEvents()
	if err != nil {
		a.log.WithError(err).Debug("reading DRM events")
		return
	}
	if flipDone && a.pendingFlip {
		a.pendingFlip = false
		// The previous scanout buffer is free again.
		if a.onScreen != nil {
			a.ctx.ReleaseBuffer(a.onScreen)
		}
		a.onScreen = a.pendingBuf
		a.pendingBuf = nil
		a.grid.ClearDirty()
	}
}

func (a *App) writePty(b []byte) {
	if len(b) == 0 {
		return
	}
	if _, err := a.pty.Write(b); err != nil {
		a.log.WithError(err).Debug("PTY write failed")
	}
}

// maybeRender produces a frame when the dirty state or time-driven
// overlays require one. Presentation is suppressed while a synchronized
// update is open, while the session is inactive, or while a flip is in
// flight.
func (a *App) maybeRender() error {
	if !a.active || a.pendingFlip {
		return nil
	}
	now := time.Now()
	fs := a.frameState(now)
	if !a.renderer.NeedsFrame(fs) && !a.needPresent {
		return nil
	}

	a.renderer.RenderFrame(fs)

	if a.grid.Modes().SyncUpdate {
		// Render proceeded, but the swap is held until the mode closes.
		a.needPresent = true
		return nil
	}
	a.needPresent = false

	if err := a.present(); err != nil {
		a.swapFailures++
		a.log.WithError(err).Warn("frame presentation failed")
		if a.swapFailures >= maxConsecutiveSwapFailures {
			return trace.Wrap(err, "giving up after %d consecutive presentation failures", a.swapFailures)
		}
		return nil
	}
	a.swapFailures = 0
	return nil
}

// present swaps, wraps the front buffer as a DRM framebuffer, and either
// modesets (first frame, resume) or schedules a page flip.
func (a *App) present() error {
	if err := a.ctx.SwapBuffers(); err != nil {
		return trace.Wrap(err)
	}
	buf, err := a.ctx.LockFrontBuffer()
	if err != nil {
		return trace.Wrap(err)
	}
	fbID, ok := a.fbIDs[buf.Handle]
	if !ok {
		fbID, err = a.dev.AddFB(buf.Width, buf.Height, buf.Stride, buf.Handle)
		if err != nil {
			a.ctx.ReleaseBuffer(buf)
			return trace.Wrap(err)
		}
		a.fbIDs[buf.Handle] = fbID
	}

	if !a.modesetDone {
		connectors, err := a.dev.Connectors()
		if err != nil {
			a.ctx.ReleaseBuffer(buf)
			return trace.Wrap(err)
		}
		conn, err := drm.PickConnector(connectors, true)
		if err != nil {
			a.ctx.ReleaseBuffer(buf)
			return trace.Wrap(err)
		}
		mode := a.dev.ActiveMode()
		if err := a.dev.Modeset(conn, mode, fbID); err != nil {
			a.ctx.ReleaseBuffer(buf)
			return trace.Wrap(err)
		}
		a.modesetDone = true
		if a.onScreen != nil {
			a.ctx.ReleaseBuffer(a.onScreen)
		}
		a.onScreen = buf
		a.grid.ClearDirty()
		return nil
	}

	if err := a.dev.PageFlip(fbID); err != nil {
		a.ctx.ReleaseBuffer(buf)
		return trace.Wrap(err)
	}
	a.pendingBuf = buf
	a.pendingFlip = true
	return nil
}

func (a *App) frameState(now time.Time) *gpu.FrameState {
	bell := float32(0)
	if a.bellActive(now) {
		bell = 1
	}
	sel := a.sel.sel
	if a.copyMode.active && a.copyMode.sel.Active {
		sel = a.copyMode.sel
	}
	fs := &gpu.FrameState{
		Grid:         a.grid,
		Selection:    sel,
		Matches:      a.search.matches,
		CurrentMatch: a.search.current,
		SearchActive: a.search.active,
		SearchQuery:  a.search.query,
		CopyMode:     a.copyMode.active,
		StatusLine:   a.statusLine(),
		Preedit:      a.preedit,
		Candidates:   a.cands,
		BellFlash:    bell,
		CursorOn:     a.cursorOn(now),
		MouseX:       a.mouseX,
		MouseY:       a.mouseY,
		MouseVisible: now.Sub(a.mouseMoved) < 3*time.Second,
	}
	if a.copyMode.active {
		fs.CopyModeCursor = grid.Cursor{Row: a.copyMode.row, Col: a.copyMode.col}
	}
	return fs
}

func (a *App) statusLine() string {
	if a.copyMode.active {
		title := a.grid.Title
		if title == "" {
			title = "copy mode"
		}
		return "-- COPY -- " + title
	}
	return ""
}

// resizeGrid applies a new cell geometry after font or display changes.
func (a *App) resizeGrid() {
	cols, rows := a.renderer.GridSize()
	if cols <= 0 || rows <= 0 {
		return
	}
	a.grid.Resize(cols, rows)
	cw, ch := a.renderer.CellSize()
	a.parser.SetCellSize(cw, ch)
	if err := a.pty.Resize(uint16(cols), uint16(rows)); err != nil {
		a.log.WithError(err).Warn("resizing PTY")
	}
}
