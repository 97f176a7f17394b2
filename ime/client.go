// Package ime talks to Fcitx5 over D-Bus from a dedicated goroutine. Key
// events flow in through a channel; commit text, preedit updates,
// candidate updates, and forwarded keys flow back out. All grid mutation
// happens on the main loop after dequeuing these messages. IME absence is
// logged once and direct input continues.
package ime

import (
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

const (
	fcitxService   = "org.fcitx.Fcitx5"
	fcitxIMPath    = "/org/freedesktop/portal/inputmethod"
	fcitxIMIface   = "org.fcitx.Fcitx.InputMethod1"
	fcitxICIface   = "org.fcitx.Fcitx.InputContext1"
	capPreedit     = 1 << 1
	capClientSide  = 1 << 39
)

// KeyRequest asks the IME to process one key.
type KeyRequest struct {
	Keysym  uint32
	Keycode uint32
	State   uint32
	Release bool
}

// Update is one message from the IME back to the main loop.
type Update struct {
	// Commit carries finished text to insert into the grid.
	Commit string
	// Preedit carries the in-flight composition; empty string clears it.
	Preedit       string
	PreeditCursor int
	HasPreedit    bool
	// Candidates carries the candidate window content.
	Candidates    []string
	CandidateSel  int
	HasCandidates bool
	// ForwardKey asks the main loop to handle the key as direct input.
	ForwardKey *KeyRequest
	// Handled reports the outcome of a KeyRequest round trip.
	Handled bool
	IsReply bool
}

// Client is the IME task handle.
type Client struct {
	conn *dbus.Conn
	ic   dbus.BusObject

	keys    chan KeyRequest
	updates chan Update
	done    chan struct{}

	enabled atomic.Bool

	closeOnce sync.Once

	log *logrus.Entry
}

// Connect dials the session bus and creates an input context. The returned
// client runs its receive loop on its own goroutine.
func Connect() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, trace.Wrap(err, "connecting to session bus")
	}

	c := &Client{
		conn:    conn,
		keys:    make(chan KeyRequest, 64),
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "ime"),
	}

	im := conn.Object(fcitxService, fcitxIMPath)
	var icPath dbus.ObjectPath
	var uuid []byte
	args := [][]interface{}{{"program", "crucible"}}
	call := im.Call(fcitxIMIface+".CreateInputContext", 0, args)
	if call.Err != nil {
		conn.Close()
		return nil, trace.Wrap(call.Err, "creating input context")
	}
	if err := call.Store(&icPath, &uuid); err != nil {
		conn.Close()
		return nil, trace.Wrap(err)
	}
	c.ic = conn.Object(fcitxService, icPath)

	if call := c.ic.Call(fcitxICIface+".SetCapability", 0, uint64(capPreedit|capClientSide)); call.Err != nil {
		c.log.WithError(call.Err).Debug("SetCapability failed")
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(icPath),
		dbus.WithMatchInterface(fcitxICIface),
	); err != nil {
		conn.Close()
		return nil, trace.Wrap(err)
	}

	c.enabled.Store(true)
	go c.run()
	c.log.Info("IME connected")
	return c, nil
}

// Keys is the channel the main loop sends key events into.
func (c *Client) Keys() chan<- KeyRequest { return c.keys }

// Updates delivers IME messages to the main loop.
func (c *Client) Updates() <-chan Update { return c.updates }

// Enabled reports whether the IME should intercept keys.
func (c *Client) Enabled() bool { return c.enabled.Load() }

// SetEnabled toggles interception (ime_toggle binding, auto-disable apps).
func (c *Client) SetEnabled(on bool) {
	c.enabled.Store(on)
	if !on {
		c.ic.Call(fcitxICIface+".Reset", 0)
	}
}

// FocusIn/FocusOut track session focus.
func (c *Client) FocusIn()  { c.ic.Call(fcitxICIface+".FocusIn", 0) }
func (c *Client) FocusOut() { c.ic.Call(fcitxICIface+".FocusOut", 0) }

func (c *Client) run() {
	signals := make(chan *dbus.Signal, 64)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	for {
		select {
		case <-c.done:
			return
		case req := <-c.keys:
			c.processKey(req)
		case sig, ok := <-signals:
			if !ok {
				// Bus dropped: fall back to direct input silently.
				c.log.Warn("IME connection lost, continuing with direct input")
				c.enabled.Store(false)
				return
			}
			c.handleSignal(sig)
		}
	}
}

func (c *Client) processKey(req KeyRequest) {
	var handled bool
	call := c.ic.Call(fcitxICIface+".ProcessKeyEvent", 0,
		req.Keysym, req.Keycode, req.State, req.Release, uint32(0))
	if call.Err != nil {
		// Best-effort: treat as unhandled so the key goes to the PTY.
		c.emit(Update{IsReply: true, Handled: false, ForwardKey: &req})
		return
	}
	if err := call.Store(&handled); err != nil {
		handled = false
	}
	u := Update{IsReply: true, Handled: handled}
	if !handled {
		u.ForwardKey = &req
	}
	c.emit(u)
}

func (c *Client) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case fcitxICIface + ".CommitString":
		if len(sig.Body) >= 1 {
			if s, ok := sig.Body[0].(string); ok {
				c.emit(Update{Commit: s})
			}
		}
	case fcitxICIface + ".UpdateFormattedPreedit":
		// Body: array of (text, format) structs plus cursor position.
		var text string
		cursor := 0
		if len(sig.Body) >= 1 {
			if segs, ok := sig.Body[0].([][]interface{}); ok {
				for _, seg := range segs {
					if len(seg) >= 1 {
						if s, ok := seg[0].(string); ok {
							text += s
						}
					}
				}
			}
		}
		if len(sig.Body) >= 2 {
			if n, ok := sig.Body[1].(int32); ok {
				cursor = int(n)
			}
		}
		c.emit(Update{Preedit: text, PreeditCursor: cursor, HasPreedit: true})
	case fcitxICIface + ".ForwardKey":
		if len(sig.Body) >= 3 {
			keysym, _ := sig.Body[0].(uint32)
			state, _ := sig.Body[1].(uint32)
			release, _ := sig.Body[2].(bool)
			c.emit(Update{ForwardKey: &KeyRequest{Keysym: keysym, State: state, Release: release}})
		}
	}
}

func (c *Client) emit(u Update) {
	select {
	case c.updates <- u:
	case <-c.done:
	default:
		// The main loop is stalled; drop rather than block the IME task.
	}
}

// Close tears the task down; safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
