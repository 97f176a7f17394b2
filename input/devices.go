package input

import (
	"strings"
	"sync"

	"github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"

	"github.com/gravitational/trace"
)

// Event is the union of device events delivered to the main loop.
type Event struct {
	Key *KeyEvent
	Rel *RelEvent
	Btn *ButtonEvent
}

// RelEvent is relative pointer motion or wheel movement.
type RelEvent struct {
	DX, DY int32
	Wheel  int32
}

// ButtonEvent is a physical mouse button transition.
type ButtonEvent struct {
	Button MouseButton
	Press  bool
}

// Manager enumerates evdev devices, tracks modifier state, and fans all
// device events into a single channel consumed by the main loop.
type Manager struct {
	layout *Layout

	mu      sync.Mutex
	devices map[string]*evdev.InputDevice
	mods    Modifiers

	events chan Event
	done   chan struct{}

	log *logrus.Entry
}

// NewManager opens every usable input device. It fails only when no
// keyboard could be opened at all.
func NewManager(layout *Layout) (*Manager, error) {
	m := &Manager{
		layout:  layout,
		devices: make(map[string]*evdev.InputDevice),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "input"),
	}

	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, trace.Wrap(err, "enumerating input devices")
	}
	keyboards := 0
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			m.log.WithError(err).WithField("path", p.Path).Debug("skipping device")
			continue
		}
		if !usableDevice(dev) {
			dev.Close()
			continue
		}
		if isKeyboard(dev) {
			keyboards++
		}
		m.devices[p.Path] = dev
		go m.readLoop(p.Path, dev)
	}
	if keyboards == 0 {
		m.Close()
		return nil, trace.NotFound("no keyboard device found")
	}
	return m, nil
}

// Events returns the fan-in channel.
func (m *Manager) Events() <-chan Event { return m.events }

// Modifiers returns the current modifier snapshot.
func (m *Manager) Modifiers() Modifiers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mods
}

// Close releases all devices.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	for path, dev := range m.devices {
		dev.Close()
		delete(m.devices, path)
	}
}

func usableDevice(dev *evdev.InputDevice) bool {
	return isKeyboard(dev) || isPointer(dev)
}

func isKeyboard(dev *evdev.InputDevice) bool {
	for _, t := range dev.CapableTypes() {
		if t == evdev.EV_KEY {
			// Require a letter key so power buttons do not qualify.
			for _, code := range dev.CapableEvents(evdev.EV_KEY) {
				if code == evdev.KEY_A {
					return true
				}
			}
		}
	}
	return false
}

func isPointer(dev *evdev.InputDevice) bool {
	for _, t := range dev.CapableTypes() {
		if t == evdev.EV_REL {
			return true
		}
	}
	return false
}

func (m *Manager) readLoop(path string, dev *evdev.InputDevice) {
	name, _ := dev.Name()
	m.log.WithField("device", strings.TrimSpace(name)).Debug("reading input device")
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			select {
			case <-m.done:
			default:
				m.log.WithError(err).WithField("path", path).Debug("device read ended")
			}
			return
		}
		switch ev.Type {
		case evdev.EV_KEY:
			m.handleKey(uint16(ev.Code), ev.Value)
		case evdev.EV_REL:
			m.handleRel(uint16(ev.Code), ev.Value)
		}
	}
}

// handleKey updates modifier state and emits key or button events. Value 2
// is the kernel's autorepeat, which is ignored: repeat is synthesized by
// RepeatTracker with configured delay/rate.
func (m *Manager) handleKey(code uint16, value int32) {
	if value == 2 {
		return
	}
	press := value == 1

	if btn, ok := mouseButtonFor(code); ok {
		m.emit(Event{Btn: &ButtonEvent{Button: btn, Press: press}})
		return
	}

	m.mu.Lock()
	switch code {
	case codeLeftShift, codeRightShift:
		m.mods.Shift = press
	case codeLeftCtrl, codeRightCtrl:
		m.mods.Ctrl = press
	case codeLeftAlt, codeRightAlt:
		m.mods.Alt = press
	}
	mods := m.mods
	m.mu.Unlock()

	key, text, ok := m.layout.Translate(code, mods)
	if !ok {
		return
	}
	m.emit(Event{Key: &KeyEvent{
		Code:  code,
		Key:   key,
		Text:  text,
		Mods:  mods,
		Press: press,
	}})
}

func (m *Manager) handleRel(code uint16, value int32) {
	switch code {
	case uint16(evdev.REL_X):
		m.emit(Event{Rel: &RelEvent{DX: value}})
	case uint16(evdev.REL_Y):
		m.emit(Event{Rel: &RelEvent{DY: value}})
	case uint16(evdev.REL_WHEEL):
		m.emit(Event{Rel: &RelEvent{Wheel: value}})
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	default:
		// Drop rather than block the device reader when the main loop
		// stalls.
	}
}

func mouseButtonFor(code uint16) (MouseButton, bool) {
	switch code {
	case uint16(evdev.BTN_LEFT):
		return MouseLeft, true
	case uint16(evdev.BTN_MIDDLE):
		return MouseMiddle, true
	case uint16(evdev.BTN_RIGHT):
		return MouseRight, true
	}
	return 0, false
}
