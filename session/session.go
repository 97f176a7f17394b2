// Package session manages display and input device ownership: VT
// acquisition and release, DRM master handoff, and the seatd-mediated
// alternative for rootless operation.
package session

import (
	"os"
)

// Event is a session ownership transition.
type Event int

const (
	// EventEnable means we now own the display and input.
	EventEnable Event = iota
	// EventDisable means we must release devices.
	EventDisable
)

// Backend abstracts the two session mechanisms (direct VT ioctls and
// seatd). One is chosen at startup and used through this interface for the
// process lifetime.
type Backend interface {
	// OpenDevice returns an owned file descriptor scoped to the session.
	OpenDevice(path string) (*os.File, error)
	// Fd returns a pollable descriptor that signals pending session
	// messages.
	Fd() int
	// Dispatch consumes pending protocol messages, returning ownership
	// events in order.
	Dispatch() ([]Event, error)
	// AckRelease acknowledges a Disable after devices were released.
	AckRelease() error
	// AckAcquire acknowledges an Enable after devices were reclaimed.
	AckAcquire() error
	// SwitchVT requests a switch to another virtual terminal.
	SwitchVT(n int) error
	// Close restores terminal state and releases the session.
	Close() error
}
