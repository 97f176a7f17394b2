package session

import (
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// shutdownFlag is process-wide: signal handlers set it, the main loop
// consults it between iterations.
var shutdownFlag atomic.Bool

// panicRestore holds the console-restore action for the panic hook. It is
// installed before any device setup and cleared on clean shutdown.
var panicRestore atomic.Value // func()

// InstallShutdownHandler routes SIGTERM/SIGINT/SIGHUP into the shutdown
// flag.
func InstallShutdownHandler() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, unix.SIGTERM, unix.SIGINT, unix.SIGHUP)
	go func() {
		for sig := range ch {
			logrus.WithField("signal", sig).Info("shutdown requested")
			shutdownFlag.Store(true)
		}
	}()
}

// ShutdownRequested reports whether a termination signal arrived.
func ShutdownRequested() bool { return shutdownFlag.Load() }

// RequestShutdown sets the flag programmatically (shell exit).
func RequestShutdown() { shutdownFlag.Store(true) }

// InstallPanicHook records the restore action run when HandlePanic fires.
func InstallPanicHook(restore func()) {
	panicRestore.Store(restore)
}

// ClearPanicHook removes the restore action on clean shutdown.
func ClearPanicHook() {
	panicRestore.Store(func() {})
}

// HandlePanic restores console text mode and VT auto-switching before the
// process aborts, so the operator gets a usable TTY back. Call via defer
// in main.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	if fn, ok := panicRestore.Load().(func()); ok && fn != nil {
		fn()
	}
	logrus.WithField("panic", r).Error("panic; console restored")
	panic(r)
}
