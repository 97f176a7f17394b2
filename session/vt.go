package session

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Console ioctls (linux/vt.h, linux/kd.h).
const (
	kdSetMode = 0x4b3a
	kdGetMode = 0x4b3b

	kdModeText     = 0x00
	kdModeGraphics = 0x01

	vtGetState   = 0x5603
	vtSetMode    = 0x5602
	vtRelDisp    = 0x5605
	vtActivate   = 0x5606
	vtWaitActive = 0x5607

	vtModeAuto    = 0x00
	vtModeProcess = 0x01

	vtAckAcq = 0x02
)

// vtMode mirrors struct vt_mode.
type vtMode struct {
	Mode   byte
	Waitv  byte
	Relsig int16
	Acqsig int16
	Frsig  int16
}

// vtState mirrors struct vt_stat.
type vtState struct {
	Active uint16
	Signal uint16
	State  uint16
}

// VTBackend is the direct backend: process-controlled VT mode with
// acquire/release signals from the kernel.
type VTBackend struct {
	tty   *os.File
	vtNum int

	sigFd int

	// pendingRelease is set between a Disable event and its AckRelease.
	pendingRelease bool

	log *logrus.Entry
}

// vtWaitTimeout bounds the startup wait for our VT to become active.
const vtWaitTimeout = 10 * time.Second

// NewVTBackend determines the VT from the controlling TTY, waits for it to
// become active, and enters process-controlled mode so the kernel routes
// acquire/release through SIGUSR1/SIGUSR2.
func NewVTBackend(interrupted func() bool) (*VTBackend, error) {
	b := &VTBackend{log: logrus.WithField("component", "session-vt")}

	tty, vtNum, err := findVT()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	b.tty = tty
	b.vtNum = vtNum

	if err := b.waitActive(interrupted); err != nil {
		b.tty.Close()
		return nil, trace.Wrap(err)
	}

	// Block USR1/USR2 and take them through a signalfd so the main loop
	// polls them like any other fd.
	var mask unix.Sigset_t
	sigaddset(&mask, unix.SIGUSR1)
	sigaddset(&mask, unix.SIGUSR2)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		b.tty.Close()
		return nil, trace.Wrap(err, "blocking VT signals")
	}
	sigFd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		b.tty.Close()
		return nil, trace.Wrap(err, "creating signalfd")
	}
	b.sigFd = sigFd

	mode := vtMode{
		Mode:   vtModeProcess,
		Relsig: int16(unix.SIGUSR1),
		Acqsig: int16(unix.SIGUSR2),
	}
	if err := b.ioctl(vtSetMode, unsafe.Pointer(&mode)); err != nil {
		b.Close()
		return nil, trace.Wrap(err, "VT_SETMODE")
	}

	if err := b.ioctlInt(kdSetMode, kdModeGraphics); err != nil {
		b.Close()
		return nil, trace.Wrap(err, "KDSETMODE graphics")
	}
	b.log.WithField("vt", vtNum).Info("acquired VT")
	return b, nil
}

// findVT resolves the VT that stdin is attached to. When stdin is not a VT
// it takes the active VT reported through /dev/tty or /dev/tty0, and last
// the minor number of stdin's device.
func findVT() (*os.File, int, error) {
	// The VT stdin is attached to comes first (tty major 4, ttyN has minor N).
	var stat unix.Stat_t
	if err := unix.Fstat(0, &stat); err == nil && unix.Major(stat.Rdev) == 4 {
		if minor := int(unix.Minor(stat.Rdev)); minor > 0 && minor < 64 {
			if f, err := os.OpenFile(fmt.Sprintf("/dev/tty%d", minor), os.O_RDWR|unix.O_CLOEXEC, 0); err == nil {
				return f, minor, nil
			}
		}
	}

	for _, path := range []string{"/dev/tty", "/dev/tty0"} {
		f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			continue
		}
		var st vtState
		if err := ioctlFd(int(f.Fd()), vtGetState, unsafe.Pointer(&st)); err == nil {
			return f, int(st.Active), nil
		}
		f.Close()
	}

	// Fall back to the stdin device minor (ttyN has minor N).
	if err := unix.Fstat(0, &stat); err == nil {
		minor := int(stat.Rdev & 0xff)
		if minor > 0 {
			f, err := os.OpenFile(fmt.Sprintf("/dev/tty%d", minor), os.O_RDWR|unix.O_CLOEXEC, 0)
			if err == nil {
				return f, minor, nil
			}
		}
	}
	return nil, 0, trace.NotFound("cannot determine VT (run from a console, or use the seatd backend)")
}

// waitActive polls until our VT is in the foreground, bounded and
// interruptible by shutdown signals.
func (b *VTBackend) waitActive(interrupted func() bool) error {
	deadline := time.Now().Add(vtWaitTimeout)
	for {
		var st vtState
		if err := b.ioctl(vtGetState, unsafe.Pointer(&st)); err != nil {
			return trace.Wrap(err, "VT_GETSTATE")
		}
		if int(st.Active) == b.vtNum {
			return nil
		}
		if interrupted != nil && interrupted() {
			return trace.LimitExceeded("interrupted while waiting for VT %d", b.vtNum)
		}
		if time.Now().After(deadline) {
			return trace.LimitExceeded("VT %d did not become active", b.vtNum)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (b *VTBackend) ioctl(req uintptr, arg unsafe.Pointer) error {
	return ioctlFd(int(b.tty.Fd()), req, arg)
}

func (b *VTBackend) ioctlInt(req uintptr, arg int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.tty.Fd(), req, uintptr(arg))
	if errno != 0 {
		return trace.Wrap(errno)
	}
	return nil
}

func ioctlFd(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return trace.Wrap(errno)
	}
	return nil
}

// OpenDevice opens device nodes directly (requires root or device group
// membership).
func (b *VTBackend) OpenDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return f, nil
}

// Fd returns the signalfd carrying VT acquire/release signals.
func (b *VTBackend) Fd() int { return b.sigFd }

// Dispatch drains the signalfd, mapping SIGUSR1 to Disable and SIGUSR2 to
// Enable.
func (b *VTBackend) Dispatch() ([]Event, error) {
	var events []Event
	buf := make([]byte, 128)
	for {
		n, err := unix.Read(b.sigFd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			return events, trace.Wrap(err)
		}
		// struct signalfd_siginfo: ssi_signo is the first uint32.
		for off := 0; off+4 <= n; off += 128 {
			signo := *(*uint32)(unsafe.Pointer(&buf[off]))
			switch signo {
			case uint32(unix.SIGUSR1):
				b.pendingRelease = true
				events = append(events, EventDisable)
			case uint32(unix.SIGUSR2):
				events = append(events, EventEnable)
			}
		}
	}
	return events, nil
}

// AckRelease tells the kernel the VT may switch away.
func (b *VTBackend) AckRelease() error {
	if !b.pendingRelease {
		return nil
	}
	b.pendingRelease = false
	return b.ioctlInt(vtRelDisp, 1)
}

// AckAcquire completes a VT acquisition.
func (b *VTBackend) AckAcquire() error {
	return b.ioctlInt(vtRelDisp, vtAckAcq)
}

// SwitchVT activates another VT.
func (b *VTBackend) SwitchVT(n int) error {
	return trace.Wrap(b.ioctlInt(vtActivate, n))
}

// RestoreTextMode switches the console back to text mode and VT
// auto-switching. Safe to call multiple times; also invoked from the panic
// hook.
func (b *VTBackend) RestoreTextMode() {
	if b.tty == nil {
		return
	}
	_ = b.ioctlInt(kdSetMode, kdModeText)
	mode := vtMode{Mode: vtModeAuto}
	_ = b.ioctl(vtSetMode, unsafe.Pointer(&mode))
}

// Close restores the console and releases resources.
func (b *VTBackend) Close() error {
	b.RestoreTextMode()
	if b.sigFd > 0 {
		unix.Close(b.sigFd)
		b.sigFd = 0
	}
	if b.tty != nil {
		b.tty.Close()
		b.tty = nil
	}
	return nil
}

func sigaddset(mask *unix.Sigset_t, sig unix.Signal) {
	idx := uint(sig) - 1
	mask.Val[idx/64] |= 1 << (idx % 64)
}
