package session

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// seatd wire protocol opcodes (seatd include/protocol.h).
const (
	clientOpenSeat    = 1
	clientCloseSeat   = 2
	clientOpenDevice  = 3
	clientCloseDevice = 4
	clientDisableSeat = 5
	clientPing        = 6

	serverSeatOpened   = 0x11
	serverSeatClosed   = 0x12
	serverDeviceOpened = 0x13
	serverDeviceClosed = 0x14
	serverDisableSeat  = 0x15
	serverEnableSeat   = 0x16
	serverPong         = 0x17
	serverError        = 0x20
)

// msgHeader precedes every protocol message.
type msgHeader struct {
	Opcode uint16
	Size   uint16
}

// SeatdBackend is the mediated backend: device access brokered by seatd
// (or logind via seatd's compat shim), enabling rootless operation.
type SeatdBackend struct {
	mu   sync.Mutex
	fd   int
	seat string

	// Devices opened through the seat, path -> device id.
	devices map[string]int

	// Queued events decoded while waiting for a reply.
	queued []Event

	log *logrus.Entry
}

func seatdSocketPath() string {
	if p := os.Getenv("SEATD_SOCK"); p != "" {
		return p
	}
	return "/run/seatd.sock"
}

// NewSeatdBackend connects to seatd and opens the seat.
func NewSeatdBackend() (*SeatdBackend, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	addr := &unix.SockaddrUnix{Name: seatdSocketPath()}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, trace.Wrap(err, "connecting to seatd at %s", seatdSocketPath())
	}
	b := &SeatdBackend{
		fd:      fd,
		devices: make(map[string]int),
		log:     logrus.WithField("component", "session-seatd"),
	}
	if err := b.send(clientOpenSeat, nil); err != nil {
		b.Close()
		return nil, trace.Wrap(err)
	}
	// The seat_opened reply carries the seat name; Enable follows.
	op, payload, _, err := b.recv()
	if err != nil {
		b.Close()
		return nil, trace.Wrap(err)
	}
	if op != serverSeatOpened {
		b.Close()
		return nil, trace.BadParameter("unexpected seatd reply %#x", op)
	}
	b.seat = decodeString(payload)
	b.log.WithField("seat", b.seat).Info("seat opened")
	return b, nil
}

func (b *SeatdBackend) send(opcode uint16, payload []byte) error {
	var buf bytes.Buffer
	hdr := msgHeader{Opcode: opcode, Size: uint16(len(payload))}
	if err := binary.Write(&buf, binary.NativeEndian, hdr); err != nil {
		return trace.Wrap(err)
	}
	buf.Write(payload)
	if err := unix.Sendmsg(b.fd, buf.Bytes(), nil, nil, 0); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

// recv reads one message; file descriptors arrive as SCM_RIGHTS ancillary
// data on device_opened.
func (b *SeatdBackend) recv() (uint16, []byte, int, error) {
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unix.Recvmsg(b.fd, buf, oob, 0)
	if err != nil {
		return 0, nil, -1, trace.Wrap(err)
	}
	if n < 4 {
		return 0, nil, -1, trace.BadParameter("short seatd message (%d bytes)", n)
	}
	opcode := binary.NativeEndian.Uint16(buf[0:2])
	size := binary.NativeEndian.Uint16(buf[2:4])
	payload := buf[4:n]
	if int(size) < len(payload) {
		payload = payload[:size]
	}

	fd := -1
	if oobn > 0 {
		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err == nil {
			for _, m := range msgs {
				fds, err := unix.ParseUnixRights(&m)
				if err == nil && len(fds) > 0 {
					fd = fds[0]
				}
			}
		}
	}
	return opcode, payload, fd, nil
}

func decodeString(payload []byte) string {
	if len(payload) < 2 {
		return ""
	}
	n := int(binary.NativeEndian.Uint16(payload[0:2]))
	if 2+n > len(payload) {
		n = len(payload) - 2
	}
	return string(bytes.TrimRight(payload[2:2+n], "\x00"))
}

func encodeString(s string) []byte {
	var buf bytes.Buffer
	// Length includes the NUL terminator, matching seatd's wire form.
	b := append([]byte(s), 0)
	_ = binary.Write(&buf, binary.NativeEndian, uint16(len(b)))
	buf.Write(b)
	return buf.Bytes()
}

// OpenDevice asks seatd for a device fd.
func (b *SeatdBackend) OpenDevice(path string) (*os.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.send(clientOpenDevice, encodeString(path)); err != nil {
		return nil, trace.Wrap(err)
	}
	for {
		op, payload, fd, err := b.recv()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		switch op {
		case serverDeviceOpened:
			if fd < 0 {
				return nil, trace.BadParameter("seatd device reply without fd")
			}
			var devID int32
			if len(payload) >= 4 {
				devID = int32(binary.NativeEndian.Uint32(payload[0:4]))
			}
			b.devices[path] = int(devID)
			unix.SetNonblock(fd, true)
			return os.NewFile(uintptr(fd), path), nil
		case serverError:
			return nil, trace.AccessDenied("seatd refused to open %s", path)
		default:
			// Session events interleave with replies; queue them.
			b.queueEvent(op)
		}
	}
}

func (b *SeatdBackend) queueEvent(op uint16) {
	switch op {
	case serverEnableSeat:
		b.queued = append(b.queued, EventEnable)
	case serverDisableSeat:
		b.queued = append(b.queued, EventDisable)
	}
}

// Fd returns the seatd socket for polling.
func (b *SeatdBackend) Fd() int { return b.fd }

// Dispatch consumes pending seatd messages.
func (b *SeatdBackend) Dispatch() ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.queued
	b.queued = nil

	for {
		if err := unix.SetNonblock(b.fd, true); err != nil {
			return events, trace.Wrap(err)
		}
		op, _, fd, err := b.recv()
		if err != nil {
			if errno, ok := trace.Unwrap(err).(unix.Errno); ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK) {
				break
			}
			return events, trace.Wrap(err)
		}
		if fd >= 0 {
			unix.Close(fd)
		}
		b.queueEvent(op)
		events = append(events, b.queued...)
		b.queued = nil
	}
	unix.SetNonblock(b.fd, false)
	return events, nil
}

// AckRelease acknowledges a disable with the disable_seat message.
func (b *SeatdBackend) AckRelease() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return trace.Wrap(b.send(clientDisableSeat, nil))
}

// AckAcquire is implicit with seatd; nothing to send.
func (b *SeatdBackend) AckAcquire() error { return nil }

// SwitchVT falls back to the console ioctl; seatd has no switch request in
// its base protocol.
func (b *SeatdBackend) SwitchVT(n int) error {
	tty, err := os.OpenFile("/dev/tty0", os.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer tty.Close()
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, tty.Fd(), vtActivate, uintptr(n))
	if errno != 0 {
		return trace.Wrap(errno)
	}
	return nil
}

// Close closes the seat and socket.
func (b *SeatdBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd >= 0 {
		_ = b.send(clientCloseSeat, nil)
		unix.Close(b.fd)
		b.fd = -1
	}
	return nil
}
