// Package drm speaks the kernel modesetting API directly: card discovery,
// connector and mode selection, framebuffer attach, page flips, and master
// ownership.
package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gravitational/trace"
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func io(nr uintptr) uintptr {
	return ioc(iocNone, 'd', nr, 0)
}

func iowr(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, 'd', nr, size)
}

// ioctl retries on EINTR/EAGAIN, which the kernel returns freely while
// another process holds DRM master.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return trace.Wrap(errno)
		}
	}
}

// modeInfo mirrors struct drm_mode_modeinfo.
type modeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type cardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type getConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MMWidth         uint32
	MMHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type getEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

type crtcState struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             modeInfo
}

type fbCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

type pageFlip struct {
	CrtcID   uint32
	FbID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

var (
	ioctlSetMaster    = io(0x1e)
	ioctlDropMaster   = io(0x1f)
	ioctlGetResources = iowr(0xa0, unsafe.Sizeof(cardRes{}))
	ioctlGetCrtc      = iowr(0xa1, unsafe.Sizeof(crtcState{}))
	ioctlSetCrtc      = iowr(0xa2, unsafe.Sizeof(crtcState{}))
	ioctlGetEncoder   = iowr(0xa6, unsafe.Sizeof(getEncoder{}))
	ioctlGetConnector = iowr(0xa7, unsafe.Sizeof(getConnector{}))
	ioctlAddFB        = iowr(0xae, unsafe.Sizeof(fbCmd{}))
	ioctlRmFB         = iowr(0xaf, unsafe.Sizeof(uint32(0)))
	ioctlPageFlip     = iowr(0xb0, unsafe.Sizeof(pageFlip{}))
)

// pageFlipEvent asks the kernel to queue a completion event on the fd.
const pageFlipEvent = 0x01

// connection states from the kernel.
const (
	connectionConnected = 1
)
