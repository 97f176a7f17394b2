package drm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unsafe"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Connector type ids from the kernel, for preference ordering.
const (
	connectorVGA   = 1
	connectorDVII  = 2
	connectorDVID  = 3
	connectorDVIA  = 4
	connectorLVDS  = 7
	connectorDP    = 10
	connectorHDMIA = 11
	connectorHDMIB = 12
	connectorEDP   = 14
)

var connectorTypeNames = map[uint32]string{
	connectorVGA:   "VGA",
	connectorDVII:  "DVI-I",
	connectorDVID:  "DVI-D",
	connectorDVIA:  "DVI-A",
	connectorLVDS:  "LVDS",
	connectorDP:    "DP",
	connectorHDMIA: "HDMI-A",
	connectorHDMIB: "HDMI-B",
	connectorEDP:   "eDP",
}

// connectorRank orders HDMI > DisplayPort > DVI > VGA > eDP > LVDS;
// unknown types sort last.
func connectorRank(typ uint32) int {
	switch typ {
	case connectorHDMIA, connectorHDMIB:
		return 0
	case connectorDP:
		return 1
	case connectorDVII, connectorDVID, connectorDVIA:
		return 2
	case connectorVGA:
		return 3
	case connectorEDP:
		return 4
	case connectorLVDS:
		return 5
	}
	return 6
}

// internalConnector reports panel types built into the machine.
func internalConnector(typ uint32) bool {
	return typ == connectorEDP || typ == connectorLVDS
}

// Mode is one display timing.
type Mode struct {
	Width     int
	Height    int
	Refresh   int
	Preferred bool
	info      modeInfo
}

// Name returns the kernel's mode name.
func (m Mode) Name() string {
	return strings.TrimRight(string(m.info.Name[:]), "\x00")
}

// Connector is one display output.
type Connector struct {
	ID        uint32
	Type      uint32
	Connected bool
	EncoderID uint32
	Modes     []Mode
}

// TypeName returns a readable connector type.
func (c *Connector) TypeName() string {
	if n, ok := connectorTypeNames[c.Type]; ok {
		return n
	}
	return fmt.Sprintf("type-%d", c.Type)
}

// Device is an opened DRM card.
type Device struct {
	file *os.File

	crtcID      uint32
	connectorID uint32
	mode        Mode

	// Original CRTC configuration, restored on shutdown.
	savedCrtc *crtcState

	log *logrus.Entry
}

// FindCard returns the first /dev/dri/cardN node (N < 8) that exists. It
// does not open the card or inspect its connectors.
func FindCard() (string, error) {
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("/dev/dri/card%d", i)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", trace.NotFound("no DRM device under /dev/dri")
}

// Open opens a DRM card node. openFn lets the session backend mediate
// device access; nil opens directly.
func Open(path string, openFn func(string) (*os.File, error)) (*Device, error) {
	var f *os.File
	var err error
	if openFn != nil {
		f, err = openFn(path)
	} else {
		f, err = os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return &Device{
		file: f,
		log:  logrus.WithField("component", "drm"),
	}, nil
}

// Fd returns the card file descriptor (for GBM and poll).
func (d *Device) Fd() int { return int(d.file.Fd()) }

// Close releases the card node.
func (d *Device) Close() error { return d.file.Close() }

// SetMaster acquires DRM master.
func (d *Device) SetMaster() error {
	return trace.Wrap(ioctl(d.Fd(), ioctlSetMaster, nil))
}

// DropMaster releases DRM master (VT release).
func (d *Device) DropMaster() error {
	return trace.Wrap(ioctl(d.Fd(), ioctlDropMaster, nil))
}

// resources fetches the card resource ids with the two-call pattern the
// kernel API requires.
func (d *Device) resources() (*cardRes, []uint32, []uint32, error) {
	var res cardRes
	if err := ioctl(d.Fd(), ioctlGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, nil, nil, trace.Wrap(err, "GETRESOURCES")
	}
	connectors := make([]uint32, res.CountConnectors)
	crtcs := make([]uint32, res.CountCrtcs)
	if len(connectors) > 0 {
		res.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	}
	if len(crtcs) > 0 {
		res.CrtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	res.CountFbs = 0
	res.CountEncoders = 0
	if err := ioctl(d.Fd(), ioctlGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, nil, nil, trace.Wrap(err, "GETRESOURCES")
	}
	return &res, connectors, crtcs, nil
}

// Connectors enumerates all connectors with their modes.
func (d *Device) Connectors() ([]Connector, error) {
	_, ids, _, err := d.resources()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make([]Connector, 0, len(ids))
	for _, id := range ids {
		conn, err := d.connector(id)
		if err != nil {
			d.log.WithError(err).WithField("connector", id).Debug("skipping connector")
			continue
		}
		out = append(out, *conn)
	}
	return out, nil
}

func (d *Device) connector(id uint32) (*Connector, error) {
	var gc getConnector
	gc.ConnectorID = id
	if err := ioctl(d.Fd(), ioctlGetConnector, unsafe.Pointer(&gc)); err != nil {
		return nil, trace.Wrap(err, "GETCONNECTOR")
	}
	modes := make([]modeInfo, gc.CountModes)
	if len(modes) > 0 {
		gc.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	}
	gc.CountProps = 0
	gc.CountEncoders = 0
	if err := ioctl(d.Fd(), ioctlGetConnector, unsafe.Pointer(&gc)); err != nil {
		return nil, trace.Wrap(err, "GETCONNECTOR")
	}

	conn := &Connector{
		ID:        id,
		Type:      gc.ConnectorType,
		Connected: gc.Connection == connectionConnected,
		EncoderID: gc.EncoderID,
	}
	for i := range modes {
		conn.Modes = append(conn.Modes, Mode{
			Width:     int(modes[i].HDisplay),
			Height:    int(modes[i].VDisplay),
			Refresh:   int(modes[i].VRefresh),
			Preferred: modes[i].Type&(1<<3) != 0, // DRM_MODE_TYPE_PREFERRED
			info:      modes[i],
		})
	}
	return conn, nil
}

// PickConnector chooses the connected connector by preference: external
// over internal when preferExternal is set, then HDMI > DP > DVI > VGA >
// eDP > LVDS.
func PickConnector(connectors []Connector, preferExternal bool) (*Connector, error) {
	var candidates []Connector
	for _, c := range connectors {
		if c.Connected && len(c.Modes) > 0 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, trace.NotFound("no connected display")
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if preferExternal {
			ei := internalConnector(candidates[i].Type)
			ej := internalConnector(candidates[j].Type)
			if ei != ej {
				return !ei
			}
		}
		return connectorRank(candidates[i].Type) < connectorRank(candidates[j].Type)
	})
	return &candidates[0], nil
}

// PickMode returns the preferred mode, or the first one.
func PickMode(c *Connector) (Mode, error) {
	if len(c.Modes) == 0 {
		return Mode{}, trace.NotFound("connector %s has no modes", c.TypeName())
	}
	for _, m := range c.Modes {
		if m.Preferred {
			return m, nil
		}
	}
	return c.Modes[0], nil
}

// crtcForConnector resolves the CRTC currently driving (or available for)
// the connector.
func (d *Device) crtcForConnector(conn *Connector) (uint32, error) {
	if conn.EncoderID != 0 {
		var enc getEncoder
		enc.EncoderID = conn.EncoderID
		if err := ioctl(d.Fd(), ioctlGetEncoder, unsafe.Pointer(&enc)); err == nil && enc.CrtcID != 0 {
			return enc.CrtcID, nil
		}
	}
	_, _, crtcs, err := d.resources()
	if err != nil {
		return 0, trace.Wrap(err)
	}
	if len(crtcs) == 0 {
		return 0, trace.NotFound("no CRTC available")
	}
	return crtcs[0], nil
}

// Modeset performs the initial modeset: saves the current CRTC for
// shutdown restore and drives the connector with the mode and framebuffer.
func (d *Device) Modeset(conn *Connector, mode Mode, fbID uint32) error {
	crtc, err := d.crtcForConnector(conn)
	if err != nil {
		return trace.Wrap(err)
	}
	if d.savedCrtc == nil {
		saved := crtcState{CrtcID: crtc}
		if err := ioctl(d.Fd(), ioctlGetCrtc, unsafe.Pointer(&saved)); err == nil {
			d.savedCrtc = &saved
		}
	}
	d.crtcID = crtc
	d.connectorID = conn.ID
	d.mode = mode
	return d.setCrtc(fbID, &mode.info)
}

func (d *Device) setCrtc(fbID uint32, info *modeInfo) error {
	connID := d.connectorID
	st := crtcState{
		SetConnectorsPtr: uint64(uintptr(unsafe.Pointer(&connID))),
		CountConnectors:  1,
		CrtcID:           d.crtcID,
		FbID:             fbID,
		ModeValid:        1,
		Mode:             *info,
	}
	if err := ioctl(d.Fd(), ioctlSetCrtc, unsafe.Pointer(&st)); err != nil {
		return trace.Wrap(err, "SETCRTC")
	}
	return nil
}

// ActiveMode returns the active mode.
func (d *Device) ActiveMode() Mode { return d.mode }

// AddFB wraps a GBM buffer handle as a DRM framebuffer.
func (d *Device) AddFB(width, height, stride, handle uint32) (uint32, error) {
	cmd := fbCmd{
		Width:  width,
		Height: height,
		Pitch:  stride,
		Bpp:    32,
		Depth:  24,
		Handle: handle,
	}
	if err := ioctl(d.Fd(), ioctlAddFB, unsafe.Pointer(&cmd)); err != nil {
		return 0, trace.Wrap(err, "ADDFB")
	}
	return cmd.FbID, nil
}

// RemoveFB destroys a framebuffer object.
func (d *Device) RemoveFB(fbID uint32) error {
	return trace.Wrap(ioctl(d.Fd(), ioctlRmFB, unsafe.Pointer(&fbID)))
}

// PageFlip schedules a flip to fbID; a completion event is queued on the
// card fd and must be drained with ReadEvents.
func (d *Device) PageFlip(fbID uint32) error {
	flip := pageFlip{
		CrtcID: d.crtcID,
		FbID:   fbID,
		Flags:  pageFlipEvent,
	}
	return trace.Wrap(ioctl(d.Fd(), ioctlPageFlip, unsafe.Pointer(&flip)))
}

// ReadEvents drains pending DRM events; returns true when a page-flip
// completion was seen.
func (d *Device) ReadEvents() (flipDone bool, err error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(d.Fd(), buf)
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, trace.Wrap(err)
	}
	// struct drm_event { __u32 type; __u32 length; }
	const eventFlipComplete = 0x02
	for off := 0; off+8 <= n; {
		typ := *(*uint32)(unsafe.Pointer(&buf[off]))
		length := *(*uint32)(unsafe.Pointer(&buf[off+4]))
		if typ == eventFlipComplete {
			flipDone = true
		}
		if length < 8 {
			break
		}
		off += int(length)
	}
	return flipDone, nil
}

// RestoreCrtc returns the display to its original configuration
// (shutdown).
func (d *Device) RestoreCrtc() error {
	if d.savedCrtc == nil {
		return nil
	}
	saved := *d.savedCrtc
	connID := d.connectorID
	saved.SetConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connID)))
	saved.CountConnectors = 1
	return trace.Wrap(ioctl(d.Fd(), ioctlSetCrtc, unsafe.Pointer(&saved)))
}
