package drm

import (
	"strings"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// HotplugWatcher listens on a kobject-uevent netlink socket for DRM
// subsystem change events.
type HotplugWatcher struct {
	fd  int
	log *logrus.Entry
}

// NewHotplugWatcher binds the uevent socket.
func NewHotplugWatcher() (*HotplugWatcher, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, trace.Wrap(err, "opening uevent socket")
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1, // kernel uevent multicast group
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, trace.Wrap(err, "binding uevent socket")
	}
	return &HotplugWatcher{
		fd:  fd,
		log: logrus.WithField("component", "hotplug"),
	}, nil
}

// Fd exposes the socket for the main poll loop.
func (w *HotplugWatcher) Fd() int { return w.fd }

// Drain consumes pending uevents; returns true when a DRM change event was
// among them.
func (w *HotplugWatcher) Drain() bool {
	buf := make([]byte, 4096)
	changed := false
	for {
		n, _, err := unix.Recvfrom(w.fd, buf, unix.MSG_DONTWAIT)
		if err != nil {
			break
		}
		msg := string(buf[:n])
		if strings.Contains(msg, "SUBSYSTEM=drm") && strings.Contains(msg, "ACTION=change") {
			changed = true
		}
	}
	return changed
}

// Close releases the socket.
func (w *HotplugWatcher) Close() error {
	return unix.Close(w.fd)
}
