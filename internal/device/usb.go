package device

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// openUSB opens a USB mass-storage-class printer device
// (spec.md §4.A "usb:// — USB mass-storage-class printer open; blocking
// I/O."). No cross-platform USB bulk-transfer library is used, so this talks to the kernel-exposed USB printer
// class device node directly via the standard library, the same way the
// kernel-mode usblp/usbprint driver exposes it as a regular character
// device on Linux and BSD.
func openUSB(u *url.URL, jobName string) (*Handle, error) {
	path, vid, pid, serial, err := parseUSBURI(u)
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = usbDevicePath(vid, pid, serial)
	}
	if path == "" {
		return nil, fmt.Errorf("device: no usb printer class device found for %s", u.String())
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open usb device %s: %w", path, err)
	}

	return &Handle{URI: u.String(), Scheme: "usb", conn: f}, nil
}

func parseUSBURI(u *url.URL) (path string, vid, pid uint16, serial string, err error) {
	host := u.Host
	if host == "" {
		host = strings.TrimPrefix(u.Opaque, "//")
	}
	if strings.Contains(host, ":") {
		parts := strings.SplitN(host, ":", 2)
		v, perr := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
		if perr == nil {
			vid = uint16(v)
		}
		p, perr := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 16)
		if perr == nil {
			pid = uint16(p)
		}
	}
	serial = u.Query().Get("serial")
	if u.Path != "" && u.Path != "/" {
		path = u.Path
	}
	return path, vid, pid, serial, nil
}

// usbDevicePath performs a best-effort lookup of the OS-exposed USB printer
// class character device. Platform specifics (udev on Linux, IOKit on
// macOS, WinUSB on Windows) are out of scope for the core per spec.md §1
// ("drivers are consumers of the core's contract"). On Linux it returns the
// first existing /dev/usb/lp0../dev/usb/lp15; vid, pid and serial are not
// used to select among them. On other platforms it returns "".
func usbDevicePath(vid, pid uint16, serial string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	for i := 0; i < 16; i++ {
		candidate := fmt.Sprintf("/dev/usb/lp%d", i)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
