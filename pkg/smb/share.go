package smb

import (
	"fmt"
	"net"
	"strings"
)

// ShareKind selects the device type sent at tree connect
type ShareKind int

const (
	ShareDisk ShareKind = iota
	ShareIPC
	SharePrinter
)

// Device strings for TREE_CONNECT_ANDX
const (
	DeviceDisk    = "A:"
	DeviceIPC     = "IPC"
	DevicePrinter = "LPT1:"
)

func (k ShareKind) String() string {
	switch k {
	case ShareIPC:
		return "ipc"
	case SharePrinter:
		return "printer"
	default:
		return "disk"
	}
}

// Device returns the service string for the share kind
func (k ShareKind) Device() string {
	switch k {
	case ShareIPC:
		return DeviceIPC
	case SharePrinter:
		return DevicePrinter
	default:
		return DeviceDisk
	}
}

const (
	uncPrefix = `\\`
	urlPrefix = "cifs://"
	smbPrefix = "smb://"
)

// ShareName identifies a share on a server.
type ShareName struct {
	Host  string
	Share string
	Kind  ShareKind
}

// NewShareName builds a share name from its parts.
func NewShareName(host, share string, kind ShareKind) ShareName {
	return ShareName{Host: host, Share: share, Kind: kind}
}

// IPCShare returns the IPC$ share of host
func IPCShare(host string) ShareName {
	return ShareName{Host: host, Share: "IPC$", Kind: ShareIPC}
}

// ParseShareName accepts \\host\share, cifs://host/share and smb://host/share.
// IPC$ is recognized as an IPC share; everything else is a disk share.
func ParseShareName(s string) (ShareName, error) {
	name := strings.TrimSpace(s)

	var rest, sep string
	switch {
	case strings.HasPrefix(name, uncPrefix):
		rest, sep = name[len(uncPrefix):], `\`
	case strings.HasPrefix(strings.ToLower(name), urlPrefix):
		rest, sep = name[len(urlPrefix):], "/"
	case strings.HasPrefix(strings.ToLower(name), smbPrefix):
		rest, sep = name[len(smbPrefix):], "/"
	default:
		return ShareName{}, newError(CodeShareName, fmt.Sprintf("invalid share name %q", s), nil)
	}

	host, share, ok := strings.Cut(rest, sep)
	share = strings.TrimRight(share, sep)
	if !ok || host == "" || share == "" || strings.Contains(share, sep) {
		return ShareName{}, newError(CodeShareName, fmt.Sprintf("invalid share name %q", s), nil)
	}

	kind := ShareDisk
	if strings.EqualFold(share, "IPC$") {
		kind = ShareIPC
	}
	return ShareName{Host: host, Share: share, Kind: kind}, nil
}

// NodeName returns the host's first DNS label, or the host itself when it
// is an IP address.
func (s ShareName) NodeName() string {
	if net.ParseIP(s.Host) != nil {
		return s.Host
	}
	if i := strings.IndexByte(s.Host, '.'); i >= 0 {
		return s.Host[:i]
	}
	return s.Host
}

// UNC returns \\NODE\SHARE
func (s ShareName) UNC() string {
	return uncPrefix + s.NodeName() + `\` + s.Share
}

// TreePath returns the uppercased UNC path sent at tree connect
func (s ShareName) TreePath() string {
	return strings.ToUpper(s.UNC())
}

// Device returns the service string for the share
func (s ShareName) Device() string {
	return s.Kind.Device()
}

// String returns the UNC form
func (s ShareName) String() string {
	return s.UNC()
}
