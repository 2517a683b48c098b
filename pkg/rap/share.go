package rap

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

// ShareType is the shi1_type of a share
type ShareType uint16

// Share types
const (
	ShareDisk   ShareType = 0
	SharePrintQ ShareType = 1
	ShareDevice ShareType = 2
	ShareIPC    ShareType = 3
)

func (t ShareType) String() string {
	switch t {
	case ShareDisk:
		return "DISK"
	case SharePrintQ:
		return "PRINT"
	case ShareDevice:
		return "DEVICE"
	case ShareIPC:
		return "IPC"
	default:
		return "??????"
	}
}

// ShareInfo is one SHARE_INFO_1 record.
type ShareInfo struct {
	Host   string
	Name   string
	Type   ShareType
	Remark string
}

// UNC returns \\host\share
func (s ShareInfo) UNC() string {
	return `\\` + s.Host + `\` + s.Name
}

func (s ShareInfo) String() string {
	return fmt.Sprintf("%-15s%-7s%s", s.Name, s.Type, s.Remark)
}

const shareInfo1Size = 13 + 1 + 2 + 4

// NetShareEnum lists the shares of the server, sorted by name when sorted
// is set.
func (c *Client) NetShareEnum(ctx context.Context, sorted bool) ([]ShareInfo, error) {
	req := newRequest(FuncNetShareEnum, descShareEnumParams, descShareInfo1).
		word(1).
		word(c.bufSize)

	resp, err := c.call(ctx, "NetShareEnum", req, nil)
	if err != nil {
		return nil, err
	}
	count, available := int(resp.param(0)), int(resp.param(1))
	if available > count {
		debug.Warnf("rap: NetShareEnum on %s returned %d of %d shares", c.host, count, available)
	}

	shares, err := parseShareInfo1(resp, count, c.host)
	if err != nil {
		return nil, err
	}
	if sorted {
		slices.SortFunc(shares, func(a, b ShareInfo) int { return strings.Compare(a.Name, b.Name) })
	}
	return shares, nil
}

func parseShareInfo1(resp *response, count int, host string) ([]ShareInfo, error) {
	if count*shareInfo1Size > len(resp.data) {
		return nil, fmt.Errorf("rap: %d share records do not fit %d data bytes", count, len(resp.data))
	}
	r := resp.reader()
	shares := make([]ShareInfo, 0, count)
	for i := 0; i < count; i++ {
		s := ShareInfo{Host: host}
		s.Name = r.fixed(13)
		r.skip(1)
		s.Type = ShareType(r.u16())
		s.Remark = r.pointer()
		if r.err != nil {
			return nil, r.err
		}
		shares = append(shares, s)
	}
	return shares, nil
}
