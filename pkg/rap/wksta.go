package rap

import "context"

// WorkstationInfo is a WKSTA_INFO_10 record.
type WorkstationInfo struct {
	ComputerName string
	UserName     string
	Domain       string
	Major        uint8
	Minor        uint8
	LogonDomain  string
	OtherDomains string
}

// NetWkstaGetInfo returns level 10 information about the workstation
// service of the server.
func (c *Client) NetWkstaGetInfo(ctx context.Context) (*WorkstationInfo, error) {
	req := newRequest(FuncNetWkstaGetInfo, descGetInfoParams, descWkstaInfo10).
		word(10).
		word(c.bufSize)

	resp, err := c.call(ctx, "NetWkstaGetInfo", req, nil)
	if err != nil {
		return nil, err
	}

	r := resp.reader()
	info := &WorkstationInfo{
		ComputerName: r.pointer(),
		UserName:     r.pointer(),
		Domain:       r.pointer(),
		Major:        r.u8(),
		Minor:        r.u8(),
		LogonDomain:  r.pointer(),
		OtherDomains: r.pointer(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return info, nil
}
