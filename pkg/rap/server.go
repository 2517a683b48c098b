package rap

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

// ServerType is the sv1_type bit mask
type ServerType uint32

// Server type bits
const (
	SVTypeWorkstation      ServerType = 0x00000001
	SVTypeServer           ServerType = 0x00000002
	SVTypeSQLServer        ServerType = 0x00000004
	SVTypeDomainCtrl       ServerType = 0x00000008
	SVTypeDomainBakCtrl    ServerType = 0x00000010
	SVTypeTimeSource       ServerType = 0x00000020
	SVTypeAFP              ServerType = 0x00000040
	SVTypeNovell           ServerType = 0x00000080
	SVTypeDomainMember     ServerType = 0x00000100
	SVTypePrintQServer     ServerType = 0x00000200
	SVTypeDialinServer     ServerType = 0x00000400
	SVTypeXenixServer      ServerType = 0x00000800
	SVTypeNT               ServerType = 0x00001000
	SVTypeWFW              ServerType = 0x00002000
	SVTypeServerNT         ServerType = 0x00008000
	SVTypePotentialBrowser ServerType = 0x00010000
	SVTypeBackupBrowser    ServerType = 0x00020000
	SVTypeMasterBrowser    ServerType = 0x00040000
	SVTypeDomainMaster     ServerType = 0x00080000
	SVTypeLocalListOnly    ServerType = 0x40000000
	SVTypeDomainEnum       ServerType = 0x80000000
	SVTypeAll              ServerType = 0xFFFFFFFF
)

var serverTypeNames = []struct {
	bit  ServerType
	name string
}{
	{SVTypeWorkstation, "WORKSTATION"},
	{SVTypeServer, "SERVER"},
	{SVTypeSQLServer, "SQLSERVER"},
	{SVTypeDomainCtrl, "DOMAIN_CTRL"},
	{SVTypeDomainBakCtrl, "DOMAIN_BAKCTRL"},
	{SVTypeTimeSource, "TIME_SOURCE"},
	{SVTypeAFP, "AFP"},
	{SVTypeNovell, "NOVELL"},
	{SVTypeDomainMember, "DOMAIN_MEMBER"},
	{SVTypePrintQServer, "PRINTQ_SERVER"},
	{SVTypeDialinServer, "DIALIN_SERVER"},
	{SVTypeXenixServer, "XENIX_SERVER"},
	{SVTypeNT, "NT"},
	{SVTypeWFW, "WFW"},
	{SVTypeServerNT, "SERVER_NT"},
	{SVTypePotentialBrowser, "POTENTIAL_BROWSER"},
	{SVTypeBackupBrowser, "BACKUP_BROWSER"},
	{SVTypeMasterBrowser, "MASTER_BROWSER"},
	{SVTypeDomainMaster, "DOMAIN_MASTER"},
	{SVTypeLocalListOnly, "LOCAL_LIST_ONLY"},
	{SVTypeDomainEnum, "DOMAIN_ENUM"},
}

// Names returns the names of the set bits
func (t ServerType) Names() []string {
	var names []string
	for _, n := range serverTypeNames {
		if t&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

func (t ServerType) String() string {
	if t == 0 {
		return "NONE"
	}
	return strings.Join(t.Names(), "|")
}

// ServerInfo is a SERVER_INFO_1 record. Level 0 enumerations fill Name only.
type ServerInfo struct {
	Name    string
	Major   uint8
	Minor   uint8
	Type    ServerType
	Comment string
}

// Version returns major.minor
func (s ServerInfo) Version() string {
	return fmt.Sprintf("%d.%d", s.Major, s.Minor)
}

const (
	serverInfo0Size = 16
	serverInfo1Size = 16 + 1 + 1 + 4 + 4
)

// NetServerGetInfo returns level 1 information about the server.
func (c *Client) NetServerGetInfo(ctx context.Context) (*ServerInfo, error) {
	req := newRequest(FuncNetServerGetInfo, descGetInfoParams, descServerInfo1).
		word(1).
		word(c.bufSize)

	resp, err := c.call(ctx, "NetServerGetInfo", req, nil)
	if err != nil {
		return nil, err
	}
	r := resp.reader()
	info := readServerInfo1(r)
	if r.err != nil {
		return nil, r.err
	}
	return &info, nil
}

// NetServerEnum2 lists the servers of domain matching any bit of types.
// An empty domain enumerates the domains visible to the server.
func (c *Client) NetServerEnum2(ctx context.Context, domain string, types ServerType) ([]ServerInfo, error) {
	resp, count, err := c.serverEnum2(ctx, domain, types, 1)
	if err != nil {
		return nil, err
	}
	if count*serverInfo1Size > len(resp.data) {
		return nil, fmt.Errorf("rap: %d server records do not fit %d data bytes", count, len(resp.data))
	}
	r := resp.reader()
	servers := make([]ServerInfo, 0, count)
	for i := 0; i < count; i++ {
		servers = append(servers, readServerInfo1(r))
	}
	if r.err != nil {
		return nil, r.err
	}
	return servers, nil
}

// NetServerEnum2Names lists the sorted names of the servers of domain
// matching any bit of types.
func (c *Client) NetServerEnum2Names(ctx context.Context, domain string, types ServerType) ([]string, error) {
	resp, count, err := c.serverEnum2(ctx, domain, types, 0)
	if err != nil {
		return nil, err
	}
	if count*serverInfo0Size > len(resp.data) {
		return nil, fmt.Errorf("rap: %d server names do not fit %d data bytes", count, len(resp.data))
	}
	r := resp.reader()
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		names = append(names, r.fixed(serverInfo0Size))
	}
	slices.Sort(names)
	return names, nil
}

func (c *Client) serverEnum2(ctx context.Context, domain string, types ServerType, level uint16) (*response, int, error) {
	dataDesc := descServerInfo1
	if level == 0 {
		dataDesc = descServerInfo0
	}
	if domain == "" {
		types |= SVTypeDomainEnum
	}
	req := newRequest(FuncNetServerEnum2, descServerEnumParams, dataDesc).
		word(level).
		word(c.bufSize).
		dword(uint32(types)).
		zt(domain)

	resp, err := c.call(ctx, "NetServerEnum2", req, nil)
	if err != nil {
		return nil, 0, err
	}
	count, available := int(resp.param(0)), int(resp.param(1))
	if available > count {
		debug.Warnf("rap: NetServerEnum2 on %s returned %d of %d entries; the buffer was too small", c.host, count, available)
	}
	return resp, count, nil
}

func readServerInfo1(r *reader) ServerInfo {
	var s ServerInfo
	s.Name = r.fixed(16)
	s.Major = r.u8()
	s.Minor = r.u8()
	s.Type = ServerType(r.u32())
	s.Comment = r.pointer()
	return s
}
