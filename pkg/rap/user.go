package rap

import (
	"context"
	"strings"
	"time"
)

// UserPriv is the usri11_priv level
type UserPriv uint16

// Privilege levels
const (
	UserPrivGuest UserPriv = 0
	UserPrivUser  UserPriv = 1
	UserPrivAdmin UserPriv = 2
)

func (p UserPriv) String() string {
	switch p {
	case UserPrivGuest:
		return "guest"
	case UserPrivUser:
		return "user"
	case UserPrivAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// OperatorFlags is the usri11_auth_flags mask
type OperatorFlags uint32

// Operator privileges
const (
	OpPrint    OperatorFlags = 1 << 0
	OpComm     OperatorFlags = 1 << 1
	OpServer   OperatorFlags = 1 << 2
	OpAccounts OperatorFlags = 1 << 3
)

func (f OperatorFlags) String() string {
	var names []string
	for _, n := range []struct {
		bit  OperatorFlags
		name string
	}{
		{OpPrint, "print"},
		{OpComm, "comm"},
		{OpServer, "server"},
		{OpAccounts, "accounts"},
	} {
		if f&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// UserInfo is a USER_INFO_11 record.
type UserInfo struct {
	Name             string
	Comment          string
	UserComment      string
	FullName         string
	Privilege        UserPriv
	OperatorFlags    OperatorFlags
	PasswordAge      time.Duration
	HomeDir          string
	Parms            string
	LastLogon        time.Time
	LastLogoff       time.Time
	BadPasswordCount uint16
	Logons           uint16
	LogonServer      string
	CountryCode      uint16
	Workstations     string
	MaxStorage       uint32
	UnitsPerWeek     uint16
	CodePage         uint16
}

// USER_INFO_11 length, and the length up to usri11_logon_server
const (
	userInfo11Size = 86
	userInfo11Core = 68
)

// NetUserGetInfo returns level 11 information about user.
func (c *Client) NetUserGetInfo(ctx context.Context, user string) (*UserInfo, error) {
	req := newRequest(FuncNetUserGetInfo, descUserParams, descUserInfo11).
		zt(user).
		word(11).
		word(c.bufSize)

	resp, err := c.call(ctx, "NetUserGetInfo", req, nil)
	if err != nil {
		return nil, err
	}

	r := resp.reader()
	info := &UserInfo{}
	info.Name = r.fixed(21)
	r.skip(1)
	info.Comment = r.pointer()
	info.UserComment = r.pointer()
	info.FullName = r.pointer()
	info.Privilege = UserPriv(r.u16())
	info.OperatorFlags = OperatorFlags(r.u32())
	info.PasswordAge = time.Duration(r.u32()) * time.Second
	info.HomeDir = r.pointer()
	info.Parms = r.pointer()
	info.LastLogon = unixTime(r.u32())
	info.LastLogoff = unixTime(r.u32())
	info.BadPasswordCount = r.u16()
	info.Logons = r.u16()
	info.LogonServer = r.pointer()
	if r.err != nil {
		return nil, r.err
	}

	// older servers stop after the logon server and start the strings there
	if r.remaining() >= userInfo11Size-userInfo11Core && (r.lowest == 0 || r.lowest >= userInfo11Size) {
		info.CountryCode = r.u16()
		info.Workstations = r.pointer()
		info.MaxStorage = r.u32()
		info.UnitsPerWeek = r.u16()
		r.skip(4) // logon hours pointer
		info.CodePage = r.u16()
		if r.err != nil {
			return nil, r.err
		}
	}
	return info, nil
}

// unixTime converts seconds since 1970; 0 and 0xFFFFFFFF mean never.
func unixTime(v uint32) time.Time {
	if v == 0 || v == 0xFFFFFFFF {
		return time.Time{}
	}
	return time.Unix(int64(v), 0).UTC()
}
