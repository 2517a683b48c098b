package rap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/smb"
)

type fakeTransactor struct {
	cmd   smb.Command
	got   *smb.Transaction
	reply *smb.TransactionReply
	err   error
}

func (f *fakeTransactor) Transact(ctx context.Context, cmd smb.Command, tx *smb.Transaction) (*smb.TransactionReply, error) {
	f.cmd = cmd
	f.got = tx
	return f.reply, f.err
}

func words(ws ...uint16) []byte {
	b := make([]byte, 2*len(ws))
	for i, w := range ws {
		encoding.PutUint16LE(b[2*i:], w)
	}
	return b
}

// heap lays out the variable part of a RAP data buffer behind base bytes
// of fixed records and hands out the pointers referring to it.
type heap struct {
	base      int
	converter uint16
	data      []byte
}

func (h *heap) ptr(s string) uint32 {
	if s == "" {
		return 0
	}
	// the server may set high bits; only the low 16 count
	p := 0x00AB0000 | uint32(int(h.converter)+h.base+len(h.data))
	h.data = append(h.data, s...)
	h.data = append(h.data, 0)
	return p
}

func fixedString(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func expectParams(fn uint16, parts ...any) []byte {
	b := encoding.NewBuffer(64)
	b.AppendUint16(fn)
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			b.AppendZtASCII(v)
		case uint16:
			b.AppendUint16(v)
		case uint32:
			b.AppendUint32(v)
		}
	}
	return b.Bytes()
}

func TestNetShareEnum(t *testing.T) {
	const converter = 0x0100
	h := &heap{base: 3 * shareInfo1Size, converter: converter}
	records := encoding.NewBuffer(64)
	for _, s := range []struct {
		name   string
		typ    ShareType
		remark string
	}{
		{"public", ShareDisk, "Public files"},
		{"IPC$", ShareIPC, "Remote IPC"},
		{"ADMIN$", ShareDisk, ""},
	} {
		records.AppendBytes(fixedString(s.name, 13))
		records.AppendByte(0)
		records.AppendUint16(uint16(s.typ))
		records.AppendUint32(h.ptr(s.remark))
	}
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(StatusSuccess, converter, 3, 3),
		Data:   append(records.Bytes(), h.data...),
	}}
	c := NewClient(f, "fileserver")

	shares, err := c.NetShareEnum(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, ShareInfo{Host: "fileserver", Name: "ADMIN$", Type: ShareDisk}, shares[0])
	assert.Equal(t, ShareInfo{Host: "fileserver", Name: "IPC$", Type: ShareIPC, Remark: "Remote IPC"}, shares[1])
	assert.Equal(t, "Public files", shares[2].Remark)
	assert.Equal(t, `\\fileserver\public`, shares[2].UNC())
	assert.Equal(t, "IPC$           IPC    Remote IPC", shares[1].String())

	assert.Equal(t, smb.CmdTransaction, f.cmd)
	assert.Equal(t, Pipe, f.got.Name)
	assert.Equal(t, uint16(DefaultBufferSize), f.got.MaxData)
	assert.Empty(t, f.got.Data)
	assert.Equal(t, expectParams(FuncNetShareEnum, "WrLeh", "B13BWz", uint16(1), uint16(3000)), f.got.Params)
}

func TestNetShareEnumUnsorted(t *testing.T) {
	records := encoding.NewBuffer(64)
	for _, name := range []string{"zeta", "alpha"} {
		records.AppendBytes(fixedString(name, 13))
		records.AppendByte(0)
		records.AppendUint16(0)
		records.AppendUint32(0)
	}
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(StatusMoreData, 0, 2, 5),
		Data:   records.Bytes(),
	}}

	shares, err := NewClient(f, "h").NetShareEnum(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, "zeta", shares[0].Name)
	assert.Equal(t, "alpha", shares[1].Name)
}

func TestNetShareEnumMalformed(t *testing.T) {
	t.Run("count beyond data", func(t *testing.T) {
		f := &fakeTransactor{reply: &smb.TransactionReply{
			Params: words(0, 0, 4, 4),
			Data:   make([]byte, shareInfo1Size),
		}}
		_, err := NewClient(f, "h").NetShareEnum(context.Background(), false)
		assert.Error(t, err)
	})
	t.Run("pointer outside data", func(t *testing.T) {
		rec := encoding.NewBuffer(32)
		rec.AppendBytes(fixedString("x", 13))
		rec.AppendByte(0)
		rec.AppendUint16(0)
		rec.AppendUint32(0x0000FFFF)
		f := &fakeTransactor{reply: &smb.TransactionReply{
			Params: words(0, 0, 1, 1),
			Data:   rec.Bytes(),
		}}
		_, err := NewClient(f, "h").NetShareEnum(context.Background(), false)
		assert.ErrorContains(t, err, "outside")
	})
	t.Run("short params", func(t *testing.T) {
		f := &fakeTransactor{reply: &smb.TransactionReply{Params: []byte{0}}}
		_, err := NewClient(f, "h").NetShareEnum(context.Background(), false)
		assert.Error(t, err)
	})
}

func TestCallErrors(t *testing.T) {
	f := &fakeTransactor{reply: &smb.TransactionReply{Params: words(StatusAccessDenied, 0)}}
	_, err := NewClient(f, "h").NetShareEnum(context.Background(), false)
	require.Error(t, err)
	assert.True(t, IsStatus(err, StatusAccessDenied))
	assert.EqualError(t, err, "NetShareEnum failed: ERROR_ACCESS_DENIED (5)")

	f = &fakeTransactor{err: smb.ErrNotConnected}
	_, err = NewClient(f, "h").NetWkstaGetInfo(context.Background())
	assert.True(t, errors.Is(err, smb.ErrNotConnected))
	assert.False(t, IsStatus(err, StatusAccessDenied))

	assert.Equal(t, "status 9999", StatusName(9999))
}

func serverRecord(b *encoding.Buffer, h *heap, name string, major, minor uint8, typ ServerType, comment string) {
	b.AppendBytes(fixedString(name, 16))
	b.AppendByte(major)
	b.AppendByte(minor)
	b.AppendUint32(uint32(typ))
	b.AppendUint32(h.ptr(comment))
}

func TestNetServerGetInfo(t *testing.T) {
	h := &heap{base: serverInfo1Size, converter: 0x2000}
	rec := encoding.NewBuffer(32)
	serverRecord(rec, h, "FILESRV", 4, 9, SVTypeServer|SVTypeNT|SVTypeWorkstation, "Samba 4.9")
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0x2000, uint16(serverInfo1Size+len(h.data))),
		Data:   append(rec.Bytes(), h.data...),
	}}

	info, err := NewClient(f, "filesrv").NetServerGetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FILESRV", info.Name)
	assert.Equal(t, "4.9", info.Version())
	assert.Equal(t, "Samba 4.9", info.Comment)
	assert.Equal(t, []string{"WORKSTATION", "SERVER", "NT"}, info.Type.Names())
	assert.Equal(t, "WORKSTATION|SERVER|NT", info.Type.String())
	assert.Equal(t, expectParams(FuncNetServerGetInfo, "WrLh", "B16BBDz", uint16(1), uint16(3000)), f.got.Params)
}

func TestNetServerEnum2(t *testing.T) {
	h := &heap{base: 2 * serverInfo1Size}
	recs := encoding.NewBuffer(64)
	serverRecord(recs, h, "ALPHA", 6, 1, SVTypeServer, "first")
	serverRecord(recs, h, "BETA", 5, 0, SVTypeWorkstation, "")
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0, 2, 2),
		Data:   append(recs.Bytes(), h.data...),
	}}

	servers, err := NewClient(f, "h").NetServerEnum2(context.Background(), "WORKGROUP", SVTypeServer|SVTypeWorkstation)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "first", servers[0].Comment)
	assert.Equal(t, "BETA", servers[1].Name)
	assert.Empty(t, servers[1].Comment)
	assert.Equal(t, expectParams(FuncNetServerEnum2, "WrLehDz", "B16BBDz",
		uint16(1), uint16(3000), uint32(SVTypeServer|SVTypeWorkstation), "WORKGROUP"), f.got.Params)
}

func TestNetServerEnum2NamesDomainEnum(t *testing.T) {
	data := append(fixedString("WORKGROUP", 16), fixedString("CORP", 16)...)
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0, 2, 2),
		Data:   data,
	}}

	names, err := NewClient(f, "h").NetServerEnum2Names(context.Background(), "", SVTypeAll&^SVTypeDomainEnum)
	require.NoError(t, err)
	assert.Equal(t, []string{"CORP", "WORKGROUP"}, names)
	assert.Equal(t, expectParams(FuncNetServerEnum2, "WrLehDz", "B16",
		uint16(0), uint16(3000), uint32(SVTypeAll), ""), f.got.Params)
}

func TestNetWkstaGetInfo(t *testing.T) {
	const fixedLen = 4*5 + 2
	h := &heap{base: fixedLen, converter: 0x0010}
	rec := encoding.NewBuffer(32)
	rec.AppendUint32(h.ptr("WS01"))
	rec.AppendUint32(h.ptr("alice"))
	rec.AppendUint32(h.ptr("CORP"))
	rec.AppendByte(10)
	rec.AppendByte(0)
	rec.AppendUint32(h.ptr("CORP"))
	rec.AppendUint32(0)
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0x0010, 60),
		Data:   append(rec.Bytes(), h.data...),
	}}
	c := NewClient(f, "ws01")
	c.SetBufferSize(1024)

	info, err := c.NetWkstaGetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &WorkstationInfo{
		ComputerName: "WS01",
		UserName:     "alice",
		Domain:       "CORP",
		Major:        10,
		LogonDomain:  "CORP",
	}, info)
	assert.Equal(t, expectParams(FuncNetWkstaGetInfo, "WrLh", "zzzBBzz", uint16(10), uint16(1024)), f.got.Params)
	assert.Equal(t, uint16(1024), f.got.MaxData)
}

func userRecord(h *heap, full bool) []byte {
	b := encoding.NewBuffer(96)
	b.AppendBytes(fixedString("alice", 21))
	b.AppendByte(0)
	b.AppendUint32(h.ptr("admin comment"))
	b.AppendUint32(h.ptr(""))
	b.AppendUint32(h.ptr("Alice Liddell"))
	b.AppendUint16(uint16(UserPrivAdmin))
	b.AppendUint32(uint32(OpPrint | OpAccounts))
	b.AppendUint32(3600)
	b.AppendUint32(h.ptr(`\\files\alice`))
	b.AppendUint32(0)
	b.AppendUint32(1700000000)
	b.AppendUint32(0xFFFFFFFF)
	b.AppendUint16(2)
	b.AppendUint16(42)
	b.AppendUint32(h.ptr(`\\DC01`))
	if full {
		b.AppendUint16(1)
		b.AppendUint32(h.ptr("WS01,WS02"))
		b.AppendUint32(0xFFFFFFFF)
		b.AppendUint16(168)
		b.AppendUint32(0)
		b.AppendUint16(850)
	}
	return b.Bytes()
}

func TestNetUserGetInfo(t *testing.T) {
	h := &heap{base: userInfo11Size, converter: 0x0400}
	rec := userRecord(h, true)
	require.Len(t, rec, userInfo11Size)
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0x0400, 200),
		Data:   append(rec, h.data...),
	}}

	info, err := NewClient(f, "dc01").NetUserGetInfo(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Name)
	assert.Equal(t, "admin comment", info.Comment)
	assert.Empty(t, info.UserComment)
	assert.Equal(t, "Alice Liddell", info.FullName)
	assert.Equal(t, UserPrivAdmin, info.Privilege)
	assert.Equal(t, "print,accounts", info.OperatorFlags.String())
	assert.Equal(t, time.Hour, info.PasswordAge)
	assert.Equal(t, `\\files\alice`, info.HomeDir)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), info.LastLogon)
	assert.True(t, info.LastLogoff.IsZero())
	assert.Equal(t, uint16(2), info.BadPasswordCount)
	assert.Equal(t, uint16(42), info.Logons)
	assert.Equal(t, `\\DC01`, info.LogonServer)
	assert.Equal(t, uint16(1), info.CountryCode)
	assert.Equal(t, "WS01,WS02", info.Workstations)
	assert.Equal(t, uint16(168), info.UnitsPerWeek)
	assert.Equal(t, uint16(850), info.CodePage)

	assert.Equal(t, expectParams(FuncNetUserGetInfo, "zWrLh", "B21BzzzWDDzzDDWWzWzDWb21W",
		"alice", uint16(11), uint16(3000)), f.got.Params)
}

func TestNetUserGetInfoShortRecord(t *testing.T) {
	h := &heap{base: userInfo11Core}
	rec := userRecord(h, false)
	require.Len(t, rec, userInfo11Core)
	f := &fakeTransactor{reply: &smb.TransactionReply{
		Params: words(0, 0, 100),
		Data:   append(rec, h.data...),
	}}

	info, err := NewClient(f, "dc01").NetUserGetInfo(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, `\\DC01`, info.LogonServer)
	assert.Zero(t, info.CodePage)
	assert.Empty(t, info.Workstations)
}

func TestSamOEMChangePassword(t *testing.T) {
	f := &fakeTransactor{reply: &smb.TransactionReply{Params: words(0, 0)}}

	err := NewClient(f, "dc01").SamOEMChangePassword(context.Background(), "alice", "OldPass", "NewPass1")
	require.NoError(t, err)
	assert.Equal(t, expectParams(FuncSamOEMChangePassword, "zsT", "B516B16", "alice", uint16(532)), f.got.Params)
	require.Len(t, f.got.Data, auth.ChangePasswordSize)
	assert.Equal(t, auth.ChangePasswordPayload("OldPass", "NewPass1"), f.got.Data)
}

func TestSamOEMChangePasswordRejected(t *testing.T) {
	f := &fakeTransactor{reply: &smb.TransactionReply{Params: words(StatusPasswordTooShort, 0)}}

	err := NewClient(f, "dc01").SamOEMChangePassword(context.Background(), "alice", "a", "b")
	assert.True(t, IsStatus(err, StatusPasswordTooShort))
	assert.Contains(t, err.Error(), "NERR_PasswordTooShort")
}
