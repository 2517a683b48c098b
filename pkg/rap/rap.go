// Package rap implements Remote Administration Protocol calls. Each call is
// a TRANSACTION to \PIPE\LANMAN whose parameters carry a function number,
// a parameter descriptor, a data descriptor and the request fields.
package rap

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/smb"
)

// Pipe is the transaction name all RAP calls are sent to
const Pipe = `\PIPE\LANMAN`

// Function numbers
const (
	FuncNetShareEnum         uint16 = 0
	FuncNetServerGetInfo     uint16 = 13
	FuncNetUserGetInfo       uint16 = 56
	FuncNetWkstaGetInfo      uint16 = 63
	FuncNetServerEnum2       uint16 = 104
	FuncSamOEMChangePassword uint16 = 214
)

// Parameter and data descriptors sent with each call
const (
	descShareEnumParams  = "WrLeh"
	descShareInfo1       = "B13BWz"
	descGetInfoParams    = "WrLh"
	descServerInfo1      = "B16BBDz"
	descWkstaInfo10      = "zzzBBzz"
	descUserParams       = "zWrLh"
	descUserInfo11       = "B21BzzzWDDzzDDWWzWzDWb21W"
	descServerEnumParams = "WrLehDz"
	descServerInfo0      = "B16"
	descPasswordParams   = "zsT"
	descPasswordData     = "B516B16"
)

// DefaultBufferSize is the receive buffer size announced to the server
const DefaultBufferSize = 3000

// Transactor sends a transaction and returns the reassembled reply.
// *smb.Session implements it.
type Transactor interface {
	Transact(ctx context.Context, cmd smb.Command, tx *smb.Transaction) (*smb.TransactionReply, error)
}

// Client issues RAP calls over an IPC$ session.
type Client struct {
	t       Transactor
	host    string
	bufSize uint16
}

// NewClient creates a client for host that sends its calls through t.
func NewClient(t Transactor, host string) *Client {
	return &Client{t: t, host: host, bufSize: DefaultBufferSize}
}

// SetBufferSize changes the receive buffer size announced to the server.
func (c *Client) SetBufferSize(n uint16) {
	if n > 0 {
		c.bufSize = n
	}
}

// request builds the parameter block of a call
type request struct {
	buf *encoding.Buffer
}

func newRequest(fn uint16, paramDesc, dataDesc string) *request {
	r := &request{buf: encoding.NewBuffer(64)}
	r.buf.AppendUint16(fn)
	r.buf.AppendZtASCII(paramDesc)
	r.buf.AppendZtASCII(dataDesc)
	return r
}

func (r *request) word(v uint16) *request  { r.buf.AppendUint16(v); return r }
func (r *request) dword(v uint32) *request { r.buf.AppendUint32(v); return r }
func (r *request) zt(s string) *request    { r.buf.AppendZtASCII(s); return r }

// response holds a decoded reply. Params holds the words after status and
// converter.
type response struct {
	status    uint16
	converter uint16
	params    []byte
	data      []byte
}

// param returns the i-th word after status and converter, or 0.
func (r *response) param(i int) uint16 {
	if 2*i+2 > len(r.params) {
		return 0
	}
	return encoding.Uint16LE(r.params[2*i:])
}

func (r *response) reader() *reader {
	return &reader{data: r.data, converter: r.converter}
}

// call sends req (and data) and checks the returned status.
func (c *Client) call(ctx context.Context, name string, req *request, data []byte) (*response, error) {
	tx := &smb.Transaction{
		Name:    Pipe,
		Params:  req.buf.Bytes(),
		Data:    data,
		MaxData: c.bufSize,
	}
	reply, err := c.t.Transact(ctx, smb.CmdTransaction, tx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	if len(reply.Params) < 2 {
		return nil, fmt.Errorf("%s: response carries %d parameter bytes", name, len(reply.Params))
	}

	resp := &response{
		status: encoding.Uint16LE(reply.Params),
		data:   reply.Data,
	}
	if len(reply.Params) >= 4 {
		resp.converter = encoding.Uint16LE(reply.Params[2:])
		resp.params = reply.Params[4:]
	}
	debug.Tracef("rap: %s on %s status=%d converter=%d data=%d", name, c.host, resp.status, resp.converter, len(resp.data))

	switch resp.status {
	case StatusSuccess:
	case StatusMoreData:
		debug.Printf("rap: %s on %s returned partial data\n", name, c.host)
	default:
		return nil, &Error{Function: name, Status: resp.status}
	}
	return resp, nil
}

// reader decodes fixed records from a RAP data buffer. The first failure
// sticks; later reads return zero values.
type reader struct {
	data      []byte
	converter uint16
	pos       int
	err       error

	// lowest string offset a pointer referred to, 0 when none did
	lowest int
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("rap: record field at %d+%d beyond %d data bytes", r.pos, n, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) skip(n int) { r.take(n) }

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return encoding.Uint16LE(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return encoding.Uint32LE(b)
	}
	return 0
}

// fixed reads an n byte NUL padded string
func (r *reader) fixed(n int) string {
	return cstring(r.take(n))
}

// pointer reads a 32-bit string pointer and returns the string it refers
// to. The low 16 bits minus the converter give the offset into the data.
func (r *reader) pointer() string {
	p := r.u32()
	if r.err != nil || p == 0 {
		return ""
	}
	off := int(p&0xFFFF) - int(r.converter)
	if off < 0 || off >= len(r.data) {
		r.err = fmt.Errorf("rap: string pointer 0x%08X (converter %d) outside %d data bytes", p, r.converter, len(r.data))
		return ""
	}
	if r.lowest == 0 || off < r.lowest {
		r.lowest = off
	}
	return cstring(r.data[off:])
}

// remaining reports how many bytes are left after the cursor
func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return encoding.ASCIIString(b[:i])
		}
	}
	return encoding.ASCIIString(b)
}
