package smb

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/netbios"
)

// handler answers one request with zero or more frames
type handler func(req *Message) []*Message

// fakeServer speaks just enough NetBIOS and SMB to drive a Session over
// net.Pipe connections.
type fakeServer struct {
	t *testing.T

	mu       sync.Mutex
	handlers map[Command]handler
	requests []*Message

	dials    atomic.Int32
	dropNext atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	return &fakeServer{t: t, handlers: make(map[Command]handler)}
}

func (f *fakeServer) handle(cmd Command, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[cmd] = h
}

func (f *fakeServer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	f.dials.Add(1)
	f.t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go f.serve(server)
	return client, nil
}

// received returns copies of the requests seen for cmd
func (f *fakeServer) received(cmd Command) []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Message
	for _, r := range f.requests {
		if r.Command() == cmd {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		typ, payload, err := readFrame(conn)
		if err != nil {
			return
		}
		switch typ {
		case netbios.TypeRequest:
			if writeFrame(conn, netbios.TypePositive, nil) != nil {
				return
			}
		case netbios.TypeMessage:
			req, err := ParseMessage(payload)
			if err != nil {
				return
			}
			if f.dropNext.CompareAndSwap(true, false) {
				return
			}
			f.mu.Lock()
			f.requests = append(f.requests, req)
			h := f.handlers[req.Command()]
			f.mu.Unlock()

			var replies []*Message
			if h == nil {
				replies = []*Message{errorReply(req, ErrSRV, SRVSMBCmd)}
			} else {
				replies = h(req)
			}
			for _, r := range replies {
				if writeFrame(conn, netbios.TypeMessage, r.Bytes()) != nil {
					return
				}
			}
		}
	}
}

func readFrame(r io.Reader) (byte, []byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	n := int(hdr[1]&0x01)<<16 | int(encoding.Uint16BE(hdr[2:4]))
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return hdr[0], payload, nil
}

func writeFrame(w io.Writer, typ byte, payload []byte) error {
	pkt := make([]byte, 4+len(payload))
	pkt[0] = typ
	encoding.PutUint16BE(pkt[2:4], uint16(len(payload)))
	copy(pkt[4:], payload)
	_, err := w.Write(pkt)
	return err
}

// reply starts a response to req with words parameter words
func reply(req *Message, words int) *Message {
	m := NewMessage(4096)
	m.SetCommand(req.Command())
	m.SetFlags(FlagsResponse)
	m.SetFlags2(req.Flags2())
	m.SetTID(req.TID())
	m.SetPID(req.PID())
	m.SetUID(req.UID())
	m.SetMID(req.MID())
	m.SetWordCount(words)
	return m
}

func errorReply(req *Message, class uint8, code uint16) *Message {
	m := reply(req, 0)
	m.SetError(class, code)
	return m
}

type negotiateOpts struct {
	index     uint16
	words     int
	secMode   uint8
	maxBuffer uint32
	caps      uint32
	key       []byte
	time      time.Time
	tz        int16
}

var testChallenge = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

func defaultNegotiate() negotiateOpts {
	return negotiateOpts{
		index:     dialectNTLM012,
		words:     negotiateWords,
		secMode:   SecurityUserMode | SecurityEncryptPassword,
		maxBuffer: 16644,
		caps:      CapUnicode | CapNTSMBs | CapNTStatusCodes,
		key:       testChallenge,
		time:      time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		tz:        -60,
	}
}

func toFileTime(t time.Time) (lo, hi uint32) {
	ft := uint64(t.UnixNano()/100 + fileTimeEpoch)
	return uint32(ft), uint32(ft >> 32)
}

func negotiateReply(req *Message, o negotiateOpts) *Message {
	m := reply(req, o.words)
	m.SetParamUint16(0, o.index)
	if o.words < negotiateWords {
		return m
	}
	m.SetParamByte(2, o.secMode)
	m.SetParamUint16(3, 50)
	m.SetParamUint16(5, 1)
	m.SetParamUint32(7, o.maxBuffer)
	m.SetParamUint32(11, 65536)
	m.SetParamUint32(15, 0x0000CAFE)
	m.SetParamUint32(19, o.caps)
	lo, hi := toFileTime(o.time)
	m.SetParamUint32(23, lo)
	m.SetParamUint32(27, hi)
	m.SetParamUint16(31, uint16(o.tz))
	m.SetParamByte(33, byte(len(o.key)))
	m.SetContent(o.key)
	return m
}

func setupReply(req *Message, uid uint16, guest bool) *Message {
	m := reply(req, 3)
	m.SetUID(uid)
	m.SetParamByte(0, noAndXCommand)
	if guest {
		m.SetParamUint16(4, actionGuest)
	}
	m.SetContent([]byte("Unix\x00Samba 3.0.37\x00"))
	return m
}

func treeReply(req *Message, tid uint16) *Message {
	m := reply(req, 3)
	m.SetTID(tid)
	m.SetParamByte(0, noAndXCommand)
	m.SetContent([]byte("IPC\x00"))
	return m
}

// standard installs handlers for a server that accepts every login
func (f *fakeServer) standard(o negotiateOpts) {
	f.handle(CmdNegotiate, func(req *Message) []*Message {
		return []*Message{negotiateReply(req, o)}
	})
	f.handle(CmdSessionSetupAndX, func(req *Message) []*Message {
		return []*Message{setupReply(req, 100, false)}
	})
	f.handle(CmdTreeConnectAndX, func(req *Message) []*Message {
		return []*Message{treeReply(req, 7)}
	})
	f.handle(CmdEcho, func(req *Message) []*Message {
		m := reply(req, 1)
		m.SetParamUint16(0, 1)
		m.SetContent(req.Content())
		return []*Message{m}
	})
	f.handle(CmdTreeDisconnect, func(req *Message) []*Message {
		return []*Message{reply(req, 0)}
	})
	f.handle(CmdLogoffAndX, func(req *Message) []*Message {
		return []*Message{reply(req, 2)}
	})
}

func newTestSession(t *testing.T, f *fakeServer, login *auth.Login, opts Options) *Session {
	t.Helper()
	nbt := netbios.NewSession("fakesrv", netbios.DialConfig{
		Timeout:  2 * time.Second,
		DialFunc: f.dial,
	})
	addr := netbios.Address{IP: net.ParseIP("127.0.0.1"), Name: "FAKESRV"}
	return NewSession("test", IPCShare("fakesrv"), addr, nbt, login, opts)
}

// transAssembler rebuilds a fragmented transaction request the way a
// server would.
type transAssembler struct {
	name   string
	setup  []uint16
	params []byte
	data   []byte
	pGot   int
	dGot   int
}

// add takes one primary or secondary request and reports completion
func (a *transAssembler) add(req *Message) bool {
	buf := req.Buffer()
	switch req.Command() {
	case CmdTransaction, CmdTransaction2:
		a.params = make([]byte, req.ParamUint16(0))
		a.data = make([]byte, req.ParamUint16(2))
		n := int(req.ParamByte(26))
		a.setup = nil
		for i := 0; i < n; i++ {
			a.setup = append(a.setup, req.ParamUint16(28+2*i))
		}
		if req.Command() == CmdTransaction {
			a.name, _ = buf.ZtASCIIAt(req.ContentOffset(), req.ByteCount())
		}
		pc, po := int(req.ParamUint16(18)), int(req.ParamUint16(20))
		dc, do := int(req.ParamUint16(22)), int(req.ParamUint16(24))
		copy(a.params, buf.BytesAt(po, pc))
		copy(a.data, buf.BytesAt(do, dc))
		a.pGot, a.dGot = pc, dc
	default:
		pc, po, pd := int(req.ParamUint16(4)), int(req.ParamUint16(6)), int(req.ParamUint16(8))
		dc, do, dd := int(req.ParamUint16(10)), int(req.ParamUint16(12)), int(req.ParamUint16(14))
		copy(a.params[pd:], buf.BytesAt(po, pc))
		copy(a.data[dd:], buf.BytesAt(do, dc))
		a.pGot += pc
		a.dGot += dc
	}
	return a.pGot >= len(a.params) && a.dGot >= len(a.data)
}

// transReplies splits params and data into response frames carrying at
// most chunk payload bytes each.
func transReplies(req *Message, cmd Command, params, data []byte, chunk int) []*Message {
	var out []*Message
	pSent, dSent := 0, 0
	for first := true; first || pSent < len(params) || dSent < len(data); first = false {
		m := reply(req, transResponseWords)
		m.SetCommand(cmd)
		pc := min(len(params)-pSent, chunk)
		dc := min(len(data)-dSent, chunk-pc)

		off := m.ContentOffset()
		pOff := encoding.Align(off, 4)
		dOff := encoding.Align(pOff+pc, 4)
		m.Grow(dOff + dc)
		m.Buffer().SetBytesAt(pOff, params[pSent:pSent+pc])
		m.Buffer().SetBytesAt(dOff, data[dSent:dSent+dc])

		m.SetParamUint16(0, uint16(len(params)))
		m.SetParamUint16(2, uint16(len(data)))
		m.SetParamUint16(6, uint16(pc))
		m.SetParamUint16(8, uint16(pOff))
		m.SetParamUint16(10, uint16(pSent))
		m.SetParamUint16(12, uint16(dc))
		m.SetParamUint16(14, uint16(dOff))
		m.SetParamUint16(16, uint16(dSent))
		m.SetByteCount(dOff + dc - off)

		pSent += pc
		dSent += dc
		out = append(out, m)
	}
	return out
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) + seed
	}
	return b
}
