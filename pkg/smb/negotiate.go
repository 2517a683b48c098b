package smb

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/netbios"
)

// Dialects offered at negotiate, in order. Only NT LM 0.12 is accepted.
var Dialects = []string{
	"PC NETWORK PROGRAM 1.0",
	"LANMAN1.0",
	"LM1.2X002",
	"NT LM 0.12",
}

const (
	dialectNTLM012   = 3
	noDialect        = 0xFFFF
	negotiateWords   = 17
	dialectBufFormat = 0x02
)

// Security mode bits
const (
	SecurityUserMode        uint8 = 0x01
	SecurityEncryptPassword uint8 = 0x02
	SecuritySignatures      uint8 = 0x04
	SecuritySignaturesReq   uint8 = 0x08
)

// Capability flags
const (
	CapRawMode         uint32 = 0x00000001
	CapMpxMode         uint32 = 0x00000002
	CapUnicode         uint32 = 0x00000004
	CapLargeFiles      uint32 = 0x00000008
	CapNTSMBs          uint32 = 0x00000010
	CapRPCRemoteAPIs   uint32 = 0x00000020
	CapNTStatusCodes   uint32 = 0x00000040
	CapLevel2Oplocks   uint32 = 0x00000080
	CapLockAndRead     uint32 = 0x00000100
	CapNTFind          uint32 = 0x00000200
	CapDFS             uint32 = 0x00001000
	CapInfoLevelPassth uint32 = 0x00002000
	CapLargeReadX      uint32 = 0x00004000
	CapLargeWriteX     uint32 = 0x00008000
	CapUnix            uint32 = 0x00800000
	CapBulkTransfer    uint32 = 0x20000000
	CapCompressedData  uint32 = 0x40000000
	CapExtendedSec     uint32 = 0x80000000
)

// Negotiated holds what the server announced in its negotiate response.
type Negotiated struct {
	Dialect          string
	SecurityMode     uint8
	MaxMpx           uint16
	MaxVCs           uint16
	MaxBuffer        uint32
	MaxRaw           uint32
	SessionKey       uint32
	Capabilities     uint32
	ServerTime       time.Time
	TimeZone         int16 // minutes west of UTC
	EncryptionKey    []byte
	ExtendedSecurity bool
}

// UserLevel reports user level (as opposed to share level) security
func (n Negotiated) UserLevel() bool {
	return n.SecurityMode&SecurityUserMode != 0
}

// EncryptPasswords reports whether the server wants challenge responses
// instead of plaintext passwords.
func (n Negotiated) EncryptPasswords() bool {
	return n.SecurityMode&SecurityEncryptPassword != 0
}

// Negotiate opens the NetBIOS session and agrees on the NT LM 0.12 dialect.
// It does nothing when the session is already negotiated and connected.
func (s *Session) Negotiate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.negotiated && s.nbt.IsConnected() {
		return nil
	}
	return s.negotiateLocked(ctx)
}

func (s *Session) negotiateLocked(ctx context.Context) error {
	if err := s.callLocked(ctx); err != nil {
		return err
	}

	if err := s.setupMessageLocked(ctx, CmdNegotiate); err != nil {
		return err
	}
	m := s.msg
	m.SetTID(0)
	m.SetWordCount(0)
	var content []byte
	for _, d := range Dialects {
		content = append(content, dialectBufFormat)
		content = append(content, d...)
		content = append(content, 0)
	}
	m.SetContent(content)

	if err := s.exchangeLocked(); err != nil {
		return err
	}
	if err := m.Err(); err != nil {
		s.nbt.Hangup()
		return err
	}

	neg, err := parseNegotiate(m)
	if err != nil {
		s.nbt.Hangup()
		return err
	}
	s.neg = neg
	s.negotiated = true

	debug.WithFields(debug.Fields{
		"server":   s.addr.String(),
		"secmode":  fmt.Sprintf("0x%02X", neg.SecurityMode),
		"caps":     fmt.Sprintf("0x%08X", neg.Capabilities),
		"maxbuf":   neg.MaxBuffer,
		"userlvl":  neg.UserLevel(),
		"encrypt":  neg.EncryptPasswords(),
		"extsec":   neg.ExtendedSecurity,
		"timezone": neg.TimeZone,
	}).Debug("smb: negotiated " + neg.Dialect)
	return nil
}

// callLocked sets up the NetBIOS session, falling back to *SMBSERVER when
// the server does not answer to its registered name.
func (s *Session) callLocked(ctx context.Context) error {
	called := s.addr.CalledName()
	err := s.nbt.Call(ctx, called, s.opts.CallingName)
	if code, ok := netbios.IsNegativeResponse(err); ok && code == netbios.CalledNameNotPresent && called != netbios.SMBServer {
		debug.Printf("smb: %s not present at %s, calling %s\n", called, s.addr, netbios.SMBServer)
		err = s.nbt.Call(ctx, netbios.SMBServer, s.opts.CallingName)
	}
	return err
}

func parseNegotiate(m *Message) (Negotiated, error) {
	var n Negotiated
	if m.WordCount() < 1 {
		return n, newError(CodeDialectMismatch, "negotiate response without dialect index", nil)
	}
	idx := m.ParamUint16(0)
	if idx == noDialect {
		return n, newError(CodeNoDialect, "server accepted none of the offered dialects", nil)
	}
	if idx != dialectNTLM012 || m.WordCount() != negotiateWords {
		name := "unknown"
		if int(idx) < len(Dialects) {
			name = Dialects[idx]
		}
		return n, newError(CodeDialectMismatch,
			fmt.Sprintf("unsupported dialect %s (index %d, %d words)", name, idx, m.WordCount()), nil)
	}

	n.Dialect = Dialects[idx]
	n.SecurityMode = m.ParamByte(2)
	n.MaxMpx = m.ParamUint16(3)
	n.MaxVCs = m.ParamUint16(5)
	n.MaxBuffer = m.ParamUint32(7)
	n.MaxRaw = m.ParamUint32(11)
	n.SessionKey = m.ParamUint32(15)
	n.Capabilities = m.ParamUint32(19)
	n.ServerTime = fileTime(m.ParamUint32(23), m.ParamUint32(27))
	n.TimeZone = int16(m.ParamUint16(31))
	keyLen := int(m.ParamByte(33))

	n.ExtendedSecurity = n.Capabilities&CapExtendedSec != 0
	if !n.ExtendedSecurity {
		content := m.Content()
		if keyLen > len(content) {
			return n, protocolError(fmt.Sprintf("challenge of %d bytes in %d content bytes", keyLen, len(content)))
		}
		n.EncryptionKey = append([]byte(nil), content[:keyLen]...)
	}
	return n, nil
}

// 100ns intervals between 1601-01-01 and 1970-01-01
const fileTimeEpoch = 116444736000000000

func fileTime(lo, hi uint32) time.Time {
	ft := uint64(hi)<<32 | uint64(lo)
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(ft)-fileTimeEpoch)*100).UTC()
}
