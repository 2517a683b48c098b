package smb

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
)

// Command is an SMB command code
type Command uint8

const (
	CmdCreateDirectory       Command = 0x00
	CmdDeleteDirectory       Command = 0x01
	CmdOpen                  Command = 0x02
	CmdCreate                Command = 0x03
	CmdClose                 Command = 0x04
	CmdFlush                 Command = 0x05
	CmdDelete                Command = 0x06
	CmdRename                Command = 0x07
	CmdQueryInformation      Command = 0x08
	CmdSetInformation        Command = 0x09
	CmdRead                  Command = 0x0A
	CmdWrite                 Command = 0x0B
	CmdLockByteRange         Command = 0x0C
	CmdUnlockByteRange       Command = 0x0D
	CmdCreateTemporary       Command = 0x0E
	CmdCreateNew             Command = 0x0F
	CmdCheckDirectory        Command = 0x10
	CmdProcessExit           Command = 0x11
	CmdSeek                  Command = 0x12
	CmdLockAndRead           Command = 0x13
	CmdWriteAndUnlock        Command = 0x14
	CmdReadRaw               Command = 0x1A
	CmdReadMpx               Command = 0x1B
	CmdWriteRaw              Command = 0x1D
	CmdWriteMpx              Command = 0x1E
	CmdWriteComplete         Command = 0x20
	CmdSetInformation2       Command = 0x22
	CmdQueryInformation2     Command = 0x23
	CmdLockingAndX           Command = 0x24
	CmdTransaction           Command = 0x25
	CmdTransactionSecondary  Command = 0x26
	CmdIoctl                 Command = 0x27
	CmdIoctlSecondary        Command = 0x28
	CmdCopy                  Command = 0x29
	CmdMove                  Command = 0x2A
	CmdEcho                  Command = 0x2B
	CmdWriteAndClose         Command = 0x2C
	CmdOpenAndX              Command = 0x2D
	CmdReadAndX              Command = 0x2E
	CmdWriteAndX             Command = 0x2F
	CmdCloseAndTreeDisc      Command = 0x31
	CmdTransaction2          Command = 0x32
	CmdTransaction2Secondary Command = 0x33
	CmdFindClose2            Command = 0x34
	CmdFindNotifyClose       Command = 0x35
	CmdTreeConnect           Command = 0x70
	CmdTreeDisconnect        Command = 0x71
	CmdNegotiate             Command = 0x72
	CmdSessionSetupAndX      Command = 0x73
	CmdLogoffAndX            Command = 0x74
	CmdTreeConnectAndX       Command = 0x75
	CmdQueryInformationDisk  Command = 0x80
	CmdSearch                Command = 0x81
	CmdFind                  Command = 0x82
	CmdFindUnique            Command = 0x83
	CmdNTTransact            Command = 0xA0
	CmdNTTransactSecondary   Command = 0xA1
	CmdNTCreateAndX          Command = 0xA2
	CmdNTCancel              Command = 0xA4
	CmdOpenPrintFile         Command = 0xC0
	CmdWritePrintFile        Command = 0xC1
	CmdClosePrintFile        Command = 0xC2
	CmdGetPrintQueue         Command = 0xC3
	CmdNoAndX                Command = 0xFF
)

var commandNames = map[Command]string{
	CmdCreateDirectory:       "CREATE_DIRECTORY",
	CmdDeleteDirectory:       "DELETE_DIRECTORY",
	CmdOpen:                  "OPEN",
	CmdCreate:                "CREATE",
	CmdClose:                 "CLOSE",
	CmdFlush:                 "FLUSH",
	CmdDelete:                "DELETE",
	CmdRename:                "RENAME",
	CmdQueryInformation:      "QUERY_INFORMATION",
	CmdSetInformation:        "SET_INFORMATION",
	CmdRead:                  "READ",
	CmdWrite:                 "WRITE",
	CmdLockByteRange:         "LOCK_BYTE_RANGE",
	CmdUnlockByteRange:       "UNLOCK_BYTE_RANGE",
	CmdCreateTemporary:       "CREATE_TEMPORARY",
	CmdCreateNew:             "CREATE_NEW",
	CmdCheckDirectory:        "CHECK_DIRECTORY",
	CmdProcessExit:           "PROCESS_EXIT",
	CmdSeek:                  "SEEK",
	CmdLockAndRead:           "LOCK_AND_READ",
	CmdWriteAndUnlock:        "WRITE_AND_UNLOCK",
	CmdReadRaw:               "READ_RAW",
	CmdReadMpx:               "READ_MPX",
	CmdWriteRaw:              "WRITE_RAW",
	CmdWriteMpx:              "WRITE_MPX",
	CmdWriteComplete:         "WRITE_COMPLETE",
	CmdSetInformation2:       "SET_INFORMATION2",
	CmdQueryInformation2:     "QUERY_INFORMATION2",
	CmdLockingAndX:           "LOCKING_ANDX",
	CmdTransaction:           "TRANSACTION",
	CmdTransactionSecondary:  "TRANSACTION_SECONDARY",
	CmdIoctl:                 "IOCTL",
	CmdIoctlSecondary:        "IOCTL_SECONDARY",
	CmdCopy:                  "COPY",
	CmdMove:                  "MOVE",
	CmdEcho:                  "ECHO",
	CmdWriteAndClose:         "WRITE_AND_CLOSE",
	CmdOpenAndX:              "OPEN_ANDX",
	CmdReadAndX:              "READ_ANDX",
	CmdWriteAndX:             "WRITE_ANDX",
	CmdCloseAndTreeDisc:      "CLOSE_AND_TREE_DISC",
	CmdTransaction2:          "TRANSACTION2",
	CmdTransaction2Secondary: "TRANSACTION2_SECONDARY",
	CmdFindClose2:            "FIND_CLOSE2",
	CmdFindNotifyClose:       "FIND_NOTIFY_CLOSE",
	CmdTreeConnect:           "TREE_CONNECT",
	CmdTreeDisconnect:        "TREE_DISCONNECT",
	CmdNegotiate:             "NEGOTIATE",
	CmdSessionSetupAndX:      "SESSION_SETUP_ANDX",
	CmdLogoffAndX:            "LOGOFF_ANDX",
	CmdTreeConnectAndX:       "TREE_CONNECT_ANDX",
	CmdQueryInformationDisk:  "QUERY_INFORMATION_DISK",
	CmdSearch:                "SEARCH",
	CmdFind:                  "FIND",
	CmdFindUnique:            "FIND_UNIQUE",
	CmdNTTransact:            "NT_TRANSACT",
	CmdNTTransactSecondary:   "NT_TRANSACT_SECONDARY",
	CmdNTCreateAndX:          "NT_CREATE_ANDX",
	CmdNTCancel:              "NT_CANCEL",
	CmdOpenPrintFile:         "OPEN_PRINT_FILE",
	CmdWritePrintFile:        "WRITE_PRINT_FILE",
	CmdClosePrintFile:        "CLOSE_PRINT_FILE",
	CmdGetPrintQueue:         "GET_PRINT_QUEUE",
	CmdNoAndX:                "NO_ANDX_COMMAND",
}

// String returns the command name
func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("COMMAND_0x%02X", uint8(c))
}

// Header flags
const (
	FlagsLockAndRead   uint8 = 0x01
	FlagsReceiveBufAvl uint8 = 0x02
	FlagsCaseless      uint8 = 0x08
	FlagsCanonical     uint8 = 0x10
	FlagsOplock        uint8 = 0x20
	FlagsNotify        uint8 = 0x40
	FlagsResponse      uint8 = 0x80
)

// Header flags2
const (
	Flags2LongNames     uint16 = 0x0001
	Flags2EAS           uint16 = 0x0002
	Flags2SecuritySig   uint16 = 0x0004
	Flags2LongNamesUsed uint16 = 0x0040
	Flags2ExtendedSec   uint16 = 0x0800
	Flags2DFSPathnames  uint16 = 0x1000
	Flags2ReadIfExec    uint16 = 0x2000
	Flags2NTStatusCode  uint16 = 0x4000
	Flags2Unicode       uint16 = 0x8000
)

// Header layout
const (
	HeaderSize = 32

	offCommand    = 4
	offErrorClass = 5
	offErrorCode  = 7
	offFlags      = 9
	offFlags2     = 10
	offPIDHigh    = 12
	offSignature  = 14
	offTID        = 24
	offPID        = 26
	offUID        = 28
	offMID        = 30
	offWordCount  = 32
	offParams     = 33

	// smallest frame: header, word count and byte count
	minMessageSize = HeaderSize + 3
)

var magic = []byte{0xFF, 'S', 'M', 'B'}

// Direction tells whether a Message currently holds a request being built
// or a response that was received into it.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Message is one SMB frame. A session reuses a single Message for each
// request and the response read back into it; Direction records which of
// the two it holds.
//
// Parameter accessors take byte offsets relative to the start of the
// parameter words.
type Message struct {
	buf *encoding.Buffer
	dir Direction
}

// NewMessage allocates a frame with the given capacity.
func NewMessage(capacity int) *Message {
	if capacity < minMessageSize {
		capacity = minMessageSize
	}
	m := &Message{buf: encoding.NewBuffer(capacity)}
	m.Reset()
	return m
}

// ParseMessage wraps a received frame.
func ParseMessage(b []byte) (*Message, error) {
	m := &Message{buf: encoding.WrapBuffer(b)}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.dir = Incoming
	return m, nil
}

// Reset clears the header, sets the magic and an invalid TID, and empties
// the parameter and content areas.
func (m *Message) Reset() {
	raw := m.buf.Raw()
	clear(raw[:minMessageSize])
	copy(raw, magic)
	m.buf.SetUint16(offTID, 0xFFFF)
	m.buf.SetSize(minMessageSize)
	m.dir = Outgoing
}

// Direction returns what the frame currently holds
func (m *Message) Direction() Direction { return m.dir }

// Buffer returns the backing buffer
func (m *Message) Buffer() *encoding.Buffer { return m.buf }

// Bytes returns the populated frame
func (m *Message) Bytes() []byte { return m.buf.Bytes() }

// Size returns the frame length
func (m *Message) Size() int { return m.buf.Size() }

// Cap returns the frame capacity
func (m *Message) Cap() int { return m.buf.Cap() }

// Grow makes room for a frame of n bytes.
func (m *Message) Grow(n int) { m.buf.Grow(n) }

func (m *Message) Command() Command { return Command(m.buf.Byte(offCommand)) }
func (m *Message) SetCommand(c Command) { m.buf.SetByte(offCommand, byte(c)) }
func (m *Message) ErrorClass() uint8 { return m.buf.Byte(offErrorClass) }
func (m *Message) ErrorCode() uint16 { return m.buf.Uint16(offErrorCode) }
func (m *Message) Status() uint32 { return m.buf.Uint32(offErrorClass) }
func (m *Message) Flags() uint8 { return m.buf.Byte(offFlags) }
func (m *Message) SetFlags(f uint8) { m.buf.SetByte(offFlags, f) }
func (m *Message) Flags2() uint16 { return m.buf.Uint16(offFlags2) }
func (m *Message) SetFlags2(f uint16) { m.buf.SetUint16(offFlags2, f) }
func (m *Message) PIDHigh() uint16 { return m.buf.Uint16(offPIDHigh) }
func (m *Message) Signature() []byte { return m.buf.BytesAt(offSignature, 8) }
func (m *Message) TID() uint16 { return m.buf.Uint16(offTID) }
func (m *Message) SetTID(v uint16) { m.buf.SetUint16(offTID, v) }
func (m *Message) PID() uint16 { return m.buf.Uint16(offPID) }
func (m *Message) SetPID(v uint16) { m.buf.SetUint16(offPID, v) }
func (m *Message) UID() uint16 { return m.buf.Uint16(offUID) }
func (m *Message) SetUID(v uint16) { m.buf.SetUint16(offUID, v) }
func (m *Message) MID() uint16 { return m.buf.Uint16(offMID) }
func (m *Message) SetMID(v uint16) { m.buf.SetUint16(offMID, v) }
func (m *Message) IsResponse() bool { return m.Flags()&FlagsResponse != 0 }

// SetError stores a legacy class/code status.
func (m *Message) SetError(class uint8, code uint16) {
	m.buf.SetByte(offErrorClass, class)
	m.buf.SetByte(offErrorClass+1, 0)
	m.buf.SetUint16(offErrorCode, code)
}

// Err returns the frame's status as a *ServerError, or nil on success.
func (m *Message) Err() error {
	if m.ErrorClass() == Success {
		return nil
	}
	return &ServerError{Class: m.ErrorClass(), Code: m.ErrorCode()}
}

// WordCount returns the number of parameter words
func (m *Message) WordCount() int { return int(m.buf.Byte(offWordCount)) }

// SetWordCount sets the parameter word count, clears the parameters and
// leaves an empty content area.
func (m *Message) SetWordCount(n int) {
	end := offParams + 2*n + 2
	m.buf.Grow(end)
	m.buf.SetByte(offWordCount, byte(n))
	clear(m.buf.Raw()[offParams:end])
	m.buf.SetSize(end)
}

// ContentOffset returns the position of the first content byte
func (m *Message) ContentOffset() int {
	return offParams + 2*m.WordCount() + 2
}

// ByteCount returns the content length
func (m *Message) ByteCount() int {
	return int(m.buf.Uint16(m.ContentOffset() - 2))
}

// SetByteCount sets the content length and the frame size.
func (m *Message) SetByteCount(n int) {
	off := m.ContentOffset()
	m.buf.SetUint16(off-2, uint16(n))
	m.buf.SetSize(off + n)
}

// Content returns the content area
func (m *Message) Content() []byte {
	return m.buf.BytesAt(m.ContentOffset(), m.ByteCount())
}

// SetContent copies p into the content area.
func (m *Message) SetContent(p []byte) {
	off := m.ContentOffset()
	m.buf.Grow(off + len(p))
	m.buf.SetBytesAt(off, p)
	m.SetByteCount(len(p))
}

func (m *Message) ParamByte(pos int) byte { return m.buf.Byte(offParams + pos) }
func (m *Message) SetParamByte(pos int, v byte) { m.buf.SetByte(offParams+pos, v) }
func (m *Message) ParamUint16(pos int) uint16 { return m.buf.Uint16(offParams + pos) }
func (m *Message) SetParamUint16(pos int, v uint16) { m.buf.SetUint16(offParams+pos, v) }
func (m *Message) ParamUint32(pos int) uint32 { return m.buf.Uint32(offParams + pos) }
func (m *Message) SetParamUint32(pos int, v uint32) { m.buf.SetUint32(offParams+pos, v) }

// received marks the frame as a response of n bytes and checks its layout.
func (m *Message) received(n int) error {
	m.buf.SetSize(n)
	m.dir = Incoming
	return m.validate()
}

func (m *Message) validate() error {
	b := m.buf.Bytes()
	if len(b) < minMessageSize {
		return protocolError(fmt.Sprintf("frame too short: %d bytes", len(b)))
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] || b[3] != magic[3] {
		return protocolError(fmt.Sprintf("bad frame magic % X", b[:4]))
	}
	if off := m.ContentOffset(); off > len(b) || off+m.ByteCount() > len(b) {
		return protocolError(fmt.Sprintf("%s frame truncated: %d parameter words, %d content bytes in %d",
			m.Command(), m.WordCount(), m.ByteCount(), len(b)))
	}
	return nil
}

// String summarizes the header for debug output.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s mid=%d tid=%d uid=%d pid=%d err=%d/%d wc=%d bc=%d",
		m.dir, m.Command(), m.MID(), m.TID(), m.UID(), m.PID(),
		m.ErrorClass(), m.ErrorCode(), m.WordCount(), m.ByteCount())
}
