package smb

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeDuplicateSession = "SS1"
	CodeUnknownSession   = "SS2"
	CodeNotConnected     = "SS3"
	CodeBadPassword      = "SS4"
	CodeNoDialect        = "PE1"
	CodeDialectMismatch  = "PE2"
	CodeNoResponse       = "PE3"
	CodeProtocol         = "PE4"
	CodeShareName        = "SN1"
)

// Error is a session level failure with a short code and an optional cause.
type Error struct {
	Code string
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare sentinel with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is
var (
	ErrDuplicateSession = &Error{Code: CodeDuplicateSession}
	ErrUnknownSession   = &Error{Code: CodeUnknownSession}
	ErrNotConnected     = &Error{Code: CodeNotConnected}
	ErrBadPassword      = &Error{Code: CodeBadPassword}
	ErrNoDialect        = &Error{Code: CodeNoDialect}
	ErrDialectMismatch  = &Error{Code: CodeDialectMismatch}
	ErrNoResponse       = &Error{Code: CodeNoResponse}
	ErrProtocol         = &Error{Code: CodeProtocol}
	ErrShareName        = &Error{Code: CodeShareName}
)

func newError(code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

func protocolError(msg string) *Error {
	return newError(CodeProtocol, msg, nil)
}

// Error classes
const (
	Success uint8 = 0x00
	ErrDOS  uint8 = 0x01
	ErrSRV  uint8 = 0x02
	ErrHRD  uint8 = 0x03
	ErrCMD  uint8 = 0xFF
)

// ERRDOS codes
const (
	DOSBadFunc      uint16 = 1
	DOSBadFile      uint16 = 2
	DOSBadPath      uint16 = 3
	DOSNoFids       uint16 = 4
	DOSNoAccess     uint16 = 5
	DOSBadFid       uint16 = 6
	DOSBadMCB       uint16 = 7
	DOSNoMem        uint16 = 8
	DOSBadMem       uint16 = 9
	DOSBadEnv       uint16 = 10
	DOSBadFormat    uint16 = 11
	DOSBadAccess    uint16 = 12
	DOSBadData      uint16 = 13
	DOSBadDrive     uint16 = 15
	DOSRemCD        uint16 = 16
	DOSDiffDevice   uint16 = 17
	DOSNoFiles      uint16 = 18
	DOSBadShare     uint16 = 32
	DOSLock         uint16 = 33
	DOSFileExists   uint16 = 80
	DOSInvalidParam uint16 = 87
	DOSBadPipe      uint16 = 230
	DOSPipeBusy     uint16 = 231
	DOSPipeClosing  uint16 = 232
	DOSNotConnected uint16 = 233
	DOSMoreData     uint16 = 234
)

// ERRSRV codes
const (
	SRVError       uint16 = 1
	SRVBadPassword uint16 = 2
	SRVAccess      uint16 = 4
	SRVInvTID      uint16 = 5
	SRVInvNetName  uint16 = 6
	SRVInvDevice   uint16 = 7
	SRVQFull       uint16 = 49
	SRVQTooBig     uint16 = 50
	SRVInvPFID     uint16 = 52
	SRVSMBCmd      uint16 = 64
	SRVSrvError    uint16 = 65
	SRVFilespecs   uint16 = 67
	SRVBadPermits  uint16 = 69
	SRVSetAttrMode uint16 = 71
	SRVPaused      uint16 = 81
	SRVMsgOff      uint16 = 82
	SRVNoRoom      uint16 = 83
	SRVRmUns       uint16 = 87
	SRVTimeout     uint16 = 88
	SRVNoResource  uint16 = 89
	SRVTooManyUIDs uint16 = 90
	SRVBadUID      uint16 = 91
	SRVUseMPX      uint16 = 250
	SRVUseSTD      uint16 = 251
	SRVContMPX     uint16 = 252
	SRVNoSupport   uint16 = 0xFFFF
)

// ERRHRD codes
const (
	HRDNoWrite   uint16 = 19
	HRDBadUnit   uint16 = 20
	HRDNotReady  uint16 = 21
	HRDBadCmd    uint16 = 22
	HRDData      uint16 = 23
	HRDBadReq    uint16 = 24
	HRDSeek      uint16 = 25
	HRDBadMedia  uint16 = 26
	HRDBadSector uint16 = 27
	HRDNoPaper   uint16 = 28
	HRDWrite     uint16 = 29
	HRDRead      uint16 = 30
	HRDGeneral   uint16 = 31
	HRDBadShare  uint16 = 32
	HRDLock      uint16 = 33
)

var classNames = map[uint8]string{
	Success: "SUCCESS",
	ErrDOS:  "ERRDOS",
	ErrSRV:  "ERRSRV",
	ErrHRD:  "ERRHRD",
	ErrCMD:  "ERRCMD",
}

var codeNames = map[uint8]map[uint16]string{
	ErrDOS: {
		DOSBadFunc:      "ERRbadfunc",
		DOSBadFile:      "ERRbadfile",
		DOSBadPath:      "ERRbadpath",
		DOSNoFids:       "ERRnofids",
		DOSNoAccess:     "ERRnoaccess",
		DOSBadFid:       "ERRbadfid",
		DOSBadMCB:       "ERRbadmcb",
		DOSNoMem:        "ERRnomem",
		DOSBadMem:       "ERRbadmem",
		DOSBadEnv:       "ERRbadenv",
		DOSBadFormat:    "ERRbadformat",
		DOSBadAccess:    "ERRbadaccess",
		DOSBadData:      "ERRbaddata",
		DOSBadDrive:     "ERRbaddrive",
		DOSRemCD:        "ERRremcd",
		DOSDiffDevice:   "ERRdiffdevice",
		DOSNoFiles:      "ERRnofiles",
		DOSBadShare:     "ERRbadshare",
		DOSLock:         "ERRlock",
		DOSFileExists:   "ERRfilexists",
		DOSInvalidParam: "ERRinvalidparam",
		DOSBadPipe:      "ERRbadpipe",
		DOSPipeBusy:     "ERRpipebusy",
		DOSPipeClosing:  "ERRpipeclosing",
		DOSNotConnected: "ERRnotconnected",
		DOSMoreData:     "ERRmoredata",
	},
	ErrSRV: {
		SRVError:       "ERRerror",
		SRVBadPassword: "ERRbadpw",
		SRVAccess:      "ERRaccess",
		SRVInvTID:      "ERRinvtid",
		SRVInvNetName:  "ERRinvnetname",
		SRVInvDevice:   "ERRinvdevice",
		SRVQFull:       "ERRqfull",
		SRVQTooBig:     "ERRqtoobig",
		SRVInvPFID:     "ERRinvpfid",
		SRVSMBCmd:      "ERRsmbcmd",
		SRVSrvError:    "ERRsrverror",
		SRVFilespecs:   "ERRfilespecs",
		SRVBadPermits:  "ERRbadpermits",
		SRVSetAttrMode: "ERRsetattrmode",
		SRVPaused:      "ERRpaused",
		SRVMsgOff:      "ERRmsgoff",
		SRVNoRoom:      "ERRnoroom",
		SRVRmUns:       "ERRrmuns",
		SRVTimeout:     "ERRtimeout",
		SRVNoResource:  "ERRnoresource",
		SRVTooManyUIDs: "ERRtoomanyuids",
		SRVBadUID:      "ERRbaduid",
		SRVUseMPX:      "ERRusempx",
		SRVUseSTD:      "ERRusestd",
		SRVContMPX:     "ERRcontmpx",
		SRVNoSupport:   "ERRnosupport",
	},
	ErrHRD: {
		HRDNoWrite:   "ERRnowrite",
		HRDBadUnit:   "ERRbadunit",
		HRDNotReady:  "ERRnotready",
		HRDBadCmd:    "ERRbadcmd",
		HRDData:      "ERRdata",
		HRDBadReq:    "ERRbadreq",
		HRDSeek:      "ERRseek",
		HRDBadMedia:  "ERRbadmedia",
		HRDBadSector: "ERRbadsector",
		HRDNoPaper:   "ERRnopaper",
		HRDWrite:     "ERRwrite",
		HRDRead:      "ERRread",
		HRDGeneral:   "ERRgeneral",
		HRDBadShare:  "ERRbadshare",
		HRDLock:      "ERRlock",
	},
}

// ServerError is a non-success class/code status returned by the server.
type ServerError struct {
	Class uint8
	Code  uint16
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s/%s (%d/%d)", e.ClassName(), e.CodeName(), e.Class, e.Code)
}

// ClassName returns the error class name
func (e *ServerError) ClassName() string {
	if n, ok := classNames[e.Class]; ok {
		return n
	}
	return "UNKNOWN"
}

// CodeName returns the error code name within its class
func (e *ServerError) CodeName() string {
	if n, ok := codeNames[e.Class][e.Code]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsBadPassword reports whether the server rejected the credentials.
func (e *ServerError) IsBadPassword() bool {
	return (e.Class == ErrSRV && e.Code == SRVBadPassword) ||
		(e.Class == ErrDOS && e.Code == DOSNoAccess)
}

// IsServerError returns the server status carried by err, if any.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// SetupResult is the outcome of a session setup or tree connect attempt.
// Failures other than rejected credentials are returned as errors.
type SetupResult int

const (
	SetupOK SetupResult = iota
	// SetupRetry means the server rejected the credentials; the caller may
	// retry with different ones.
	SetupRetry
)

func (r SetupResult) String() string {
	if r == SetupRetry {
		return "retry"
	}
	return "ok"
}
