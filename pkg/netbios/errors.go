// Package netbios implements the NetBIOS over TCP/IP pieces a CIFS client
// needs: name encoding, the session service and name resolution.
package netbios

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeWrite        = "NB500"
	CodeRead         = "NB501"
	CodeRetarget     = "NB502"
	CodeBadType      = "NB503"
	CodeNotConnected = "NB504"
	CodeConnect      = "CM1"
	CodeNoName       = "CM2"
	CodeResolve      = "CM3"
)

// Error is a transport or resolution failure with a short code and an
// optional cause.
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

// Is matches another *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is
var (
	ErrWrite         = &Error{Code: CodeWrite}
	ErrRead          = &Error{Code: CodeRead}
	ErrRetarget      = &Error{Code: CodeRetarget}
	ErrBadPacketType = &Error{Code: CodeBadType}
	ErrNotConnected  = &Error{Code: CodeNotConnected}
	ErrConnect       = &Error{Code: CodeConnect}
	ErrNoName        = &Error{Code: CodeNoName}
	ErrCannotResolve = &Error{Code: CodeResolve}
)

func newError(code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// NegativeResponseError is a NEGATIVE SESSION RESPONSE from the server.
type NegativeResponseError struct {
	Code byte
}

// Negative session response codes (RFC 1002 section 4.3.4)
const (
	NotListeningOnCalled  byte = 0x80
	NotListeningForCaller byte = 0x81
	CalledNameNotPresent  byte = 0x82
	InsufficientResources byte = 0x83
	UnspecifiedError      byte = 0x8F
)

// Error implements the error interface
func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("netbios session refused: 0x%02X (%s)", e.Code, e.Reason())
}

// Reason returns the RFC 1002 description of the code
func (e *NegativeResponseError) Reason() string {
	switch e.Code {
	case NotListeningOnCalled:
		return "not listening on called name"
	case NotListeningForCaller:
		return "not listening for calling name"
	case CalledNameNotPresent:
		return "called name not present"
	case InsufficientResources:
		return "called name present, insufficient resources"
	case UnspecifiedError:
		return "unspecified error"
	default:
		return "unknown"
	}
}

// IsNegativeResponse reports whether err carries a negative session response.
func IsNegativeResponse(err error) (byte, bool) {
	var nr *NegativeResponseError
	if errors.As(err, &nr) {
		return nr.Code, true
	}
	return 0, false
}
