package rap

import (
	"errors"
	"fmt"
)

// Status values returned in the first parameter word
const (
	StatusSuccess             uint16 = 0
	StatusAccessDenied        uint16 = 5
	StatusNotSupported        uint16 = 50
	StatusNetworkAccessDenied uint16 = 65
	StatusInvalidPassword     uint16 = 86
	StatusInvalidParameter    uint16 = 87
	StatusInvalidLevel        uint16 = 124
	StatusMoreData            uint16 = 234
	StatusNetNotStarted       uint16 = 2102
	StatusUnknownServer       uint16 = 2103
	StatusServerNotStarted    uint16 = 2114
	StatusBufTooSmall         uint16 = 2123
	StatusInvalidAPI          uint16 = 2142
	StatusBadPassword         uint16 = 2203
	StatusUserNotFound        uint16 = 2221
	StatusNotPrimary          uint16 = 2226
	StatusPasswordTooShort    uint16 = 2245
	StatusNetNameNotFound     uint16 = 2310
)

var statusNames = map[uint16]string{
	StatusSuccess:             "NERR_Success",
	StatusAccessDenied:        "ERROR_ACCESS_DENIED",
	StatusNotSupported:        "ERROR_NOT_SUPPORTED",
	StatusNetworkAccessDenied: "ERROR_NETWORK_ACCESS_DENIED",
	StatusInvalidPassword:     "ERROR_INVALID_PASSWORD",
	StatusInvalidParameter:    "ERROR_INVALID_PARAMETER",
	StatusInvalidLevel:        "ERROR_INVALID_LEVEL",
	StatusMoreData:            "ERROR_MORE_DATA",
	StatusNetNotStarted:       "NERR_NetNotStarted",
	StatusUnknownServer:       "NERR_UnknownServer",
	StatusServerNotStarted:    "NERR_ServerNotStarted",
	StatusBufTooSmall:         "NERR_BufTooSmall",
	StatusInvalidAPI:          "NERR_InvalidAPI",
	StatusBadPassword:         "NERR_BadPassword",
	StatusUserNotFound:        "NERR_UserNotFound",
	StatusNotPrimary:          "NERR_NotPrimary",
	StatusPasswordTooShort:    "NERR_PasswordTooShort",
	StatusNetNameNotFound:     "NERR_NetNameNotFound",
}

// StatusName returns the LAN Manager name of status
func StatusName(status uint16) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return fmt.Sprintf("status %d", status)
}

// Error is a call the server answered with a failure status.
type Error struct {
	Function string
	Status   uint16
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Function, StatusName(e.Status), e.Status)
}

// IsStatus reports whether err is a RAP failure with status.
func IsStatus(err error, status uint16) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == status
}
