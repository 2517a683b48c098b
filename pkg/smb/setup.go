package smb

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

const (
	setupWords    = 13
	setupMaxMpx   = 1
	setupCaps     = CapUnicode | CapNTSMBs
	setupDomain   = "?"
	actionGuest   = 0x0001
	noAndXCommand = byte(CmdNoAndX)
)

// Setup runs one SESSION_SETUP_ANDX with login. SetupRetry means the
// server rejected the credentials.
func (s *Session) Setup(ctx context.Context, login *auth.Login) (SetupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setupLocked(ctx, login)
}

func (s *Session) setupLocked(ctx context.Context, login *auth.Login) (SetupResult, error) {
	if err := s.setupMessageLocked(ctx, CmdSessionSetupAndX); err != nil {
		return SetupOK, err
	}
	m := s.msg
	m.SetWordCount(setupWords)
	m.SetParamByte(0, noAndXCommand)
	m.SetParamUint16(4, uint16(min(s.opts.MaxBuffer, 0xFFFF)))
	m.SetParamUint16(6, setupMaxMpx)
	m.SetParamUint16(8, 0) // VC number
	m.SetParamUint32(10, 0)

	caseInsensitive, caseSensitive := s.passwordsLocked(login)
	m.SetParamUint16(14, uint16(len(caseInsensitive)))
	m.SetParamUint16(16, uint16(len(caseSensitive)))
	m.SetParamUint32(22, setupCaps)

	content := make([]byte, 0, 128)
	content = append(content, caseInsensitive...)
	content = append(content, caseSensitive...)
	content = appendZt(content, login.Account())
	content = appendZt(content, setupDomain)
	content = appendZt(content, s.opts.NativeOS)
	content = appendZt(content, NativeLanMan)
	m.SetContent(content)

	if err := s.exchangeLocked(); err != nil {
		return SetupOK, err
	}
	if err := m.Err(); err != nil {
		if se, ok := IsServerError(err); ok && se.IsBadPassword() {
			return SetupRetry, nil
		}
		return SetupOK, err
	}
	if !m.IsResponse() {
		return SetupOK, newError(CodeNoResponse, "session setup answered with a request frame", nil)
	}

	s.uid = m.UID()
	s.guest = false
	s.nativeOS, s.nativeLanMan = "", ""
	if m.WordCount() >= 3 {
		s.guest = m.ParamUint16(4)&actionGuest != 0
		s.nativeOS, s.nativeLanMan = parseNativeStrings(m.Content())
	}
	debug.Printf("smb: session setup as %q uid=%d guest=%v os=%q lanman=%q\n",
		login.Account(), s.uid, s.guest, s.nativeOS, s.nativeLanMan)
	return SetupOK, nil
}

// passwordsLocked returns the case insensitive and case sensitive password
// fields: challenge responses when the server encrypts, plaintext forms
// otherwise.
func (s *Session) passwordsLocked(login *auth.Login) (ci, cs []byte) {
	if s.neg.EncryptPasswords() {
		return login.LMResponse(s.neg.EncryptionKey), login.NTResponse(s.neg.EncryptionKey)
	}
	pw, ok := login.Password()
	if !ok {
		return nil, nil
	}
	ci = appendZt(nil, strings.ToUpper(pw))
	cs = encoding.ToUTF16LE(pw)
	return ci, cs
}

func appendZt(b []byte, s string) []byte {
	b = append(b, encoding.ASCIIBytes(s)...)
	return append(b, 0)
}

// parseNativeStrings reads the zero terminated native OS and LAN manager
// strings of a session setup response. Missing strings come back empty.
func parseNativeStrings(content []byte) (nativeOS, lanman string) {
	var out [2]string
	rest := content
	for i := range out {
		if len(rest) == 0 {
			break
		}
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			out[i] = encoding.ASCIIString(rest)
			break
		}
		out[i] = encoding.ASCIIString(rest[:end])
		rest = rest[end+1:]
	}
	return out[0], out[1]
}

// Logoff ends the authenticated session, keeping the transport open.
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoffLocked(ctx)
}

func (s *Session) logoffLocked(ctx context.Context) error {
	if err := s.setupMessageLocked(ctx, CmdLogoffAndX); err != nil {
		return err
	}
	m := s.msg
	m.SetWordCount(2)
	m.SetParamByte(0, noAndXCommand)
	m.SetByteCount(0)

	err := s.exchangeLocked()
	if err == nil {
		err = m.Err()
	}
	if err != nil {
		debug.Printf("smb: logoff of %s failed: %v\n", s.name, err)
		return fmt.Errorf("logoff failed: %w", err)
	}
	s.uid = 0
	return nil
}
