package smb

import (
	"context"

	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

const treeConnectWords = 4

// TreeConnect runs one TREE_CONNECT_ANDX to the session's share with
// login. SetupRetry means the server rejected the password.
func (s *Session) TreeConnect(ctx context.Context, login *auth.Login) (SetupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treeConnectLocked(ctx, login)
}

func (s *Session) treeConnectLocked(ctx context.Context, login *auth.Login) (SetupResult, error) {
	if err := s.setupMessageLocked(ctx, CmdTreeConnectAndX); err != nil {
		return SetupOK, err
	}
	m := s.msg
	m.SetTID(0)
	m.SetWordCount(treeConnectWords)
	m.SetParamByte(0, noAndXCommand)
	m.SetParamUint16(4, 0) // flags

	password := s.treePasswordLocked(login)
	m.SetParamUint16(6, uint16(len(password)))

	content := make([]byte, 0, len(password)+64)
	content = append(content, password...)
	content = appendZt(content, s.share.TreePath())
	content = appendZt(content, s.share.Device())
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
		return SetupOK, newError(CodeNoResponse, "tree connect answered with a request frame", nil)
	}

	s.tid = m.TID()
	s.uid = m.UID()
	debug.Printf("smb: tree connect %s tid=%d\n", s.share.TreePath(), s.tid)
	return SetupOK, nil
}

// treePasswordLocked returns the share password field. A login without a
// password sends a single NUL.
func (s *Session) treePasswordLocked(login *auth.Login) []byte {
	var pw []byte
	if s.neg.EncryptPasswords() {
		pw = login.NTResponse(s.neg.EncryptionKey)
	} else if p, ok := login.Password(); ok {
		pw = appendZt(nil, p)
	}
	if len(pw) == 0 {
		return []byte{0}
	}
	return pw
}

// TreeDisconnect releases the tree. Failures are logged, not returned.
func (s *Session) TreeDisconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treeDisconnectLocked(ctx)
}

func (s *Session) treeDisconnectLocked(ctx context.Context) {
	if s.tid == 0 {
		return
	}
	if err := s.setupMessageLocked(ctx, CmdTreeDisconnect); err != nil {
		debug.Printf("smb: tree disconnect of %s: %v\n", s.name, err)
		return
	}
	m := s.msg
	m.SetWordCount(0)
	m.SetByteCount(0)

	err := s.exchangeLocked()
	if err == nil {
		err = m.Err()
	}
	if err != nil {
		debug.Printf("smb: tree disconnect of %s failed: %v\n", s.name, err)
	}
	s.tid = 0
}
