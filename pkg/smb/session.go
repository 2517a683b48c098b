// Package smb implements the client side of the CIFS NT LM 0.12 dialect
// over a NetBIOS session: negotiate, session setup, tree connect, echo and
// the TRANSACTION/TRANSACTION2 exchanges that carry RAP calls.
//
// Basic usage:
//
//	mgr := smb.NewManager(cfg, nil)
//	sess, err := mgr.ConnectIPC(ctx, "fileserver")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Disconnect(ctx)
package smb

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
	"github.com/ineffectivecoder/cifsgooser/pkg/netbios"
)

// Defaults for Options
const (
	DefaultMaxBuffer = 40 * 1024
	DefaultNativeOS  = "Go"
	NativeLanMan     = "cifsgooser"
)

// the MID counter wraps to 0 when it reaches this value
const midWrap = 0x7FFF

// LoginPrompt asks for new credentials after the server rejected current
// for share. Returning ok == false gives up.
type LoginPrompt func(ctx context.Context, share ShareName, current *auth.Login) (login *auth.Login, ok bool)

// Options configures a Session
type Options struct {
	NativeOS      string
	MaxBuffer     int
	AutoReconnect bool
	CallingName   netbios.Name
	Prompt        LoginPrompt
	Registry      *Registry
	Metrics       *metrics.Metrics
}

// Session is one CIFS connection to a share. All operations on a session
// are serialized; a request and its response (or every fragment of a
// transaction) are exchanged under a single lock hold.
type Session struct {
	mu sync.Mutex

	name    string
	share   ShareName
	addr    netbios.Address
	login   *auth.Login
	nbt     *netbios.Session
	msg     *Message
	opts    Options
	metrics *metrics.Metrics

	pid uint16
	mid uint16
	uid uint16
	tid uint16

	neg          Negotiated
	negotiated   bool
	nativeOS     string
	nativeLanMan string
	guest        bool
	connectTime  time.Time
	registered   bool
}

// NewSession creates an unconnected session named name. nbt carries the
// frames; login is cloned.
func NewSession(name string, share ShareName, addr netbios.Address, nbt *netbios.Session, login *auth.Login, opts Options) *Session {
	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = DefaultMaxBuffer
	}
	if opts.NativeOS == "" {
		opts.NativeOS = DefaultNativeOS
	}
	if opts.CallingName.Name == "" {
		opts.CallingName = netbios.NewName("CIFSGOOSER", netbios.SuffixWorkstation)
	}
	if login == nil {
		login = auth.NewAnonymousLogin("")
	}
	return &Session{
		name:    name,
		share:   share,
		addr:    addr,
		login:   login.Clone(),
		nbt:     nbt,
		msg:     NewMessage(opts.MaxBuffer),
		opts:    opts,
		metrics: opts.Metrics,
		pid:     uint16(rand.IntN(0x10000)),
	}
}

// Name returns the registry name
func (s *Session) Name() string { return s.name }

// Share returns the connected share
func (s *Session) Share() ShareName { return s.share }

// SetAutoReconnect enables reconnecting on the next operation after the
// connection was lost.
func (s *Session) SetAutoReconnect(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.AutoReconnect = on
}

// IsConnected reports whether the transport is up
func (s *Session) IsConnected() bool {
	return s.nbt.IsConnected()
}

// nextMIDLocked returns the next multiplex id
func (s *Session) nextMIDLocked() uint16 {
	s.mid++
	if s.mid == midWrap {
		s.mid = 0
	}
	return s.mid
}

// checkConnectionLocked reconnects a lost session when allowed.
func (s *Session) checkConnectionLocked(ctx context.Context) error {
	if s.nbt.IsConnected() {
		return nil
	}
	if s.nbt.Lost() && s.opts.AutoReconnect {
		return s.reconnectLocked(ctx)
	}
	return newError(CodeNotConnected, "session "+s.name+" is not connected", nil)
}

// setupMessageLocked resets the frame for cmd with a fresh MID.
func (s *Session) setupMessageLocked(ctx context.Context, cmd Command) error {
	switch cmd {
	case CmdNegotiate, CmdSessionSetupAndX, CmdTreeConnectAndX, CmdTreeDisconnect, CmdLogoffAndX:
	default:
		if err := s.checkConnectionLocked(ctx); err != nil {
			return err
		}
	}
	s.fillHeaderLocked(cmd)
	s.msg.SetMID(s.nextMIDLocked())
	return nil
}

// setupSecondaryLocked resets the frame for a secondary request that
// continues the current MID.
func (s *Session) setupSecondaryLocked(cmd Command) {
	s.fillHeaderLocked(cmd)
	s.msg.SetMID(s.mid)
}

func (s *Session) fillHeaderLocked(cmd Command) {
	m := s.msg
	m.Reset()
	m.SetCommand(cmd)
	m.SetFlags(FlagsCaseless | FlagsCanonical)
	m.SetFlags2(Flags2LongNames | Flags2EAS)
	m.SetUID(s.uid)
	m.SetTID(s.tid)
	m.SetPID(s.pid)
}

func (s *Session) sendLocked() error {
	m := s.msg
	if m.Direction() != Outgoing {
		return protocolError("frame holds a response, not a request")
	}
	debug.Tracef("smb: send %s", m)
	if err := s.nbt.Send(m.Bytes()); err != nil {
		return err
	}
	s.metrics.FrameSent(m.Size())
	return nil
}

func (s *Session) receiveLocked() error {
	n, err := s.nbt.Recv(s.msg.Buffer())
	if err != nil {
		return err
	}
	s.metrics.FrameReceived(n)
	if err := s.msg.received(n); err != nil {
		return err
	}
	debug.Tracef("smb: recv %s", s.msg)
	return nil
}

// exchangeLocked sends the frame and reads the response into it.
func (s *Session) exchangeLocked() error {
	if err := s.sendLocked(); err != nil {
		return err
	}
	return s.receiveLocked()
}

// Connect runs session setup and tree connect, retrying rejected
// credentials, and registers the session. It negotiates first when needed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.negotiated || !s.nbt.IsConnected() {
		if err := s.negotiateLocked(ctx); err != nil {
			return err
		}
	}
	if err := s.establishLocked(ctx); err != nil {
		return err
	}
	if reg := s.opts.Registry; reg != nil && !s.registered {
		if err := reg.Add(s.name, s); err != nil {
			s.treeDisconnectLocked(ctx)
			s.nbt.Hangup()
			return err
		}
		s.registered = true
	}
	return nil
}

// establishLocked authenticates and connects the tree.
func (s *Session) establishLocked(ctx context.Context) error {
	err := s.withCredentialsLocked(ctx, "setup", true, s.setupLocked)
	if err != nil {
		return err
	}
	err = s.withCredentialsLocked(ctx, "tree", s.neg.UserLevel(), s.treeConnectLocked)
	if err != nil {
		return err
	}
	s.connectTime = time.Now()
	debug.WithFields(debug.Fields{
		"session": s.name,
		"share":   s.share.UNC(),
		"uid":     s.uid,
		"tid":     s.tid,
		"guest":   s.guest,
	}).Info("smb: connected")
	return nil
}

// withCredentialsLocked runs attempt with the session login, then with its
// password uppercased, then with whatever the prompt hook supplies, until
// the server accepts one. A login without a password is tried as is only
// when tryAnonymous is set; otherwise it goes straight to the prompt.
func (s *Session) withCredentialsLocked(ctx context.Context, stage string, tryAnonymous bool,
	attempt func(context.Context, *auth.Login) (SetupResult, error)) error {

	var candidates []*auth.Login
	switch {
	case s.login.HasPassword():
		candidates = append(candidates, s.login)
		if up := s.login.Upper(); !up.Equal(s.login) {
			candidates = append(candidates, up)
		}
	case tryAnonymous:
		candidates = append(candidates, s.login)
	}

	for _, l := range candidates {
		res, err := attempt(ctx, l)
		if err != nil {
			return err
		}
		if res == SetupOK {
			s.login = l
			return nil
		}
		s.metrics.SetupRetry(stage)
		debug.Printf("smb: %s rejected credentials for %s\n", stage, l)
	}

	current := s.login
	for s.opts.Prompt != nil {
		l, ok := s.opts.Prompt(ctx, s.share, current)
		if !ok || l == nil {
			break
		}
		res, err := attempt(ctx, l)
		if err != nil {
			return err
		}
		if res == SetupOK {
			s.login = l.Clone()
			return nil
		}
		s.metrics.SetupRetry(stage)
		current = l
	}
	return newError(CodeBadPassword, stage+" rejected credentials for "+s.login.Account(), nil)
}

// Reconnect reestablishes a session whose transport is down. It does
// nothing when the session is connected.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nbt.IsConnected() {
		return nil
	}
	return s.reconnectLocked(ctx)
}

// Redial drops the transport, logging off first when it is up, and
// establishes the session again with the last accepted credentials.
func (s *Session) Redial(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nbt.IsConnected() {
		s.treeDisconnectLocked(ctx)
		_ = s.logoffLocked(ctx)
	}
	s.nbt.Hangup()
	s.negotiated = false
	return s.reconnectLocked(ctx)
}

func (s *Session) reconnectLocked(ctx context.Context) error {
	debug.Infof("smb: reconnecting session %s", s.name)
	s.metrics.Reconnect()
	s.uid, s.tid = 0, 0
	if err := s.negotiateLocked(ctx); err != nil {
		s.nbt.Hangup()
		return err
	}
	if err := s.establishLocked(ctx); err != nil {
		s.nbt.Hangup()
		return err
	}
	return nil
}

// Disconnect tears the session down. Tree disconnect and logoff are best
// effort; the transport is always closed and the session unregistered.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nbt.IsConnected() {
		s.treeDisconnectLocked(ctx)
		s.logoffLocked(ctx)
	}
	err := s.nbt.Hangup()
	s.negotiated = false
	if s.registered {
		s.opts.Registry.Remove(s.name)
		s.registered = false
	}
	return err
}

// Echo sends text to the server and returns what it echoes back.
func (s *Session) Echo(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setupMessageLocked(ctx, CmdEcho); err != nil {
		return "", err
	}
	m := s.msg
	m.SetWordCount(1)
	m.SetParamUint16(0, 1)
	m.SetContent(encoding.ASCIIBytes(text))

	if err := s.exchangeLocked(); err != nil {
		return "", err
	}
	if err := m.Err(); err != nil {
		return "", err
	}
	return encoding.ASCIIString(m.Content()), nil
}

// Info is a snapshot of a session's negotiated and connection state.
type Info struct {
	Name         string
	Share        ShareName
	Server       netbios.Address
	Account      string
	Negotiated   Negotiated
	UID          uint16
	TID          uint16
	PID          uint16
	NativeOS     string
	NativeLanMan string
	Guest        bool
	ConnectTime  time.Time
	Connected    bool
	Lost         bool
}

// Info returns the session state
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		Name:         s.name,
		Share:        s.share,
		Server:       s.addr,
		Account:      s.login.Account(),
		Negotiated:   s.neg,
		UID:          s.uid,
		TID:          s.tid,
		PID:          s.pid,
		NativeOS:     s.nativeOS,
		NativeLanMan: s.nativeLanMan,
		Guest:        s.guest,
		ConnectTime:  s.connectTime,
		Connected:    s.nbt.IsConnected(),
		Lost:         s.nbt.Lost(),
	}
}

// Login returns a copy of the credentials the server accepted
func (s *Session) Login() *auth.Login {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login.Clone()
}
