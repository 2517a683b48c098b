package smb

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/config"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
	"github.com/ineffectivecoder/cifsgooser/pkg/netbios"
)

// Manager creates sessions and owns the registry they are kept in.
type Manager struct {
	cfg      *config.Config
	resolver *netbios.Resolver
	registry *Registry
	metrics  *metrics.Metrics

	mu           sync.Mutex
	defaultLogin *auth.Login

	// LoginPrompt is asked for new credentials when the server rejects
	// the ones a session was created with.
	LoginPrompt LoginPrompt

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewManager builds a manager from cfg. A nil cfg uses the defaults; m
// may be nil.
func NewManager(cfg *config.Config, m *metrics.Metrics) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	mgr := &Manager{
		cfg: cfg,
		resolver: netbios.NewResolver(netbios.ResolverConfig{
			Order:    cfg.Resolve.Order,
			WINS:     cfg.Resolve.WINS,
			LMHosts:  cfg.Resolve.LMHosts,
			CacheTTL: cfg.Resolve.CacheTTL,
			Timeout:  cfg.Resolve.Timeout,
			Retries:  cfg.Resolve.Retries,
		}, m),
		registry: NewRegistry(m),
		metrics:  m,
	}
	if cfg.Login.Password != nil {
		mgr.defaultLogin = auth.NewLogin(cfg.Login.User, *cfg.Login.Password)
	} else {
		mgr.defaultLogin = auth.NewAnonymousLogin(cfg.Login.User)
	}
	return mgr
}

// Resolver returns the name resolver
func (mgr *Manager) Resolver() *netbios.Resolver { return mgr.resolver }

// Registry returns the session registry
func (mgr *Manager) Registry() *Registry { return mgr.registry }

// SetDefaultLogin replaces the login used when Connect gets none.
func (mgr *Manager) SetDefaultLogin(l *auth.Login) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.defaultLogin = l.Clone()
}

// DefaultLogin returns a copy of the default login
func (mgr *Manager) DefaultLogin() *auth.Login {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.defaultLogin.Clone()
}

// Connect resolves the share's host, negotiates, authenticates, connects
// the tree and registers the session as name. A nil login uses a copy of
// the default login.
func (mgr *Manager) Connect(ctx context.Context, name string, share ShareName, login *auth.Login) (*Session, error) {
	if _, err := mgr.registry.Lookup(name); err == nil {
		return nil, newError(CodeDuplicateSession, "session name already in use: "+name, nil)
	}
	if login == nil {
		login = mgr.DefaultLogin()
	}

	addr, err := mgr.resolver.Resolve(ctx, share.Host)
	if err != nil {
		return nil, err
	}
	if addr.Name == "" && mgr.cfg.Resolve.NodeStatus {
		if err := mgr.resolver.Status(ctx, &addr); err != nil {
			debug.Printf("smb: node status of %s failed: %v\n", addr, err)
		}
	}

	nbt := netbios.NewSession(addr.IP.String(), netbios.DialConfig{
		Port:      mgr.cfg.Transport.Port,
		Timeout:   mgr.cfg.Transport.Timeout,
		Socks5URL: mgr.cfg.Transport.Socks5,
		DialFunc:  mgr.dial,
	})
	s := NewSession(name, share, addr, nbt, login, Options{
		NativeOS:      mgr.cfg.Session.NativeOS,
		MaxBuffer:     mgr.cfg.Session.MaxBuffer,
		AutoReconnect: mgr.cfg.Session.AutoReconnect,
		CallingName:   mgr.callingName(),
		Prompt:        mgr.LoginPrompt,
		Registry:      mgr.registry,
		Metrics:       mgr.metrics,
	})

	if err := s.Connect(ctx); err != nil {
		nbt.Hangup()
		return nil, err
	}
	return s, nil
}

// ConnectIPC returns the registered IPC$ session to host, connecting one
// when none exists.
func (mgr *Manager) ConnectIPC(ctx context.Context, host string) (*Session, error) {
	share := IPCShare(host)
	name := IPCSessionName(host)
	if s, err := mgr.registry.Lookup(name); err == nil {
		return s, nil
	}
	return mgr.Connect(ctx, name, share, nil)
}

// IPCSessionName is the registry name ConnectIPC uses for host
func IPCSessionName(host string) string {
	return strings.ToUpper(IPCShare(host).UNC())
}

// Session returns the session registered as name
func (mgr *Manager) Session(name string) (*Session, error) {
	return mgr.registry.Lookup(name)
}

// CloseAll disconnects every registered session.
func (mgr *Manager) CloseAll(ctx context.Context) {
	for _, name := range mgr.registry.Names() {
		s, err := mgr.registry.Lookup(name)
		if err != nil {
			continue
		}
		if err := s.Disconnect(ctx); err != nil {
			debug.Printf("smb: closing %s: %v\n", name, err)
		}
	}
}

func (mgr *Manager) callingName() netbios.Name {
	name := mgr.cfg.Transport.CallingName
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		}
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "CIFSGOOSER"
	}
	return netbios.NewName(name, netbios.SuffixWorkstation)
}
