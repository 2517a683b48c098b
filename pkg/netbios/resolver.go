package netbios

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
)

// Lookup methods
const (
	MethodDNS     = "dns"
	MethodLMHosts = "lmhosts"
	MethodWINS    = "wins"
	MethodBcast   = "bcast"
)

// Address is a resolved server: its IPv4 address and, when known, the
// NetBIOS name and workgroup it registered.
type Address struct {
	IP        net.IP
	Name      string
	Workgroup string
}

// String returns the IP in dotted form
func (a Address) String() string {
	return a.IP.String()
}

// CalledName returns the name to use in a session request: the server's
// registered name, or *SMBSERVER when it is unknown.
func (a Address) CalledName() Name {
	if a.Name == "" {
		return SMBServer
	}
	return NewName(a.Name, SuffixServer)
}

// ResolverConfig configures the lookup chain
type ResolverConfig struct {
	Order    []string
	WINS     string
	LMHosts  string
	CacheTTL time.Duration
	Timeout  time.Duration
	Retries  int
}

// Resolver maps server names to addresses through a cache and an ordered
// list of lookup methods.
type Resolver struct {
	order   []string
	cache   *cache.Cache
	group   singleflight.Group
	wins    *NameService
	bcast   *NameService
	metrics *metrics.Metrics

	lmhostsPath string
	lmhostsOnce sync.Once
	lmhosts     LMHosts

	lookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(cfg ResolverConfig, m *metrics.Metrics) *Resolver {
	if len(cfg.Order) == 0 {
		cfg.Order = []string{MethodDNS, MethodLMHosts, MethodWINS}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	r := &Resolver{
		order:       cfg.Order,
		cache:       cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		bcast:       NewNameService("", cfg.Timeout, cfg.Retries),
		metrics:     m,
		lmhostsPath: cfg.LMHosts,
		lookupHost:  net.DefaultResolver.LookupHost,
	}
	if cfg.WINS != "" {
		r.wins = NewNameService(cfg.WINS, cfg.Timeout, cfg.Retries)
	}
	return r
}

// SetLMHosts replaces the LMHOSTS table
func (r *Resolver) SetLMHosts(h LMHosts) {
	r.lmhostsOnce.Do(func() {})
	r.lmhosts = h
}

// Add puts a fixed entry in the cache
func (r *Resolver) Add(name string, addr Address) {
	r.cache.Set(strings.ToUpper(name), addr, cache.NoExpiration)
}

// Forget drops name from the cache
func (r *Resolver) Forget(name string) {
	r.cache.Delete(strings.ToUpper(name))
}

// Resolve returns the address of name. IP literals resolve to themselves.
func (r *Resolver) Resolve(ctx context.Context, name string) (Address, error) {
	if name == "" {
		return Address{}, newError(CodeNoName, "no server name given", nil)
	}
	if ip := net.ParseIP(name); ip != nil {
		return Address{IP: ip}, nil
	}

	key := strings.ToUpper(name)
	if v, ok := r.cache.Get(key); ok {
		r.metrics.Resolution("cache", nil)
		return v.(Address), nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.lookup(ctx, name)
	})
	if err != nil {
		return Address{}, err
	}
	addr := v.(Address)
	r.cache.SetDefault(key, addr)
	return addr, nil
}

func (r *Resolver) lookup(ctx context.Context, name string) (Address, error) {
	nbName := strings.ToUpper(name)
	if i := strings.IndexByte(nbName, '.'); i >= 0 {
		nbName = nbName[:i]
	}

	var lastErr error
	for _, method := range r.order {
		var (
			ip  net.IP
			err error
		)
		switch method {
		case MethodDNS:
			ip, err = r.lookupDNS(ctx, name)
		case MethodLMHosts:
			ip, err = r.lookupLMHosts(nbName)
		case MethodWINS:
			if r.wins == nil {
				continue
			}
			ip, err = r.lookupNBNS(ctx, r.wins, nbName)
		case MethodBcast:
			ip, err = r.lookupNBNS(ctx, r.bcast, nbName)
		default:
			continue
		}
		r.metrics.Resolution(method, err)
		if err == nil {
			debug.Printf("netbios: resolved %s via %s to %s\n", name, method, ip)
			addr := Address{IP: ip}
			if method != MethodDNS {
				addr.Name = nbName
			}
			return addr, nil
		}
		debug.Printf("netbios: %s lookup of %s failed: %v\n", method, name, err)
		lastErr = err
	}
	return Address{}, newError(CodeResolve, "cannot resolve "+name, lastErr)
}

func (r *Resolver) lookupDNS(ctx context.Context, name string) (net.IP, error) {
	addrs, err := r.lookupHost(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a).To4(); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address for %s", name)
}

func (r *Resolver) lookupLMHosts(name string) (net.IP, error) {
	r.lmhostsOnce.Do(func() {
		if r.lmhostsPath == "" {
			return
		}
		h, err := LoadLMHosts(r.lmhostsPath)
		if err != nil {
			debug.Warnf("netbios: %v", err)
			return
		}
		r.lmhosts = h
	})
	if ip, ok := r.lmhosts.Lookup(name); ok {
		return ip, nil
	}
	return nil, fmt.Errorf("%s not in lmhosts", name)
}

func (r *Resolver) lookupNBNS(ctx context.Context, ns *NameService, name string) (net.IP, error) {
	ips, err := ns.Query(ctx, NewName(name, SuffixServer))
	if err != nil {
		return nil, err
	}
	return ips[0], nil
}

// Status fills in the NetBIOS name and workgroup of addr with a node
// status query. Failures leave addr unchanged.
func (r *Resolver) Status(ctx context.Context, addr *Address) error {
	names, err := r.bcast.NodeStatus(ctx, addr.IP)
	r.metrics.Resolution("status", err)
	if err != nil {
		return err
	}
	if n, ok := ServerName(names); ok {
		addr.Name = n
	}
	if wg, ok := Workgroup(names); ok {
		addr.Workgroup = wg
	}
	return nil
}
