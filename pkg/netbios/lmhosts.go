package netbios

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// LMHosts maps uppercase NetBIOS names to addresses
type LMHosts map[string]net.IP

// ParseLMHosts reads "address name" lines. Names may be quoted, '#' starts
// a comment, and keywords after the name (#PRE, #DOM:) are ignored.
func ParseLMHosts(r io.Reader) (LMHosts, error) {
	hosts := make(LMHosts)
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}

		addr, rest, ok := strings.Cut(text, " ")
		if !ok {
			addr, rest, ok = strings.Cut(text, "\t")
		}
		if !ok {
			continue
		}
		ip := net.ParseIP(addr)
		if ip == nil {
			return nil, fmt.Errorf("lmhosts line %d: invalid address %q", line, addr)
		}

		name := parseLMHostsName(strings.TrimSpace(rest))
		if name == "" {
			continue
		}
		hosts[strings.ToUpper(name)] = ip
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lmhosts: %w", err)
	}
	return hosts, nil
}

func parseLMHostsName(s string) string {
	if strings.HasPrefix(s, `"`) {
		if end := strings.Index(s[1:], `"`); end >= 0 {
			return s[1 : end+1]
		}
		return s[1:]
	}
	if i := strings.IndexAny(s, " \t#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// LoadLMHosts parses the file at path
func LoadLMHosts(path string) (LMHosts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lmhosts: %w", err)
	}
	defer f.Close()
	return ParseLMHosts(f)
}

// Lookup finds name, ignoring case
func (h LMHosts) Lookup(name string) (net.IP, bool) {
	ip, ok := h[strings.ToUpper(name)]
	return ip, ok
}
