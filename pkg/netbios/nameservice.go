package netbios

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

// NameServicePort is the NetBIOS name service UDP port
const NameServicePort = 137

// Name service header flags and record types (RFC 1002 section 4.2)
const (
	nsFlagResponse  uint16 = 0x8000
	nsFlagRecursion uint16 = 0x0100
	nsFlagBroadcast uint16 = 0x0010
	nsRcodeMask     uint16 = 0x000F

	rrTypeNB     uint16 = 0x0020
	rrTypeNBStat uint16 = 0x0021
	rrClassIN    uint16 = 0x0001

	nsHeaderSize = 12
)

// NodeName is one entry of a node status name table
type NodeName struct {
	Name
	Group bool
	Flags uint16
}

// NameService queries NetBIOS name servers over UDP
type NameService struct {
	// Server is the WINS host; empty means broadcast.
	Server    string
	Broadcast string
	Timeout   time.Duration
	Retries   int
}

// NewNameService returns a client for the WINS server at host. An empty
// host broadcasts queries on the local subnet.
func NewNameService(host string, timeout time.Duration, retries int) *NameService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if retries <= 0 {
		retries = 1
	}
	return &NameService{
		Server:    host,
		Broadcast: "255.255.255.255",
		Timeout:   timeout,
		Retries:   retries,
	}
}

// Query resolves name to its IPv4 addresses
func (ns *NameService) Query(ctx context.Context, name Name) ([]net.IP, error) {
	id := transactionID()
	bcast := ns.Server == ""
	resp, err := ns.exchange(ctx, ns.target(), id, buildNameQuery(id, name, bcast))
	if err != nil {
		return nil, err
	}
	return parseNameQueryResponse(id, resp)
}

// NodeStatus returns the name table registered at ip
func (ns *NameService) NodeStatus(ctx context.Context, ip net.IP) ([]NodeName, error) {
	id := transactionID()
	target := net.JoinHostPort(ip.String(), strconv.Itoa(NameServicePort))
	resp, err := ns.exchange(ctx, target, id, buildNodeStatus(id))
	if err != nil {
		return nil, err
	}
	return parseNodeStatusResponse(id, resp)
}

func (ns *NameService) target() string {
	host := ns.Server
	if host == "" {
		host = ns.Broadcast
	}
	return net.JoinHostPort(host, strconv.Itoa(NameServicePort))
}

func (ns *NameService) exchange(ctx context.Context, target string, id uint16, req []byte) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("invalid name server address %s: %w", target, err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open name service socket: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, 1500)
	for attempt := 0; attempt < ns.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := conn.WriteTo(req, raddr); err != nil {
			return nil, fmt.Errorf("failed to send name query to %s: %w", target, err)
		}

		deadline := time.Now().Add(ns.Timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		conn.SetReadDeadline(deadline)

		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					debug.Printf("netbios: name query to %s timed out (attempt %d)\n", target, attempt+1)
					break
				}
				return nil, fmt.Errorf("failed to read name service reply: %w", err)
			}
			if n >= nsHeaderSize && encoding.Uint16BE(buf[0:2]) == id {
				return append([]byte(nil), buf[:n]...), nil
			}
		}
	}
	return nil, fmt.Errorf("no reply from name service at %s", target)
}

func transactionID() uint16 {
	var b [2]byte
	rand.Read(b[:])
	return encoding.Uint16BE(b[:])
}

func buildHeader(id, flags uint16) []byte {
	b := make([]byte, 0, nsHeaderSize+EncodedNameLen+4)
	b = encoding.AppendUint16BE(b, id)
	b = encoding.AppendUint16BE(b, flags)
	b = encoding.AppendUint16BE(b, 1) // QDCOUNT
	b = encoding.AppendUint16BE(b, 0)
	b = encoding.AppendUint16BE(b, 0)
	b = encoding.AppendUint16BE(b, 0)
	return b
}

func buildNameQuery(id uint16, name Name, broadcast bool) []byte {
	flags := nsFlagRecursion
	if broadcast {
		flags |= nsFlagBroadcast
	}
	b := buildHeader(id, flags)
	b = append(b, name.Encode()...)
	b = encoding.AppendUint16BE(b, rrTypeNB)
	return encoding.AppendUint16BE(b, rrClassIN)
}

func buildNodeStatus(id uint16) []byte {
	b := buildHeader(id, 0)
	b = append(b, Wildcard.Encode()...)
	b = encoding.AppendUint16BE(b, rrTypeNBStat)
	return encoding.AppendUint16BE(b, rrClassIN)
}

// answer validates a response header and returns the RDATA of its single
// answer record of type rrType.
func answer(id uint16, b []byte, rrType uint16) ([]byte, error) {
	if len(b) < nsHeaderSize {
		return nil, errors.New("name service reply too short")
	}
	if encoding.Uint16BE(b[0:2]) != id {
		return nil, errors.New("name service reply transaction id mismatch")
	}
	flags := encoding.Uint16BE(b[2:4])
	if flags&nsFlagResponse == 0 {
		return nil, errors.New("name service packet is not a response")
	}
	if rcode := flags & nsRcodeMask; rcode != 0 {
		return nil, fmt.Errorf("name service error rcode %d", rcode)
	}
	if encoding.Uint16BE(b[6:8]) == 0 {
		return nil, errors.New("name service reply has no answer")
	}

	pos := nsHeaderSize
	if pos < len(b) && b[pos]&0xC0 == 0xC0 {
		pos += 2
	} else {
		if _, err := DecodeName(b[pos:]); err != nil {
			return nil, err
		}
		pos += EncodedNameLen
	}
	if len(b) < pos+10 {
		return nil, errors.New("truncated answer record")
	}
	if t := encoding.Uint16BE(b[pos : pos+2]); t != rrType {
		return nil, fmt.Errorf("unexpected answer type 0x%04X", t)
	}
	rdlen := int(encoding.Uint16BE(b[pos+8 : pos+10]))
	pos += 10
	if len(b) < pos+rdlen {
		return nil, errors.New("truncated answer data")
	}
	return b[pos : pos+rdlen], nil
}

func parseNameQueryResponse(id uint16, b []byte) ([]net.IP, error) {
	rdata, err := answer(id, b, rrTypeNB)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for i := 0; i+6 <= len(rdata); i += 6 {
		ips = append(ips, net.IPv4(rdata[i+2], rdata[i+3], rdata[i+4], rdata[i+5]).To4())
	}
	if len(ips) == 0 {
		return nil, errors.New("name query answer has no addresses")
	}
	return ips, nil
}

func parseNodeStatusResponse(id uint16, b []byte) ([]NodeName, error) {
	rdata, err := answer(id, b, rrTypeNBStat)
	if err != nil {
		return nil, err
	}
	if len(rdata) < 1 {
		return nil, errors.New("empty node status")
	}
	count := int(rdata[0])
	if len(rdata) < 1+count*18 {
		return nil, errors.New("truncated node status name table")
	}
	names := make([]NodeName, 0, count)
	for i := 0; i < count; i++ {
		e := rdata[1+i*18 : 1+(i+1)*18]
		flags := encoding.Uint16BE(e[16:18])
		names = append(names, NodeName{
			Name:  nameFromRaw(e[:16]),
			Group: flags&0x8000 != 0,
			Flags: flags,
		})
	}
	return names, nil
}

// ServerName picks the file server name (unique, suffix 0x20) from a name table.
func ServerName(names []NodeName) (string, bool) {
	for _, n := range names {
		if !n.Group && n.Suffix == SuffixServer {
			return n.Name.Name, true
		}
	}
	return "", false
}

// Workgroup picks the workgroup or domain (group, suffix 0x00) from a name table.
func Workgroup(names []NodeName) (string, bool) {
	for _, n := range names {
		if n.Group && n.Suffix == SuffixWorkstation {
			return n.Name.Name, true
		}
	}
	return "", false
}
