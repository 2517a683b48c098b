package netbios

import (
	"bytes"
	"fmt"
	"strings"
)

// Name suffixes
const (
	SuffixWorkstation   byte = 0x00
	SuffixMessenger     byte = 0x03
	SuffixDomainMaster  byte = 0x1B
	SuffixDomainCtrl    byte = 0x1C
	SuffixMasterBrowser byte = 0x1D
	SuffixBrowserElect  byte = 0x1E
	SuffixServer        byte = 0x20
)

// NameLen is the length of a NetBIOS name without its suffix.
const NameLen = 15

// EncodedNameLen is the length of a second-level encoded name including
// the length prefix and the root label.
const EncodedNameLen = 34

// Name is a NetBIOS name and its suffix byte.
type Name struct {
	Name   string
	Suffix byte
}

// SMBServer is the generic called name accepted by most servers.
var SMBServer = Name{Name: "*SMBSERVER", Suffix: SuffixServer}

// Wildcard is the name used by node status queries.
var Wildcard = Name{Name: "*"}

// NewName uppercases s and truncates it to 15 characters.
func NewName(s string, suffix byte) Name {
	s = strings.ToUpper(s)
	if len(s) > NameLen {
		s = s[:NameLen]
	}
	return Name{Name: s, Suffix: suffix}
}

// Bytes returns the 16 byte padded form. The wildcard is padded with NULs,
// everything else with spaces.
func (n Name) Bytes() [16]byte {
	var b [16]byte
	pad := byte(' ')
	if n == Wildcard {
		pad = 0
	}
	for i := 0; i < NameLen; i++ {
		b[i] = pad
	}
	copy(b[:NameLen], n.Name)
	b[NameLen] = n.Suffix
	return b
}

// Encode returns the second-level encoding: a 0x20 length byte, each nibble
// of the padded name as 'A'+nibble, and a zero root label.
func (n Name) Encode() []byte {
	raw := n.Bytes()
	out := make([]byte, 0, EncodedNameLen)
	out = append(out, 0x20)
	for _, c := range raw {
		out = append(out, 'A'+c>>4, 'A'+c&0x0f)
	}
	return append(out, 0)
}

// DecodeName decodes a second-level encoded name from the start of b.
func DecodeName(b []byte) (Name, error) {
	if len(b) < EncodedNameLen || b[0] != 0x20 || b[33] != 0 {
		return Name{}, fmt.Errorf("malformed encoded netbios name")
	}
	var raw [16]byte
	for i := range raw {
		hi, lo := b[1+2*i]-'A', b[2+2*i]-'A'
		if hi > 0x0f || lo > 0x0f {
			return Name{}, fmt.Errorf("invalid netbios name character at %d", i)
		}
		raw[i] = hi<<4 | lo
	}
	return nameFromRaw(raw[:]), nil
}

func nameFromRaw(raw []byte) Name {
	s := string(bytes.TrimRight(raw[:NameLen], " \x00"))
	return Name{Name: s, Suffix: raw[NameLen]}
}

// String formats the name as NAME<xx>.
func (n Name) String() string {
	return fmt.Sprintf("%s<%02x>", n.Name, n.Suffix)
}
