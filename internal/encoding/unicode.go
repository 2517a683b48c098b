package encoding

import (
	"unicode/utf16"

	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ASCII strings on the wire are single byte per character. Latin-1 keeps
// the mapping byte exact in both directions.
var oem = charmap.ISO8859_1

// ASCIIBytes converts s to its single byte wire form. Characters outside
// Latin-1 become '?'.
func ASCIIBytes(s string) []byte {
	b, err := xenc.ReplaceUnsupported(oem.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// ASCIIString converts single byte wire characters to a Go string.
func ASCIIString(b []byte) string {
	s, err := oem.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// ToUTF16LE converts a Go string to UTF-16LE encoded bytes.
func ToUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[i*2] = byte(u)
		b[i*2+1] = byte(u >> 8)
	}
	return b
}

// FromUTF16LE converts UTF-16LE encoded bytes to a Go string.
// A trailing odd byte is ignored.
func FromUTF16LE(b []byte) string {
	if len(b) < 2 {
		return ""
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[i*2]) | uint16(b[i*2+1])<<8
	}
	return string(utf16.Decode(units))
}
