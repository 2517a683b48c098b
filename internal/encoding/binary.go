// Package encoding provides the marshaling primitives for CIFS and NetBIOS
// messages. SMB fields are little-endian; NetBIOS headers are big-endian.
package encoding

import "encoding/binary"

// Align rounds pos up to the next multiple of boundary.
// boundary must be a power of two.
func Align(pos, boundary int) int {
	return (pos + boundary - 1) &^ (boundary - 1)
}

// PutUint16LE writes a uint16 in little-endian format to the buffer.
func PutUint16LE(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// Uint16LE reads a uint16 in little-endian format from the buffer.
func Uint16LE(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// Uint32LE reads a uint32 in little-endian format from the buffer.
func Uint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// PutUint16BE writes a uint16 in network byte order.
func PutUint16BE(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

// Uint16BE reads a uint16 in network byte order.
func Uint16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// AppendUint16BE appends a uint16 in network byte order.
func AppendUint16BE(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}
