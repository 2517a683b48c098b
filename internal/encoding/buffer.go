package encoding

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a growable byte array with positional little-endian accessors.
//
// Positional accessors address the whole backing array (its capacity), not
// just the populated prefix. Any access reaching beyond the capacity is a
// marshaling bug and panics. The Append* writers work at Size and grow the
// array on demand.
type Buffer struct {
	buf  []byte
	size int
}

// NewBuffer allocates a zeroed buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// WrapBuffer uses b as backing storage with size len(b).
func WrapBuffer(b []byte) *Buffer {
	return &Buffer{buf: b, size: len(b)}
}

// Bytes returns the populated prefix of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.size]
}

// Raw returns the full backing array.
func (b *Buffer) Raw() []byte {
	return b.buf
}

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Size returns the number of populated bytes.
func (b *Buffer) Size() int {
	return b.size
}

// SetSize sets the number of populated bytes.
func (b *Buffer) SetSize(n int) {
	if n < 0 || n > len(b.buf) {
		panic(fmt.Sprintf("encoding: size %d outside capacity %d", n, len(b.buf)))
	}
	b.size = n
}

// Zero clears the contents and resets the size.
func (b *Buffer) Zero() {
	clear(b.buf)
	b.size = 0
}

// Grow makes sure the capacity is at least n, keeping the contents.
func (b *Buffer) Grow(n int) {
	if n <= len(b.buf) {
		return
	}
	nb := make([]byte, n)
	copy(nb, b.buf)
	b.buf = nb
}

func (b *Buffer) check(pos, n int) {
	if pos < 0 || n < 0 || pos+n > len(b.buf) {
		panic(fmt.Sprintf("encoding: access [%d,%d) outside capacity %d", pos, pos+n, len(b.buf)))
	}
}

// Byte returns the byte at pos.
func (b *Buffer) Byte(pos int) byte {
	b.check(pos, 1)
	return b.buf[pos]
}

// SetByte stores v at pos.
func (b *Buffer) SetByte(pos int, v byte) {
	b.check(pos, 1)
	b.buf[pos] = v
}

// Uint16 returns the little-endian uint16 at pos.
func (b *Buffer) Uint16(pos int) uint16 {
	b.check(pos, 2)
	return binary.LittleEndian.Uint16(b.buf[pos:])
}

// Int16 returns the little-endian int16 at pos.
func (b *Buffer) Int16(pos int) int16 {
	return int16(b.Uint16(pos))
}

// SetUint16 stores v little-endian at pos.
func (b *Buffer) SetUint16(pos int, v uint16) {
	b.check(pos, 2)
	binary.LittleEndian.PutUint16(b.buf[pos:], v)
}

// Uint16BE returns the big-endian uint16 at pos.
func (b *Buffer) Uint16BE(pos int) uint16 {
	b.check(pos, 2)
	return binary.BigEndian.Uint16(b.buf[pos:])
}

// SetUint16BE stores v big-endian at pos.
func (b *Buffer) SetUint16BE(pos int, v uint16) {
	b.check(pos, 2)
	binary.BigEndian.PutUint16(b.buf[pos:], v)
}

// Uint32 returns the little-endian uint32 at pos.
func (b *Buffer) Uint32(pos int) uint32 {
	b.check(pos, 4)
	return binary.LittleEndian.Uint32(b.buf[pos:])
}

// Int32 returns the little-endian int32 at pos.
func (b *Buffer) Int32(pos int) int32 {
	return int32(b.Uint32(pos))
}

// SetUint32 stores v little-endian at pos.
func (b *Buffer) SetUint32(pos int, v uint32) {
	b.check(pos, 4)
	binary.LittleEndian.PutUint32(b.buf[pos:], v)
}

// Uint64 returns the little-endian uint64 at pos.
func (b *Buffer) Uint64(pos int) uint64 {
	b.check(pos, 8)
	return binary.LittleEndian.Uint64(b.buf[pos:])
}

// SetUint64 stores v little-endian at pos.
func (b *Buffer) SetUint64(pos int, v uint64) {
	b.check(pos, 8)
	binary.LittleEndian.PutUint64(b.buf[pos:], v)
}

// BytesAt returns a copy of n bytes starting at pos.
func (b *Buffer) BytesAt(pos, n int) []byte {
	b.check(pos, n)
	out := make([]byte, n)
	copy(out, b.buf[pos:pos+n])
	return out
}

// SetBytesAt copies p into the buffer at pos and returns len(p).
func (b *Buffer) SetBytesAt(pos int, p []byte) int {
	b.check(pos, len(p))
	return copy(b.buf[pos:], p)
}

// CopyFrom copies n bytes from src at srcPos into b at dstPos.
func (b *Buffer) CopyFrom(src *Buffer, srcPos, dstPos, n int) {
	src.check(srcPos, n)
	b.check(dstPos, n)
	copy(b.buf[dstPos:dstPos+n], src.buf[srcPos:srcPos+n])
}

// ZtASCIIAt reads a NUL terminated single byte string starting at pos,
// looking at most max bytes ahead. ok is false when no terminator is found
// within that bound.
func (b *Buffer) ZtASCIIAt(pos, max int) (s string, ok bool) {
	b.check(pos, 0)
	end := pos + max
	if end > len(b.buf) {
		end = len(b.buf)
	}
	for i := pos; i < end; i++ {
		if b.buf[i] == 0 {
			return ASCIIString(b.buf[pos:i]), true
		}
	}
	return "", false
}

// SetASCIIAt writes s without a terminator and returns the byte count.
func (b *Buffer) SetASCIIAt(pos int, s string) int {
	return b.SetBytesAt(pos, ASCIIBytes(s))
}

// SetZtASCIIAt writes s followed by a NUL and returns the byte count
// including the terminator.
func (b *Buffer) SetZtASCIIAt(pos int, s string) int {
	n := b.SetASCIIAt(pos, s)
	b.SetByte(pos+n, 0)
	return n + 1
}

// UnicodeAt decodes byteLen bytes of UTF-16LE starting at pos.
func (b *Buffer) UnicodeAt(pos, byteLen int) string {
	b.check(pos, byteLen)
	return FromUTF16LE(b.buf[pos : pos+byteLen])
}

// SetUnicodeAt writes s as UTF-16LE and returns the byte count.
func (b *Buffer) SetUnicodeAt(pos int, s string) int {
	return b.SetBytesAt(pos, ToUTF16LE(s))
}

// SetZtUnicodeAt writes s as UTF-16LE followed by a two byte NUL and
// returns the byte count including the terminator.
func (b *Buffer) SetZtUnicodeAt(pos int, s string) int {
	n := b.SetUnicodeAt(pos, s)
	b.SetUint16(pos+n, 0)
	return n + 2
}

func (b *Buffer) reserve(n int) int {
	pos := b.size
	if need := pos + n; need > len(b.buf) {
		c := 2 * len(b.buf)
		if c < need {
			c = need
		}
		b.Grow(c)
	}
	b.size += n
	return pos
}

// AppendByte writes v at Size.
func (b *Buffer) AppendByte(v byte) {
	b.buf[b.reserve(1)] = v
}

// AppendUint16 writes v little-endian at Size.
func (b *Buffer) AppendUint16(v uint16) {
	binary.LittleEndian.PutUint16(b.buf[b.reserve(2):], v)
}

// AppendUint32 writes v little-endian at Size.
func (b *Buffer) AppendUint32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[b.reserve(4):], v)
}

// AppendBytes writes p at Size.
func (b *Buffer) AppendBytes(p []byte) {
	copy(b.buf[b.reserve(len(p)):], p)
}

// AppendZtASCII writes s and a NUL at Size.
func (b *Buffer) AppendZtASCII(s string) {
	b.AppendBytes(ASCIIBytes(s))
	b.AppendByte(0)
}

// AppendPad writes zero bytes until Size is a multiple of boundary.
func (b *Buffer) AppendPad(boundary int) {
	n := Align(b.size, boundary) - b.size
	clear(b.buf[b.reserve(n):][:n])
}
