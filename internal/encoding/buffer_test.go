package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferIntegers(t *testing.T) {
	b := NewBuffer(32)

	for _, v := range []uint32{0, 1, 0x7fffffff, 0x80000000, 0xdeadbeef, 0xffffffff} {
		for _, pos := range []int{0, 3, 28} {
			b.SetUint32(pos, v)
			assert.Equal(t, v, b.Uint32(pos))
		}
	}

	b.SetUint16(5, 0xfffe)
	assert.Equal(t, uint16(0xfffe), b.Uint16(5))
	assert.Equal(t, int16(-2), b.Int16(5))

	b.SetUint32(8, 0xffffffff)
	assert.Equal(t, int32(-1), b.Int32(8))

	b.SetUint64(16, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), b.Uint64(16))
	assert.Equal(t, byte(0x08), b.Byte(16), "little-endian low byte first")

	b.SetUint16BE(0, 0x1234)
	assert.Equal(t, []byte{0x12, 0x34}, b.BytesAt(0, 2))
	assert.Equal(t, uint16(0x1234), b.Uint16BE(0))
}

func TestBufferBoundsPanic(t *testing.T) {
	b := NewBuffer(8)

	assert.Panics(t, func() { b.Uint32(5) })
	assert.Panics(t, func() { b.SetUint16(7, 1) })
	assert.Panics(t, func() { b.Byte(-1) })
	assert.Panics(t, func() { b.SetSize(9) })
	assert.NotPanics(t, func() { b.SetUint64(0, 1) })
}

func TestBufferStrings(t *testing.T) {
	b := NewBuffer(64)

	n := b.SetZtASCIIAt(2, "IPC$")
	assert.Equal(t, 5, n)
	s, ok := b.ZtASCIIAt(2, 16)
	require.True(t, ok)
	assert.Equal(t, "IPC$", s)

	b.SetASCIIAt(20, "ABCDEFGH")
	_, ok = b.ZtASCIIAt(20, 4)
	assert.False(t, ok, "no terminator within bound")

	n = b.SetZtUnicodeAt(32, "héllo")
	assert.Equal(t, 12, n)
	assert.Equal(t, "héllo", b.UnicodeAt(32, 10))

	b.SetASCIIAt(0, "é")
	assert.Equal(t, byte(0xe9), b.Byte(0), "latin-1 byte form")
}

func TestBufferAppend(t *testing.T) {
	b := NewBuffer(2)

	b.AppendUint16(104)
	b.AppendZtASCII("WrLehDz")
	b.AppendPad(4)
	b.AppendUint32(0xffffffff)

	assert.Equal(t, 16, b.Size())
	assert.Equal(t, uint16(104), b.Uint16(0))
	s, ok := b.ZtASCIIAt(2, 10)
	require.True(t, ok)
	assert.Equal(t, "WrLehDz", s)
	assert.Equal(t, uint32(0xffffffff), b.Uint32(12))
}

func TestBufferCopyAndGrow(t *testing.T) {
	src := WrapBuffer([]byte{1, 2, 3, 4, 5})
	dst := NewBuffer(4)
	dst.CopyFrom(src, 1, 0, 3)
	assert.Equal(t, []byte{2, 3, 4, 0}, dst.Raw())

	dst.Grow(10)
	assert.Equal(t, 10, dst.Cap())
	assert.Equal(t, []byte{2, 3, 4}, dst.BytesAt(0, 3))

	dst.SetSize(4)
	dst.Zero()
	assert.Equal(t, 0, dst.Size())
	assert.Equal(t, byte(0), dst.Byte(0))
}

func TestAlign(t *testing.T) {
	for _, a := range []int{2, 4, 8} {
		for p := 0; p < 40; p++ {
			got := Align(p, a)
			assert.GreaterOrEqual(t, got, p)
			assert.Zero(t, got%a)
			assert.Equal(t, got, Align(got, a))
		}
	}
	assert.Equal(t, 36, Align(33, 4))
}

func TestUTF16RoundTrip(t *testing.T) {
	for _, s := range []string{"", "Administrator", "日本語", "𝄞"} {
		assert.Equal(t, s, FromUTF16LE(ToUTF16LE(s)))
	}
	assert.Equal(t, "A", FromUTF16LE([]byte{'A', 0, 'B'}))
}
