// Package crypto provides the cryptographic primitives behind LAN Manager
// and NT challenge/response authentication.
package crypto

import (
	"crypto/des"

	"golang.org/x/crypto/md4"
)

// MD4Hash computes the MD4 hash of data
func MD4Hash(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}

// MakeSmbKey expands a 7 byte key into an 8 byte DES key by spreading the
// 56 bits over eight bytes, leaving the low (parity) bit of each byte 0.
func MakeSmbKey(in []byte) []byte {
	if len(in) < 7 {
		panic("crypto: SMB key needs 7 bytes")
	}
	key := []byte{
		in[0] >> 1,
		(in[0]&0x01)<<6 | in[1]>>2,
		(in[1]&0x03)<<5 | in[2]>>3,
		(in[2]&0x07)<<4 | in[3]>>4,
		(in[3]&0x0f)<<3 | in[4]>>5,
		(in[4]&0x1f)<<2 | in[5]>>6,
		(in[5]&0x3f)<<1 | in[6]>>7,
		in[6] & 0x7f,
	}
	for i := range key {
		key[i] <<= 1
	}
	return key
}

// DESEncrypt encrypts one 8 byte block with an 8 byte key.
func DESEncrypt(key, block []byte) []byte {
	c, err := des.NewCipher(key)
	if err != nil {
		panic("crypto: " + err.Error())
	}
	out := make([]byte, des.BlockSize)
	c.Encrypt(out, block)
	return out
}

// SmbEncrypt encrypts an 8 byte block with a key expanded from 7 bytes.
func SmbEncrypt(key7, block []byte) []byte {
	return DESEncrypt(MakeSmbKey(key7), block)
}
