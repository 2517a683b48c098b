package auth

import (
	"crypto/rc4"
	"strings"

	"github.com/ineffectivecoder/cifsgooser/internal/crypto"
	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
)

// ChallengeSize is the length of a server encryption key.
const ChallengeSize = 8

// ResponseSize is the length of an LM or NT challenge response.
const ResponseSize = 24

// ChangePasswordSize is the length of a SamOEMChangePassword payload.
const ChangePasswordSize = 532

var lmMagic = []byte("KGS!@#$%")

// LMHash computes the LAN Manager one way function of password.
// The password is uppercased and cut or padded to 14 bytes.
func LMHash(password string) []byte {
	p := make([]byte, 14)
	copy(p, encoding.ASCIIBytes(strings.ToUpper(password)))

	hash := make([]byte, 0, 16)
	hash = append(hash, crypto.SmbEncrypt(p[0:7], lmMagic)...)
	hash = append(hash, crypto.SmbEncrypt(p[7:14], lmMagic)...)
	return hash
}

// NTHash computes the NT hash from a password
// NT Hash = MD4(UTF-16LE(password))
func NTHash(password string) []byte {
	return crypto.MD4Hash(encoding.ToUTF16LE(password))
}

// challengeResponse pads a 16 byte hash to 21 bytes and encrypts the
// challenge under each of the three 7 byte keys.
func challengeResponse(hash, challenge []byte) []byte {
	key := make([]byte, 21)
	copy(key, hash)

	resp := make([]byte, 0, ResponseSize)
	for i := 0; i < 21; i += 7 {
		resp = append(resp, crypto.SmbEncrypt(key[i:i+7], challenge)...)
	}
	return resp
}

// LMResponse computes the 24 byte LM response to challenge.
func LMResponse(password string, challenge []byte) []byte {
	return challengeResponse(LMHash(password), challenge)
}

// NTResponse computes the 24 byte NTLMv1 response to challenge.
func NTResponse(password string, challenge []byte) []byte {
	return challengeResponse(NTHash(password), challenge)
}

// LMResponse returns the LM response for the login, or an empty slice when
// no password is set.
func (l *Login) LMResponse(challenge []byte) []byte {
	p, ok := l.Password()
	if !ok {
		return []byte{}
	}
	return LMResponse(p, challenge)
}

// NTResponse returns the NT response for the login, or an empty slice when
// no password is set.
func (l *Login) NTResponse(challenge []byte) []byte {
	p, ok := l.Password()
	if !ok {
		return []byte{}
	}
	return NTResponse(p, challenge)
}

// SamOemHash obfuscates data in place with RC4 keyed by key16. The first
// 516 bytes are processed when extended is set, otherwise the first 16.
func SamOemHash(data, key16 []byte, extended bool) {
	n := 16
	if extended {
		n = 516
	}
	c, err := rc4.NewCipher(key16[:16])
	if err != nil {
		panic("auth: " + err.Error())
	}
	c.XORKeyStream(data[:n], data[:n])
}

// OldPasswordHash encrypts each half of hash16 under a key taken from key14.
func OldPasswordHash(key14, hash16 []byte) []byte {
	out := make([]byte, 0, 16)
	out = append(out, crypto.SmbEncrypt(key14[0:7], hash16[0:8])...)
	out = append(out, crypto.SmbEncrypt(key14[7:14], hash16[8:16])...)
	return out
}

// ChangePasswordPayload builds the 532 byte SamOEMChangePassword data
// block: the new password right aligned in 512 bytes, its length, all of it
// obfuscated with the old LM hash, then the old LM hash encrypted with the
// new LM hash as verifier.
func ChangePasswordPayload(oldPassword, newPassword string) []byte {
	buf := encoding.NewBuffer(ChangePasswordSize)

	pw := encoding.ASCIIBytes(newPassword)
	if len(pw) > 512 {
		pw = pw[:512]
	}
	buf.SetBytesAt(512-len(pw), pw)
	buf.SetUint32(512, uint32(len(pw)))

	oldHash := LMHash(oldPassword)
	newHash := LMHash(newPassword)

	data := buf.Raw()
	SamOemHash(data, oldHash, true)
	buf.SetBytesAt(516, OldPasswordHash(newHash, oldHash))
	return data
}
