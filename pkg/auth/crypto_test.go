package auth

import (
	"bytes"
	"crypto/rc4"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

var challenge = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

func TestLMHash(t *testing.T) {
	assert.Equal(t, mustHex(t, "e52cac67419a9a224a3b108f3fa6cb6d"), LMHash("Password"))
	assert.Equal(t, mustHex(t, "aad3b435b51404eeaad3b435b51404ee"), LMHash(""))

	assert.Equal(t, LMHash("PASSWORD"), LMHash("password"), "case folded")

	for _, p := range []string{"", "a", "fourteenchars!", "much longer than fourteen characters"} {
		assert.Len(t, LMHash(p), 16)
	}
	assert.Equal(t, LMHash("fourteenchars!"), LMHash("fourteenchars!trailing"), "truncated at 14")
}

func TestNTHash(t *testing.T) {
	assert.Equal(t, mustHex(t, "a4f49c406510bdcab6824ee7c30fd852"), NTHash("Password"))
	assert.Equal(t, mustHex(t, "31d6cfe0d16ae931b73c59d7e0c089c0"), NTHash(""))
}

func TestChallengeResponses(t *testing.T) {
	lm := LMResponse("Password", challenge)
	assert.Equal(t, mustHex(t, "98def7b87f88aa5dafe2df779688a172def11c7d5ccdef13"), lm)

	nt := NTResponse("Password", challenge)
	assert.Equal(t, mustHex(t, "67c43011f30298a2ad35ece64f16331c44bdbed927841f94"), nt)
}

func TestLoginResponses(t *testing.T) {
	anon := NewAnonymousLogin("guest")
	assert.Empty(t, anon.LMResponse(challenge))
	assert.NotNil(t, anon.LMResponse(challenge))
	assert.Empty(t, anon.NTResponse(challenge))

	empty := NewLogin("guest", "")
	assert.Len(t, empty.LMResponse(challenge), ResponseSize)
	assert.Len(t, empty.NTResponse(challenge), ResponseSize)
}

func TestSamOemHash(t *testing.T) {
	key := mustHex(t, "e52cac67419a9a224a3b108f3fa6cb6d")

	data := make([]byte, 532)
	for i := range data {
		data[i] = byte(i)
	}
	orig := append([]byte(nil), data...)

	SamOemHash(data, key, true)
	assert.NotEqual(t, orig[:516], data[:516])
	assert.Equal(t, orig[516:], data[516:], "only 516 bytes touched")

	c, err := rc4.NewCipher(key)
	require.NoError(t, err)
	want := make([]byte, 516)
	c.XORKeyStream(want, orig[:516])
	assert.Equal(t, want, data[:516])

	SamOemHash(data, key, true)
	assert.Equal(t, orig, data, "applying twice restores the input")

	short := append([]byte(nil), orig...)
	SamOemHash(short, key, false)
	assert.Equal(t, orig[16:], short[16:])
	assert.Equal(t, want[:16], short[:16])
}

func TestChangePasswordPayload(t *testing.T) {
	pairs := [][2]string{{"old", "new"}, {"", ""}, {"Password", "NewPassw0rd!"}}

	for _, p := range pairs {
		payload := ChangePasswordPayload(p[0], p[1])
		require.Len(t, payload, ChangePasswordSize)

		oldHash := LMHash(p[0])
		plain := append([]byte(nil), payload...)
		SamOemHash(plain, oldHash, true)

		n := int(plain[512])
		assert.Equal(t, len(p[1]), n)
		assert.Equal(t, []byte(p[1]), plain[512-n:512])
		assert.True(t, bytes.Equal(OldPasswordHash(LMHash(p[1]), oldHash), payload[516:]))
	}
}

func TestChangePasswordPayloadLatin1(t *testing.T) {
	payload := ChangePasswordPayload("old", "Passé1")
	plain := append([]byte(nil), payload...)
	SamOemHash(plain, LMHash("old"), true)

	want := []byte{'P', 'a', 's', 's', 0xE9, '1'}
	assert.Equal(t, len(want), int(plain[512]))
	assert.Equal(t, want, plain[512-len(want):512])
}

func TestLogin(t *testing.T) {
	a := NewLogin("alice", "secret")
	b := a.Clone()
	assert.True(t, a.Equal(b))
	assert.NotSame(t, a, b)

	assert.False(t, NewLogin("alice", "").Equal(NewAnonymousLogin("alice")), "missing differs from empty")
	assert.True(t, NewAnonymousLogin("alice").Equal(NewAnonymousLogin("alice")))
	assert.False(t, a.Equal(NewLogin("bob", "secret")))

	up := a.Upper()
	pw, ok := up.Password()
	assert.True(t, ok)
	assert.Equal(t, "SECRET", pw)
	pw, _ = a.Password()
	assert.Equal(t, "secret", pw, "original untouched")

	assert.NotContains(t, a.String(), "secret")
}
