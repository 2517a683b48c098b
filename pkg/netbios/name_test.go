package netbios

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeName(t *testing.T) {
	tests := []struct {
		name Name
		want string
	}{
		{NewName("fred", SuffixServer), "EGFCEFEECACACACACACACACACACACACA"},
		{SMBServer, "CKFDENECFDEFFCFGEFFCCACACACACACA"},
		{Wildcard, "CKAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		enc := tt.name.Encode()
		require.Len(t, enc, EncodedNameLen)
		assert.Equal(t, byte(0x20), enc[0])
		assert.Equal(t, tt.want, string(enc[1:33]), tt.name.String())
		assert.Equal(t, byte(0), enc[33])

		back, err := DecodeName(enc)
		require.NoError(t, err)
		assert.Equal(t, tt.name, back)
	}
}

func TestNewNameTruncates(t *testing.T) {
	n := NewName("averyveryverylongname", SuffixWorkstation)
	assert.Equal(t, "AVERYVERYVERYLO", n.Name)
	assert.Len(t, n.Name, NameLen)
}

func TestDecodeNameErrors(t *testing.T) {
	_, err := DecodeName([]byte{0x20, 'A'})
	assert.Error(t, err)

	enc := NewName("X", 0).Encode()
	enc[5] = 'z'
	_, err = DecodeName(enc)
	assert.Error(t, err)
}
