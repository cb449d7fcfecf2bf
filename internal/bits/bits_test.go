package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnesCount(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0xff}, 8},
		{"mixed", []byte{0x01, 0x80, 0x0f}, 6},
		{"word and tail", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x03}, 66},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OnesCount(tt.data))
		})
	}
}

func TestHexCodec(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	assert.Equal(t, "deadbeef", ToHex(data))

	for _, in := range []string{"deadbeef", "0xdeadbeef", "DEADBEEF", "0XDeAdBeEf"} {
		got, err := FromHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, data, got, in)
	}

	empty, err := FromHex("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = FromHex("abc")
	assert.Error(t, err, "odd length must fail")

	_, err = FromHex("zz")
	assert.Error(t, err, "non-hex must fail")
}

func TestWordPacking(t *testing.T) {
	words := []uint64{0x0102030405060708, 0xffffffffffffffff}
	data := ToBytes(words)
	require.Len(t, data, 16)
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, byte(0x08), data[7])

	back, err := ToWords(data)
	require.NoError(t, err)
	assert.Equal(t, words, back)

	_, err = ToWords(data[:7])
	assert.ErrorIs(t, err, ErrUnaligned)
}

func TestHexOfPackedWords(t *testing.T) {
	data := ToBytes([]uint64{0x00000000000000ff})
	decoded, err := FromHex(ToHex(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}
