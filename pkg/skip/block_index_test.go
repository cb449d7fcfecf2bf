package skip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
)

func TestBlockIndex_RoundTrip(t *testing.T) {
	ladders := buildLadders(t, 8, 4)
	rec, err := NewBlockIndex(ladders[0])
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	require.Equal(t, 4, rec.Skip.NumEntries())

	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 6+4*64)
	assert.Equal(t, len(data), rec.SerializedSize())

	size, err := SizeFromHeader(data[:HeaderBytes])
	require.NoError(t, err)
	assert.Equal(t, len(data), size)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	require.NoError(t, back.Validate())
	assert.Same(t, back.Filter, back.Skip.Entry(0))
	require.Equal(t, rec.Skip.NumEntries(), back.Skip.NumEntries())
	for i := 0; i < rec.Skip.NumEntries(); i++ {
		assert.True(t, rec.Skip.Entry(i).Equal(back.Skip.Entry(i)), "level %d", i)
	}

	// Level 0 bytes are the block filter bitset
	assert.Equal(t, rec.Filter.Bytes(), data[HeaderBytes:HeaderBytes+64])
}

func TestBlockIndex_Leaf(t *testing.T) {
	f := blockFilter(t, 3)
	rec, err := NewLeaf(f)
	require.NoError(t, err)
	assert.Same(t, f, rec.Skip.Entry(0))
	assert.Equal(t, 1, rec.Skip.NumEntries())
	assert.Equal(t, HeaderBytes+f.SizeBytes(), rec.SerializedSize())

	_, err = NewLeaf(nil)
	assert.Error(t, err)
}

func TestBlockIndex_Validate(t *testing.T) {
	a := blockFilter(t, 1)
	s, err := New(a.Clone())
	require.NoError(t, err)

	broken := &BlockIndex{Filter: a, Skip: s}
	assert.ErrorIs(t, broken.Validate(), ErrInvalidFormat)
	_, err = broken.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidFormat)

	var nilRec *BlockIndex
	assert.ErrorIs(t, nilRec.Validate(), ErrInvalidFormat)
}

func TestMaxSerializedSize(t *testing.T) {
	p := bloom.Params{MBits: 2048, K: 3}
	assert.Equal(t, 6+16*256, MaxSerializedSize(p, 16))

	ladders := buildLadders(t, 20, 3)
	bound := MaxSerializedSize(ladders[0].Params(), 3)
	for _, s := range ladders {
		rec, err := NewBlockIndex(s)
		require.NoError(t, err)
		assert.LessOrEqual(t, rec.SerializedSize(), bound)
	}
}

func TestUnmarshal_InvalidFormat(t *testing.T) {
	rec, err := NewBlockIndex(buildLadders(t, 2, 4)[0])
	require.NoError(t, err)
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	zeroLevels := append([]byte{}, data...)
	zeroLevels[5] = 0

	moreLevels := append([]byte{}, data...)
	moreLevels[5] = 3

	badK := append([]byte{}, data...)
	badK[4] = 0

	tests := map[string][]byte{
		"empty":         nil,
		"short header":  data[:4],
		"truncated":     data[:len(data)-1],
		"trailing":      append(append([]byte{}, data...), 1),
		"zero levels":   zeroLevels,
		"levels beyond": moreLevels,
		"bad k":         badK,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal(in)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}

	_, err = SizeFromHeader(data[:3])
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
