package bloom

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/skipindex-go/internal/bits"
)

func elem(i int) []byte {
	return []byte(fmt.Sprintf("element-%d", i))
}

func newTestFilter(t *testing.T, mBits uint32, k uint8) *Filter {
	t.Helper()
	f, err := New(mBits, k)
	require.NoError(t, err)
	return f
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mBits   uint32
		k       uint8
		wantErr error
	}{
		{"valid", 1024, 3, nil},
		{"zero size", 0, 3, ErrBadSize},
		{"unaligned size", 100, 3, ErrBadSize},
		{"zero k", 1024, 0, ErrBadHashCount},
		{"k too large", 1024, MaxHashFunctions + 1, ErrBadHashCount},
		{"max k", 64, MaxHashFunctions, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.mBits, tt.k)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, f)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mBits, f.SizeBits())
			assert.Equal(t, int(tt.mBits/8), f.SizeBytes())
			assert.Equal(t, tt.k, f.HashCount())
			assert.True(t, f.IsEmpty())
		})
	}

	_, err := NewWithBytes(12, 3)
	assert.ErrorIs(t, err, ErrBadSize)
	f, err := NewWithBytes(256, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), f.SizeBits())
}

func TestInsertContains_NoFalseNegatives(t *testing.T) {
	f := newTestFilter(t, 2048, 3)
	for i := 0; i < 200; i++ {
		f.Insert(elem(i))
	}
	for i := 0; i < 200; i++ {
		assert.True(t, f.Contains(elem(i)), "inserted element %d must be reported", i)
	}
}

func TestInsert_SetsAtMostKBits(t *testing.T) {
	f := newTestFilter(t, 4096, 3)
	f.Insert(elem(1))
	assert.LessOrEqual(t, f.OnesCount(), 3)
	assert.Greater(t, f.OnesCount(), 0)

	before := f.Bytes()
	f.Insert(elem(1))
	assert.Equal(t, before, f.Bytes(), "insert must be idempotent")
}

func TestInsert_ProbePositions(t *testing.T) {
	f := newTestFilter(t, 512, 3)
	e := []byte("probe")
	f.Insert(e)

	d := sha256.Sum256(e)
	want := make([]byte, 64)
	for i := 0; i < 3; i++ {
		j := binary.BigEndian.Uint32(d[i*4:]) % 512
		want[j>>3] |= 0x80 >> (j & 7)
	}
	assert.Equal(t, want, f.Bytes())
}

func TestContains_EmptyFilter(t *testing.T) {
	f := newTestFilter(t, 1024, 3)
	for i := 0; i < 50; i++ {
		assert.False(t, f.Contains(elem(i)))
	}
	assert.False(t, (&Filter{}).Contains(elem(0)))
}

func TestMerge_Monotonicity(t *testing.T) {
	a := newTestFilter(t, 1024, 3)
	b := newTestFilter(t, 1024, 3)
	for i := 0; i < 20; i++ {
		a.Insert(elem(i))
	}
	for i := 20; i < 40; i++ {
		b.Insert(elem(i))
	}

	u, err := Union(a, b)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		assert.True(t, u.Contains(elem(i)))
	}
	assert.True(t, u.Covers(a))
	assert.True(t, u.Covers(b))
	assert.GreaterOrEqual(t, u.Saturation(), a.Saturation())
	assert.GreaterOrEqual(t, u.Saturation(), b.Saturation())

	// Union leaves inputs untouched
	assert.False(t, a.Covers(b))
}

func TestMerge_CommutativeAssociative(t *testing.T) {
	fs := make([]*Filter, 3)
	for n := range fs {
		fs[n] = newTestFilter(t, 512, 4)
		for i := 0; i < 10; i++ {
			fs[n].Insert(elem(n*100 + i))
		}
	}

	ab, err := Union(fs[0], fs[1])
	require.NoError(t, err)
	ba, err := Union(fs[1], fs[0])
	require.NoError(t, err)
	assert.True(t, ab.Equal(ba))

	abc, err := Union(ab, fs[2])
	require.NoError(t, err)
	bc, err := Union(fs[1], fs[2])
	require.NoError(t, err)
	aBC, err := Union(fs[0], bc)
	require.NoError(t, err)
	assert.True(t, abc.Equal(aBC))
}

func TestMerge_ConfigMismatch(t *testing.T) {
	a := newTestFilter(t, 1024, 3)

	t.Run("different k", func(t *testing.T) {
		b := newTestFilter(t, 1024, 4)
		assert.ErrorIs(t, a.Merge(b), ErrConfigMismatch)
	})

	t.Run("different m", func(t *testing.T) {
		b := newTestFilter(t, 2048, 3)
		assert.ErrorIs(t, a.Merge(b), ErrConfigMismatch)
	})

	t.Run("zero-size filter", func(t *testing.T) {
		zero := &Filter{}
		assert.ErrorIs(t, a.Merge(zero), ErrConfigMismatch)
		assert.ErrorIs(t, zero.Merge(a), ErrConfigMismatch)
		assert.ErrorIs(t, zero.Merge(&Filter{}), ErrConfigMismatch)
	})

	t.Run("nil filter", func(t *testing.T) {
		assert.ErrorIs(t, a.Merge(nil), ErrConfigMismatch)
		_, err := Union(nil, a)
		assert.ErrorIs(t, err, ErrConfigMismatch)
	})
}

func TestRoundTrip(t *testing.T) {
	f := newTestFilter(t, 2048, 5)
	for i := 0; i < 64; i++ {
		f.Insert(elem(i))
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, f.Params().EncodedSize())

	g, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, f.Equal(g))
	assert.Equal(t, f.Params(), g.Params())

	again, err := g.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRoundTrip_HexOfSerializedBytes(t *testing.T) {
	f := newTestFilter(t, 256, 3)
	f.Insert([]byte("hex"))

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	decoded, err := bits.FromHex(bits.ToHex(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	words, err := bits.ToWords(f.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.Bytes(), bits.ToBytes(words))
}

func TestUnmarshal_InvalidFormat(t *testing.T) {
	f := newTestFilter(t, 256, 3)
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", data[:3]},
		{"truncated bitset", data[:len(data)-1]},
		{"trailing bytes", append(append([]byte{}, data...), 0)},
		{"zero size header", []byte{0, 0, 0, 0, 3}},
		{"bad k header", append([]byte{0, 0, 1, 0, 0}, make([]byte, 32)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestFromBitset(t *testing.T) {
	p := Params{MBits: 128, K: 2}
	raw := make([]byte, 16)
	raw[0] = 0xff

	f, err := FromBitset(p, raw)
	require.NoError(t, err)
	assert.Equal(t, 8, f.OnesCount())

	raw[1] = 0xff
	assert.Equal(t, 8, f.OnesCount(), "bitset must be copied")

	_, err = FromBitset(p, raw[:8])
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSaturation(t *testing.T) {
	f := newTestFilter(t, 64, 1)
	assert.Equal(t, 0.0, f.Saturation())
	assert.Equal(t, 0.0, f.EstimatedFalsePositiveRate())

	full, err := FromBitset(Params{MBits: 64, K: 1}, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, 1.0, full.Saturation())
	assert.Equal(t, 1.0, full.EstimatedFalsePositiveRate())
	assert.True(t, full.Contains(elem(42)))
}

func TestOptimalParams(t *testing.T) {
	p := OptimalParams(1000, 0.01)
	require.NoError(t, p.Validate())
	assert.Zero(t, p.MBits%WordBits)
	assert.InDelta(t, 9600, float64(p.MBits), 128)
	assert.Equal(t, uint8(7), p.K)

	tiny := OptimalParams(0, 0.5)
	require.NoError(t, tiny.Validate())
	assert.Equal(t, uint32(WordBits), tiny.MBits)

	dense := OptimalParams(10, 1e-12)
	assert.Equal(t, uint8(MaxHashFunctions), dense.K)
}
