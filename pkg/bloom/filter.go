package bloom

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common/bitutil"

	"github.com/0xmhha/skipindex-go/internal/bits"
)

// Filter is a fixed-size Bloom filter over byte strings.
//
// Probing is fixed by the persisted index layout:
//   - digest = SHA-256(element)
//   - probe i reads digest[4i:4i+4] as a big-endian uint32
//   - the bit position is the probe reduced modulo MBits
//
// Bit j lives in byte j>>3 under mask 0x80>>(j&7), which is the
// byte-serialized form of MSB-first 64-bit words.
//
// A Filter is not safe for concurrent mutation. Once built it is only read,
// and concurrent readers are fine.
type Filter struct {
	params Params
	bits   []byte
}

// New creates an empty filter of mBits bits probed by k hash functions
func New(mBits uint32, k uint8) (*Filter, error) {
	return NewWithParams(Params{MBits: mBits, K: k})
}

// NewWithParams creates an empty filter with the given params
func NewWithParams(p Params) (*Filter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Filter{
		params: p,
		bits:   make([]byte, p.SizeBytes()),
	}, nil
}

// NewWithBytes creates an empty filter with a bitset of sizeBytes bytes.
// sizeBytes must be a multiple of 8.
func NewWithBytes(sizeBytes int, k uint8) (*Filter, error) {
	if sizeBytes <= 0 || sizeBytes*8 > math.MaxUint32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadSize, sizeBytes)
	}
	return New(uint32(sizeBytes*8), k)
}

// FromBitset wraps a raw bitset (no header) into a filter. The bitset is copied.
func FromBitset(p Params, bitset []byte) (*Filter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(bitset) != p.SizeBytes() {
		return nil, fmt.Errorf("%w: bitset is %d bytes, want %d", ErrInvalidFormat, len(bitset), p.SizeBytes())
	}
	f := &Filter{params: p, bits: make([]byte, len(bitset))}
	copy(f.bits, bitset)
	return f, nil
}

// Params returns the filter shape
func (f *Filter) Params() Params {
	return f.params
}

// SizeBits returns m, the number of bits in the filter
func (f *Filter) SizeBits() uint32 {
	return f.params.MBits
}

// SizeBytes returns the number of bytes of the bitset
func (f *Filter) SizeBytes() int {
	return len(f.bits)
}

// HashCount returns k
func (f *Filter) HashCount() uint8 {
	return f.params.K
}

// Insert adds elem to the filter
func (f *Filter) Insert(elem []byte) {
	d := sha256.Sum256(elem)
	for i := 0; i < int(f.params.K); i++ {
		f.set(f.position(d[:], i))
	}
}

// Contains reports whether elem may have been inserted. False means the
// element was definitely never inserted.
func (f *Filter) Contains(elem []byte) bool {
	if len(f.bits) == 0 {
		return false
	}
	d := sha256.Sum256(elem)
	for i := 0; i < int(f.params.K); i++ {
		if !f.get(f.position(d[:], i)) {
			return false
		}
	}
	return true
}

// Merge ORs other into f
func (f *Filter) Merge(other *Filter) error {
	if other == nil || f.params != other.params || len(f.bits) == 0 {
		return fmt.Errorf("%w: %s vs %s", ErrConfigMismatch, f.params, paramsOf(other))
	}
	bitutil.ORBytes(f.bits, f.bits, other.bits)
	return nil
}

// Union returns a new filter holding a | b. Neither input is modified.
func Union(a, b *Filter) (*Filter, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil filter", ErrConfigMismatch)
	}
	out := a.Clone()
	if err := out.Merge(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy of f
func (f *Filter) Clone() *Filter {
	c := &Filter{params: f.params, bits: make([]byte, len(f.bits))}
	copy(c.bits, f.bits)
	return c
}

// Equal reports whether both filters have the same params and bitset
func (f *Filter) Equal(other *Filter) bool {
	if other == nil {
		return false
	}
	return f.params == other.params && bytes.Equal(f.bits, other.bits)
}

// Covers reports whether every bit set in other is also set in f
func (f *Filter) Covers(other *Filter) bool {
	if other == nil || f.params != other.params {
		return false
	}
	for i := range f.bits {
		if other.bits[i]&^f.bits[i] != 0 {
			return false
		}
	}
	return true
}

// Bytes returns a copy of the packed bitset (no header)
func (f *Filter) Bytes() []byte {
	out := make([]byte, len(f.bits))
	copy(out, f.bits)
	return out
}

// AppendBitset appends the raw bitset to buf
func (f *Filter) AppendBitset(buf []byte) []byte {
	return append(buf, f.bits...)
}

// OnesCount returns the number of set bits
func (f *Filter) OnesCount() int {
	return bits.OnesCount(f.bits)
}

// Saturation returns the fraction of set bits in [0, 1]
func (f *Filter) Saturation() float64 {
	if f.params.MBits == 0 {
		return 1
	}
	return float64(f.OnesCount()) / float64(f.params.MBits)
}

// EstimatedFalsePositiveRate approximates the probability that Contains
// returns true for an element never inserted, given the current load.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return math.Pow(f.Saturation(), float64(f.params.K))
}

// IsEmpty reports whether no bit is set
func (f *Filter) IsEmpty() bool {
	for _, b := range f.bits {
		if b != 0 {
			return false
		}
	}
	return true
}

func (f *Filter) position(digest []byte, i int) uint32 {
	return binary.BigEndian.Uint32(digest[i*4:]) % f.params.MBits
}

func (f *Filter) set(j uint32) {
	f.bits[j>>3] |= 0x80 >> (j & 7)
}

func (f *Filter) get(j uint32) bool {
	return f.bits[j>>3]&(0x80>>(j&7)) != 0
}

func paramsOf(f *Filter) string {
	if f == nil {
		return "<nil>"
	}
	return f.params.String()
}
