package bloom

import (
	"errors"
	"fmt"
)

const (
	// MaxHashFunctions is the number of 32-bit chunks a SHA-256 digest provides
	MaxHashFunctions = 8

	// DefaultHashFunctions is the probe count of existing index files
	DefaultHashFunctions uint8 = 3

	// WordBits is the granularity of the filter size
	WordBits = 64

	// HeaderBytes is the size of the serialized filter header (mBits uint32, k uint8)
	HeaderBytes = 5
)

var (
	// ErrConfigMismatch is returned when two filters with different (m, k) are combined
	ErrConfigMismatch = errors.New("bloom: filter configuration mismatch")

	// ErrInvalidFormat is returned when serialized filter bytes are malformed
	ErrInvalidFormat = errors.New("bloom: invalid filter encoding")

	// ErrBadSize is returned when the bit size is zero or not a multiple of 64
	ErrBadSize = errors.New("bloom: size must be a positive multiple of 64 bits")

	// ErrBadHashCount is returned when k is outside [1, MaxHashFunctions]
	ErrBadHashCount = errors.New("bloom: hash function count out of range")
)

// Params describes the shape of a filter. Filters can only be merged when
// their params are equal.
type Params struct {
	// MBits is the filter size in bits
	MBits uint32

	// K is the number of hash functions
	K uint8
}

// Validate checks that the params describe a constructible filter
func (p Params) Validate() error {
	if p.MBits == 0 || p.MBits%WordBits != 0 {
		return fmt.Errorf("%w: got %d", ErrBadSize, p.MBits)
	}
	if p.K == 0 || p.K > MaxHashFunctions {
		return fmt.Errorf("%w: got %d", ErrBadHashCount, p.K)
	}
	return nil
}

// SizeBytes returns the number of bytes of the packed bitset
func (p Params) SizeBytes() int {
	return int(p.MBits / 8)
}

// EncodedSize returns the serialized size of a filter with these params
func (p Params) EncodedSize() int {
	return HeaderBytes + p.SizeBytes()
}

func (p Params) String() string {
	return fmt.Sprintf("m=%d k=%d", p.MBits, p.K)
}
