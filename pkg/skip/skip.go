// Package skip implements the per-block skip ladder: a sequence of merged
// Bloom filters, level i covering the forward window [block, block+2^i).
package skip

import (
	"errors"
	"fmt"
	mathbits "math/bits"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
)

// MaxLevels bounds the ladder depth. Windows are addressed with uint64
// offsets, and the header stores the level count in one byte.
const MaxLevels = 32

var (
	// ErrInvalidFormat is returned for malformed BlockIndex records
	ErrInvalidFormat = errors.New("skip: invalid encoding")

	// ErrNoLevels is returned when a ladder would have no entries
	ErrNoLevels = errors.New("skip: ladder needs at least one level")
)

// Skip is an immutable ladder of filters for one block
type Skip struct {
	levels []*bloom.Filter
}

// New builds a ladder from its levels, lowest first
func New(levels ...*bloom.Filter) (*Skip, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	if len(levels) > MaxLevels {
		return nil, fmt.Errorf("%w: %d levels exceeds %d", ErrInvalidFormat, len(levels), MaxLevels)
	}
	for i, f := range levels {
		if f == nil {
			return nil, fmt.Errorf("%w: level %d is nil", bloom.ErrConfigMismatch, i)
		}
		if f.Params() != levels[0].Params() {
			return nil, fmt.Errorf("%w: level %d has %s, level 0 has %s",
				bloom.ErrConfigMismatch, i, f.Params(), levels[0].Params())
		}
	}
	out := make([]*bloom.Filter, len(levels))
	copy(out, levels)
	return &Skip{levels: out}, nil
}

// Entry returns the filter of level i, or nil when i is out of range
func (s *Skip) Entry(i int) *bloom.Filter {
	if i < 0 || i >= len(s.levels) {
		return nil
	}
	return s.levels[i]
}

// NumEntries returns the ladder length
func (s *Skip) NumEntries() int {
	return len(s.levels)
}

// Params returns the filter parameters shared by every level
func (s *Skip) Params() bloom.Params {
	return s.levels[0].Params()
}

// Window returns the number of blocks covered by level i
func Window(i int) uint64 {
	return uint64(1) << uint(i)
}

// Levels returns the ladder length of a block that has remaining blocks
// (itself included) until the end of the indexed range.
func Levels(remaining uint64, maxLevels int) int {
	if remaining == 0 || maxLevels <= 0 {
		return 0
	}
	n := mathbits.Len64(remaining) // floor(log2(remaining)) + 1
	if n > maxLevels {
		return maxLevels
	}
	return n
}

// Extend builds a ladder of numLevels entries on top of own. next(i) must
// return level i of the block 2^i ahead; it is called for i in
// [0, numLevels-1).
func Extend(own *bloom.Filter, next func(level int) (*bloom.Filter, error), numLevels int) (*Skip, error) {
	if own == nil || numLevels < 1 {
		return nil, ErrNoLevels
	}
	levels := make([]*bloom.Filter, numLevels)
	levels[0] = own
	for i := 1; i < numLevels; i++ {
		ahead, err := next(i - 1)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		merged, err := bloom.Union(levels[i-1], ahead)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels[i] = merged
	}
	return New(levels...)
}
