package skip

import (
	"encoding/binary"
	"fmt"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
)

// HeaderBytes is the size of the record header: mBits (4) || k (1) || levels (1)
const HeaderBytes = bloom.HeaderBytes + 1

// BlockIndex is the persisted record of one block: its own filter and the
// ladder built on top of it. Skip.Entry(0) is always Filter.
type BlockIndex struct {
	Filter *bloom.Filter
	Skip   *Skip
}

// NewLeaf returns a record holding only the block filter
func NewLeaf(filter *bloom.Filter) (*BlockIndex, error) {
	s, err := New(filter)
	if err != nil {
		return nil, err
	}
	return &BlockIndex{Filter: filter, Skip: s}, nil
}

// NewBlockIndex returns a record for a prebuilt ladder
func NewBlockIndex(s *Skip) (*BlockIndex, error) {
	if s == nil || s.NumEntries() == 0 {
		return nil, ErrNoLevels
	}
	return &BlockIndex{Filter: s.Entry(0), Skip: s}, nil
}

// Validate checks the record invariant
func (b *BlockIndex) Validate() error {
	if b == nil || b.Filter == nil || b.Skip == nil {
		return fmt.Errorf("%w: incomplete record", ErrInvalidFormat)
	}
	if b.Skip.Entry(0) != b.Filter {
		return fmt.Errorf("%w: level 0 is not the block filter", ErrInvalidFormat)
	}
	return nil
}

// Params returns the filter parameters of the record
func (b *BlockIndex) Params() bloom.Params {
	return b.Filter.Params()
}

// SerializedSize returns the encoded size of the record
func (b *BlockIndex) SerializedSize() int {
	return RecordSize(b.Params(), b.Skip.NumEntries())
}

// RecordSize returns the encoded size of a record with numLevels levels
func RecordSize(p bloom.Params, numLevels int) int {
	return HeaderBytes + numLevels*p.SizeBytes()
}

// MaxSerializedSize is the size bound shared by every record of an index
func MaxSerializedSize(p bloom.Params, maxLevels int) int {
	return RecordSize(p, maxLevels)
}

// SizeFromHeader returns the full record size announced by a header,
// without reading the bitsets.
func SizeFromHeader(header []byte) (int, error) {
	p, n, err := decodeHeader(header)
	if err != nil {
		return 0, err
	}
	return RecordSize(p, n), nil
}

// MarshalBinary encodes the record
func (b *BlockIndex) MarshalBinary() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	p := b.Params()
	n := b.Skip.NumEntries()

	buf := make([]byte, HeaderBytes, RecordSize(p, n))
	binary.BigEndian.PutUint32(buf, p.MBits)
	buf[4] = p.K
	buf[5] = uint8(n)
	for i := 0; i < n; i++ {
		buf = b.Skip.Entry(i).AppendBitset(buf)
	}
	return buf, nil
}

// Unmarshal decodes a record produced by MarshalBinary
func Unmarshal(data []byte) (*BlockIndex, error) {
	p, n, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if want := RecordSize(p, n); len(data) != want {
		return nil, fmt.Errorf("%w: record is %d bytes, header announces %d", ErrInvalidFormat, len(data), want)
	}

	size := p.SizeBytes()
	levels := make([]*bloom.Filter, n)
	for i := 0; i < n; i++ {
		off := HeaderBytes + i*size
		f, err := bloom.FromBitset(p, data[off:off+size])
		if err != nil {
			return nil, fmt.Errorf("%w: level %d: %v", ErrInvalidFormat, i, err)
		}
		levels[i] = f
	}

	s, err := New(levels...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &BlockIndex{Filter: levels[0], Skip: s}, nil
}

func decodeHeader(data []byte) (bloom.Params, int, error) {
	if len(data) < HeaderBytes {
		return bloom.Params{}, 0, fmt.Errorf("%w: need %d header bytes, got %d", ErrInvalidFormat, HeaderBytes, len(data))
	}
	p := bloom.Params{MBits: binary.BigEndian.Uint32(data), K: data[4]}
	if err := p.Validate(); err != nil {
		return bloom.Params{}, 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	n := int(data[5])
	if n < 1 || n > MaxLevels {
		return bloom.Params{}, 0, fmt.Errorf("%w: %d levels", ErrInvalidFormat, n)
	}
	return p, n, nil
}
