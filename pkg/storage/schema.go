package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
)

// Key prefixes for different data types
const (
	prefixMeta    = "/meta/"
	prefixIndex   = "/index/"
	prefixStorage = "/storage/"

	prefixIndexBlock   = prefixIndex + "block/"
	prefixStorageBlock = prefixStorage + "block/"
)

// Metadata keys
var (
	keyIndexCount   = []byte(prefixMeta + "index/count")
	keyStorageCount = []byte(prefixMeta + "storage/count")
	keyIndexParams  = []byte(prefixMeta + "index/params")
	keyIndexLinked  = []byte(prefixMeta + "index/linked")
)

// indexParamsSize is mBits (4) || k (1) || maxLevels (1)
const indexParamsSize = 6

// IndexBlockKey returns the key of the BlockIndex record of a block
// Format: /index/block/{block}
func IndexBlockKey(block uint64) []byte {
	return blockKey(prefixIndexBlock, block)
}

// StorageBlockKey returns the key of the event set of a block
// Format: /storage/block/{block}
func StorageBlockKey(block uint64) []byte {
	return blockKey(prefixStorageBlock, block)
}

// IndexCountKey returns the key holding the number of indexed blocks
func IndexCountKey() []byte {
	return keyIndexCount
}

// StorageCountKey returns the key holding the number of stored blocks
func StorageCountKey() []byte {
	return keyStorageCount
}

// IndexParamsKey returns the key holding the index filter parameters
func IndexParamsKey() []byte {
	return keyIndexParams
}

// IndexLinkedKey returns the key holding the number of blocks whose ladders
// were linked by the last finished build
func IndexLinkedKey() []byte {
	return keyIndexLinked
}

// Block numbers are encoded big-endian so keys sort in block order
func blockKey(prefix string, block uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], block)
	return key
}

// EncodeUint64 encodes uint64 to bytes in big-endian format
func EncodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// DecodeUint64 decodes bytes to uint64 in big-endian format
func DecodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: uint64 data length %d", ErrInvalidData, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func encodeIndexParams(p bloom.Params, maxLevels int) []byte {
	buf := make([]byte, indexParamsSize)
	binary.BigEndian.PutUint32(buf, p.MBits)
	buf[4] = p.K
	buf[5] = uint8(maxLevels)
	return buf
}

func decodeIndexParams(data []byte) (bloom.Params, int, error) {
	if len(data) != indexParamsSize {
		return bloom.Params{}, 0, fmt.Errorf("%w: index params length %d", ErrInvalidData, len(data))
	}
	p := bloom.Params{MBits: binary.BigEndian.Uint32(data), K: data[4]}
	if err := p.Validate(); err != nil {
		return bloom.Params{}, 0, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return p, int(data[5]), nil
}
