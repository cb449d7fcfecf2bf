package bits

import (
	"encoding/binary"
	"errors"
	"fmt"
	mathbits "math/bits"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WordBytes is the number of bytes in a packed 64-bit word
const WordBytes = 8

// ErrUnaligned is returned when a byte slice cannot be split into whole 64-bit words
var ErrUnaligned = errors.New("bits: length is not a multiple of 8")

// OnesCount returns the number of bits set to 1 in data (Hamming weight)
func OnesCount(data []byte) int {
	n := 0
	i := 0
	for ; i+WordBytes <= len(data); i += WordBytes {
		n += mathbits.OnesCount64(binary.BigEndian.Uint64(data[i:]))
	}
	for ; i < len(data); i++ {
		n += mathbits.OnesCount8(data[i])
	}
	return n
}

// ToHex encodes data as a lowercase hex string without the 0x prefix
func ToHex(data []byte) string {
	return strings.TrimPrefix(hexutil.Encode(data), "0x")
}

// FromHex decodes a hex string. The 0x prefix is optional and digits are
// case-insensitive.
func FromHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if len(s) == 2 {
		return []byte{}, nil
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return data, nil
}

// ToBytes packs words into a big-endian byte slice
func ToBytes(words []uint64) []byte {
	out := make([]byte, len(words)*WordBytes)
	for i, w := range words {
		binary.BigEndian.PutUint64(out[i*WordBytes:], w)
	}
	return out
}

// ToWords unpacks a big-endian byte slice into 64-bit words
func ToWords(data []byte) ([]uint64, error) {
	if len(data)%WordBytes != 0 {
		return nil, ErrUnaligned
	}
	words := make([]uint64, len(data)/WordBytes)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(data[i*WordBytes:])
	}
	return words, nil
}
