package event

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/skipindex-go/internal/bits"
)

const (
	// AddressLength is the size of a contract address in bytes
	AddressLength = common.AddressLength

	// TopicLength is the size of a log topic (event signature digest) in bytes
	TopicLength = common.HashLength

	// EncodedLength is the size of a serialized Event: address || signature
	EncodedLength = AddressLength + TopicLength
)

var (
	// ErrBadLength is returned when an address or signature has the wrong size
	ErrBadLength = errors.New("event: invalid field length")

	// ErrInvalidFormat is returned when a serialized event set is malformed
	ErrInvalidFormat = errors.New("event: invalid encoding")
)

// Event identifies one loggable occurrence: the emitting contract and the
// Keccak-256 digest of the event signature. Event is comparable and can be
// used as a map key.
type Event struct {
	Address   common.Address
	Signature common.Hash
}

// New builds an Event from raw bytes
func New(address, signature []byte) (Event, error) {
	if len(address) != AddressLength {
		return Event{}, fmt.Errorf("%w: address is %d bytes, want %d", ErrBadLength, len(address), AddressLength)
	}
	if len(signature) != TopicLength {
		return Event{}, fmt.Errorf("%w: signature is %d bytes, want %d", ErrBadLength, len(signature), TopicLength)
	}
	return Event{
		Address:   common.BytesToAddress(address),
		Signature: common.BytesToHash(signature),
	}, nil
}

// FromHex builds an Event from hex encodings of the address and signature.
// The 0x prefix is optional.
func FromHex(address, signature string) (Event, error) {
	a, err := bits.FromHex(address)
	if err != nil {
		return Event{}, fmt.Errorf("address: %w", err)
	}
	s, err := bits.FromHex(signature)
	if err != nil {
		return Event{}, fmt.Errorf("signature: %w", err)
	}
	return New(a, s)
}

// FromBytes decodes address || signature
func FromBytes(raw []byte) (Event, error) {
	if len(raw) != EncodedLength {
		return Event{}, fmt.Errorf("%w: event is %d bytes, want %d", ErrBadLength, len(raw), EncodedLength)
	}
	return New(raw[:AddressLength], raw[AddressLength:])
}

// Bytes returns address || signature
func (e Event) Bytes() []byte {
	out := make([]byte, 0, EncodedLength)
	out = append(out, e.Address.Bytes()...)
	return append(out, e.Signature.Bytes()...)
}

// Key returns the element inserted into extended filters for this event
func (e Event) Key() []byte {
	return e.Bytes()
}

func (e Event) String() string {
	return e.Address.Hex() + "/" + e.Signature.Hex()
}

// SignatureHash returns the Keccak-256 digest of a canonical event signature,
// e.g. "Transfer(address,address,uint256)".
func SignatureHash(text string) common.Hash {
	return crypto.Keccak256Hash([]byte(text))
}
