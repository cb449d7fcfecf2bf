package bloom

import (
	"encoding/binary"
	"fmt"
)

// MarshalBinary encodes the filter as: mBits (uint32 BE) || k (uint8) || bitset
func (f *Filter) MarshalBinary() ([]byte, error) {
	if err := f.params.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderBytes, f.params.EncodedSize())
	binary.BigEndian.PutUint32(buf[0:4], f.params.MBits)
	buf[4] = f.params.K
	return append(buf, f.bits...), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary into f
func (f *Filter) UnmarshalBinary(data []byte) error {
	p, err := DecodeHeader(data)
	if err != nil {
		return err
	}
	if len(data) != p.EncodedSize() {
		return fmt.Errorf("%w: got %d bytes, want %d for %s", ErrInvalidFormat, len(data), p.EncodedSize(), p)
	}
	f.params = p
	f.bits = make([]byte, p.SizeBytes())
	copy(f.bits, data[HeaderBytes:])
	return nil
}

// Unmarshal decodes a serialized filter
func Unmarshal(data []byte) (*Filter, error) {
	f := &Filter{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeHeader reads the params from the first HeaderBytes of data
func DecodeHeader(data []byte) (Params, error) {
	if len(data) < HeaderBytes {
		return Params{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrInvalidFormat, HeaderBytes, len(data))
	}
	p := Params{
		MBits: binary.BigEndian.Uint32(data[0:4]),
		K:     data[4],
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return p, nil
}
