package event

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(a, s byte) Event {
	return Event{
		Address:   common.BytesToAddress([]byte{a}),
		Signature: common.BytesToHash([]byte{s}),
	}
}

func TestSet(t *testing.T) {
	var s Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(makeEvent(1, 1)))

	assert.True(t, s.Add(makeEvent(1, 1)))
	assert.True(t, s.Add(makeEvent(2, 1)))
	assert.False(t, s.Add(makeEvent(1, 1)), "duplicates are dropped")

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(makeEvent(2, 1)))
	assert.Equal(t, []Event{makeEvent(1, 1), makeEvent(2, 1)}, s.Events())

	var nilSet *Set
	assert.False(t, nilSet.Contains(makeEvent(1, 1)))
	assert.Equal(t, 0, nilSet.Len())
}

func TestSetRoundTrip(t *testing.T) {
	s := NewSet(makeEvent(3, 9), makeEvent(1, 2), makeEvent(3, 9), makeEvent(7, 7))

	data, err := s.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 4+3*EncodedLength)

	back, err := UnmarshalSet(data)
	require.NoError(t, err)
	assert.Equal(t, s.Events(), back.Events())

	empty, err := NewSet().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, empty)

	decoded, err := UnmarshalSet(empty)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Len())
}

func TestUnmarshalSet_InvalidFormat(t *testing.T) {
	data, err := NewSet(makeEvent(1, 1), makeEvent(2, 2)).MarshalBinary()
	require.NoError(t, err)

	for name, in := range map[string][]byte{
		"empty":     nil,
		"short":     data[:2],
		"truncated": data[:len(data)-1],
		"trailing":  append(append([]byte{}, data...), 0xaa),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalSet(in)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}
