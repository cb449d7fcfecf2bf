package event

import (
	"encoding/binary"
	"fmt"
)

// countBytes is the size of the count prefix of a serialized set
const countBytes = 4

// Set is an insertion-ordered set of events. The zero value is empty and
// ready to use.
type Set struct {
	order []Event
	index map[Event]struct{}
}

// NewSet returns a set holding the given events, duplicates dropped
func NewSet(events ...Event) *Set {
	s := &Set{}
	for _, e := range events {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was not already present
func (s *Set) Add(e Event) bool {
	if s.index == nil {
		s.index = make(map[Event]struct{})
	}
	if _, ok := s.index[e]; ok {
		return false
	}
	s.index[e] = struct{}{}
	s.order = append(s.order, e)
	return true
}

// Contains reports whether e is in the set
func (s *Set) Contains(e Event) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[e]
	return ok
}

// Len returns the number of distinct events
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Events returns the events in insertion order
func (s *Set) Events() []Event {
	if s == nil {
		return nil
	}
	out := make([]Event, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalBinary encodes the set as count (uint32 BE) followed by count
// fixed-width events.
func (s *Set) MarshalBinary() ([]byte, error) {
	n := s.Len()
	buf := make([]byte, countBytes, countBytes+n*EncodedLength)
	binary.BigEndian.PutUint32(buf, uint32(n))
	for _, e := range s.Events() {
		buf = append(buf, e.Address.Bytes()...)
		buf = append(buf, e.Signature.Bytes()...)
	}
	return buf, nil
}

// UnmarshalSet decodes data produced by Set.MarshalBinary
func UnmarshalSet(data []byte) (*Set, error) {
	if len(data) < countBytes {
		return nil, fmt.Errorf("%w: set needs %d header bytes, got %d", ErrInvalidFormat, countBytes, len(data))
	}
	n := int(binary.BigEndian.Uint32(data))
	body := data[countBytes:]
	if len(body) != n*EncodedLength {
		return nil, fmt.Errorf("%w: %d events need %d bytes, got %d", ErrInvalidFormat, n, n*EncodedLength, len(body))
	}

	s := &Set{}
	for i := 0; i < n; i++ {
		e, err := FromBytes(body[i*EncodedLength : (i+1)*EncodedLength])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		s.Add(e)
	}
	return s, nil
}
