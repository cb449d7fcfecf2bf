package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/skip"
)

// IndexReader gives random access to the chain index
type IndexReader interface {
	Get(ctx context.Context, block uint64) (*skip.BlockIndex, error)
	Len(ctx context.Context) (uint64, error)
}

// EventReader gives random access to the exact per-block event sets
type EventReader interface {
	Get(ctx context.Context, block uint64) (*event.Set, error)
}

// Membership decides whether a filter may contain an event. It must never
// return false for a filter built from a block holding the event.
type Membership interface {
	Name() string
	Test(f *bloom.Filter, e event.Event) bool
}

// MembershipFunc adapts a function to Membership
type MembershipFunc struct {
	name string
	fn   func(f *bloom.Filter, e event.Event) bool
}

// NewMembership returns a named Membership backed by fn
func NewMembership(name string, fn func(f *bloom.Filter, e event.Event) bool) MembershipFunc {
	return MembershipFunc{name: name, fn: fn}
}

func (m MembershipFunc) Name() string { return m.name }

func (m MembershipFunc) Test(f *bloom.Filter, e event.Event) bool { return m.fn(f, e) }

var (
	// ContainsDefault requires the address and the signature to be present
	// as separate elements.
	ContainsDefault = NewMembership("default", func(f *bloom.Filter, e event.Event) bool {
		return f.Contains(e.Address.Bytes()) && f.Contains(e.Signature.Bytes())
	})

	// ContainsExtended requires the combined address||signature element,
	// which filters built in extended mode carry.
	ContainsExtended = NewMembership("extended", func(f *bloom.Filter, e event.Event) bool {
		return f.Contains(e.Key())
	})
)

// MembershipByName resolves "default" or "extended"
func MembershipByName(name string) (Membership, error) {
	switch strings.ToLower(name) {
	case "", ContainsDefault.Name():
		return ContainsDefault, nil
	case ContainsExtended.Name():
		return ContainsExtended, nil
	default:
		return nil, fmt.Errorf("unknown membership mode %q", name)
	}
}
