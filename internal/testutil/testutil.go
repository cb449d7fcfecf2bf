package testutil

import (
	"context"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/builder"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/storage"
)

// NewTestLogger returns a logger that writes through t.Log, so output only
// shows for failing or verbose tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// NewTestEvent creates an event whose address and signature end in the given bytes
func NewTestEvent(address, signature byte) event.Event {
	return event.Event{
		Address:   common.BytesToAddress([]byte{0xa0, address}),
		Signature: common.BytesToHash([]byte{0x51, signature}),
	}
}

// RandomEvent creates an event with random address and signature
func RandomEvent(rng *rand.Rand) event.Event {
	var e event.Event
	rng.Read(e.Address[:])
	rng.Read(e.Signature[:])
	return e
}

// RandomBlocks creates n blocks of up to maxEvents random events each
func RandomBlocks(rng *rand.Rand, n, maxEvents int) [][]event.Event {
	blocks := make([][]event.Event, n)
	for i := range blocks {
		k := rng.Intn(maxEvents + 1)
		for j := 0; j < k; j++ {
			blocks[i] = append(blocks[i], RandomEvent(rng))
		}
	}
	return blocks
}

// ChainOptions configures BuildChain
type ChainOptions struct {
	Backend   string
	Params    bloom.Params
	MaxLevels int
	CacheSize int
	Mode      builder.FilterMode
}

// DefaultChainOptions returns a small in-memory chain configuration
func DefaultChainOptions() ChainOptions {
	return ChainOptions{
		Backend:   storage.BackendPebble,
		Params:    bloom.Params{MBits: 1024, K: 3},
		MaxLevels: 4,
		CacheSize: 64,
		Mode:      builder.ModeDefault,
	}
}

// Chain is an in-memory index with its event storage
type Chain struct {
	Index   *storage.ChainIndex
	Storage *storage.ChainStorage
	Builder *builder.Builder
}

// BuildChain indexes blocks into in-memory stores and links the ladders.
// The stores are closed when the test ends.
func BuildChain(t *testing.T, blocks [][]event.Event, opts ChainOptions) *Chain {
	t.Helper()
	ctx := context.Background()

	indexKV, err := storage.Open(storage.MemoryConfig(opts.Backend))
	if err != nil {
		t.Fatalf("Failed to open index store: %v", err)
	}
	eventsKV, err := storage.Open(storage.MemoryConfig(opts.Backend))
	if err != nil {
		indexKV.Close()
		t.Fatalf("Failed to open event store: %v", err)
	}

	index, err := storage.OpenChainIndex(indexKV, storage.IndexOptions{
		Params:    opts.Params,
		MaxLevels: opts.MaxLevels,
		CacheSize: opts.CacheSize,
	})
	if err != nil {
		t.Fatalf("Failed to open chain index: %v", err)
	}
	events, err := storage.OpenChainStorage(eventsKV, nil)
	if err != nil {
		t.Fatalf("Failed to open chain storage: %v", err)
	}
	t.Cleanup(func() {
		index.Close()
		events.Close()
	})

	b, err := builder.New(ctx, index, events, opts.Mode, nil)
	if err != nil {
		t.Fatalf("Failed to create builder: %v", err)
	}
	for i, evs := range blocks {
		if err := b.AddBlock(ctx, uint64(i), nil, evs); err != nil {
			t.Fatalf("Failed to add block %d: %v", i, err)
		}
	}
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Failed to link ladders: %v", err)
	}

	return &Chain{Index: index, Storage: events, Builder: b}
}
