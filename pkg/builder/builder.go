// Package builder constructs the chain index and event storage from
// per-block event logs and links the skip ladders.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/skip"
)

var (
	// ErrBlockMismatch is returned when the keys and events inputs disagree
	// on the block being read.
	ErrBlockMismatch = errors.New("builder: mismatching block identifier")

	// ErrOutOfOrder is returned when a block is not the next one to append
	ErrOutOfOrder = errors.New("builder: block out of order")
)

// FilterMode selects which elements go into a block filter
type FilterMode string

const (
	// ModeDefault inserts addresses and topics as separate elements
	ModeDefault FilterMode = "default"

	// ModeExtended also inserts address||signature of every event
	ModeExtended FilterMode = "extended"
)

// ParseFilterMode parses "default" or "extended"
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(s)) {
	case "", ModeDefault:
		return ModeDefault, nil
	case ModeExtended:
		return ModeExtended, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q", s)
	}
}

// IndexStore is the index the builder writes to
type IndexStore interface {
	Get(ctx context.Context, block uint64) (*skip.BlockIndex, error)
	Put(ctx context.Context, block uint64, rec *skip.BlockIndex) error
	Len(ctx context.Context) (uint64, error)
	Params() bloom.Params
	MaxLevels() int
	Linked(ctx context.Context) (uint64, error)
	SetLinked(ctx context.Context, n uint64) error
}

// EventStore is the event storage the builder writes to
type EventStore interface {
	Put(ctx context.Context, block uint64, set *event.Set) error
	Len(ctx context.Context) (uint64, error)
}

// Keys are the filter elements of a block. When supplied they replace the
// addresses and signatures taken from the block events.
type Keys struct {
	Addresses []common.Address
	Topics    []common.Hash
}

// Stats summarizes a build
type Stats struct {
	Blocks   uint64        `json:"blocks"`
	Events   uint64        `json:"events"`
	Linked   uint64        `json:"linked"`
	Elapsed  time.Duration `json:"elapsed"`
	LinkTime time.Duration `json:"linkTime"`
}

// Builder appends blocks to an index and its storage. Blocks are added as
// leaf records; Finalize links their ladders.
type Builder struct {
	index  IndexStore
	events EventStore
	mode   FilterMode
	logger *zap.Logger

	next   uint64 // next block to append
	linked uint64 // blocks covered by the last finished Finalize
	stats  Stats
}

// New creates a builder that continues an existing index
func New(ctx context.Context, index IndexStore, events EventStore, mode FilterMode, log *zap.Logger) (*Builder, error) {
	if index == nil || events == nil {
		return nil, fmt.Errorf("index and event storage are required")
	}
	if _, err := ParseFilterMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeDefault
	}
	n, err := index.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index length: %w", err)
	}
	m, err := events.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage length: %w", err)
	}
	// A crash between the two writes of AddBlock leaves storage one block ahead
	if m != n && m != n+1 {
		return nil, fmt.Errorf("%w: index holds %d blocks, storage holds %d", ErrBlockMismatch, n, m)
	}
	// Blocks appended by a build that stopped before Finalize are still leaves
	linked, err := index.Linked(ctx)
	if err != nil {
		return nil, err
	}

	return &Builder{
		index:  index,
		events: events,
		mode:   mode,
		logger: logger.WithComponent(log, logger.ComponentBuilder),
		next:   n,
		linked: linked,
	}, nil
}

// Next returns the number of the next block to append
func (b *Builder) Next() uint64 {
	return b.next
}

// Stats returns counters of the blocks added so far
func (b *Builder) Stats() Stats {
	return b.stats
}

// AddBlock appends a block. keys may be nil, in which case the filter is
// built from the event addresses and signatures.
func (b *Builder) AddBlock(ctx context.Context, block uint64, keys *Keys, events []event.Event) error {
	if block != b.next {
		return fmt.Errorf("%w: got block %d, want %d", ErrOutOfOrder, block, b.next)
	}

	filter, err := b.buildFilter(keys, events)
	if err != nil {
		return fmt.Errorf("block %d: %w", block, err)
	}
	rec, err := skip.NewLeaf(filter)
	if err != nil {
		return fmt.Errorf("block %d: %w", block, err)
	}

	set := event.NewSet(events...)
	if err := b.events.Put(ctx, block, set); err != nil {
		return fmt.Errorf("failed to store events of block %d: %w", block, err)
	}
	if err := b.index.Put(ctx, block, rec); err != nil {
		return fmt.Errorf("failed to index block %d: %w", block, err)
	}

	b.next++
	b.stats.Blocks++
	b.stats.Events += uint64(set.Len())
	return nil
}

func (b *Builder) buildFilter(keys *Keys, events []event.Event) (*bloom.Filter, error) {
	f, err := bloom.NewWithParams(b.index.Params())
	if err != nil {
		return nil, err
	}

	if keys != nil {
		for _, a := range keys.Addresses {
			f.Insert(a.Bytes())
		}
		for _, t := range keys.Topics {
			f.Insert(t.Bytes())
		}
	} else {
		for _, e := range events {
			f.Insert(e.Address.Bytes())
			f.Insert(e.Signature.Bytes())
		}
	}

	if b.mode == ModeExtended {
		for _, e := range events {
			f.Insert(e.Key())
		}
	}
	return f, nil
}

// Finalize links the ladders of every block appended since the previous
// Finalize, plus the tail of older blocks whose ladders can grow. Blocks
// are processed in reverse order so each merge reads finished ladders.
func (b *Builder) Finalize(ctx context.Context) error {
	start := time.Now()

	n, err := b.index.Len(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index length: %w", err)
	}
	maxLevels := b.index.MaxLevels()

	from := uint64(0)
	if w := skip.Window(maxLevels - 1); b.linked >= w {
		from = b.linked - w + 1
	}

	var linked uint64
	for block := n; block > from; {
		block--
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := b.index.Get(ctx, block)
		if err != nil {
			return fmt.Errorf("failed to read block %d: %w", block, err)
		}
		numLevels := skip.Levels(n-block, maxLevels)
		if block < b.linked && rec.Skip.NumEntries() == numLevels {
			continue
		}

		ladder, err := skip.Extend(rec.Filter, func(level int) (*bloom.Filter, error) {
			ahead, err := b.index.Get(ctx, block+skip.Window(level))
			if err != nil {
				return nil, err
			}
			return ahead.Skip.Entry(level), nil
		}, numLevels)
		if err != nil {
			return fmt.Errorf("failed to link block %d: %w", block, err)
		}
		linkedRec, err := skip.NewBlockIndex(ladder)
		if err != nil {
			return fmt.Errorf("failed to link block %d: %w", block, err)
		}
		if err := b.index.Put(ctx, block, linkedRec); err != nil {
			return fmt.Errorf("failed to write block %d: %w", block, err)
		}
		linked++
	}

	if err := b.index.SetLinked(ctx, n); err != nil {
		return err
	}

	elapsed := time.Since(start)
	b.linked = n
	b.stats.Linked += linked
	b.stats.LinkTime += elapsed

	b.logger.Info("ladders linked",
		zap.Uint64("blocks", n),
		zap.Uint64("from", from),
		zap.Uint64("rewritten", linked),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
