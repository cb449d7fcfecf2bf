package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/skip"
)

// DefaultIndexCacheSize is the number of decoded records kept in memory
const DefaultIndexCacheSize = 4096

// IndexOptions configures a ChainIndex. Zero Params or MaxLevels adopt the
// values stored with the index; an index without stored parameters needs both.
type IndexOptions struct {
	Params    bloom.Params
	MaxLevels int
	CacheSize int
	Logger    *zap.Logger
}

// ChainIndex is the append-only mapping block number -> BlockIndex over the
// dense range [0, N).
type ChainIndex struct {
	kv        KVStore
	params    bloom.Params
	maxLevels int
	cache     *lru.Cache
	logger    *zap.Logger

	writeMu sync.Mutex
	count   atomic.Uint64
	closed  atomic.Bool
}

// OpenChainIndex opens the index stored in kv
func OpenChainIndex(kv KVStore, opts IndexOptions) (*ChainIndex, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store cannot be nil")
	}
	idx := &ChainIndex{
		kv:        kv,
		params:    opts.Params,
		maxLevels: opts.MaxLevels,
		logger:    logger.WithComponent(opts.Logger, logger.ComponentChainIndex),
	}

	if err := idx.loadParams(); err != nil {
		return nil, err
	}

	count, err := loadCount(kv, IndexCountKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load index count: %w", err)
	}
	idx.count.Store(count)

	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create record cache: %w", err)
		}
		idx.cache = cache
	}

	idx.logger.Debug("chain index opened",
		zap.Uint64("blocks", count),
		zap.Stringer("params", idx.params),
		zap.Int("maxLevels", idx.maxLevels),
	)
	return idx, nil
}

// loadParams reconciles requested parameters with the stored ones
func (c *ChainIndex) loadParams() error {
	data, err := c.kv.Get(IndexParamsKey())
	if errors.Is(err, ErrNotFound) {
		if c.params == (bloom.Params{}) || c.maxLevels == 0 {
			return fmt.Errorf("%w: index has no stored parameters", ErrNotFound)
		}
		if err := c.params.Validate(); err != nil {
			return err
		}
		if c.maxLevels < 1 || c.maxLevels > skip.MaxLevels {
			return fmt.Errorf("max levels must be between 1 and %d, got %d", skip.MaxLevels, c.maxLevels)
		}
		if err := c.kv.Put(IndexParamsKey(), encodeIndexParams(c.params, c.maxLevels)); err != nil {
			return fmt.Errorf("failed to store index params: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load index params: %w", err)
	}

	stored, storedLevels, err := decodeIndexParams(data)
	if err != nil {
		return err
	}
	if (c.params.MBits != 0 && c.params.MBits != stored.MBits) || (c.params.K != 0 && c.params.K != stored.K) {
		return fmt.Errorf("%w: index stores %s, requested %s", bloom.ErrConfigMismatch, stored, c.params)
	}
	if c.maxLevels != 0 && c.maxLevels != storedLevels {
		return fmt.Errorf("%w: index stores %d levels, requested %d", bloom.ErrConfigMismatch, storedLevels, c.maxLevels)
	}
	c.params = stored
	c.maxLevels = storedLevels
	return nil
}

func (c *ChainIndex) ensureNotClosed() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Params returns the filter parameters shared by every record
func (c *ChainIndex) Params() bloom.Params {
	return c.params
}

// MaxLevels returns the ladder depth bound of the index
func (c *ChainIndex) MaxLevels() int {
	return c.maxLevels
}

// RecordSize returns the size bound of a serialized record
func (c *ChainIndex) RecordSize() int {
	return skip.MaxSerializedSize(c.params, c.maxLevels)
}

// Len returns the number of indexed blocks
func (c *ChainIndex) Len(ctx context.Context) (uint64, error) {
	if err := c.ensureNotClosed(); err != nil {
		return 0, err
	}
	return c.count.Load(), nil
}

// Get returns the record of a block
func (c *ChainIndex) Get(ctx context.Context, block uint64) (*skip.BlockIndex, error) {
	if err := c.ensureNotClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := c.count.Load(); block >= n {
		return nil, fmt.Errorf("%w: block %d, index holds %d", ErrOutOfRange, block, n)
	}

	if c.cache != nil {
		if v, ok := c.cache.Get(block); ok {
			return v.(*skip.BlockIndex), nil
		}
	}

	data, err := c.kv.Get(IndexBlockKey(block))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: missing record for block %d", ErrInvalidData, block)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}

	rec, err := skip.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", ErrInvalidData, block, err)
	}
	if rec.Params() != c.params {
		return nil, fmt.Errorf("%w: block %d has %s, index has %s", ErrInvalidData, block, rec.Params(), c.params)
	}

	if c.cache != nil {
		c.cache.Add(block, rec)
	}
	return rec, nil
}

// Put stores the record of a block. block may overwrite an existing record
// or append at N; anything beyond N is out of range.
func (c *ChainIndex) Put(ctx context.Context, block uint64, rec *skip.BlockIndex) error {
	if err := c.ensureNotClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Params() != c.params {
		return fmt.Errorf("%w: record has %s, index has %s", bloom.ErrConfigMismatch, rec.Params(), c.params)
	}
	if n := rec.Skip.NumEntries(); n > c.maxLevels {
		return fmt.Errorf("%w: record has %d levels, index allows %d", skip.ErrInvalidFormat, n, c.maxLevels)
	}

	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n := c.count.Load()
	if block > n {
		return fmt.Errorf("%w: cannot write block %d, index holds %d", ErrOutOfRange, block, n)
	}

	batch := c.kv.NewBatch()
	defer batch.Close()

	if err := batch.Put(IndexBlockKey(block), data); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block, err)
	}
	if block == n {
		if err := batch.Put(IndexCountKey(), EncodeUint64(n+1)); err != nil {
			return fmt.Errorf("failed to write index count: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block, err)
	}

	if block == n {
		c.count.Store(n + 1)
	}
	if c.cache != nil {
		c.cache.Remove(block)
	}
	return nil
}

// Linked returns the number of leading blocks whose ladders are linked. An
// index that never finished a build reports 0.
func (c *ChainIndex) Linked(ctx context.Context) (uint64, error) {
	if err := c.ensureNotClosed(); err != nil {
		return 0, err
	}
	linked, err := loadCount(c.kv, IndexLinkedKey())
	if err != nil {
		return 0, fmt.Errorf("failed to load linked count: %w", err)
	}
	if n := c.count.Load(); linked > n {
		return 0, fmt.Errorf("%w: %d linked blocks, index holds %d", ErrInvalidData, linked, n)
	}
	return linked, nil
}

// SetLinked records that the ladders of blocks [0, n) are linked
func (c *ChainIndex) SetLinked(ctx context.Context, n uint64) error {
	if err := c.ensureNotClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if count := c.count.Load(); n > count {
		return fmt.Errorf("%w: cannot mark %d blocks linked, index holds %d", ErrOutOfRange, n, count)
	}
	if err := c.kv.Put(IndexLinkedKey(), EncodeUint64(n)); err != nil {
		return fmt.Errorf("failed to write linked count: %w", err)
	}
	return nil
}

// Close closes the index and its store
func (c *ChainIndex) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cache != nil {
		c.cache.Purge()
	}
	return c.kv.Close()
}

func loadCount(kv KVStore, key []byte) (uint64, error) {
	data, err := kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return DecodeUint64(data)
}
