package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	"github.com/0xmhha/skipindex-go/pkg/event"
)

// ChainStorage is the append-only mapping block number -> event set over
// the dense range [0, N). It is the exact source of truth behind the index.
type ChainStorage struct {
	kv     KVStore
	logger *zap.Logger

	writeMu sync.Mutex
	count   atomic.Uint64
	closed  atomic.Bool
}

// OpenChainStorage opens the event storage held in kv
func OpenChainStorage(kv KVStore, log *zap.Logger) (*ChainStorage, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store cannot be nil")
	}
	count, err := loadCount(kv, StorageCountKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load storage count: %w", err)
	}

	s := &ChainStorage{
		kv:     kv,
		logger: logger.WithComponent(log, logger.ComponentChainStorage),
	}
	s.count.Store(count)
	s.logger.Debug("chain storage opened", zap.Uint64("blocks", count))
	return s, nil
}

func (s *ChainStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Len returns the number of stored blocks
func (s *ChainStorage) Len(ctx context.Context) (uint64, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}
	return s.count.Load(), nil
}

// Get returns the events of a block
func (s *ChainStorage) Get(ctx context.Context, block uint64) (*event.Set, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := s.count.Load(); block >= n {
		return nil, fmt.Errorf("%w: block %d, storage holds %d", ErrOutOfRange, block, n)
	}

	data, err := s.kv.Get(StorageBlockKey(block))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: missing events for block %d", ErrInvalidData, block)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}

	set, err := event.UnmarshalSet(data)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", ErrInvalidData, block, err)
	}
	return set, nil
}

// Put stores the events of a block, appending at N or overwriting below it
func (s *ChainStorage) Put(ctx context.Context, block uint64, set *event.Set) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if set == nil {
		set = event.NewSet()
	}

	data, err := set.MarshalBinary()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n := s.count.Load()
	if block > n {
		return fmt.Errorf("%w: cannot write block %d, storage holds %d", ErrOutOfRange, block, n)
	}

	batch := s.kv.NewBatch()
	defer batch.Close()

	if err := batch.Put(StorageBlockKey(block), data); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block, err)
	}
	if block == n {
		if err := batch.Put(StorageCountKey(), EncodeUint64(n+1)); err != nil {
			return fmt.Errorf("failed to write storage count: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block, err)
	}

	if block == n {
		s.count.Store(n + 1)
	}
	return nil
}

// Close closes the storage and its store
func (s *ChainStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.kv.Close()
}
