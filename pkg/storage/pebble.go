package storage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Ensure PebbleStore implements KVStore interface
var _ KVStore = (*PebbleStore)(nil)

// PebbleStore implements KVStore using PebbleDB
type PebbleStore struct {
	db     *pebble.DB
	config *Config
	closed atomic.Bool
}

// NewPebbleStore creates a new PebbleDB store
func NewPebbleStore(cfg *Config) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Configure PebbleDB options
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ReadOnly:                 cfg.ReadOnly,
	}
	defer opts.Cache.Unref()

	path := cfg.Path
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		path = ""
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStore{db: db, config: cfg}, nil
}

// ensureNotClosed checks if storage is closed
func (s *PebbleStore) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureNotReadOnly checks if storage is read-only
func (s *PebbleStore) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Get returns a copy of the value stored under key
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Has reports whether key is present
func (s *PebbleStore) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put stores value under key
func (s *PebbleStore) Put(key, value []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	return nil
}

// NewBatch creates a new write batch
func (s *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{
		store: s,
		batch: s.db.NewBatch(),
	}
}

// Close closes the storage and releases resources
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure pebbleBatch implements Batch interface
var _ Batch = (*pebbleBatch)(nil)

type pebbleBatch struct {
	store  *PebbleStore
	batch  *pebble.Batch
	count  int
	closed bool
	mu     sync.Mutex
}

// Put adds a set operation to the batch
func (b *pebbleBatch) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.batch.Set(key, value, nil); err != nil {
		return err
	}
	b.count++
	return nil
}

// Count returns the number of operations in the batch
func (b *pebbleBatch) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Commit applies the batch
func (b *pebbleBatch) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.store.ensureNotClosed(); err != nil {
		return err
	}
	if err := b.store.ensureNotReadOnly(); err != nil {
		return err
	}
	return b.batch.Commit(pebble.Sync)
}

// Reset clears the batch for reuse
func (b *pebbleBatch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.batch.Reset()
	b.count = 0
}

// Close releases the batch
func (b *pebbleBatch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.batch.Close()
}
