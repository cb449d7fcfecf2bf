package storage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_storage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Ensure LevelDBStore implements KVStore interface
var _ KVStore = (*LevelDBStore)(nil)

// LevelDBStore implements KVStore using goleveldb
type LevelDBStore struct {
	db     *leveldb.DB
	config *Config
	wo     *ldb_opt.WriteOptions
	closed atomic.Bool
}

// NewLevelDBStore creates a new LevelDB store
func NewLevelDBStore(cfg *Config) (*LevelDBStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opt := &ldb_opt.Options{
		ErrorIfExist:           false,
		ErrorIfMissing:         cfg.ReadOnly,
		ReadOnly:               cfg.ReadOnly,
		BlockCacheCapacity:     cfg.Cache << 20,
		OpenFilesCacheCapacity: cfg.MaxOpenFiles,
		WriteBuffer:            cfg.WriteBuffer << 20,
	}

	var (
		db  *leveldb.DB
		err error
	)
	if cfg.InMemory {
		db, err = leveldb.Open(ldb_storage.NewMemStorage(), opt)
	} else {
		db, err = leveldb.OpenFile(cfg.Path, opt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &LevelDBStore{
		db:     db,
		config: cfg,
		wo:     &ldb_opt.WriteOptions{Sync: !cfg.DisableWAL},
	}, nil
}

func (s *LevelDBStore) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *LevelDBStore) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Get returns the value stored under key
func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// Has reports whether key is present
func (s *LevelDBStore) Has(key []byte) (bool, error) {
	if err := s.ensureNotClosed(); err != nil {
		return false, err
	}
	return s.db.Has(key, nil)
}

// Put stores value under key
func (s *LevelDBStore) Put(key, value []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}
	if err := s.db.Put(key, value, s.wo); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	return nil
}

// NewBatch creates a new write batch
func (s *LevelDBStore) NewBatch() Batch {
	return &levelDBBatch{store: s, batch: new(leveldb.Batch)}
}

// Close closes the storage and releases resources
func (s *LevelDBStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var _ Batch = (*levelDBBatch)(nil)

type levelDBBatch struct {
	store  *LevelDBStore
	batch  *leveldb.Batch
	closed bool
	mu     sync.Mutex
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.batch.Put(key, value)
	return nil
}

func (b *levelDBBatch) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batch.Len()
}

func (b *levelDBBatch) Commit() error {
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
	return b.store.db.Write(b.batch, b.store.wo)
}

func (b *levelDBBatch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batch.Reset()
}

func (b *levelDBBatch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.batch.Reset()
	}
	return nil
}
