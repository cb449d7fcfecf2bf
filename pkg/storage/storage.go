// Package storage persists the chain index and the per-block event sets on
// an ordered key-value store.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when stored data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")

	// ErrOutOfRange is returned for block numbers outside the indexed range [0, N)
	ErrOutOfRange = errors.New("block out of range")

	// ErrUnknownBackend is returned when Config.Backend names no implementation
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Supported backends
const (
	BackendPebble  = "pebble"
	BackendLevelDB = "leveldb"
)

// KVStore is the ordered key-value store under ChainIndex and ChainStorage
type KVStore interface {
	// Get returns a copy of the value stored under key, or ErrNotFound
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present
	Has(key []byte) (bool, error)

	// Put stores value under key
	Put(key, value []byte) error

	// NewBatch returns a write batch applied atomically on Commit
	NewBatch() Batch

	// Close releases the store. It is safe to call more than once.
	Close() error
}

// Batch groups writes that are applied together
type Batch interface {
	Put(key, value []byte) error
	Count() int
	Commit() error
	Reset()
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Backend selects the engine: "pebble" (default) or "leveldb"
	Backend string

	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 64)
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// ReadOnly opens the database in read-only mode
	ReadOnly bool

	// CompactionConcurrency for background compaction (default: 1)
	CompactionConcurrency int

	// InMemory keeps the whole database in memory; Path is ignored
	InMemory bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Backend:               BackendPebble,
		Path:                  path,
		Cache:                 128, // 128 MB
		MaxOpenFiles:          1000,
		WriteBuffer:           64, // 64 MB
		DisableWAL:            false,
		ReadOnly:              false,
		CompactionConcurrency: 1,
	}
}

// MemoryConfig returns configuration for an in-memory store of the given backend
func MemoryConfig(backend string) *Config {
	cfg := DefaultConfig("")
	cfg.Backend = backend
	cfg.InMemory = true
	cfg.Cache = 8
	cfg.WriteBuffer = 4
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPebble, BackendLevelDB:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Path == "" && !c.InMemory {
		return errors.New("path cannot be empty")
	}
	if c.InMemory && c.ReadOnly {
		return errors.New("in-memory storage cannot be read-only")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}

// Open opens the backend selected by cfg.Backend
func Open(cfg *Config) (KVStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	switch cfg.Backend {
	case BackendLevelDB:
		return NewLevelDBStore(cfg)
	case BackendPebble, "":
		if cfg.Backend == "" {
			c := *cfg
			c.Backend = BackendPebble
			cfg = &c
		}
		return NewPebbleStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
