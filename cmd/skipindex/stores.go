package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/config"
	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/storage"
)

// stores is an opened index with its event storage
type stores struct {
	index  *storage.ChainIndex
	events *storage.ChainStorage
}

func (s *stores) Close() error {
	return errors.Join(s.index.Close(), s.events.Close())
}

func storageConfig(c config.StoreConfig, readOnly bool) *storage.Config {
	sc := storage.DefaultConfig(c.Path)
	sc.Backend = c.Backend
	sc.Cache = c.Cache
	sc.InMemory = c.InMemory
	sc.ReadOnly = (c.ReadOnly || readOnly) && !c.InMemory
	return sc
}

// openStores opens both databases. Writers create the index with the
// configured filter shape; readers adopt the stored one.
func openStores(cfg *config.Config, log *zap.Logger, write bool) (*stores, error) {
	opts := storage.IndexOptions{
		Params:    bloom.Params{MBits: cfg.Bloom.MBits, K: cfg.Bloom.K},
		MaxLevels: cfg.Bloom.MaxLevels,
		CacheSize: cfg.Bloom.CacheSize,
		Logger:    log,
	}

	if !write && !cfg.Index.InMemory {
		if _, err := os.Stat(cfg.Index.Path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no index at %s, run build first: %w", cfg.Index.Path, storage.ErrNotFound)
		}
	}

	indexKV, err := storage.Open(storageConfig(cfg.Index, !write))
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	index, err := storage.OpenChainIndex(indexKV, opts)
	if err != nil {
		indexKV.Close()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no index at %s, run build first: %w", cfg.Index.Path, err)
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	eventsKV, err := storage.Open(storageConfig(cfg.Storage, !write))
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to open event storage database: %w", err)
	}
	events, err := storage.OpenChainStorage(eventsKV, log)
	if err != nil {
		index.Close()
		eventsKV.Close()
		return nil, fmt.Errorf("failed to open event storage: %w", err)
	}

	return &stores{index: index, events: events}, nil
}
