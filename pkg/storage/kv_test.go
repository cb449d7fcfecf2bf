package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backends = []string{BackendPebble, BackendLevelDB}

// setupTestKV opens an on-disk store of the given backend in a temp dir
func setupTestKV(t *testing.T, backend string) (KVStore, *Config) {
	t.Helper()

	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = backend
	cfg.Cache = 8
	cfg.WriteBuffer = 4

	kv, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv, cfg
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig("/tmp/x")
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Backend = "rocksdb"
	assert.ErrorIs(t, bad.Validate(), ErrUnknownBackend)

	bad = *cfg
	bad.Path = ""
	assert.Error(t, bad.Validate())

	mem := MemoryConfig(BackendLevelDB)
	require.NoError(t, mem.Validate())
	mem.ReadOnly = true
	assert.Error(t, mem.Validate())

	bad = *cfg
	bad.CompactionConcurrency = 0
	assert.Error(t, bad.Validate())

	_, err := Open(nil)
	assert.Error(t, err)
}

func TestKVStore_Backends(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			kv, _ := setupTestKV(t, backend)

			_, err := kv.Get([]byte("missing"))
			assert.ErrorIs(t, err, ErrNotFound)
			ok, err := kv.Has([]byte("missing"))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Put([]byte("a"), []byte("1")))
			v, err := kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)
			ok, err = kv.Has([]byte("a"))
			require.NoError(t, err)
			assert.True(t, ok)

			batch := kv.NewBatch()
			require.NoError(t, batch.Put([]byte("b"), []byte("2")))
			require.NoError(t, batch.Put([]byte("c"), []byte("3")))
			assert.Equal(t, 2, batch.Count())

			_, err = kv.Get([]byte("b"))
			assert.ErrorIs(t, err, ErrNotFound, "batch writes are invisible before commit")

			require.NoError(t, batch.Commit())
			require.NoError(t, batch.Close())
			assert.ErrorIs(t, batch.Put([]byte("d"), nil), ErrClosed)

			v, err = kv.Get([]byte("c"))
			require.NoError(t, err)
			assert.Equal(t, []byte("3"), v)

			batch = kv.NewBatch()
			require.NoError(t, batch.Put([]byte("e"), []byte("5")))
			batch.Reset()
			assert.Equal(t, 0, batch.Count())
			require.NoError(t, batch.Commit())
			require.NoError(t, batch.Close())
			_, err = kv.Get([]byte("e"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKVStore_InMemory(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			kv, err := Open(MemoryConfig(backend))
			require.NoError(t, err)
			defer kv.Close()

			require.NoError(t, kv.Put([]byte("k"), []byte("v")))
			v, err := kv.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)
		})
	}
}

func TestKVStore_Close(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			kv, _ := setupTestKV(t, backend)
			batch := kv.NewBatch()
			require.NoError(t, batch.Put([]byte("k"), []byte("v")))

			require.NoError(t, kv.Close())
			require.NoError(t, kv.Close(), "close is idempotent")

			_, err := kv.Get([]byte("k"))
			assert.ErrorIs(t, err, ErrClosed)
			_, err = kv.Has([]byte("k"))
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, kv.Put([]byte("k"), nil), ErrClosed)
			assert.ErrorIs(t, batch.Commit(), ErrClosed)
			batch.Close()
		})
	}
}

func TestKVStore_ReadOnlyReopen(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			kv, cfg := setupTestKV(t, backend)
			require.NoError(t, kv.Put([]byte("k"), []byte("v")))
			require.NoError(t, kv.Close())

			ro := *cfg
			ro.ReadOnly = true
			reopened, err := Open(&ro)
			require.NoError(t, err)
			defer reopened.Close()

			v, err := reopened.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)

			assert.ErrorIs(t, reopened.Put([]byte("k"), []byte("w")), ErrReadOnly)

			batch := reopened.NewBatch()
			defer batch.Close()
			require.NoError(t, batch.Put([]byte("k"), []byte("w")))
			assert.ErrorIs(t, batch.Commit(), ErrReadOnly)
		})
	}
}

func TestSchemaKeys(t *testing.T) {
	assert.Equal(t, append([]byte("/index/block/"), 0, 0, 0, 0, 0, 0, 1, 2), IndexBlockKey(0x0102))
	assert.Equal(t, append([]byte("/storage/block/"), 0, 0, 0, 0, 0, 0, 0, 7), StorageBlockKey(7))
	assert.Equal(t, "/meta/index/count", string(IndexCountKey()))
	assert.Equal(t, "/meta/storage/count", string(StorageCountKey()))
	assert.Equal(t, "/meta/index/params", string(IndexParamsKey()))

	n, err := DecodeUint64(EncodeUint64(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
	_, err = DecodeUint64([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidData)
}
