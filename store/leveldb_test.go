package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDBKV(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	kv := NewInMemoryLevelDBKV()
	defer kv.Close()

	_, err := kv.Get([]byte("missing"))
	assert.ErrorIs(err, ErrKeyNotFound)

	require.NoError(kv.Set([]byte("a/1"), []byte("x")))
	require.NoError(kv.Set([]byte("a/2"), []byte("y")))
	require.NoError(kv.Set([]byte("b/1"), []byte("z")))

	v, err := kv.Get([]byte("a/1"))
	require.NoError(err)
	assert.Equal([]byte("x"), v)

	batch := kv.NewBatch()
	require.NoError(batch.Delete([]byte("a/1")))
	require.NoError(batch.Set([]byte("a/3"), []byte("w")))
	_, err = kv.Get([]byte("a/3"))
	assert.ErrorIs(err, ErrKeyNotFound, "batch is not visible before commit")
	require.NoError(batch.Commit())

	var keys []string
	it := kv.PrefixIterator([]byte("a/"))
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(it.Error())
	it.Discard()
	assert.Equal([]string{"a/2", "a/3"}, keys)

	discarded := kv.NewBatch()
	require.NoError(discarded.Set([]byte("c"), []byte("1")))
	discarded.Discard()
	_, err = kv.Get([]byte("c"))
	assert.ErrorIs(err, ErrKeyNotFound)
}

func TestNewKVStore(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	for _, backend := range []string{BadgerBackend, LevelDBBackend} {
		kv, err := NewKVStore(backend, dir, "data", backend)
		require.NoError(err, backend)
		require.NoError(kv.Set([]byte("k"), []byte(backend)))
		require.NoError(kv.Close())

		kv, err = NewKVStore(backend, dir, "data", backend)
		require.NoError(err, backend)
		v, err := kv.Get([]byte("k"))
		require.NoError(err)
		require.Equal([]byte(backend), v)
		require.NoError(kv.Close())
	}

	_, err := NewKVStore("rocksdb", dir, "data", "x")
	require.Error(err)
}
