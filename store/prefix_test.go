package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixKV(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	base := NewInMemoryKVStore()
	defer base.Close()

	p1 := NewPrefixKV(base, []byte{1})
	p2 := NewPrefixKV(base, []byte{2})

	key1 := []byte("key1")
	key2 := []byte("key2")

	require.NoError(p1.Set(key1, []byte("val11")))
	require.NoError(p1.Set(key2, []byte("val12")))
	require.NoError(p2.Set(key1, []byte("val21")))

	v, err := p1.Get(key1)
	require.NoError(err)
	assert.Equal([]byte("val11"), v)

	v, err = p2.Get(key1)
	require.NoError(err)
	assert.Equal([]byte("val21"), v)

	_, err = p2.Get(key2)
	assert.ErrorIs(err, ErrKeyNotFound)

	// the prefix is visible in the parent store
	v, err = base.Get(append([]byte{1}, key2...))
	require.NoError(err)
	assert.Equal([]byte("val12"), v)

	require.NoError(p1.Delete(key1))
	_, err = p1.Get(key1)
	assert.ErrorIs(err, ErrKeyNotFound)
}

func TestPrefixKVBatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	base := NewInMemoryKVStore()
	defer base.Close()
	p := NewPrefixKV(base, []byte("acct/"))

	batch := p.NewBatch()
	require.NoError(batch.Set([]byte("a"), []byte("1")))
	require.NoError(batch.Set([]byte("b"), []byte("2")))

	// nothing is visible before commit
	_, err := p.Get([]byte("a"))
	assert.ErrorIs(err, ErrKeyNotFound)

	require.NoError(batch.Commit())

	it := p.PrefixIterator(nil)
	defer it.Discard()
	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(it.Error())
	assert.Equal([]string{"acct/a", "acct/b"}, keys)
}

func TestPrefixKVBatchDiscard(t *testing.T) {
	base := NewInMemoryKVStore()
	defer base.Close()
	p := NewPrefixKV(base, []byte{9})

	batch := p.NewBatch()
	require.NoError(t, batch.Set([]byte("x"), []byte("1")))
	batch.Discard()

	_, err := p.Get([]byte("x"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
