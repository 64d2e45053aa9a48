package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ KVStore = &LevelDBKV{}
var _ Batch = &LevelDBBatch{}
var _ Iterator = &LevelDBIterator{}

// LevelDBKV is a implementation of KVStore using goleveldb.
type LevelDBKV struct {
	db *leveldb.DB
}

// NewLevelDBKV opens (or creates) a leveldb database at path.
func NewLevelDBKV(path string) (*LevelDBKV, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, err
	}
	return &LevelDBKV{db: db}, nil
}

// NewInMemoryLevelDBKV returns a leveldb store kept in memory.
func NewInMemoryLevelDBKV() *LevelDBKV {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		panic(err)
	}
	return &LevelDBKV{db: db}
}

// Get returns value for given key, or ErrKeyNotFound.
func (l *LevelDBKV) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return v, err
}

// Set saves key-value mapping in store.
func (l *LevelDBKV) Set(key []byte, value []byte) error {
	return l.db.Put(key, value, nil)
}

// Delete removes key and corresponding value from store.
func (l *LevelDBKV) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

// NewBatch creates new batch.
func (l *LevelDBKV) NewBatch() Batch {
	return &LevelDBBatch{db: l.db, batch: new(leveldb.Batch)}
}

// Close releases the underlying database.
func (l *LevelDBKV) Close() error {
	return l.db.Close()
}

// PrefixIterator returns instance of prefix Iterator for LevelDBKV.
func (l *LevelDBKV) PrefixIterator(prefix []byte) Iterator {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &LevelDBIterator{iter: it, valid: it.Next()}
}

// LevelDBBatch buffers writes until Commit.
type LevelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

// Set accumulates key-value entries in a batch.
func (lb *LevelDBBatch) Set(key, value []byte) error {
	lb.batch.Put(key, value)
	return nil
}

// Delete removes the key and associated value from store.
func (lb *LevelDBBatch) Delete(key []byte) error {
	lb.batch.Delete(key)
	return nil
}

// Commit writes the batch atomically.
func (lb *LevelDBBatch) Commit() error {
	return lb.db.Write(lb.batch, nil)
}

// Discard drops buffered writes.
func (lb *LevelDBBatch) Discard() {
	lb.batch.Reset()
}

// LevelDBIterator wraps a goleveldb iterator bounded to a prefix.
type LevelDBIterator struct {
	iter  iterator.Iterator
	valid bool
}

// Valid returns true if iterator is inside its prefix, false otherwise.
func (i *LevelDBIterator) Valid() bool {
	return i.valid
}

// Next progresses iterator to the next key-value pair.
func (i *LevelDBIterator) Next() {
	i.valid = i.iter.Next()
}

// Key returns key pointed by iterator. goleveldb reuses the buffer, so it is copied.
func (i *LevelDBIterator) Key() []byte {
	return append([]byte(nil), i.iter.Key()...)
}

// Value returns value pointed by iterator.
func (i *LevelDBIterator) Value() []byte {
	return append([]byte(nil), i.iter.Value()...)
}

// Error returns last error that occurred during iteration.
func (i *LevelDBIterator) Error() error {
	return i.iter.Error()
}

// Discard has to be called to free iterator resources.
func (i *LevelDBIterator) Discard() {
	i.iter.Release()
}
