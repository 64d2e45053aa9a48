package store

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
)

// KVStore encapsulates key-value store abstraction, in minimalistic interface.
//
// KVStore MUST be thread safe.
type KVStore interface {
	Get(key []byte) ([]byte, error)     // Get gets the value for a key.
	Set(key []byte, value []byte) error // Set updates the value for a key.
	Delete(key []byte) error            // Delete deletes a key.
	NewBatch() Batch                    // NewBatch creates a new batch.
	PrefixIterator(prefix []byte) Iterator
	Close() error
}

// Batch enables batching of transactions.
type Batch interface {
	Set(key, value []byte) error // Accumulates KV entries in a transaction.
	Delete(key []byte) error     // Deletes the given key.
	Commit() error               // Commits the transaction.
	Discard()                    // Discards the transaction.
}

// Iterator enables traversal over a given prefix.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Discard()
}

// NewInMemoryKVStore builds KVStore that works in-memory (without accessing disk).
func NewInMemoryKVStore() KVStore {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		panic(err)
	}
	return &BadgerKV{
		db: db,
	}
}

// NewDefaultKVStore creates instance of default key-value store stored under
// rootDir/dbPath/name.
func NewDefaultKVStore(rootDir, dbPath, name string) (KVStore, error) {
	path := filepath.Join(rootify(rootDir, dbPath), name)
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerKV{
		db: db,
	}, nil
}

const (
	// BadgerBackend stores data with badger v3.
	BadgerBackend = "badger"
	// LevelDBBackend stores data with goleveldb.
	LevelDBBackend = "goleveldb"
)

// NewKVStore opens a store of the given backend under rootDir/dbPath/name.
func NewKVStore(backend, rootDir, dbPath, name string) (KVStore, error) {
	switch backend {
	case BadgerBackend, "":
		return NewDefaultKVStore(rootDir, dbPath, name)
	case LevelDBBackend:
		kv, err := NewLevelDBKV(filepath.Join(rootify(rootDir, dbPath), name))
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported db backend %q", backend)
	}
}

// rootify works just like in cosmos-sdk
func rootify(rootDir, dbPath string) string {
	if filepath.IsAbs(dbPath) {
		return dbPath
	}
	return filepath.Join(rootDir, dbPath)
}
