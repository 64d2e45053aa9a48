package ledger

import (
	"context"
	"errors"

	ds "github.com/ipfs/go-datastore"
	ktds "github.com/ipfs/go-datastore/keytransform"
	dssync "github.com/ipfs/go-datastore/sync"
	badger3 "github.com/ipfs/go-ds-badger3"

	"github.com/rollkit/ephemeral-counter/types"
)

var _ Ledger = &DatastoreLedger{}

// DatastoreLedger keeps accounts in an ipfs datastore. It backs the rollup,
// whose state is ephemeral by default.
type DatastoreLedger struct {
	root ds.Batching
	db   ds.Batching
}

// NewDatastoreLedger wraps db; accounts live under /accounts.
func NewDatastoreLedger(db ds.Batching) *DatastoreLedger {
	return &DatastoreLedger{
		root: db,
		db:   ktds.Wrap(db, ktds.PrefixTransform{Prefix: ds.NewKey("accounts")}),
	}
}

// NewInMemoryDatastoreLedger returns a ledger that lives only as long as the process.
func NewInMemoryDatastoreLedger() *DatastoreLedger {
	return NewDatastoreLedger(dssync.MutexWrap(ds.NewMapDatastore()))
}

// NewBadgerDatastoreLedger opens a ledger persisted with badger at path.
func NewBadgerDatastoreLedger(path string) (*DatastoreLedger, error) {
	db, err := badger3.NewDatastore(path, &badger3.DefaultOptions)
	if err != nil {
		return nil, err
	}
	return NewDatastoreLedger(db), nil
}

func accountKey(key types.Pubkey) ds.Key {
	return ds.NewKey(key.String())
}

// Get implements Ledger.
func (l *DatastoreLedger) Get(ctx context.Context, key types.Pubkey) (*types.Account, error) {
	b, err := l.db.Get(ctx, accountKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return UnmarshalAccount(key, b)
}

// Apply implements Ledger.
func (l *DatastoreLedger) Apply(ctx context.Context, accounts []*types.Account) error {
	batch, err := l.db.Batch(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if isClosed(a) {
			err = batch.Delete(ctx, accountKey(a.Key))
		} else {
			err = batch.Put(ctx, accountKey(a.Key), MarshalAccount(a))
		}
		if err != nil {
			return err
		}
	}
	return batch.Commit(ctx)
}

// Delete implements Ledger.
func (l *DatastoreLedger) Delete(ctx context.Context, keys ...types.Pubkey) error {
	batch, err := l.db.Batch(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := batch.Delete(ctx, accountKey(k)); err != nil {
			return err
		}
	}
	return batch.Commit(ctx)
}

// Datastore returns the underlying datastore so other components can keep
// their own keyspace next to the accounts.
func (l *DatastoreLedger) Datastore() ds.Batching {
	return l.root
}

// Close implements Ledger.
func (l *DatastoreLedger) Close() error {
	return l.root.Close()
}
