package ledger

import (
	"context"
	"errors"

	"github.com/rollkit/ephemeral-counter/store"
	"github.com/rollkit/ephemeral-counter/types"
)

var accountsPrefix = []byte("acct/")

var _ Ledger = &KVLedger{}

// KVLedger keeps accounts in a store.KVStore. It backs the base layer.
type KVLedger struct {
	kv   store.KVStore
	accs *store.PrefixKV
}

// NewKVLedger returns a ledger on top of kv.
func NewKVLedger(kv store.KVStore) *KVLedger {
	return &KVLedger{kv: kv, accs: store.NewPrefixKV(kv, accountsPrefix)}
}

// Get implements Ledger.
func (l *KVLedger) Get(_ context.Context, key types.Pubkey) (*types.Account, error) {
	b, err := l.accs.Get(key[:])
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return UnmarshalAccount(key, b)
}

// Apply implements Ledger.
func (l *KVLedger) Apply(_ context.Context, accounts []*types.Account) error {
	batch := l.accs.NewBatch()
	for _, a := range accounts {
		var err error
		if isClosed(a) {
			err = batch.Delete(a.Key[:])
		} else {
			err = batch.Set(a.Key[:], MarshalAccount(a))
		}
		if err != nil {
			batch.Discard()
			return err
		}
	}
	return batch.Commit()
}

// Delete implements Ledger.
func (l *KVLedger) Delete(_ context.Context, keys ...types.Pubkey) error {
	batch := l.accs.NewBatch()
	for _, k := range keys {
		if err := batch.Delete(k[:]); err != nil {
			batch.Discard()
			return err
		}
	}
	return batch.Commit()
}

// Close implements Ledger.
func (l *KVLedger) Close() error {
	return l.kv.Close()
}
