package ledger

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/rollkit/ephemeral-counter/types"
)

var _ Ledger = &CachedLedger{}

// CachedLedger keeps recently read accounts of another ledger in an LRU cache.
// All writes must go through the CachedLedger.
type CachedLedger struct {
	inner Ledger
	cache *lru.Cache
}

// NewCachedLedger wraps inner with a cache holding up to size accounts.
func NewCachedLedger(inner Ledger, size int) (*CachedLedger, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedLedger{inner: inner, cache: c}, nil
}

// Get implements Ledger.
func (l *CachedLedger) Get(ctx context.Context, key types.Pubkey) (*types.Account, error) {
	if v, ok := l.cache.Get(key); ok {
		return v.(*types.Account).Copy(), nil
	}
	a, err := l.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, stripFlags(a))
	return a, nil
}

// Apply implements Ledger.
func (l *CachedLedger) Apply(ctx context.Context, accounts []*types.Account) error {
	if err := l.inner.Apply(ctx, accounts); err != nil {
		return err
	}
	for _, a := range accounts {
		if isClosed(a) {
			l.cache.Remove(a.Key)
		} else {
			l.cache.Add(a.Key, stripFlags(a))
		}
	}
	return nil
}

// Delete implements Ledger.
func (l *CachedLedger) Delete(ctx context.Context, keys ...types.Pubkey) error {
	for _, k := range keys {
		l.cache.Remove(k)
	}
	return l.inner.Delete(ctx, keys...)
}

// Close implements Ledger.
func (l *CachedLedger) Close() error {
	l.cache.Purge()
	return l.inner.Close()
}

func stripFlags(a *types.Account) *types.Account {
	c := a.Copy()
	c.IsSigner, c.IsWritable = false, false
	return c
}
