package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/types"
)

// Delegation is the rollup side view of a delegated account.
type Delegation struct {
	Account         types.Pubkey
	OwnerProgram    types.Pubkey
	Payer           types.Pubkey
	CommitFrequency time.Duration
	LastCommit      time.Time
}

// Due reports whether an automatic commit is owed at now.
func (d *Delegation) Due(now time.Time) bool {
	return d.CommitFrequency > 0 && !now.Before(d.LastCommit.Add(d.CommitFrequency))
}

func (d *Delegation) marshal() []byte {
	w := codec.NewWriter(3*types.PubkeySize + 16)
	w.WriteFixed(d.Account[:])
	w.WriteFixed(d.OwnerProgram[:])
	w.WriteFixed(d.Payer[:])
	w.WriteU64(uint64(d.CommitFrequency))
	w.WriteU64(uint64(d.LastCommit.UnixNano()))
	return w.Bytes()
}

func (d *Delegation) unmarshal(b []byte) error {
	r := codec.NewReader(b)
	for _, k := range []*types.Pubkey{&d.Account, &d.OwnerProgram, &d.Payer} {
		raw, err := r.ReadFixed(types.PubkeySize)
		if err != nil {
			return err
		}
		copy(k[:], raw)
	}
	freq, err := r.ReadU64()
	if err != nil {
		return err
	}
	last, err := r.ReadU64()
	if err != nil {
		return err
	}
	d.CommitFrequency = time.Duration(freq)
	d.LastCommit = time.Unix(0, int64(last)).UTC()
	return r.Finish()
}

// Schedule tracks the accounts currently delegated to the rollup.
type Schedule struct {
	db ds.Batching
}

// NewSchedule returns a Schedule persisting under prefix in db.
func NewSchedule(db ds.Batching, prefix string) *Schedule {
	return &Schedule{db: newPrefixKV(db, prefix)}
}

func delegationKey(k types.Pubkey) ds.Key {
	return ds.NewKey(k.String())
}

// Put records or updates d.
func (s *Schedule) Put(ctx context.Context, d *Delegation) error {
	return s.db.Put(ctx, delegationKey(d.Account), d.marshal())
}

// Get returns the delegation of account, or ds.ErrNotFound.
func (s *Schedule) Get(ctx context.Context, account types.Pubkey) (*Delegation, error) {
	bz, err := s.db.Get(ctx, delegationKey(account))
	if err != nil {
		return nil, err
	}
	d := new(Delegation)
	if err := d.unmarshal(bz); err != nil {
		return nil, fmt.Errorf("decode delegation %s: %w", account, err)
	}
	return d, nil
}

// Has reports whether account is delegated to the rollup.
func (s *Schedule) Has(ctx context.Context, account types.Pubkey) (bool, error) {
	return s.db.Has(ctx, delegationKey(account))
}

// Remove forgets account. Removing an unknown account is not an error.
func (s *Schedule) Remove(ctx context.Context, account types.Pubkey) error {
	err := s.db.Delete(ctx, delegationKey(account))
	if errors.Is(err, ds.ErrNotFound) {
		return nil
	}
	return err
}

// Due returns the delegations owing an automatic commit at now.
func (s *Schedule) Due(ctx context.Context, now time.Time) ([]*Delegation, error) {
	results, err := s.db.Query(ctx, query.Query{})
	if err != nil {
		return nil, err
	}
	defer results.Close()

	var due []*Delegation
	for result := range results.Next() {
		if result.Error != nil {
			return nil, result.Error
		}
		d := new(Delegation)
		if err := d.unmarshal(result.Value); err != nil {
			return nil, fmt.Errorf("decode delegation %s: %w", result.Key, err)
		}
		if d.Due(now) {
			due = append(due, d)
		}
	}
	return due, nil
}
