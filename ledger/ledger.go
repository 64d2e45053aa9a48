// Package ledger persists accounts for the base layer and the rollup.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/types"
)

// ErrAccountNotFound is returned by Get for an account that was never written
// or has been closed.
var ErrAccountNotFound = errors.New("account not found")

// Ledger stores accounts. Apply is all-or-nothing.
type Ledger interface {
	// Get returns the stored account or ErrAccountNotFound.
	Get(ctx context.Context, key types.Pubkey) (*types.Account, error)
	// Apply writes accounts atomically. Closed accounts are removed.
	Apply(ctx context.Context, accounts []*types.Account) error
	// Delete removes accounts atomically.
	Delete(ctx context.Context, keys ...types.Pubkey) error
	// Close releases the underlying storage.
	Close() error
}

// Load returns the stored account, or a fresh unfunded one if it does not exist.
func Load(ctx context.Context, l Ledger, key types.Pubkey) (*types.Account, error) {
	a, err := l.Get(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return types.NewAccount(key), nil
	}
	return a, err
}

// isClosed reports whether a carries no state worth keeping.
func isClosed(a *types.Account) bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == types.SystemProgramID && !a.Executable
}

// MarshalAccount encodes the persisted fields of a.
func MarshalAccount(a *types.Account) []byte {
	w := codec.NewWriter(types.PubkeySize + 8 + 1 + 4 + len(a.Data))
	w.WriteFixed(a.Owner[:])
	w.WriteU64(a.Lamports)
	w.WriteBool(a.Executable)
	w.WriteBytes(a.Data)
	return w.Bytes()
}

// UnmarshalAccount decodes an account stored under key.
func UnmarshalAccount(key types.Pubkey, b []byte) (*types.Account, error) {
	r := codec.NewReader(b)
	a := &types.Account{Key: key}
	owner, err := r.ReadFixed(types.PubkeySize)
	if err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	copy(a.Owner[:], owner)
	if a.Lamports, err = r.ReadU64(); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	if a.Executable, err = r.ReadBool(); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	if a.Data, err = r.ReadBytes(); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	return a, nil
}
