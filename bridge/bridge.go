// Package bridge defines the capability programs use to move write authority
// over an account between the base layer and the rollup.
package bridge

import (
	"context"
	"time"

	"github.com/rollkit/ephemeral-counter/types"
)

// DefaultCommitFrequency is how often the rollup replicates a delegated
// account when the delegator does not ask for anything else.
const DefaultCommitFrequency = 30 * time.Second

// DelegateConfig is handed to the delegation program with each delegation.
type DelegateConfig struct {
	// CommitFrequency is the interval of automatic commits.
	CommitFrequency time.Duration
	// Validator optionally pins the rollup validator that may take the account.
	Validator *types.Pubkey
}

// DefaultDelegateConfig returns the configuration used by the counter program.
func DefaultDelegateConfig() DelegateConfig {
	return DelegateConfig{CommitFrequency: DefaultCommitFrequency}
}

// CommitFrequencyMs returns the frequency in milliseconds, as recorded by the
// delegation program.
func (c DelegateConfig) CommitFrequencyMs() uint32 {
	return uint32(c.CommitFrequency / time.Millisecond)
}

// DelegateAccounts are the positional accounts of a delegation.
type DelegateAccounts struct {
	Payer              *types.Account
	PDA                *types.Account
	OwnerProgram       *types.Account
	Buffer             *types.Account
	DelegationRecord   *types.Account
	DelegationMetadata *types.Account
	DelegationProgram  *types.Account
	SystemProgram      *types.Account
}

// CommitRequest asks the rollup to replicate accounts to the base layer.
type CommitRequest struct {
	Payer        *types.Account
	Accounts     []*types.Account
	MagicContext *types.Account
	MagicProgram *types.Account
	// Undelegate returns authority to the base layer once the commit landed.
	// Bridges set it from the method called.
	Undelegate bool
}

// UndelegateRequest asks the delegation program to hand pda back to its owner.
type UndelegateRequest struct {
	PDA           *types.Account
	OwnerProgram  types.Pubkey
	Buffer        *types.Account
	Payer         *types.Account
	SystemProgram *types.Account
	// Seeds are the seeds that derived PDA at delegation time, without bump.
	Seeds [][]byte
}

// Bridge is the delegation and commit capability. Implementations perform all
// ownership bookkeeping; callers only supply correctly derived accounts.
type Bridge interface {
	// Delegate moves authority over the PDA from the base layer to the rollup.
	Delegate(ctx context.Context, accounts DelegateAccounts, seeds [][]byte, config DelegateConfig) error
	// Commit schedules replication of the accounts. It does not wait for it.
	Commit(ctx context.Context, req CommitRequest) error
	// CommitAndUndelegate schedules a commit and, after it, the return of authority.
	CommitAndUndelegate(ctx context.Context, req CommitRequest) error
	// Undelegate restores base layer authority over the PDA.
	Undelegate(ctx context.Context, req UndelegateRequest) error
}
