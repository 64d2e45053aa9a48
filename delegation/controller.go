// Package delegation validates and executes the transitions that move write
// authority over the counter between the base layer and the rollup:
//
//	Owned-by-BaseLayer --Delegate--> Delegated-to-Rollup
//	Delegated-to-Rollup --Commit--> Delegated-to-Rollup (commit scheduled)
//	Delegated-to-Rollup --CommitAndUndelegate--> release scheduled
//	release scheduled --Undelegate--> Owned-by-BaseLayer
//
// The controller never changes ownership itself. It supplies correctly derived
// accounts and seeds to the bridge, which does the bookkeeping.
package delegation

import (
	"context"
	"fmt"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/bridge"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/types"
)

// Controller runs delegation transitions against a bridge.
type Controller struct {
	bridge bridge.Bridge
	logger log.Logger
}

// NewController returns a Controller using b.
func NewController(b bridge.Bridge, logger log.Logger) *Controller {
	return &Controller{bridge: b, logger: logger}
}

// Delegate hands the counter of the initializer to the rollup.
//
// Accounts: initializer, pda, owner program, buffer, delegation record,
// delegation metadata, delegation program, system program.
func (c *Controller) Delegate(ctx context.Context, program types.Pubkey, accounts []*types.Account) error {
	it := types.NewAccountIter(accounts)
	var da bridge.DelegateAccounts
	for _, dst := range []**types.Account{
		&da.Payer, &da.PDA, &da.OwnerProgram, &da.Buffer,
		&da.DelegationRecord, &da.DelegationMetadata, &da.DelegationProgram, &da.SystemProgram,
	} {
		a, err := it.Next()
		if err != nil {
			return err
		}
		*dst = a
	}

	// the caller keeps these seeds; the same set must come back on Undelegate
	seeds := address.CounterSeeds(da.Payer.Key)
	pda, _, err := address.FindProgramAddress(seeds, program)
	if err != nil {
		return err
	}
	if pda != da.PDA.Key {
		c.logger.Error("invalid PDA", "expected", pda, "got", da.PDA.Key)
		return fmt.Errorf("%w: pda %s is not derived from %s", types.ErrInvalidArgument, da.PDA.Key, da.Payer.Key)
	}
	cfg := bridge.DefaultDelegateConfig()

	c.logger.Debug("delegating account", "pda", da.PDA.Key, "payer", da.Payer.Key, "commit_frequency", cfg.CommitFrequency)
	return c.bridge.Delegate(ctx, da, seeds, cfg)
}

// Commit schedules replication of the counter to the base layer.
//
// Accounts: initializer, counter, magic program, magic context.
func (c *Controller) Commit(ctx context.Context, program types.Pubkey, accounts []*types.Account) error {
	req, err := commitRequest(accounts, false)
	if err != nil {
		return err
	}
	c.logger.Debug("scheduling commit", "account", req.Accounts[0].Key)
	return c.bridge.Commit(ctx, req)
}

// CommitAndUndelegate schedules replication of the counter followed by the
// return of authority to the base layer.
//
// Accounts: initializer, counter, magic program, magic context.
func (c *Controller) CommitAndUndelegate(ctx context.Context, program types.Pubkey, accounts []*types.Account) error {
	req, err := commitRequest(accounts, true)
	if err != nil {
		return err
	}
	c.logger.Debug("scheduling commit and undelegate", "account", req.Accounts[0].Key)
	return c.bridge.CommitAndUndelegate(ctx, req)
}

func commitRequest(accounts []*types.Account, undelegate bool) (bridge.CommitRequest, error) {
	it := types.NewAccountIter(accounts)
	initializer, err := it.Next()
	if err != nil {
		return bridge.CommitRequest{}, err
	}
	counter, err := it.Next()
	if err != nil {
		return bridge.CommitRequest{}, err
	}
	magicProgram, err := it.Next()
	if err != nil {
		return bridge.CommitRequest{}, err
	}
	magicContext, err := it.Next()
	if err != nil {
		return bridge.CommitRequest{}, err
	}

	if !initializer.IsSigner {
		return bridge.CommitRequest{}, fmt.Errorf("%w: initializer %s should be the signer", types.ErrMissingRequiredSignature, initializer.Key)
	}

	return bridge.CommitRequest{
		Payer:        initializer,
		Accounts:     []*types.Account{counter},
		MagicContext: magicContext,
		MagicProgram: magicProgram,
		Undelegate:   undelegate,
	}, nil
}

// Undelegate returns the delegated account to the base layer. Seed
// verification is left to the bridge. A bridge failure aborts the instruction.
//
// Accounts: delegated pda, buffer, initializer, system program.
func (c *Controller) Undelegate(ctx context.Context, program types.Pubkey, accounts []*types.Account, seeds [][]byte) error {
	it := types.NewAccountIter(accounts)
	pda, err := it.Next()
	if err != nil {
		return err
	}
	buffer, err := it.Next()
	if err != nil {
		return err
	}
	initializer, err := it.Next()
	if err != nil {
		return err
	}
	systemProgram, err := it.Next()
	if err != nil {
		return err
	}

	err = c.bridge.Undelegate(ctx, bridge.UndelegateRequest{
		PDA:           pda,
		OwnerProgram:  program,
		Buffer:        buffer,
		Payer:         initializer,
		SystemProgram: systemProgram,
		Seeds:         seeds,
	})
	if err != nil {
		c.logger.Error("undelegation failed", "pda", pda.Key, "error", err)
		return err
	}
	return nil
}
