package processor

import (
	"fmt"
	"math/bits"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/system"
	"github.com/rollkit/ephemeral-counter/types"
)

// counterAccounts reads initializer, counter and system program and checks
// that counter is the account derived for initializer.
func (p *Processor) counterAccounts(program types.Pubkey, accounts []*types.Account) (initializer, counter *types.Account, bump uint8, err error) {
	it := types.NewAccountIter(accounts)
	if initializer, err = it.Next(); err != nil {
		return
	}
	if counter, err = it.Next(); err != nil {
		return
	}
	if _, err = it.Next(); err != nil {
		return
	}

	pda, bump, err := address.CounterAddress(initializer.Key, program)
	if err != nil {
		return nil, nil, 0, err
	}
	if pda != counter.Key {
		p.logger.Error("Invalid PDA", "expected", pda, "got", counter.Key)
		return nil, nil, 0, fmt.Errorf("%w: counter %s is not derived from %s", types.ErrInvalidArgument, counter.Key, initializer.Key)
	}
	return initializer, counter, bump, nil
}

func (p *Processor) initializeCounter(program types.Pubkey, accounts []*types.Account) error {
	initializer, counter, bump, err := p.counterAccounts(program, accounts)
	if err != nil {
		return err
	}

	if !counter.IsFunded() {
		lamports := p.rent.MinimumBalance(types.CounterSize)
		p.logger.Info("Initializing counter account", "counter", counter.Key, "lamports", lamports)

		authority, err := address.DeriveAuthority(program, address.CounterSeeds(initializer.Key), bump)
		if err != nil {
			return err
		}
		if err := system.CreateAccount(initializer, counter, lamports, types.CounterSize, program, authority); err != nil {
			return err
		}
		p.logger.Info("Counter account created", "counter", counter.Key, "owner", counter.Owner, "payer", initializer.Key)
	}

	if !counter.IsOwnedBy(program) {
		return fmt.Errorf("%w: counter %s is owned by %s", types.ErrIllegalOwner, counter.Key, counter.Owner)
	}
	p.logger.Info("Setting count to 0")
	return types.WriteCounter(counter, &types.Counter{Count: 0})
}

func (p *Processor) increaseCounter(program types.Pubkey, accounts []*types.Account, by uint64) error {
	_, counter, _, err := p.counterAccounts(program, accounts)
	if err != nil {
		return err
	}
	if !counter.IsOwnedBy(program) {
		return fmt.Errorf("%w: counter %s is owned by %s", types.ErrIllegalOwner, counter.Key, counter.Owner)
	}

	c, err := types.ReadCounter(counter)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(c.Count, by, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %d + %d", types.ErrArithmeticOverflow, c.Count, by)
	}
	p.logger.Info("Increasing count", "by", by, "count", sum)
	c.Count = sum
	return types.WriteCounter(counter, c)
}
