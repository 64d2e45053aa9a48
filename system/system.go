// Package system implements the account creation and funding collaborator
// programs call into.
package system

import (
	"fmt"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/types"
)

const (
	// AccountStorageOverhead is charged on top of every account's data size.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2
)

// Rent computes the balance an account must hold to stay alive.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

// DefaultRent returns the rent parameters of the base layer.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
	}
}

// MinimumBalance returns the rent exempt balance for size bytes of data.
func (r Rent) MinimumBalance(size int) uint64 {
	return (AccountStorageOverhead + uint64(size)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// CreateAccount funds target from payer, allocates space zeroed bytes and
// assigns it to owner. target is a program derived address, so the caller
// must present the authority derived for it.
func CreateAccount(payer, target *types.Account, lamports uint64, space int, owner types.Pubkey, authority *address.SigningAuthority) error {
	if !payer.IsSigner {
		return fmt.Errorf("%w: payer %s", types.ErrMissingRequiredSignature, payer.Key)
	}
	if !payer.IsWritable || !target.IsWritable {
		return fmt.Errorf("%w: create account needs writable payer and target", types.ErrInvalidArgument)
	}
	if err := authority.Authorize(target.Key); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMissingRequiredSignature, err)
	}
	if target.IsFunded() || len(target.Data) != 0 || !target.IsOwnedBy(types.SystemProgramID) {
		return fmt.Errorf("%w: %s", types.ErrAccountAlreadyInUse, target.Key)
	}
	if err := Transfer(payer, target, lamports); err != nil {
		return err
	}
	target.Data = make([]byte, space)
	target.Owner = owner
	return nil
}

// Transfer moves lamports from one account to another.
func Transfer(from, to *types.Account, lamports uint64) error {
	if from.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", types.ErrInsufficientFunds, from.Key, from.Lamports, lamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// Assign changes the owner of a.
func Assign(a *types.Account, owner types.Pubkey) {
	a.Owner = owner
}

// Close drains a into recipient and wipes its storage.
func Close(a, recipient *types.Account) {
	recipient.Lamports += a.Lamports
	a.Lamports = 0
	a.Data = nil
	a.Owner = types.SystemProgramID
}
