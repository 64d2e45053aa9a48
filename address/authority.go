package address

import (
	"errors"
	"fmt"

	"github.com/rollkit/ephemeral-counter/types"
)

var (
	// ErrAuthorityUsed is returned when a SigningAuthority is presented twice.
	ErrAuthorityUsed = errors.New("signing authority already used")
	// ErrAuthorityMismatch is returned when the authority does not cover the target.
	ErrAuthorityMismatch = errors.New("signing authority does not match target")
)

// SigningAuthority lets a program sign for exactly one account creation at
// the address derived from its seeds.
type SigningAuthority struct {
	program types.Pubkey
	address types.Pubkey
	used    bool
}

// DeriveAuthority builds the authority for seeds plus bump under program.
func DeriveAuthority(program types.Pubkey, seeds [][]byte, bump uint8) (*SigningAuthority, error) {
	full := make([][]byte, 0, len(seeds)+1)
	full = append(full, seeds...)
	full = append(full, []byte{bump})
	addr, err := CreateProgramAddress(full, program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSeeds, err)
	}
	return &SigningAuthority{program: program, address: addr}, nil
}

// Address returns the address the authority signs for.
func (a *SigningAuthority) Address() types.Pubkey {
	return a.address
}

// Program returns the program that derived the authority.
func (a *SigningAuthority) Program() types.Pubkey {
	return a.program
}

// Authorize consumes the authority for target.
func (a *SigningAuthority) Authorize(target types.Pubkey) error {
	if a == nil {
		return types.ErrMissingRequiredSignature
	}
	if a.used {
		return ErrAuthorityUsed
	}
	if a.address != target {
		return fmt.Errorf("%w: %s != %s", ErrAuthorityMismatch, a.address, target)
	}
	a.used = true
	return nil
}
