// Package address derives program-controlled account addresses.
//
// A derived address is sha256(seeds || bump || program || marker) and is
// only valid when it does not decode to a point on the ed25519 curve, so no
// private key can ever sign for it.
package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"

	"github.com/rollkit/ephemeral-counter/types"
)

const (
	// MaxSeeds is the maximum number of seeds including the bump.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

// CounterSeed namespaces counter accounts.
var CounterSeed = []byte("counter_account")

var (
	// ErrMaxSeedLengthExceeded is returned for too many or too long seeds.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	// ErrOnCurve is returned when the candidate address is a valid public key.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when every bump produced an on-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress derives the address for seeds under program. The
// bump, if any, must already be the last seed.
func CreateProgramAddress(seeds [][]byte, program types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.Pubkey{}, fmt.Errorf("%w: %d seeds", ErrMaxSeedLengthExceeded, len(seeds))
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return types.Pubkey{}, fmt.Errorf("%w: seed of %d bytes", ErrMaxSeedLengthExceeded, len(s))
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var pk types.Pubkey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk) {
		return types.Pubkey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, program types.Pubkey) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.Pubkey{}, 0, fmt.Errorf("%w: %d seeds", ErrMaxSeedLengthExceeded, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return types.Pubkey{}, 0, err
		}
		return pk, uint8(bump), nil
	}
	return types.Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether pk decodes to a valid ed25519 point.
func IsOnCurve(pk types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// CounterSeeds returns the seeds of the counter owned by owner, without bump.
func CounterSeeds(owner types.Pubkey) [][]byte {
	return [][]byte{CounterSeed, owner.Bytes()}
}

// CounterAddress derives the counter account address and bump for owner.
func CounterAddress(owner, program types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress(CounterSeeds(owner), program)
}
