package types

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an account identity in bytes.
const PubkeySize = 32

// Pubkey identifies an account, a program or an actor.
type Pubkey [PubkeySize]byte

var (
	// SystemProgramID creates and assigns accounts.
	SystemProgramID = Pubkey{}

	// DelegationProgramID owns delegated accounts on the base layer.
	DelegationProgramID = MustPubkeyFromBase58("DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh")

	// MagicProgramID schedules commits on the rollup.
	MagicProgramID = MustPubkeyFromBase58("Magic11111111111111111111111111111111111111")

	// MagicContextID is the scheduling context account on the rollup.
	MagicContextID = MustPubkeyFromBase58("MagicContext1111111111111111111111111111111")
)

// PubkeyFromBytes copies b into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("invalid pubkey length: %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 parses the text form of a Pubkey.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58 pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(b)
}

// MustPubkeyFromBase58 is PubkeyFromBase58 that panics on error.
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// Bytes returns a copy of the key bytes.
func (pk Pubkey) Bytes() []byte {
	return append([]byte(nil), pk[:]...)
}

// IsZero reports whether pk is the all zero key.
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// Equal reports whether pk and other are the same key.
func (pk Pubkey) Equal(other Pubkey) bool {
	return bytes.Equal(pk[:], other[:])
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// MarshalText implements encoding.TextMarshaler.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
