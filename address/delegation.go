package address

import "github.com/rollkit/ephemeral-counter/types"

// Seeds of the bookkeeping accounts the delegation program keeps per
// delegated account.
var (
	BufferSeed             = []byte("buffer")
	DelegationRecordSeed   = []byte("delegation")
	DelegationMetadataSeed = []byte("delegation-metadata")
)

// DelegationAccounts are the bridge-managed addresses for one delegated account.
type DelegationAccounts struct {
	Buffer   types.Pubkey
	Record   types.Pubkey
	Metadata types.Pubkey
}

// DeriveDelegationAccounts returns the transfer buffer (derived under the
// owner program) and the delegation record and metadata (derived under the
// delegation program) for pda.
func DeriveDelegationAccounts(pda, ownerProgram types.Pubkey) (DelegationAccounts, error) {
	var out DelegationAccounts
	var err error
	if out.Buffer, _, err = FindProgramAddress([][]byte{BufferSeed, pda.Bytes()}, ownerProgram); err != nil {
		return out, err
	}
	if out.Record, _, err = FindProgramAddress([][]byte{DelegationRecordSeed, pda.Bytes()}, types.DelegationProgramID); err != nil {
		return out, err
	}
	if out.Metadata, _, err = FindProgramAddress([][]byte{DelegationMetadataSeed, pda.Bytes()}, types.DelegationProgramID); err != nil {
		return out, err
	}
	return out, nil
}
