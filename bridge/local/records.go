package local

import (
	"fmt"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/types"
)

// DelegationRecord is stored in the delegation record account of a delegated PDA.
type DelegationRecord struct {
	// Authority is the rollup validator allowed to take the account, zero for any.
	Authority         types.Pubkey
	Owner             types.Pubkey
	DelegatedAtMs     uint64
	Lamports          uint64
	CommitFrequencyMs uint32
}

// DelegationMetadata is stored in the delegation metadata account.
type DelegationMetadata struct {
	LastCommitNonce uint64
	Undelegatable   bool
	RentPayer       types.Pubkey
	Seeds           [][]byte
}

// MarshalBinary encodes r.
func (r *DelegationRecord) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(2*types.PubkeySize + 20)
	w.WriteFixed(r.Authority[:])
	w.WriteFixed(r.Owner[:])
	w.WriteU64(r.DelegatedAtMs)
	w.WriteU64(r.Lamports)
	w.WriteU32(r.CommitFrequencyMs)
	return w.Bytes(), nil
}

// UnmarshalBinary decodes r.
func (r *DelegationRecord) UnmarshalBinary(b []byte) error {
	rd := codec.NewReader(b)
	authority, err := rd.ReadFixed(types.PubkeySize)
	if err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	owner, err := rd.ReadFixed(types.PubkeySize)
	if err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	copy(r.Authority[:], authority)
	copy(r.Owner[:], owner)
	if r.DelegatedAtMs, err = rd.ReadU64(); err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	if r.Lamports, err = rd.ReadU64(); err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	if r.CommitFrequencyMs, err = rd.ReadU32(); err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	if err := rd.Finish(); err != nil {
		return fmt.Errorf("%w: delegation record: %v", types.ErrInvalidAccountData, err)
	}
	return nil
}

// MarshalBinary encodes m.
func (m *DelegationMetadata) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(8 + 1 + types.PubkeySize + 4)
	w.WriteU64(m.LastCommitNonce)
	w.WriteBool(m.Undelegatable)
	w.WriteFixed(m.RentPayer[:])
	w.WriteBytesVec(m.Seeds)
	return w.Bytes(), nil
}

// UnmarshalBinary decodes m.
func (m *DelegationMetadata) UnmarshalBinary(b []byte) error {
	rd := codec.NewReader(b)
	var err error
	if m.LastCommitNonce, err = rd.ReadU64(); err != nil {
		return fmt.Errorf("%w: delegation metadata: %v", types.ErrInvalidAccountData, err)
	}
	if m.Undelegatable, err = rd.ReadBool(); err != nil {
		return fmt.Errorf("%w: delegation metadata: %v", types.ErrInvalidAccountData, err)
	}
	payer, err := rd.ReadFixed(types.PubkeySize)
	if err != nil {
		return fmt.Errorf("%w: delegation metadata: %v", types.ErrInvalidAccountData, err)
	}
	copy(m.RentPayer[:], payer)
	if m.Seeds, err = rd.ReadBytesVec(); err != nil {
		return fmt.Errorf("%w: delegation metadata: %v", types.ErrInvalidAccountData, err)
	}
	if err := rd.Finish(); err != nil {
		return fmt.Errorf("%w: delegation metadata: %v", types.ErrInvalidAccountData, err)
	}
	return nil
}
