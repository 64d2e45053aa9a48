package local

import (
	"context"
	"fmt"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/system"
	"github.com/rollkit/ephemeral-counter/types"
)

// Instructions understood by DelegationProgram on the base layer. They are
// only ever invoked by the committer.
const (
	finalizeTag        uint8 = 0
	closeDelegationTag uint8 = 1
)

// DelegationProgram is the base layer half of the delegation program. It
// writes committed state into delegated accounts and releases the
// bookkeeping accounts after undelegation.
type DelegationProgram struct {
	logger log.Logger
}

// NewDelegationProgram returns the base layer delegation program.
func NewDelegationProgram(logger log.Logger) *DelegationProgram {
	return &DelegationProgram{logger: logger}
}

// NewFinalizeInstruction writes data into pda. When undelegate is set the
// buffer receives the same data so the owner program can restore it.
func NewFinalizeInstruction(pda, buffer, metadata types.Pubkey, data []byte, undelegate bool) types.Instruction {
	w := codec.NewWriter(1 + 4 + len(data) + 1)
	w.WriteU8(finalizeTag)
	w.WriteBytes(data)
	w.WriteBool(undelegate)
	return types.Instruction{
		ProgramID: types.DelegationProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: pda, IsWritable: true},
			{Pubkey: buffer, IsWritable: true},
			{Pubkey: metadata, IsWritable: true},
		},
		Data: w.Bytes(),
	}
}

// NewCloseDelegationInstruction drains record and metadata into payer.
func NewCloseDelegationInstruction(pda, record, metadata, payer types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.DelegationProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: pda},
			{Pubkey: record, IsWritable: true},
			{Pubkey: metadata, IsWritable: true},
			{Pubkey: payer, IsWritable: true},
		},
		Data: []byte{closeDelegationTag},
	}
}

// Process implements runtime.Program.
func (p *DelegationProgram) Process(ctx context.Context, program types.Pubkey, accounts []*types.Account, data []byte) error {
	if len(data) == 0 {
		return types.ErrInvalidInstructionData
	}
	r := codec.NewReader(data[1:])
	switch data[0] {
	case finalizeTag:
		state, err := r.ReadBytes()
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidInstructionData, err)
		}
		undelegate, err := r.ReadBool()
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidInstructionData, err)
		}
		if err := r.Finish(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidInstructionData, err)
		}
		return p.finalize(accounts, state, undelegate)
	case closeDelegationTag:
		return p.closeDelegation(accounts)
	default:
		return fmt.Errorf("%w: unknown delegation instruction %d", types.ErrInvalidInstructionData, data[0])
	}
}

func (p *DelegationProgram) finalize(accounts []*types.Account, state []byte, undelegate bool) error {
	it := types.NewAccountIter(accounts)
	pda, err := it.Next()
	if err != nil {
		return err
	}
	buffer, err := it.Next()
	if err != nil {
		return err
	}
	metaAcc, err := it.Next()
	if err != nil {
		return err
	}
	if !pda.IsOwnedBy(types.DelegationProgramID) {
		return fmt.Errorf("%w: %s", types.ErrAccountNotDelegated, pda.Key)
	}
	var meta DelegationMetadata
	if err := meta.UnmarshalBinary(metaAcc.Data); err != nil {
		return err
	}
	if len(state) != len(pda.Data) {
		return fmt.Errorf("%w: committed %d bytes into %d byte account", types.ErrInvalidAccountData, len(state), len(pda.Data))
	}

	copy(pda.Data, state)
	meta.LastCommitNonce++
	if undelegate {
		if len(buffer.Data) != len(state) {
			return fmt.Errorf("%w: buffer size %d", types.ErrInvalidAccountData, len(buffer.Data))
		}
		copy(buffer.Data, state)
		meta.Undelegatable = true
	}
	bz, err := meta.MarshalBinary()
	if err != nil {
		return err
	}
	if len(bz) != len(metaAcc.Data) {
		return fmt.Errorf("%w: metadata size changed", types.ErrInvalidAccountData)
	}
	copy(metaAcc.Data, bz)
	p.logger.Debug("finalized commit", "pda", pda.Key, "nonce", meta.LastCommitNonce, "undelegate", undelegate)
	return nil
}

func (p *DelegationProgram) closeDelegation(accounts []*types.Account) error {
	it := types.NewAccountIter(accounts)
	pda, err := it.Next()
	if err != nil {
		return err
	}
	record, err := it.Next()
	if err != nil {
		return err
	}
	metadata, err := it.Next()
	if err != nil {
		return err
	}
	payer, err := it.Next()
	if err != nil {
		return err
	}
	if pda.IsOwnedBy(types.DelegationProgramID) {
		return fmt.Errorf("%w: %s is still delegated", types.ErrInvalidArgument, pda.Key)
	}
	var meta DelegationMetadata
	if err := meta.UnmarshalBinary(metadata.Data); err != nil {
		return err
	}
	if meta.RentPayer != payer.Key {
		return fmt.Errorf("%w: rent payer is %s", types.ErrInvalidArgument, meta.RentPayer)
	}
	system.Close(record, payer)
	system.Close(metadata, payer)
	p.logger.Debug("closed delegation", "pda", pda.Key, "payer", payer.Key)
	return nil
}
