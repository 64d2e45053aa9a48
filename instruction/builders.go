package instruction

import (
	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/types"
)

func signer(pk types.Pubkey) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: true}
}

func writable(pk types.Pubkey) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk, IsWritable: true}
}

func readonly(pk types.Pubkey) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk}
}

func counterOf(program, owner types.Pubkey) (types.Pubkey, error) {
	pda, _, err := address.CounterAddress(owner, program)
	return pda, err
}

// NewInitializeCounter builds InitializeCounter for the counter of owner.
func NewInitializeCounter(program, owner types.Pubkey) (types.Instruction, error) {
	pda, err := counterOf(program, owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: program,
		Accounts:  []types.AccountMeta{signer(owner), writable(pda), readonly(types.SystemProgramID)},
		Data:      Encode(InitializeCounter{}),
	}, nil
}

// NewIncreaseCounter builds IncreaseCounter for the counter of owner.
func NewIncreaseCounter(program, owner types.Pubkey, by uint64) (types.Instruction, error) {
	pda, err := counterOf(program, owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: program,
		Accounts:  []types.AccountMeta{signer(owner), writable(pda), readonly(types.SystemProgramID)},
		Data:      Encode(IncreaseCounter{IncreaseBy: by}),
	}, nil
}

// NewDelegate builds Delegate for the counter of owner.
func NewDelegate(program, owner types.Pubkey) (types.Instruction, error) {
	pda, err := counterOf(program, owner)
	if err != nil {
		return types.Instruction{}, err
	}
	d, err := address.DeriveDelegationAccounts(pda, program)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			signer(owner),
			writable(pda),
			readonly(program),
			writable(d.Buffer),
			writable(d.Record),
			writable(d.Metadata),
			readonly(types.DelegationProgramID),
			readonly(types.SystemProgramID),
		},
		Data: Encode(Delegate{}),
	}, nil
}

func newCommit(program, owner types.Pubkey, cmd Command) (types.Instruction, error) {
	pda, err := counterOf(program, owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			signer(owner),
			writable(pda),
			readonly(types.MagicProgramID),
			writable(types.MagicContextID),
		},
		Data: Encode(cmd),
	}, nil
}

// NewCommit builds Commit for the counter of owner.
func NewCommit(program, owner types.Pubkey) (types.Instruction, error) {
	return newCommit(program, owner, Commit{})
}

// NewCommitAndUndelegate builds CommitAndUndelegate for the counter of owner.
func NewCommitAndUndelegate(program, owner types.Pubkey) (types.Instruction, error) {
	return newCommit(program, owner, CommitAndUndelegate{})
}

// NewUndelegate builds the callback the delegation program sends to program
// when it returns pda. payer funds the restored account.
func NewUndelegate(program, pda, payer types.Pubkey, seeds [][]byte) (types.Instruction, error) {
	d, err := address.DeriveDelegationAccounts(pda, program)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			writable(pda),
			{Pubkey: d.Buffer, IsSigner: true, IsWritable: true},
			writable(payer),
			readonly(types.SystemProgramID),
		},
		Data: Encode(Undelegate{PDASeeds: seeds}),
	}, nil
}
