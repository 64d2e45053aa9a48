package runtime

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/ephemeral-counter/address"
	bridgemock "github.com/rollkit/ephemeral-counter/bridge/mock"
	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/ledger"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/processor"
	"github.com/rollkit/ephemeral-counter/store"
	"github.com/rollkit/ephemeral-counter/system"
	"github.com/rollkit/ephemeral-counter/types"
)

var (
	counterProgram = types.Pubkey{0x77, 0x01}
	testProgram    = types.Pubkey{0x77, 0x02}
)

const payerBalance = 1_000_000_000

type programFunc func(ctx context.Context, program types.Pubkey, accounts []*types.Account, data []byte) error

func (f programFunc) Process(ctx context.Context, program types.Pubkey, accounts []*types.Account, data []byte) error {
	return f(ctx, program, accounts, data)
}

func newBaseExecutor(t *testing.T) (*Executor, ledger.Ledger) {
	t.Helper()
	l := ledger.NewKVLedger(store.NewInMemoryKVStore())
	e := NewExecutor(BaseLayer, l, Ed25519Verifier{}, log.NopLogger{})
	e.Register(counterProgram, processor.NewProcessor(&bridgemock.MockBridge{}, log.NopLogger{}))
	return e, l
}

func fundedKey(t *testing.T, l ledger.Ledger) (ed25519.PrivKey, types.Pubkey) {
	t.Helper()
	priv := ed25519.GenPrivKey()
	pub := types.PubkeyOf(priv)
	require.NoError(t, l.Apply(context.Background(), []*types.Account{{Key: pub, Lamports: payerBalance}}))
	return priv, pub
}

func signed(t *testing.T, ix types.Instruction, keys ...ed25519.PrivKey) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{Instruction: ix}
	for _, k := range keys {
		require.NoError(t, tx.Sign(k))
	}
	return tx
}

func TestExecuteCounterLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	priv, owner := fundedKey(t, l)

	ix, err := instruction.NewInitializeCounter(counterProgram, owner)
	require.NoError(err)
	require.NoError(e.Execute(ctx, signed(t, ix, priv)))

	ix, err = instruction.NewIncreaseCounter(counterProgram, owner, 7)
	require.NoError(err)
	require.NoError(e.Execute(ctx, signed(t, ix, priv)))

	pda, _, err := address.CounterAddress(owner, counterProgram)
	require.NoError(err)
	acc, err := l.Get(ctx, pda)
	require.NoError(err)
	c, err := types.ReadCounter(acc)
	require.NoError(err)
	require.Equal(uint64(7), c.Count)
	require.Equal(counterProgram, acc.Owner)

	payer, err := l.Get(ctx, owner)
	require.NoError(err)
	require.Equal(uint64(payerBalance)-system.DefaultRent().MinimumBalance(types.CounterSize), payer.Lamports)
}

func TestExecuteRequiresSignatures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	_, owner := fundedKey(t, l)

	ix, err := instruction.NewInitializeCounter(counterProgram, owner)
	require.NoError(t, err)

	// unsigned
	err = e.Execute(ctx, &types.Transaction{Instruction: ix})
	assert.ErrorIs(err, types.ErrMissingRequiredSignature)

	// signed by the wrong key
	tx := &types.Transaction{Instruction: ix}
	other := ed25519.GenPrivKey()
	sig, err := other.Sign(tx.Message())
	require.NoError(t, err)
	tx.Signatures = []types.Signature{{PubKey: owner, Signature: sig}}
	assert.ErrorIs(e.Execute(ctx, tx), types.ErrMissingRequiredSignature)

	pda, _, err := address.CounterAddress(owner, counterProgram)
	require.NoError(t, err)
	_, err = l.Get(ctx, pda)
	assert.ErrorIs(err, ledger.ErrAccountNotFound)
}

func TestFailedInstructionPersistsNothing(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	priv, owner := fundedKey(t, l)

	target := types.Pubkey{9}
	hookRan := false
	e.Register(testProgram, programFunc(func(ctx context.Context, _ types.Pubkey, accounts []*types.Account, _ []byte) error {
		require.NoError(system.Transfer(accounts[0], accounts[1], 10))
		require.NoError(AfterCommit(ctx, func(context.Context) error {
			hookRan = true
			return nil
		}))
		return types.ErrInvalidArgument
	}))

	ix := types.Instruction{
		ProgramID: testProgram,
		Accounts: []types.AccountMeta{
			{Pubkey: owner, IsSigner: true, IsWritable: true},
			{Pubkey: target, IsWritable: true},
		},
	}
	assert.ErrorIs(e.Execute(ctx, signed(t, ix, priv)), types.ErrInvalidArgument)
	assert.False(hookRan)

	payer, err := l.Get(ctx, owner)
	require.NoError(err)
	assert.Equal(uint64(payerBalance), payer.Lamports)
	_, err = l.Get(ctx, target)
	assert.ErrorIs(err, ledger.ErrAccountNotFound)
}

func TestVerifyChanges(t *testing.T) {
	foreign := types.Pubkey{0x55}
	cases := []struct {
		name   string
		meta   []types.AccountMeta
		mutate func(accounts []*types.Account)
		err    error
	}{
		{
			name: "read-only account changed",
			meta: []types.AccountMeta{{Pubkey: types.Pubkey{1}}},
			mutate: func(a []*types.Account) {
				a[0].Data = []byte{1}
			},
			err: types.ErrExternalAccountDataModified,
		},
		{
			name: "foreign account data changed",
			meta: []types.AccountMeta{{Pubkey: types.Pubkey{2}, IsWritable: true}},
			mutate: func(a []*types.Account) {
				a[0].Data[0] = 9
			},
			err: types.ErrExternalAccountDataModified,
		},
		{
			name: "lamports minted",
			meta: []types.AccountMeta{{Pubkey: types.Pubkey{3}, IsWritable: true}},
			mutate: func(a []*types.Account) {
				a[0].Lamports = 100
			},
			err: types.ErrUnbalancedInstruction,
		},
		{
			name: "unsigned system debit",
			meta: []types.AccountMeta{{Pubkey: types.Pubkey{4}, IsWritable: true}, {Pubkey: types.Pubkey{3}, IsWritable: true}},
			mutate: func(a []*types.Account) {
				a[0].Lamports -= 5
				a[1].Lamports += 5
			},
			err: types.ErrMissingRequiredSignature,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			ctx := context.Background()
			e, l := newBaseExecutor(t)
			require.NoError(t, l.Apply(ctx, []*types.Account{
				{Key: types.Pubkey{2}, Owner: foreign, Lamports: 10, Data: []byte{1}},
				{Key: types.Pubkey{4}, Lamports: 10},
			}))
			e.Register(testProgram, programFunc(func(_ context.Context, _ types.Pubkey, accounts []*types.Account, _ []byte) error {
				c.mutate(accounts)
				return nil
			}))
			err := e.Invoke(ctx, types.MagicProgramID, types.Instruction{ProgramID: testProgram, Accounts: c.meta})
			assert.ErrorIs(t, err, c.err)
		})
	}
}

func TestRollupOnlyWritesDelegatedAccounts(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	rollup := ledger.NewInMemoryDatastoreLedger()
	e := NewExecutor(RollupLayer, rollup, Ed25519Verifier{}, log.NopLogger{})
	e.Register(counterProgram, processor.NewProcessor(&bridgemock.MockBridge{}, log.NopLogger{}))
	priv, owner := fundedKey(t, rollup)

	ix, err := instruction.NewInitializeCounter(counterProgram, owner)
	require.NoError(err)
	assert.ErrorIs(e.Execute(ctx, signed(t, ix, priv)), types.ErrAccountNotDelegated)

	// a counter cloned into the rollup is writable there
	pda, _, err := address.CounterAddress(owner, counterProgram)
	require.NoError(err)
	require.NoError(rollup.Apply(ctx, []*types.Account{{Key: pda, Owner: counterProgram, Lamports: 1, Data: make([]byte, types.CounterSize)}}))

	ix, err = instruction.NewIncreaseCounter(counterProgram, owner, 3)
	require.NoError(err)
	require.NoError(e.Execute(ctx, signed(t, ix, priv)))
	acc, err := rollup.Get(ctx, pda)
	require.NoError(err)
	c, err := types.ReadCounter(acc)
	require.NoError(err)
	assert.Equal(uint64(3), c.Count)
}

func TestAfterCommitSeesPersistedState(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	priv, owner := fundedKey(t, l)
	target := types.Pubkey{9}

	var seen uint64
	e.Register(testProgram, programFunc(func(ctx context.Context, _ types.Pubkey, accounts []*types.Account, _ []byte) error {
		if err := system.Transfer(accounts[0], accounts[1], 10); err != nil {
			return err
		}
		return AfterCommit(ctx, func(ctx context.Context) error {
			a, err := l.Get(ctx, target)
			if err != nil {
				return err
			}
			seen = a.Lamports
			return nil
		})
	}))

	ix := types.Instruction{
		ProgramID: testProgram,
		Accounts: []types.AccountMeta{
			{Pubkey: owner, IsSigner: true, IsWritable: true},
			{Pubkey: target, IsWritable: true},
		},
	}
	require.NoError(e.Execute(ctx, signed(t, ix, priv)))
	require.Equal(uint64(10), seen)
}

func TestFailedHookRevertsWrites(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	priv, owner := fundedKey(t, l)
	target := types.Pubkey{9}

	var applied, undone bool
	e.Register(testProgram, programFunc(func(ctx context.Context, _ types.Pubkey, accounts []*types.Account, _ []byte) error {
		if err := system.Transfer(accounts[0], accounts[1], 10); err != nil {
			return err
		}
		if err := AfterCommitWithUndo(ctx, func(context.Context) error {
			applied = true
			return nil
		}, func(context.Context) error {
			undone = true
			return nil
		}); err != nil {
			return err
		}
		return AfterCommit(ctx, func(context.Context) error {
			return types.ErrInvalidAccountData
		})
	}))

	ix := types.Instruction{
		ProgramID: testProgram,
		Accounts: []types.AccountMeta{
			{Pubkey: owner, IsSigner: true, IsWritable: true},
			{Pubkey: target, IsWritable: true},
		},
	}
	assert.ErrorIs(e.Execute(ctx, signed(t, ix, priv)), types.ErrInvalidAccountData)
	assert.True(applied)
	assert.True(undone)

	payer, err := l.Get(ctx, owner)
	require.NoError(err)
	assert.Equal(uint64(payerBalance), payer.Lamports)
	_, err = l.Get(ctx, target)
	assert.ErrorIs(err, ledger.ErrAccountNotFound)
}

func TestAfterCommitOutsideTransaction(t *testing.T) {
	ran := false
	require.NoError(t, AfterCommit(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestInvokeGrantsProgramSignatures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _ := newBaseExecutor(t)

	var signer bool
	e.Register(testProgram, programFunc(func(_ context.Context, _ types.Pubkey, accounts []*types.Account, _ []byte) error {
		signer = accounts[0].IsSigner
		return nil
	}))
	buffer := types.Pubkey{8}
	ix := types.Instruction{
		ProgramID: testProgram,
		Accounts:  []types.AccountMeta{{Pubkey: buffer, IsSigner: true, IsWritable: true}},
	}

	assert.NoError(e.Invoke(ctx, types.DelegationProgramID, ix, buffer))
	assert.True(signer)

	assert.NoError(e.Invoke(ctx, types.DelegationProgramID, ix))
	assert.False(signer)

	assert.ErrorIs(e.Invoke(ctx, types.DelegationProgramID, types.Instruction{ProgramID: types.Pubkey{0xee}}), ErrUnknownProgram)
}

func TestMint(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e, l := newBaseExecutor(t)
	key := types.Pubkey{3}

	a, err := e.Mint(ctx, key, 10)
	require.NoError(err)
	require.Equal(uint64(10), a.Lamports)
	a, err = e.Mint(ctx, key, 5)
	require.NoError(err)
	require.Equal(uint64(15), a.Lamports)

	stored, err := l.Get(ctx, key)
	require.NoError(err)
	require.Equal(uint64(15), stored.Lamports)

	_, err = e.Mint(ctx, key, math.MaxUint64)
	require.ErrorIs(err, types.ErrArithmeticOverflow)
}

func TestParseLayer(t *testing.T) {
	for _, l := range []Layer{BaseLayer, RollupLayer} {
		got, err := ParseLayer(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseLayer("mainnet")
	assert.ErrorIs(t, err, ErrUnknownLayer)
}
