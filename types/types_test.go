package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

func TestWellKnownPubkeys(t *testing.T) {
	assert := assert.New(t)

	assert.True(SystemProgramID.IsZero())
	assert.Equal("11111111111111111111111111111111", SystemProgramID.String())
	assert.Equal("DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh", DelegationProgramID.String())
	assert.NotEqual(MagicProgramID, MagicContextID)
}

func TestPubkeyText(t *testing.T) {
	require := require.New(t)

	pk := PubkeyOf(ed25519.GenPrivKey())
	text, err := pk.MarshalText()
	require.NoError(err)

	var out Pubkey
	require.NoError(out.UnmarshalText(text))
	require.Equal(pk, out)

	_, err = PubkeyFromBase58("0OIl")
	require.Error(err)
	_, err = PubkeyFromBytes([]byte{1, 2})
	require.Error(err)
}

func TestAccountIter(t *testing.T) {
	assert := assert.New(t)

	a, b := NewAccount(Pubkey{1}), NewAccount(Pubkey{2})
	it := NewAccountIter([]*Account{a, b})

	got, err := it.Next()
	assert.NoError(err)
	assert.Same(a, got)
	got, err = it.Next()
	assert.NoError(err)
	assert.Same(b, got)
	_, err = it.Next()
	assert.ErrorIs(err, ErrNotEnoughAccountKeys)
}

func TestTransactionSign(t *testing.T) {
	require := require.New(t)

	priv := ed25519.GenPrivKey()
	signer := PubkeyOf(priv)
	tx := &Transaction{Instruction: Instruction{
		ProgramID: Pubkey{9},
		Accounts:  []AccountMeta{{Pubkey: signer, IsSigner: true, IsWritable: true}},
		Data:      []byte{4, 0, 0, 0, 0, 0, 0, 0},
	}}
	require.NoError(tx.Sign(priv))
	require.Len(tx.Signatures, 1)
	require.True(priv.PubKey().VerifySignature(tx.Message(), tx.Signatures[0].Signature))

	err := tx.Sign(ed25519.GenPrivKey())
	require.ErrorIs(err, ErrSignerNotInInstruction)
}

func TestProgramErrorText(t *testing.T) {
	assert.Equal(t, "missing required signature", ErrMissingRequiredSignature.Error())
	assert.Equal(t, "unknown program error", ProgramError(999).Error())
}
