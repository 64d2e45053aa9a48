package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/ephemeral-counter/codec"
)

// AccountMeta describes one positional account of an instruction.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID Pubkey        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// Signature binds an actor to a transaction message.
type Signature struct {
	PubKey    Pubkey `json:"pubkey"`
	Signature []byte `json:"signature"`
}

// Transaction is an instruction together with the signatures of its signers.
type Transaction struct {
	Instruction Instruction `json:"instruction"`
	Signatures  []Signature `json:"signatures"`
}

// ErrSignerNotInInstruction is returned when signing with a key the
// instruction does not reference as a signer.
var ErrSignerNotInInstruction = errors.New("key is not a signer of the instruction")

// Message returns the bytes covered by signatures.
func (tx *Transaction) Message() []byte {
	ix := &tx.Instruction
	w := codec.NewWriter(PubkeySize + len(ix.Accounts)*(PubkeySize+2) + len(ix.Data) + 8)
	w.WriteFixed(ix.ProgramID[:])
	w.WriteU32(uint32(len(ix.Accounts)))
	for _, m := range ix.Accounts {
		w.WriteFixed(m.Pubkey[:])
		w.WriteBool(m.IsSigner)
		w.WriteBool(m.IsWritable)
	}
	w.WriteBytes(ix.Data)
	return w.Bytes()
}

// Sign adds a signature from priv. The key must be a signer of the instruction.
func (tx *Transaction) Sign(priv ed25519.PrivKey) error {
	pub, err := PubkeyFromBytes(priv.PubKey().Bytes())
	if err != nil {
		return err
	}
	if !tx.Instruction.RequiresSignature(pub) {
		return fmt.Errorf("%w: %s", ErrSignerNotInInstruction, pub)
	}
	sig, err := priv.Sign(tx.Message())
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, Signature{PubKey: pub, Signature: sig})
	return nil
}

// RequiresSignature reports whether key is listed as a signer.
func (ix *Instruction) RequiresSignature(key Pubkey) bool {
	for _, m := range ix.Accounts {
		if m.IsSigner && m.Pubkey == key {
			return true
		}
	}
	return false
}

// PubkeyOf returns the public key of an ed25519 private key.
func PubkeyOf(priv ed25519.PrivKey) Pubkey {
	var pk Pubkey
	copy(pk[:], priv.PubKey().Bytes())
	return pk
}
