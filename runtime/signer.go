package runtime

import (
	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/ephemeral-counter/types"
)

// SignatureVerifier decides which actors authorized a transaction.
type SignatureVerifier interface {
	// Signers returns the keys with a valid signature over tx.
	Signers(tx *types.Transaction) map[types.Pubkey]bool
}

// Ed25519Verifier checks ed25519 signatures over the transaction message.
type Ed25519Verifier struct{}

var _ SignatureVerifier = Ed25519Verifier{}

// Signers implements SignatureVerifier.
func (Ed25519Verifier) Signers(tx *types.Transaction) map[types.Pubkey]bool {
	msg := tx.Message()
	out := make(map[types.Pubkey]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if ed25519.PubKey(sig.PubKey.Bytes()).VerifySignature(msg, sig.Signature) {
			out[sig.PubKey] = true
		}
	}
	return out
}
