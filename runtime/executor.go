// Package runtime executes transactions against a ledger with all-or-nothing
// semantics.
package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/rollkit/ephemeral-counter/ledger"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/types"
)

// Program handles instructions addressed to one program id.
type Program interface {
	Process(ctx context.Context, program types.Pubkey, accounts []*types.Account, data []byte) error
}

// Layer tells an Executor which ownership rules apply.
type Layer int

const (
	// BaseLayer is the durable, authoritative ledger.
	BaseLayer Layer = iota
	// RollupLayer only accepts writes to accounts delegated to it.
	RollupLayer
)

func (l Layer) String() string {
	switch l {
	case BaseLayer:
		return "base"
	case RollupLayer:
		return "rollup"
	default:
		return "unknown"
	}
}

// ErrUnknownLayer is returned by ParseLayer.
var ErrUnknownLayer = errors.New("unknown layer")

// ParseLayer parses the String form of a Layer.
func ParseLayer(s string) (Layer, error) {
	switch s {
	case "base":
		return BaseLayer, nil
	case "rollup":
		return RollupLayer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, s)
	}
}

// ErrUnknownProgram is returned for an instruction addressed to a program the
// executor does not host.
var ErrUnknownProgram = errors.New("unknown program")

// builtin programs may act on accounts passed to them by the invoked program.
var builtinPrograms = map[types.Pubkey]bool{
	types.SystemProgramID:     true,
	types.DelegationProgramID: true,
	types.MagicProgramID:      true,
}

// Executor runs one transaction at a time against a ledger.
type Executor struct {
	layer    Layer
	ledger   ledger.Ledger
	verifier SignatureVerifier
	logger   log.Logger

	mtx      sync.Mutex
	programs map[types.Pubkey]Program
}

// NewExecutor returns an Executor for layer backed by l.
func NewExecutor(layer Layer, l ledger.Ledger, verifier SignatureVerifier, logger log.Logger) *Executor {
	return &Executor{
		layer:    layer,
		ledger:   l,
		verifier: verifier,
		logger:   logger,
		programs: make(map[types.Pubkey]Program),
	}
}

// Register hosts p under id.
func (e *Executor) Register(id types.Pubkey, p Program) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.programs[id] = p
}

// Layer returns the layer this executor serves.
func (e *Executor) Layer() Layer {
	return e.layer
}

// Ledger returns the ledger this executor writes to.
func (e *Executor) Ledger() ledger.Ledger {
	return e.ledger
}

// Execute verifies tx signatures and runs its instruction.
func (e *Executor) Execute(ctx context.Context, tx *types.Transaction) error {
	signed := e.verifier.Signers(tx)
	for _, m := range tx.Instruction.Accounts {
		if m.IsSigner && !signed[m.Pubkey] {
			return fmt.Errorf("%w: no valid signature from %s", types.ErrMissingRequiredSignature, m.Pubkey)
		}
	}
	return e.run(ctx, tx.Instruction, signed, nil)
}

// Invoke runs ix on behalf of caller, a builtin program. Accounts listed in
// programSigned are treated as signed by caller.
func (e *Executor) Invoke(ctx context.Context, caller types.Pubkey, ix types.Instruction, programSigned ...types.Pubkey) error {
	signed := make(map[types.Pubkey]bool, len(programSigned))
	for _, k := range programSigned {
		signed[k] = true
	}
	return e.run(ctx, ix, signed, []types.Pubkey{caller})
}

// Mint credits lamports to key outside of any program. It serializes with
// transactions.
func (e *Executor) Mint(ctx context.Context, key types.Pubkey, lamports uint64) (*types.Account, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	a, err := ledger.Load(ctx, e.ledger, key)
	if err != nil {
		return nil, err
	}
	if a.Lamports+lamports < a.Lamports {
		return nil, fmt.Errorf("%w: minting %d into %s", types.ErrArithmeticOverflow, lamports, key)
	}
	a.Lamports += lamports
	if err := e.ledger.Apply(ctx, []*types.Account{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Executor) run(ctx context.Context, ix types.Instruction, signed map[types.Pubkey]bool, callers []types.Pubkey) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	program, ok := e.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}

	accounts, pre, err := e.loadAccounts(ctx, ix, signed)
	if err != nil {
		return err
	}

	txCtx, fx := withEffects(ctx)
	if err := program.Process(txCtx, ix.ProgramID, accounts, ix.Data); err != nil {
		e.logger.Debug("instruction failed", "layer", e.layer, "program", ix.ProgramID, "error", err)
		return err
	}

	changed, err := e.verifyChanges(ix, accounts, pre, callers)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		if err := e.ledger.Apply(ctx, changed); err != nil {
			return fmt.Errorf("persist accounts: %w", err)
		}
	}
	if err := fx.run(ctx); err != nil {
		e.logger.Error("post-commit hook failed, reverting accounts", "layer", e.layer, "program", ix.ProgramID, "error", err)
		if rerr := e.revert(ctx, changed, pre); rerr != nil {
			return multierr.Append(err, fmt.Errorf("revert accounts: %w", rerr))
		}
		return err
	}
	return nil
}

// revert restores changed accounts to their state before the transaction.
// Accounts the transaction created are blank in pre and get removed.
func (e *Executor) revert(ctx context.Context, changed []*types.Account, pre map[types.Pubkey]preState) error {
	if len(changed) == 0 {
		return nil
	}
	restore := make([]*types.Account, 0, len(changed))
	for _, a := range changed {
		restore = append(restore, pre[a.Key].account)
	}
	return e.ledger.Apply(ctx, restore)
}

type preState struct {
	account *types.Account
	stored  bool
}

func (e *Executor) loadAccounts(ctx context.Context, ix types.Instruction, signed map[types.Pubkey]bool) ([]*types.Account, map[types.Pubkey]preState, error) {
	accounts := make([]*types.Account, len(ix.Accounts))
	byKey := make(map[types.Pubkey]*types.Account, len(ix.Accounts))
	pre := make(map[types.Pubkey]preState, len(ix.Accounts))

	for i, m := range ix.Accounts {
		if a, ok := byKey[m.Pubkey]; ok {
			a.IsWritable = a.IsWritable || m.IsWritable
			accounts[i] = a
			continue
		}
		a, err := e.ledger.Get(ctx, m.Pubkey)
		stored := err == nil
		if errors.Is(err, ledger.ErrAccountNotFound) {
			a, err = types.NewAccount(m.Pubkey), nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load account %s: %w", m.Pubkey, err)
		}
		a.IsSigner = m.IsSigner && signed[m.Pubkey]
		a.IsWritable = m.IsWritable
		pre[m.Pubkey] = preState{account: a.Copy(), stored: stored}
		byKey[m.Pubkey] = a
		accounts[i] = a
	}
	return accounts, pre, nil
}

// verifyChanges enforces the ownership rules and returns the accounts to persist.
func (e *Executor) verifyChanges(ix types.Instruction, accounts []*types.Account, pre map[types.Pubkey]preState, callers []types.Pubkey) ([]*types.Account, error) {
	actors := map[types.Pubkey]bool{ix.ProgramID: true}
	for _, c := range callers {
		actors[c] = true
	}
	for _, a := range accounts {
		if builtinPrograms[a.Key] {
			actors[a.Key] = true
		}
	}

	var (
		changed      []*types.Account
		seen         = make(map[types.Pubkey]bool, len(accounts))
		before, post uint64
	)
	for _, a := range accounts {
		if seen[a.Key] {
			continue
		}
		seen[a.Key] = true
		p := pre[a.Key]
		before += p.account.Lamports
		post += a.Lamports
		if p.account.SameState(a) {
			continue
		}

		if !a.IsWritable {
			return nil, fmt.Errorf("%w: read-only account %s changed", types.ErrExternalAccountDataModified, a.Key)
		}
		// a blank system account may be claimed by any acting program
		blank := p.account.Owner == types.SystemProgramID && len(p.account.Data) == 0
		if !blank && !actors[p.account.Owner] {
			if p.account.Owner != a.Owner || !bytes.Equal(p.account.Data, a.Data) || a.Lamports < p.account.Lamports {
				return nil, fmt.Errorf("%w: %s is owned by %s", types.ErrExternalAccountDataModified, a.Key, p.account.Owner)
			}
		}
		if a.Lamports < p.account.Lamports && p.account.Owner == types.SystemProgramID && !a.IsSigner {
			return nil, fmt.Errorf("%w: debit from %s", types.ErrMissingRequiredSignature, a.Key)
		}
		if e.layer == RollupLayer && !p.stored {
			return nil, fmt.Errorf("%w: %s", types.ErrAccountNotDelegated, a.Key)
		}
		changed = append(changed, a)
	}
	if before != post {
		return nil, fmt.Errorf("%w: %d before, %d after", types.ErrUnbalancedInstruction, before, post)
	}
	return changed, nil
}
