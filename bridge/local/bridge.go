// Package local is an in-process stand-in for the delegation and magic
// programs. It keeps the delegation bookkeeping on the base layer ledger,
// clones delegated accounts into the rollup ledger and replays commits back
// through a persistent queue drained by the Committer.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	"go.uber.org/multierr"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/bridge"
	"github.com/rollkit/ephemeral-counter/ledger"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/system"
	"github.com/rollkit/ephemeral-counter/types"
)

// Datastore prefixes used by the bridge inside the rollup datastore.
const (
	CommitQueuePrefix = "commits"
	SchedulePrefix    = "delegations"
)

// Bridge implements bridge.Bridge against a base and a rollup ledger.
type Bridge struct {
	base     ledger.Ledger
	rollup   ledger.Ledger
	queue    *CommitQueue
	schedule *Schedule

	// serializes rollup snapshots into the queue
	mtx sync.Mutex

	rent      system.Rent
	logger    log.Logger
	metrics   *Metrics
	now       func() time.Time
	queueSize int
}

var _ bridge.Bridge = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithRent overrides the rent used to fund bookkeeping accounts.
func WithRent(r system.Rent) Option {
	return func(b *Bridge) { b.rent = r }
}

// WithCommitQueueSize bounds the number of pending commits.
func WithCommitQueueSize(n int) Option {
	return func(b *Bridge) { b.queueSize = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge returns a Bridge. Queue and schedule state is kept in db, which
// normally is the rollup datastore.
func NewBridge(base, rollup ledger.Ledger, db ds.Batching, logger log.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		base:     base,
		rollup:   rollup,
		schedule: NewSchedule(db, SchedulePrefix),
		rent:     system.DefaultRent(),
		logger:   logger,
		metrics:  NopMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = NewCommitQueue(db, CommitQueuePrefix, b.queueSize, logger)
	return b
}

// Load restores queued commits after a restart.
func (b *Bridge) Load(ctx context.Context) error {
	if err := b.queue.Load(ctx); err != nil {
		return err
	}
	b.metrics.PendingCommits.Set(float64(b.queue.Len()))
	return nil
}

// Pending returns the commits not yet written to the base layer.
func (b *Bridge) Pending() []CommitJob {
	return b.queue.Pending()
}

// Delegated returns the rollup delegation of account, if any.
func (b *Bridge) Delegated(ctx context.Context, account types.Pubkey) (*Delegation, error) {
	d, err := b.schedule.Get(ctx, account)
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrAccountNotDelegated, account)
	}
	return d, err
}

// Delegate implements bridge.Bridge. It runs on the base layer.
func (b *Bridge) Delegate(ctx context.Context, accs bridge.DelegateAccounts, seeds [][]byte, cfg bridge.DelegateConfig) error {
	if !accs.Payer.IsSigner {
		return fmt.Errorf("%w: payer %s", types.ErrMissingRequiredSignature, accs.Payer.Key)
	}
	if accs.DelegationProgram.Key != types.DelegationProgramID || accs.SystemProgram.Key != types.SystemProgramID {
		return fmt.Errorf("%w: unexpected program accounts", types.ErrInvalidArgument)
	}

	owner := accs.OwnerProgram.Key
	pda := accs.PDA
	if err := verifySeeds(seeds, owner, pda.Key); err != nil {
		return err
	}
	if !pda.IsOwnedBy(owner) {
		return fmt.Errorf("%w: %s is owned by %s", types.ErrIllegalOwner, pda.Key, pda.Owner)
	}
	derived, err := address.DeriveDelegationAccounts(pda.Key, owner)
	if err != nil {
		return err
	}
	if accs.Buffer.Key != derived.Buffer || accs.DelegationRecord.Key != derived.Record || accs.DelegationMetadata.Key != derived.Metadata {
		return fmt.Errorf("%w: delegation accounts are not derived from %s", types.ErrInvalidArgument, pda.Key)
	}
	for _, a := range []*types.Account{accs.Buffer, accs.DelegationRecord, accs.DelegationMetadata} {
		if a.IsFunded() || len(a.Data) != 0 {
			return fmt.Errorf("%w: %s", types.ErrAccountAlreadyInUse, a.Key)
		}
	}

	now := b.now()
	record := DelegationRecord{
		Owner:             owner,
		DelegatedAtMs:     uint64(now.UnixMilli()),
		Lamports:          pda.Lamports,
		CommitFrequencyMs: cfg.CommitFrequencyMs(),
	}
	if cfg.Validator != nil {
		record.Authority = *cfg.Validator
	}
	recordData, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	meta := DelegationMetadata{RentPayer: accs.Payer.Key, Seeds: seeds}
	metaData, err := meta.MarshalBinary()
	if err != nil {
		return err
	}

	if err := b.fund(accs.Payer, accs.Buffer, append([]byte(nil), pda.Data...)); err != nil {
		return err
	}
	if err := b.fund(accs.Payer, accs.DelegationRecord, recordData); err != nil {
		return err
	}
	if err := b.fund(accs.Payer, accs.DelegationMetadata, metaData); err != nil {
		return err
	}

	clone := pda.Copy()
	clone.IsSigner, clone.IsWritable = false, false
	system.Assign(pda, types.DelegationProgramID)

	delegation := &Delegation{
		Account:         pda.Key,
		OwnerProgram:    owner,
		Payer:           accs.Payer.Key,
		CommitFrequency: cfg.CommitFrequency,
		LastCommit:      now,
	}
	return runtime.AfterCommitWithUndo(ctx, func(ctx context.Context) error {
		if err := b.rollup.Apply(ctx, []*types.Account{clone}); err != nil {
			return fmt.Errorf("clone %s into rollup: %w", clone.Key, err)
		}
		if err := b.schedule.Put(ctx, delegation); err != nil {
			return multierr.Append(err, b.rollup.Delete(ctx, clone.Key))
		}
		b.metrics.Delegations.Add(1)
		b.logger.Info("delegated account", "pda", clone.Key, "owner", owner, "commit_frequency", cfg.CommitFrequency)
		return nil
	}, func(ctx context.Context) error {
		return multierr.Append(b.schedule.Remove(ctx, clone.Key), b.rollup.Delete(ctx, clone.Key))
	})
}

// fund creates a bookkeeping account owned by the delegation program.
func (b *Bridge) fund(payer, a *types.Account, data []byte) error {
	if err := system.Transfer(payer, a, b.rent.MinimumBalance(len(data))); err != nil {
		return err
	}
	a.Data = data
	system.Assign(a, types.DelegationProgramID)
	return nil
}

// Commit implements bridge.Bridge. It runs on the rollup.
func (b *Bridge) Commit(ctx context.Context, req bridge.CommitRequest) error {
	req.Undelegate = false
	return b.scheduleCommit(ctx, req)
}

// CommitAndUndelegate implements bridge.Bridge. It runs on the rollup. Once
// scheduled the rollup copy is frozen until the committer drops it.
func (b *Bridge) CommitAndUndelegate(ctx context.Context, req bridge.CommitRequest) error {
	req.Undelegate = true
	return b.scheduleCommit(ctx, req)
}

func (b *Bridge) scheduleCommit(ctx context.Context, req bridge.CommitRequest) error {
	if req.MagicProgram.Key != types.MagicProgramID || req.MagicContext.Key != types.MagicContextID {
		return fmt.Errorf("%w: unexpected magic accounts", types.ErrInvalidArgument)
	}
	if !req.Payer.IsSigner {
		return fmt.Errorf("%w: payer %s", types.ErrMissingRequiredSignature, req.Payer.Key)
	}

	now := b.now()
	jobs := make([]*CommitJob, 0, len(req.Accounts))
	live := make([]*types.Account, 0, len(req.Accounts))
	frozen := make([]*types.Account, 0, len(req.Accounts))
	delegations := make([]*Delegation, 0, len(req.Accounts))
	for _, a := range req.Accounts {
		d, err := b.Delegated(ctx, a.Key)
		if err != nil {
			return err
		}
		if !a.IsOwnedBy(d.OwnerProgram) {
			return fmt.Errorf("%w: %s is being undelegated", types.ErrAccountNotDelegated, a.Key)
		}
		jobs = append(jobs, &CommitJob{
			Account:      a.Key,
			OwnerProgram: d.OwnerProgram,
			Payer:        d.Payer,
			Data:         append([]byte(nil), a.Data...),
			Undelegate:   req.Undelegate,
			ScheduledAt:  now,
		})
		l := a.Copy()
		l.IsSigner, l.IsWritable = false, false
		live = append(live, l)
		f := l.Copy()
		f.Owner = types.DelegationProgramID
		frozen = append(frozen, f)
		d.LastCommit = now
		delegations = append(delegations, d)
	}

	return runtime.AfterCommit(ctx, func(ctx context.Context) error {
		b.mtx.Lock()
		defer b.mtx.Unlock()
		if req.Undelegate {
			return b.enqueueUndelegation(ctx, jobs, live, frozen, delegations)
		}
		return b.enqueue(ctx, jobs, delegations, "commit")
	})
}

// enqueue queues jobs and resets their schedule. Callers hold b.mtx.
func (b *Bridge) enqueue(ctx context.Context, jobs []*CommitJob, delegations []*Delegation, kind string) error {
	if err := b.queue.PushAll(ctx, jobs); err != nil {
		return err
	}
	b.scheduled(jobs, kind)
	for _, d := range delegations {
		if err := b.schedule.Put(ctx, d); err != nil {
			b.logger.Error("failed to update commit schedule", "account", d.Account, "error", err)
		}
	}
	return nil
}

// enqueueUndelegation freezes the rollup copies, then queues jobs. Once the
// jobs are visible the accounts leave the schedule. Callers hold b.mtx.
func (b *Bridge) enqueueUndelegation(ctx context.Context, jobs []*CommitJob, live, frozen []*types.Account, delegations []*Delegation) error {
	if err := b.rollup.Apply(ctx, frozen); err != nil {
		return fmt.Errorf("freeze rollup accounts: %w", err)
	}
	if err := b.queue.PushAll(ctx, jobs); err != nil {
		return multierr.Append(err, b.rollup.Apply(ctx, live))
	}
	b.scheduled(jobs, "undelegate")
	for _, d := range delegations {
		if err := b.schedule.Remove(ctx, d.Account); err != nil {
			b.logger.Error("failed to remove account from commit schedule", "account", d.Account, "error", err)
		}
	}
	return nil
}

func (b *Bridge) scheduled(jobs []*CommitJob, kind string) {
	for _, job := range jobs {
		b.metrics.CommitsScheduled.With("kind", kind).Add(1)
		b.logger.Info("scheduled commit", "account", job.Account, "id", job.ID, "undelegate", job.Undelegate)
	}
	b.metrics.PendingCommits.Set(float64(b.queue.Len()))
}

// ScheduleDue enqueues automatic commits for delegations whose commit
// frequency elapsed. It returns the number of commits scheduled.
func (b *Bridge) ScheduleDue(ctx context.Context) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	now := b.now()
	due, err := b.schedule.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range due {
		a, err := b.rollup.Get(ctx, d.Account)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			b.logger.Error("delegated account missing from rollup", "account", d.Account)
			if err := b.schedule.Remove(ctx, d.Account); err != nil {
				return n, err
			}
			continue
		}
		if err != nil {
			return n, err
		}
		if !a.IsOwnedBy(d.OwnerProgram) {
			b.logger.Debug("skipping automatic commit of account being undelegated", "account", d.Account)
			continue
		}
		d.LastCommit = now
		job := &CommitJob{
			Account:      a.Key,
			OwnerProgram: d.OwnerProgram,
			Payer:        d.Payer,
			Data:         a.Data,
			ScheduledAt:  now,
		}
		if err := b.enqueue(ctx, []*CommitJob{job}, []*Delegation{d}, "auto"); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Undelegate implements bridge.Bridge. It runs on the base layer as the
// owner program's callback and must be signed by the delegation program
// through the buffer.
func (b *Bridge) Undelegate(ctx context.Context, req bridge.UndelegateRequest) error {
	if !req.Buffer.IsSigner {
		return fmt.Errorf("%w: buffer %s must be signed by the delegation program", types.ErrMissingRequiredSignature, req.Buffer.Key)
	}
	if err := verifySeeds(req.Seeds, req.OwnerProgram, req.PDA.Key); err != nil {
		return err
	}
	if !req.PDA.IsOwnedBy(types.DelegationProgramID) {
		return fmt.Errorf("%w: %s", types.ErrAccountNotDelegated, req.PDA.Key)
	}
	derived, err := address.DeriveDelegationAccounts(req.PDA.Key, req.OwnerProgram)
	if err != nil {
		return err
	}
	if req.Buffer.Key != derived.Buffer || !req.Buffer.IsOwnedBy(types.DelegationProgramID) {
		return fmt.Errorf("%w: buffer %s", types.ErrInvalidArgument, req.Buffer.Key)
	}
	if len(req.Buffer.Data) != len(req.PDA.Data) {
		return fmt.Errorf("%w: buffer holds %d bytes, account %d", types.ErrInvalidAccountData, len(req.Buffer.Data), len(req.PDA.Data))
	}

	record, meta, err := b.bookkeeping(ctx, derived)
	if err != nil {
		return err
	}
	if record.Owner != req.OwnerProgram {
		return fmt.Errorf("%w: delegated by %s", types.ErrIllegalOwner, record.Owner)
	}
	if !meta.Undelegatable {
		return fmt.Errorf("%w: undelegation of %s was not requested", types.ErrInvalidArgument, req.PDA.Key)
	}

	system.Assign(req.PDA, req.OwnerProgram)
	copy(req.PDA.Data, req.Buffer.Data)
	system.Close(req.Buffer, req.Payer)

	return runtime.AfterCommit(ctx, func(ctx context.Context) error {
		b.metrics.Undelegations.Add(1)
		b.logger.Info("undelegated account", "pda", req.PDA.Key, "owner", req.OwnerProgram)
		return nil
	})
}

func (b *Bridge) bookkeeping(ctx context.Context, derived address.DelegationAccounts) (*DelegationRecord, *DelegationMetadata, error) {
	recAcc, err := b.base.Get(ctx, derived.Record)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("%w: no delegation record", types.ErrAccountNotDelegated)
	}
	if err != nil {
		return nil, nil, err
	}
	metaAcc, err := b.base.Get(ctx, derived.Metadata)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("%w: no delegation metadata", types.ErrAccountNotDelegated)
	}
	if err != nil {
		return nil, nil, err
	}
	record := new(DelegationRecord)
	if err := record.UnmarshalBinary(recAcc.Data); err != nil {
		return nil, nil, err
	}
	meta := new(DelegationMetadata)
	if err := meta.UnmarshalBinary(metaAcc.Data); err != nil {
		return nil, nil, err
	}
	return record, meta, nil
}

func verifySeeds(seeds [][]byte, program, want types.Pubkey) error {
	got, _, err := address.FindProgramAddress(seeds, program)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidSeeds, err)
	}
	if got != want {
		return fmt.Errorf("%w: seeds derive %s, not %s", types.ErrInvalidSeeds, got, want)
	}
	return nil
}
