package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/ledger"
	"github.com/rollkit/ephemeral-counter/types"
)

// DefaultMaxAttempts is how often a commit is retried before it is dropped.
const DefaultMaxAttempts = 5

// Invoker runs program-signed instructions on the base layer.
type Invoker interface {
	Invoke(ctx context.Context, caller types.Pubkey, ix types.Instruction, programSigned ...types.Pubkey) error
}

// CommitEvent is published for every commit written to the base layer.
type CommitEvent struct {
	ID          uint64
	Account     types.Pubkey
	Data        []byte
	Undelegated bool
	AppliedAt   time.Time
}

// Committer drains the commit queue into the base layer on a fixed interval.
type Committer struct {
	*service.BaseService

	bridge      *Bridge
	base        Invoker
	interval    time.Duration
	maxAttempts int

	mtx         sync.Mutex
	attempts    map[uint64]int
	subscribers map[int]chan CommitEvent
	nextSub     int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommitter returns a Committer writing b's queued commits through base.
func NewCommitter(b *Bridge, base Invoker, interval time.Duration, logger tmlog.Logger) *Committer {
	c := &Committer{
		bridge:      b,
		base:        base,
		interval:    interval,
		maxAttempts: DefaultMaxAttempts,
		attempts:    make(map[uint64]int),
		subscribers: make(map[int]chan CommitEvent),
	}
	c.BaseService = service.NewBaseService(logger, "Committer", c)
	return c
}

// OnStart is called when Committer is started (see service.BaseService for details).
func (c *Committer) OnStart() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

// OnStop is called when Committer is stopped (see service.BaseService for details).
func (c *Committer) OnStop() {
	c.cancel()
	<-c.done

	c.mtx.Lock()
	defer c.mtx.Unlock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}

func (c *Committer) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := c.bridge.ScheduleDue(ctx); err != nil {
			c.Logger.Error("error while scheduling automatic commits", "error", err)
		}
		if _, err := c.Flush(ctx); err != nil {
			c.Logger.Error("error while applying commits", "error", err)
		}
	}
}

// Subscribe returns a channel receiving applied commits and a function
// releasing it. Slow subscribers miss events.
func (c *Committer) Subscribe(buffer int) (<-chan CommitEvent, func()) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan CommitEvent, buffer)
	c.subscribers[id] = ch
	return ch, func() {
		c.mtx.Lock()
		defer c.mtx.Unlock()
		if ch, ok := c.subscribers[id]; ok {
			close(ch)
			delete(c.subscribers, id)
		}
	}
}

func (c *Committer) publish(ev CommitEvent) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			c.Logger.Debug("dropping commit event for slow subscriber", "id", ev.ID)
		}
	}
}

// Flush applies queued commits in order until the queue is empty or a commit
// fails. A commit failing maxAttempts times is dropped, an undelegation is
// moved to the back of the queue instead.
func (c *Committer) Flush(ctx context.Context) (int, error) {
	applied := 0
	for job := c.bridge.queue.Peek(); job != nil; job = c.bridge.queue.Peek() {
		if err := c.apply(ctx, job); err != nil {
			c.mtx.Lock()
			c.attempts[job.ID]++
			n := c.attempts[job.ID]
			c.mtx.Unlock()
			if n < c.maxAttempts {
				return applied, fmt.Errorf("commit %d of %s: %w", job.ID, job.Account, err)
			}
			if job.Undelegate {
				return applied, c.requeue(ctx, job, n, err)
			}
			c.bridge.metrics.CommitsFailed.With("kind", "commit").Add(1)
			c.Logger.Error("dropping commit", "id", job.ID, "account", job.Account, "attempts", n, "error", err)
		} else {
			applied++
			c.bridge.metrics.CommitsApplied.Add(1)
			c.publish(CommitEvent{
				ID:          job.ID,
				Account:     job.Account,
				Data:        job.Data,
				Undelegated: job.Undelegate,
				AppliedAt:   time.Now(),
			})
		}

		if err := c.bridge.queue.Remove(ctx, job.ID); err != nil {
			return applied, err
		}
		c.mtx.Lock()
		delete(c.attempts, job.ID)
		c.mtx.Unlock()
		c.bridge.metrics.PendingCommits.Set(float64(c.bridge.queue.Len()))
	}
	return applied, nil
}

// requeue moves a failing undelegation behind the other pending commits.
func (c *Committer) requeue(ctx context.Context, job *CommitJob, attempts int, cause error) error {
	c.bridge.metrics.CommitsFailed.With("kind", "undelegate").Add(1)
	c.Logger.Error("undelegation keeps failing, moving it to the back of the queue",
		"id", job.ID, "account", job.Account, "owner", job.OwnerProgram, "payer", job.Payer,
		"attempts", attempts, "error", cause)

	moved, err := c.bridge.queue.Requeue(ctx, job.ID)
	if err != nil {
		return err
	}
	c.mtx.Lock()
	delete(c.attempts, job.ID)
	c.mtx.Unlock()
	return fmt.Errorf("undelegation of %s requeued as %d: %w", job.Account, moved.ID, cause)
}

// apply writes job to the base layer. Every step checks the base layer state
// first so a job interrupted half way can be retried.
func (c *Committer) apply(ctx context.Context, job *CommitJob) error {
	derived, err := address.DeriveDelegationAccounts(job.Account, job.OwnerProgram)
	if err != nil {
		return err
	}
	pda, err := c.bridge.base.Get(ctx, job.Account)
	if err != nil {
		return fmt.Errorf("load %s: %w", job.Account, err)
	}

	if pda.IsOwnedBy(types.DelegationProgramID) {
		fin := NewFinalizeInstruction(job.Account, derived.Buffer, derived.Metadata, job.Data, job.Undelegate)
		if err := c.base.Invoke(ctx, types.MagicProgramID, fin); err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		c.Logger.Debug("commit finalized", "id", job.ID, "account", job.Account)
		if !job.Undelegate {
			return nil
		}

		_, meta, err := c.bridge.bookkeeping(ctx, derived)
		if err != nil {
			return err
		}
		ix, err := instruction.NewUndelegate(job.OwnerProgram, job.Account, job.Payer, meta.Seeds)
		if err != nil {
			return err
		}
		if err := c.base.Invoke(ctx, types.DelegationProgramID, ix, derived.Buffer); err != nil {
			return fmt.Errorf("undelegate: %w", err)
		}
	} else if !job.Undelegate {
		return fmt.Errorf("%w: %s", types.ErrAccountNotDelegated, job.Account)
	}

	if _, err := c.bridge.base.Get(ctx, derived.Record); err == nil {
		closeIx := NewCloseDelegationInstruction(job.Account, derived.Record, derived.Metadata, job.Payer)
		if err := c.base.Invoke(ctx, types.DelegationProgramID, closeIx); err != nil {
			return fmt.Errorf("close delegation: %w", err)
		}
	} else if !errors.Is(err, ledger.ErrAccountNotFound) {
		return err
	}

	if err := c.bridge.rollup.Delete(ctx, job.Account); err != nil {
		return fmt.Errorf("drop rollup copy: %w", err)
	}
	c.Logger.Info("account returned to base layer", "id", job.ID, "account", job.Account)
	return nil
}
