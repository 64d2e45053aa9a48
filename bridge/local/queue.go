package local

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	ktds "github.com/ipfs/go-datastore/keytransform"
	"github.com/ipfs/go-datastore/query"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/types"
)

// ErrQueueFull is returned when the commit queue reached its maximum size.
var ErrQueueFull = errors.New("commit queue is full")

func newPrefixKV(kvStore ds.Batching, prefix string) ds.Batching {
	return ktds.Wrap(kvStore, ktds.PrefixTransform{Prefix: ds.NewKey(prefix)})
}

// CommitJob is a snapshot of a delegated account waiting to be written back
// to the base layer.
type CommitJob struct {
	ID           uint64
	Account      types.Pubkey
	OwnerProgram types.Pubkey
	Payer        types.Pubkey
	Data         []byte
	Undelegate   bool
	ScheduledAt  time.Time
}

func (j *CommitJob) key() ds.Key {
	return ds.NewKey(fmt.Sprintf("%020d", j.ID))
}

// MarshalBinary encodes j.
func (j *CommitJob) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(8 + 3*types.PubkeySize + 4 + len(j.Data) + 9)
	w.WriteU64(j.ID)
	w.WriteFixed(j.Account[:])
	w.WriteFixed(j.OwnerProgram[:])
	w.WriteFixed(j.Payer[:])
	w.WriteBytes(j.Data)
	w.WriteBool(j.Undelegate)
	w.WriteU64(uint64(j.ScheduledAt.UnixNano()))
	return w.Bytes(), nil
}

// UnmarshalBinary decodes j.
func (j *CommitJob) UnmarshalBinary(b []byte) error {
	r := codec.NewReader(b)
	var err error
	if j.ID, err = r.ReadU64(); err != nil {
		return err
	}
	for _, k := range []*types.Pubkey{&j.Account, &j.OwnerProgram, &j.Payer} {
		raw, err := r.ReadFixed(types.PubkeySize)
		if err != nil {
			return err
		}
		copy(k[:], raw)
	}
	if j.Data, err = r.ReadBytes(); err != nil {
		return err
	}
	if j.Undelegate, err = r.ReadBool(); err != nil {
		return err
	}
	ts, err := r.ReadU64()
	if err != nil {
		return err
	}
	j.ScheduledAt = time.Unix(0, int64(ts)).UTC()
	return r.Finish()
}

// CommitQueue is a persistent FIFO of commit jobs. Jobs stay in the datastore
// until Remove is called, so a restart followed by Load resumes them.
type CommitQueue struct {
	mu      sync.Mutex
	queue   []*CommitJob
	nextID  uint64
	maxSize int // 0 = unlimited
	db      ds.Batching
	logger  log.Logger
}

// NewCommitQueue returns a queue persisting under prefix in db.
func NewCommitQueue(db ds.Batching, prefix string, maxSize int, logger log.Logger) *CommitQueue {
	return &CommitQueue{
		maxSize: maxSize,
		db:      newPrefixKV(db, prefix),
		logger:  logger,
	}
}

// Push assigns job an id and persists it before making it visible.
func (q *CommitQueue) Push(ctx context.Context, job *CommitJob) error {
	return q.PushAll(ctx, []*CommitJob{job})
}

// PushAll queues jobs in one datastore batch. Either all of them become
// visible or none.
func (q *CommitQueue) PushAll(ctx context.Context, jobs []*CommitJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.queue)+len(jobs) > q.maxSize {
		return ErrQueueFull
	}
	batch, err := q.db.Batch(ctx)
	if err != nil {
		return err
	}
	for i, job := range jobs {
		job.ID = q.nextID + uint64(i)
		bz, err := job.MarshalBinary()
		if err != nil {
			return err
		}
		if err := batch.Put(ctx, job.key(), bz); err != nil {
			return fmt.Errorf("persist commit job: %w", err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("persist commit jobs: %w", err)
	}
	q.nextID += uint64(len(jobs))
	q.queue = append(q.queue, jobs...)
	return nil
}

// Requeue moves the job with the given id to the back of the queue under a
// new id and returns it.
func (q *CommitQueue) Requeue(ctx context.Context, id uint64) (*CommitJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, j := range q.queue {
		if j.ID != id {
			continue
		}
		moved := *j
		moved.ID = q.nextID
		bz, err := moved.MarshalBinary()
		if err != nil {
			return nil, err
		}
		batch, err := q.db.Batch(ctx)
		if err != nil {
			return nil, err
		}
		if err := batch.Delete(ctx, j.key()); err != nil {
			return nil, err
		}
		if err := batch.Put(ctx, moved.key(), bz); err != nil {
			return nil, err
		}
		if err := batch.Commit(ctx); err != nil {
			return nil, fmt.Errorf("requeue commit job %d: %w", id, err)
		}
		q.nextID++
		q.queue = append(append(q.queue[:i], q.queue[i+1:]...), &moved)
		return &moved, nil
	}
	return nil, fmt.Errorf("commit job %d is not queued", id)
}

// Peek returns the oldest job, or nil when the queue is empty.
func (q *CommitQueue) Peek() *CommitJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// Remove drops the job with the given id once it has been applied.
func (q *CommitQueue) Remove(ctx context.Context, id uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, j := range q.queue {
		if j.ID != id {
			continue
		}
		if err := q.db.Delete(ctx, j.key()); err != nil {
			return fmt.Errorf("delete commit job %d: %w", id, err)
		}
		q.queue = append(q.queue[:i], q.queue[i+1:]...)
		return nil
	}
	return nil
}

// Pending returns a copy of the queued jobs, oldest first.
func (q *CommitQueue) Pending() []CommitJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]CommitJob, len(q.queue))
	for i, j := range q.queue {
		out[i] = *j
	}
	return out
}

// Len returns the number of queued jobs.
func (q *CommitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Load reloads all jobs from the datastore after a restart.
func (q *CommitQueue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	results, err := q.db.Query(ctx, query.Query{})
	if err != nil {
		return fmt.Errorf("error querying datastore: %w", err)
	}
	defer results.Close()

	q.queue = q.queue[:0]
	for result := range results.Next() {
		if result.Error != nil {
			q.logger.Error("error reading commit job", "error", result.Error)
			continue
		}
		job := new(CommitJob)
		if err := job.UnmarshalBinary(result.Value); err != nil {
			q.logger.Error("skipping undecodable commit job", "key", result.Key, "error", err)
			continue
		}
		q.queue = append(q.queue, job)
	}
	sort.Slice(q.queue, func(i, k int) bool { return q.queue[i].ID < q.queue[k].ID })
	if n := len(q.queue); n > 0 {
		q.nextID = q.queue[n-1].ID + 1
	}
	return nil
}
