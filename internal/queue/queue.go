package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptforge/internal/core/domain"
)

// Queue is the in-memory, mutex-guarded job collection. Dequeue order is
// priority descending, then enqueue sequence ascending, so submission order
// is FIFO within a priority tier and a retried job re-enters at the back of
// its tier with a fresh sequence. At most one job is running at a time;
// DequeueNext yields nothing while one is.
//
// State is volatile. Jobs live here from enqueue until a caller purges
// terminal entries; durability is the archive adapter's concern.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	seq     map[string]uint64
	nextSeq uint64
	wake    chan struct{}
}

func New() *Queue {
	return &Queue{
		jobs: make(map[string]*domain.Job),
		seq:  make(map[string]uint64),
		wake: make(chan struct{}, 1),
	}
}

// Wake signals after every enqueue and retry so the scheduler can idle
// without busy-polling.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue adds a job as pending, assigning an ID and creation time when
// absent, and returns a copy of the stored job.
func (q *Queue) Enqueue(job domain.Job) domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == "" {
		job.ID = "job-" + uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Status = domain.JobStatusPending

	stored := job
	q.jobs[job.ID] = &stored
	q.seq[job.ID] = q.nextSeq
	q.nextSeq++
	q.signal()
	return job
}

// DequeueNext transitions the highest-priority oldest pending job to running
// and returns a copy of it. It returns false when nothing is pending or a
// job is already running.
func (q *Queue) DequeueNext() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *domain.Job
	for _, job := range q.jobs {
		if job.Status == domain.JobStatusRunning {
			return domain.Job{}, false
		}
		if job.Status != domain.JobStatusPending {
			continue
		}
		if next == nil || job.Priority > next.Priority ||
			(job.Priority == next.Priority && q.seq[job.ID] < q.seq[next.ID]) {
			next = job
		}
	}
	if next == nil {
		return domain.Job{}, false
	}

	next.Status = domain.JobStatusRunning
	next.StartedAt = time.Now()
	return *next, true
}

// Complete marks the running job completed.
func (q *Queue) Complete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.get(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: cannot complete job in status %s", domain.ErrInvalidTransition, job.Status)
	}
	job.Status = domain.JobStatusCompleted
	job.CompletedAt = time.Now()
	job.Error = ""
	return nil
}

// Fail records the error on the running job. While retries remain the job
// goes back to pending at the back of its priority tier and Fail reports
// retried=true; otherwise the job settles as failed.
func (q *Queue) Fail(id string, errMsg string) (retried bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, gerr := q.get(id)
	if gerr != nil {
		return false, gerr
	}
	if job.Status != domain.JobStatusRunning {
		return false, fmt.Errorf("%w: cannot fail job in status %s", domain.ErrInvalidTransition, job.Status)
	}

	job.Error = errMsg
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = domain.JobStatusPending
		job.StartedAt = time.Time{}
		q.seq[id] = q.nextSeq
		q.nextSeq++
		q.signal()
		return true, nil
	}

	job.Status = domain.JobStatusFailed
	job.CompletedAt = time.Now()
	return false, nil
}

// Cancel moves a pending or running job to cancelled. For a running job this
// is a cooperative request: the scheduler observes the flipped status at its
// next progress checkpoint and aborts the backend.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.get(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: cannot cancel job in status %s", domain.ErrInvalidTransition, job.Status)
	}
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = time.Now()
	return nil
}

// Retry re-enqueues a failed job with a cleared retry budget. Only failed
// jobs qualify; automatic retries of running failures are Fail's job.
func (q *Queue) Retry(id string) (domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.get(id)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status != domain.JobStatusFailed {
		return domain.Job{}, fmt.Errorf("%w: cannot retry job in status %s", domain.ErrInvalidTransition, job.Status)
	}

	job.Status = domain.JobStatusPending
	job.RetryCount = 0
	job.Error = ""
	job.StartedAt = time.Time{}
	job.CompletedAt = time.Time{}
	q.seq[id] = q.nextSeq
	q.nextSeq++
	q.signal()
	return *job, nil
}

// Get returns a copy of the job.
func (q *Queue) Get(id string) (domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.get(id)
	if err != nil {
		return domain.Job{}, err
	}
	return *job, nil
}

// IsCancelled reports whether the job has been flipped to cancelled. Used by
// the scheduler at progress checkpoints; unknown IDs read as cancelled so a
// purged job stops its own execution.
func (q *Queue) IsCancelled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return true
	}
	return job.Status == domain.JobStatusCancelled
}

// Running returns the currently running job, if any. Derived, never stored.
func (q *Queue) Running() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.Status == domain.JobStatusRunning {
			return *job, true
		}
	}
	return domain.Job{}, false
}

// Snapshot returns copies of all jobs in enqueue order.
func (q *Queue) Snapshot() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return q.seq[out[i].ID] < q.seq[out[j].ID]
	})
	return out
}

// Counts aggregates jobs by status. Derived from the job set, never stored
// redundantly.
func (q *Queue) Counts() map[domain.JobStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := map[domain.JobStatus]int{
		domain.JobStatusPending:   0,
		domain.JobStatusRunning:   0,
		domain.JobStatusCompleted: 0,
		domain.JobStatusFailed:    0,
		domain.JobStatusCancelled: 0,
	}
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	return counts
}

// PriorityStats breaks the status counts down per priority level.
func (q *Queue) PriorityStats() map[int]map[domain.JobStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[int]map[domain.JobStatus]int)
	for _, job := range q.jobs {
		tier, ok := stats[job.Priority]
		if !ok {
			tier = make(map[domain.JobStatus]int)
			stats[job.Priority] = tier
		}
		tier[job.Status]++
	}
	return stats
}

// ClearCompleted purges completed and cancelled jobs. Failed jobs stay for
// diagnostics.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusCancelled {
			delete(q.jobs, id)
			delete(q.seq, id)
			removed++
		}
	}
	return removed
}

// ClearAll purges every job that is not currently running, failed ones
// included.
func (q *Queue) ClearAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if job.Status == domain.JobStatusRunning {
			continue
		}
		delete(q.jobs, id)
		delete(q.seq, id)
		removed++
	}
	return removed
}

func (q *Queue) get(id string) (*domain.Job, error) {
	job, ok := q.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}
