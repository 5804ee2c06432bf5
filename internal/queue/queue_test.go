package queue

import (
	"errors"
	"testing"

	"promptforge/internal/core/domain"
)

func pending(priority int, maxRetries int) domain.Job {
	return domain.Job{
		ConfigName: "test",
		Prompt:     "a red cat",
		Priority:   priority,
		MaxRetries: maxRetries,
	}
}

func TestEnqueueAssignsID(t *testing.T) {
	q := New()
	job := q.Enqueue(pending(0, 2))
	if job.ID == "" {
		t.Error("Enqueue() left ID empty")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("Enqueue() status = %s, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("Enqueue() left CreatedAt zero")
	}
}

func TestPriorityOrdering(t *testing.T) {
	q := New()
	for _, p := range []int{1, 5, 3} {
		q.Enqueue(pending(p, 0))
	}

	var order []int
	for {
		job, ok := q.DequeueNext()
		if !ok {
			break
		}
		order = append(order, job.Priority)
		if err := q.Complete(job.ID); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}

	want := []int{5, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("dequeued %d jobs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("execution order = %v, want %v", order, want)
			break
		}
	}
}

func TestFIFOWithinTier(t *testing.T) {
	q := New()
	first := q.Enqueue(pending(2, 0))
	second := q.Enqueue(pending(2, 0))

	job, ok := q.DequeueNext()
	if !ok || job.ID != first.ID {
		t.Errorf("DequeueNext() = %s, want first enqueued %s", job.ID, first.ID)
	}
	q.Complete(job.ID)

	job, ok = q.DequeueNext()
	if !ok || job.ID != second.ID {
		t.Errorf("DequeueNext() = %s, want second enqueued %s", job.ID, second.ID)
	}
}

func TestSingleRunningJob(t *testing.T) {
	q := New()
	q.Enqueue(pending(0, 0))
	q.Enqueue(pending(0, 0))

	if _, ok := q.DequeueNext(); !ok {
		t.Fatal("DequeueNext() found nothing")
	}
	if _, ok := q.DequeueNext(); ok {
		t.Error("DequeueNext() returned a second job while one is running")
	}

	running, ok := q.Running()
	if !ok {
		t.Fatal("Running() found no running job")
	}
	if running.Status != domain.JobStatusRunning {
		t.Errorf("Running() status = %s", running.Status)
	}
}

func TestRetrySemantics(t *testing.T) {
	q := New()
	job := q.Enqueue(pending(0, 2))

	// Fails three times; two auto-retries allowed, then terminal.
	for attempt := 0; attempt < 3; attempt++ {
		got, ok := q.DequeueNext()
		if !ok {
			t.Fatalf("attempt %d: nothing to dequeue", attempt)
		}
		retried, err := q.Fail(got.ID, "boom")
		if err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
		wantRetried := attempt < 2
		if retried != wantRetried {
			t.Errorf("attempt %d: retried = %v, want %v", attempt, retried, wantRetried)
		}
	}

	final, err := q.Get(job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != domain.JobStatusFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
	if final.RetryCount != 2 {
		t.Errorf("final retry count = %d, want 2", final.RetryCount)
	}
	if final.Error != "boom" {
		t.Errorf("final error = %q, want boom", final.Error)
	}
}

func TestRetryGoesToBackOfTier(t *testing.T) {
	q := New()
	flaky := q.Enqueue(pending(1, 1))
	steady := q.Enqueue(pending(1, 0))

	job, _ := q.DequeueNext()
	if job.ID != flaky.ID {
		t.Fatalf("expected flaky job first")
	}
	if retried, _ := q.Fail(job.ID, "transient"); !retried {
		t.Fatal("Fail() did not retry")
	}

	// The retried job must wait behind the other job in its tier.
	job, _ = q.DequeueNext()
	if job.ID != steady.ID {
		t.Errorf("DequeueNext() after retry = %s, want %s", job.ID, steady.ID)
	}
}

func TestCancelTransitions(t *testing.T) {
	q := New()

	t.Run("pending job", func(t *testing.T) {
		job := q.Enqueue(pending(0, 0))
		if err := q.Cancel(job.ID); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		got, _ := q.Get(job.ID)
		if got.Status != domain.JobStatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
	})

	t.Run("running job", func(t *testing.T) {
		q := New()
		q.Enqueue(pending(0, 0))
		job, _ := q.DequeueNext()
		if err := q.Cancel(job.ID); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if !q.IsCancelled(job.ID) {
			t.Error("IsCancelled() = false after cancelling running job")
		}
	})

	t.Run("completed job is immutable", func(t *testing.T) {
		q := New()
		q.Enqueue(pending(0, 0))
		job, _ := q.DequeueNext()
		q.Complete(job.ID)
		if err := q.Cancel(job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("Cancel() error = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestManualRetryOnlyFromFailed(t *testing.T) {
	q := New()
	job := q.Enqueue(pending(0, 0))

	if _, err := q.Retry(job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Retry(pending) error = %v, want ErrInvalidTransition", err)
	}

	got, _ := q.DequeueNext()
	q.Fail(got.ID, "boom")

	retried, err := q.Retry(job.ID)
	if err != nil {
		t.Fatalf("Retry(failed) error = %v", err)
	}
	if retried.Status != domain.JobStatusPending || retried.RetryCount != 0 {
		t.Errorf("Retry() = status %s retryCount %d, want pending with reset budget",
			retried.Status, retried.RetryCount)
	}
}

func TestGetUnknownJob(t *testing.T) {
	q := New()
	if _, err := q.Get("job-nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestCountsAndPriorityStats(t *testing.T) {
	q := New()
	q.Enqueue(pending(1, 0))
	q.Enqueue(pending(1, 0))
	q.Enqueue(pending(5, 0))

	job, _ := q.DequeueNext() // priority 5
	q.Complete(job.ID)

	counts := q.Counts()
	if counts[domain.JobStatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", counts[domain.JobStatusPending])
	}
	if counts[domain.JobStatusCompleted] != 1 {
		t.Errorf("completed count = %d, want 1", counts[domain.JobStatusCompleted])
	}

	stats := q.PriorityStats()
	if stats[1][domain.JobStatusPending] != 2 {
		t.Errorf("tier 1 pending = %d, want 2", stats[1][domain.JobStatusPending])
	}
	if stats[5][domain.JobStatusCompleted] != 1 {
		t.Errorf("tier 5 completed = %d, want 1", stats[5][domain.JobStatusCompleted])
	}
}

func TestClearCompletedKeepsFailed(t *testing.T) {
	q := New()

	done := q.Enqueue(pending(0, 0))
	j, _ := q.DequeueNext()
	q.Complete(j.ID)

	failed := q.Enqueue(pending(0, 0))
	j, _ = q.DequeueNext()
	q.Fail(j.ID, "boom")

	cancelled := q.Enqueue(pending(0, 0))
	q.Cancel(cancelled.ID)

	removed := q.ClearCompleted()
	if removed != 2 {
		t.Errorf("ClearCompleted() = %d, want 2", removed)
	}
	if _, err := q.Get(done.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Error("completed job survived ClearCompleted()")
	}
	if _, err := q.Get(failed.ID); err != nil {
		t.Error("failed job did not survive ClearCompleted()")
	}

	removed = q.ClearAll()
	if removed != 1 {
		t.Errorf("ClearAll() = %d, want 1", removed)
	}
}

func TestSnapshotOrder(t *testing.T) {
	q := New()
	a := q.Enqueue(pending(1, 0))
	b := q.Enqueue(pending(9, 0))

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() returned %d jobs, want 2", len(snap))
	}
	if snap[0].ID != a.ID || snap[1].ID != b.ID {
		t.Error("Snapshot() not in enqueue order")
	}
}

func TestWakeSignals(t *testing.T) {
	q := New()
	q.Enqueue(pending(0, 0))

	select {
	case <-q.Wake():
	default:
		t.Error("Wake() channel empty after enqueue")
	}
}
