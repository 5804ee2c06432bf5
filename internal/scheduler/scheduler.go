package scheduler

import (
	"context"
	"time"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
	"promptforge/internal/core/tracing"
	"promptforge/internal/queue"
)

// Scheduler is the single worker loop driving generation serially. It
// dequeues one job at a time, feeds it to the backend, republishes progress
// on the event bus and resolves the terminal state through the queue. A
// failing job never stops the loop; the rest of the queue still drains.
type Scheduler struct {
	queue   *queue.Queue
	backend ports.GenerationBackend
	bus     ports.EventBus
	archive ports.JobArchive // nil when history is disabled
	poll    time.Duration
}

func New(q *queue.Queue, backend ports.GenerationBackend, bus ports.EventBus, archive ports.JobArchive, poll time.Duration) *Scheduler {
	if poll <= 0 {
		poll = time.Second
	}
	return &Scheduler{
		queue:   q,
		backend: backend,
		bus:     bus,
		archive: archive,
		poll:    poll,
	}
}

// Run blocks until ctx is cancelled. It wakes on enqueue signals and falls
// back to a short poll interval.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("scheduler started", "poll_interval", s.poll)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		s.drain(ctx)

		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-s.queue.Wake():
		case <-ticker.C:
		}
	}
}

// drain executes pending jobs until the queue is empty.
func (s *Scheduler) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok := s.queue.DequeueNext()
		if !ok {
			return
		}
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job domain.Job) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.execute")
	defer span.End()

	// Downstream context-aware log lines (archive, bus) pick the id up too.
	ctx = logger.WithJobID(ctx, job.ID)
	log := logger.WithContext(ctx).With("config", job.ConfigName, "priority", job.Priority)
	log.Info("job started", "retry_count", job.RetryCount)
	s.publishUpdate(ctx, job.ID, domain.JobStatusRunning, "")

	// Cancellation is cooperative: checked before each progress republish,
	// so a cancel lands at the next checkpoint, never mid-step.
	interrupted := false
	onProgress := func(ev domain.ProgressEvent) {
		if s.queue.IsCancelled(job.ID) {
			if !interrupted {
				interrupted = true
				if err := s.backend.Interrupt(ctx); err != nil {
					log.Warn("backend interrupt failed", "error", err)
				}
			}
			return
		}
		if err := s.bus.PublishProgress(ctx, ev); err != nil {
			log.Warn("failed to publish progress", "error", err)
		}
	}

	genErr := s.backend.Generate(ctx, &job, onProgress)

	// A cancel that landed while generating wins over whatever the backend
	// reported; the job stays cancelled.
	if interrupted || s.queue.IsCancelled(job.ID) {
		log.Info("job cancelled")
		s.publishUpdate(ctx, job.ID, domain.JobStatusCancelled, "")
		s.archiveTerminal(ctx, job.ID)
		return
	}

	if genErr != nil {
		retried, err := s.queue.Fail(job.ID, genErr.Error())
		if err != nil {
			log.Error("failed to record job failure", "error", err)
			return
		}
		if retried {
			log.Warn("job failed, retrying", "error", genErr)
			s.publishUpdate(ctx, job.ID, domain.JobStatusPending, genErr.Error())
			return
		}
		log.Error("job failed", "error", genErr)
		s.publishUpdate(ctx, job.ID, domain.JobStatusFailed, genErr.Error())
		s.archiveTerminal(ctx, job.ID)
		return
	}

	if err := s.queue.Complete(job.ID); err != nil {
		// Status flipped under us (purge or cancel); nothing left to do.
		log.Warn("could not complete job", "error", err)
		return
	}
	log.Info("job completed")
	s.publishUpdate(ctx, job.ID, domain.JobStatusCompleted, "")
	s.archiveTerminal(ctx, job.ID)
}

func (s *Scheduler) publishUpdate(ctx context.Context, id string, status domain.JobStatus, errMsg string) {
	ev := domain.JobEvent{JobID: id, Status: status, Error: errMsg}
	if err := s.bus.PublishJobUpdate(ctx, ev); err != nil {
		logger.Warn("failed to publish job update", "job_id", id, "error", err)
	}
}

func (s *Scheduler) archiveTerminal(ctx context.Context, id string) {
	if s.archive == nil {
		return
	}
	job, err := s.queue.Get(id)
	if err != nil {
		return
	}
	if err := s.archive.RecordTerminal(ctx, &job); err != nil {
		logger.Warn("failed to archive job", "job_id", id, "error", err)
	}
}
