package services

import (
	"context"
	"fmt"
	"strings"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/tracing"
	"promptforge/internal/queue"
	"promptforge/internal/wildcard"
)

// GenerationService is the application-facing surface: it resolves templates
// into concrete prompts and manages their jobs on the queue. Handlers talk to
// this, never to the queue or the wildcard store directly.
type GenerationService struct {
	configs   ConfigSource
	generator *wildcard.BatchGenerator
	wildcards *wildcard.Store
	queue     *queue.Queue
}

// ConfigSource is the slice of the config store the service needs.
type ConfigSource interface {
	Get(name string) (*domain.TemplateConfig, error)
	Names() []string
}

func NewGenerationService(configs ConfigSource, store *wildcard.Store, q *queue.Queue) *GenerationService {
	return &GenerationService{
		configs:   configs,
		generator: wildcard.NewBatchGenerator(store),
		wildcards: store,
		queue:     q,
	}
}

// QueueStatus is a point-in-time view of the queue for dashboards.
type QueueStatus struct {
	Jobs       []domain.Job                     `json:"jobs"`
	Counts     map[domain.JobStatus]int         `json:"counts"`
	ByPriority map[int]map[domain.JobStatus]int `json:"by_priority"`
	Running    *domain.Job                      `json:"running,omitempty"`
}

// SubmitOverrides optionally replaces parts of the template for one
// submission. A non-empty Prompt is resolved instead of the template's own;
// Seed pins the generation seed.
type SubmitOverrides struct {
	Prompt string `json:"prompt,omitempty"`
	Seed   *int64 `json:"seed,omitempty"`
}

// SubmitSingle resolves one prompt from the named template and enqueues it.
func (s *GenerationService) SubmitSingle(ctx context.Context, configName string, overrides *SubmitOverrides) (domain.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "service.submit_single")
	defer span.End()

	tpl, err := s.configs.Get(configName)
	if err != nil {
		return domain.Job{}, err
	}
	if overrides != nil {
		if overrides.Prompt != "" {
			tpl.PromptTemplate = overrides.Prompt
		}
		if overrides.Seed != nil {
			tpl.Params.Seed = *overrides.Seed
		}
	}

	prompt, err := s.generator.GenerateOne(tpl)
	if err != nil {
		return domain.Job{}, fmt.Errorf("resolving prompt for %s: %w", configName, err)
	}

	job := s.queue.Enqueue(s.buildJob(tpl, prompt))
	logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "config", configName)
	return job, nil
}

// SubmitBatch resolves batchSize*numBatches prompts and enqueues one job per
// prompt. Resolution failure aborts the remaining slots but keeps the jobs
// already enqueued; those are returned alongside the error.
func (s *GenerationService) SubmitBatch(ctx context.Context, configName string, batchSize, numBatches int, overrides *SubmitOverrides) ([]domain.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "service.submit_batch")
	defer span.End()

	tpl, err := s.configs.Get(configName)
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		if overrides.Prompt != "" {
			tpl.PromptTemplate = overrides.Prompt
		}
		if overrides.Seed != nil {
			tpl.Params.Seed = *overrides.Seed
		}
	}

	prompts, genErr := s.generator.Generate(tpl, batchSize, numBatches)
	jobs := make([]domain.Job, 0, len(prompts))
	for _, prompt := range prompts {
		jobs = append(jobs, s.queue.Enqueue(s.buildJob(tpl, prompt)))
	}

	if genErr != nil {
		logger.Warn("batch aborted mid-resolution",
			"config", configName, "enqueued", len(jobs), "error", genErr)
		return jobs, fmt.Errorf("batch for %s aborted after %d jobs: %w", configName, len(jobs), genErr)
	}
	logger.InfoContext(ctx, "batch submitted", "config", configName, "jobs", len(jobs))
	return jobs, nil
}

// PreviewBatch resolves count prompts without recording usage. With
// allowMissing set, unknown wildcard tokens pass through literally instead of
// failing the preview.
func (s *GenerationService) PreviewBatch(ctx context.Context, configName string, count int, allowMissing bool) ([]string, error) {
	tpl, err := s.configs.Get(configName)
	if err != nil {
		return nil, err
	}
	return s.generator.Preview(tpl, count, allowMissing)
}

func (s *GenerationService) buildJob(tpl *domain.TemplateConfig, prompt string) domain.Job {
	return domain.Job{
		ConfigName:     tpl.Name,
		Prompt:         prompt,
		NegativePrompt: tpl.NegativePrompt,
		Params:         tpl.Params,
		Priority:       tpl.Priority,
		MaxRetries:     tpl.MaxRetries,
	}
}

func (s *GenerationService) ConfigNames() []string {
	return s.configs.Names()
}

func (s *GenerationService) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return s.queue.Get(id)
}

func (s *GenerationService) QueueStatus(ctx context.Context) QueueStatus {
	status := QueueStatus{
		Jobs:       s.queue.Snapshot(),
		Counts:     s.queue.Counts(),
		ByPriority: s.queue.PriorityStats(),
	}
	if running, ok := s.queue.Running(); ok {
		status.Running = &running
	}
	return status
}

// CancelJob cancels a pending or running job. Running jobs stop at the next
// progress checkpoint, not instantly.
func (s *GenerationService) CancelJob(ctx context.Context, id string) error {
	if err := s.queue.Cancel(id); err != nil {
		return err
	}
	logger.InfoContext(ctx, "job cancel requested", "job_id", id)
	return nil
}

// RetryJob puts a failed job back on the queue with a fresh retry budget.
func (s *GenerationService) RetryJob(ctx context.Context, id string) (domain.Job, error) {
	job, err := s.queue.Retry(id)
	if err != nil {
		return domain.Job{}, err
	}
	logger.InfoContext(ctx, "job retried", "job_id", id)
	return job, nil
}

func (s *GenerationService) ClearCompleted(ctx context.Context) int {
	return s.queue.ClearCompleted()
}

func (s *GenerationService) ClearAll(ctx context.Context) int {
	return s.queue.ClearAll()
}

// WildcardNames lists the wildcard sets available on disk.
func (s *GenerationService) WildcardNames(ctx context.Context) ([]string, error) {
	return s.wildcards.Names()
}

// WildcardUsage reports per-item usage for one set, least-used first.
func (s *GenerationService) WildcardUsage(ctx context.Context, name string) ([]domain.ItemUsage, error) {
	return s.wildcards.ListUsage(name)
}

// ResetWildcardUsage zeroes the usage state of one set. When shuffle is nil
// the decision comes from template settings: any template that uses the set
// and asks for shuffle_on_reset reshuffles the selection order. A non-nil
// shuffle overrides the templates either way.
func (s *GenerationService) ResetWildcardUsage(ctx context.Context, name string, shuffle *bool) error {
	doShuffle := s.shuffleOnReset(name)
	if shuffle != nil {
		doShuffle = *shuffle
	}
	if err := s.wildcards.Reset(name, doShuffle); err != nil {
		return err
	}
	logger.InfoContext(ctx, "wildcard usage reset", "set", name, "shuffle", doShuffle)
	return nil
}

// shuffleOnReset reports whether any template referencing the set in its
// prompt asks for a reshuffled selection order on reset.
func (s *GenerationService) shuffleOnReset(name string) bool {
	token := "__" + name + "__"
	for _, cfg := range s.configs.Names() {
		tpl, err := s.configs.Get(cfg)
		if err != nil {
			continue
		}
		if tpl.Wildcards.Enabled && tpl.Wildcards.ShuffleOnReset &&
			strings.Contains(tpl.PromptTemplate, token) {
			return true
		}
	}
	return false
}
