package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"promptforge/internal/core/domain"
	"promptforge/internal/queue"
	"promptforge/internal/wildcard"
)

// fakeConfigs is an in-memory ConfigSource.
type fakeConfigs struct {
	templates map[string]domain.TemplateConfig
}

func (f *fakeConfigs) Get(name string) (*domain.TemplateConfig, error) {
	tpl, ok := f.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	out := tpl
	return &out, nil
}

func (f *fakeConfigs) Names() []string {
	names := make([]string, 0, len(f.templates))
	for name := range f.templates {
		names = append(names, name)
	}
	return names
}

func newTestService(t *testing.T, templates map[string]domain.TemplateConfig, sets map[string][]string) (*GenerationService, *queue.Queue) {
	t.Helper()

	dir := t.TempDir()
	for name, items := range sets {
		content := ""
		for _, item := range items {
			content += item + "\n"
		}
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	q := queue.New()
	svc := NewGenerationService(&fakeConfigs{templates: templates}, wildcard.NewStore(dir), q)
	return svc, q
}

func sequentialTemplate(prompt string, priority int) domain.TemplateConfig {
	return domain.TemplateConfig{
		Name:           "test",
		PromptTemplate: prompt,
		NegativePrompt: "blurry",
		Wildcards: domain.WildcardSettings{
			Enabled: true,
			Mode:    domain.ModeSequential,
		},
		Priority:   priority,
		MaxRetries: 1,
	}
}

func TestSubmitSingle(t *testing.T) {
	svc, q := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 4)},
		map[string][]string{"color": {"red", "blue"}},
	)

	job, err := svc.SubmitSingle(context.Background(), "test", nil)
	if err != nil {
		t.Fatalf("SubmitSingle() error = %v", err)
	}
	if job.Prompt != "a red cat" {
		t.Errorf("prompt = %q, want a red cat", job.Prompt)
	}
	if job.Priority != 4 || job.NegativePrompt != "blurry" || job.MaxRetries != 1 {
		t.Errorf("job carried wrong template fields: %+v", job)
	}

	queued, err := q.Get(job.ID)
	if err != nil {
		t.Fatalf("job not enqueued: %v", err)
	}
	if queued.Status != domain.JobStatusPending {
		t.Errorf("status = %s, want pending", queued.Status)
	}
}

func TestSubmitSingleOverrides(t *testing.T) {
	svc, _ := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 0)},
		map[string][]string{"color": {"red", "blue"}, "animal": {"dog"}},
	)

	seed := int64(1234)
	job, err := svc.SubmitSingle(context.Background(), "test", &SubmitOverrides{
		Prompt: "a __animal__ instead",
		Seed:   &seed,
	})
	if err != nil {
		t.Fatalf("SubmitSingle() error = %v", err)
	}
	if job.Prompt != "a dog instead" {
		t.Errorf("prompt = %q, want overridden prompt resolved", job.Prompt)
	}
	if job.Params.Seed != 1234 {
		t.Errorf("seed = %d, want 1234", job.Params.Seed)
	}
}

func TestSubmitSingleUnknownConfig(t *testing.T) {
	svc, _ := newTestService(t, map[string]domain.TemplateConfig{}, nil)
	if _, err := svc.SubmitSingle(context.Background(), "nope", nil); !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("SubmitSingle() error = %v, want ErrConfigNotFound", err)
	}
}

func TestSubmitBatchEnqueuesAll(t *testing.T) {
	svc, q := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 0)},
		map[string][]string{"color": {"red", "blue", "green"}},
	)

	jobs, err := svc.SubmitBatch(context.Background(), "test", 2, 2, nil)
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("got %d jobs, want 4", len(jobs))
	}

	// Sequential mode walks the set in order and wraps.
	want := []string{"a red cat", "a blue cat", "a green cat", "a red cat"}
	for i, job := range jobs {
		if job.Prompt != want[i] {
			t.Errorf("job %d prompt = %q, want %q", i, job.Prompt, want[i])
		}
	}
	if got := q.Counts()[domain.JobStatusPending]; got != 4 {
		t.Errorf("pending jobs = %d, want 4", got)
	}
}

func TestSubmitBatchKeepsJobsOnMidBatchFailure(t *testing.T) {
	svc, q := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("__outer__", 0)},
		map[string][]string{"outer": {"fine", "__missing__"}},
	)

	jobs, err := svc.SubmitBatch(context.Background(), "test", 1, 4, nil)
	if !errors.Is(err, domain.ErrWildcardNotFound) {
		t.Fatalf("SubmitBatch() error = %v, want ErrWildcardNotFound", err)
	}
	if len(jobs) != 1 || jobs[0].Prompt != "fine" {
		t.Errorf("jobs kept = %+v, want the one resolved before the failure", jobs)
	}
	if got := q.Counts()[domain.JobStatusPending]; got != 1 {
		t.Errorf("pending jobs = %d, want 1", got)
	}
}

func TestPreviewDoesNotTouchUsage(t *testing.T) {
	svc, _ := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 0)},
		map[string][]string{"color": {"red", "blue"}},
	)
	ctx := context.Background()

	first, err := svc.PreviewBatch(ctx, "test", 2, false)
	if err != nil {
		t.Fatalf("PreviewBatch() error = %v", err)
	}
	second, err := svc.PreviewBatch(ctx, "test", 2, false)
	if err != nil {
		t.Fatalf("PreviewBatch() error = %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("previews diverged: %v vs %v", first, second)
			break
		}
	}

	usage, err := svc.WildcardUsage(ctx, "color")
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range usage {
		if u.Count != 0 {
			t.Errorf("preview recorded usage: %+v", usage)
			break
		}
	}
}

func TestCancelAndRetryDelegation(t *testing.T) {
	svc, q := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 0)},
		map[string][]string{"color": {"red"}},
	)
	ctx := context.Background()

	job, err := svc.SubmitSingle(ctx, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if _, err := svc.RetryJob(ctx, job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("RetryJob(cancelled) error = %v, want ErrInvalidTransition", err)
	}

	failed, _ := svc.SubmitSingle(ctx, "test", nil)
	got, _ := q.DequeueNext()
	q.Fail(got.ID, "boom")
	retried, err := svc.RetryJob(ctx, failed.ID)
	if err != nil {
		t.Fatalf("RetryJob(failed) error = %v", err)
	}
	if retried.Status != domain.JobStatusPending {
		t.Errorf("retried status = %s, want pending", retried.Status)
	}
}

func TestQueueStatusReportsRunning(t *testing.T) {
	svc, q := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("a __color__ cat", 0)},
		map[string][]string{"color": {"red"}},
	)
	ctx := context.Background()

	svc.SubmitSingle(ctx, "test", nil)
	svc.SubmitSingle(ctx, "test", nil)
	running, _ := q.DequeueNext()

	status := svc.QueueStatus(ctx)
	if len(status.Jobs) != 2 {
		t.Errorf("snapshot has %d jobs, want 2", len(status.Jobs))
	}
	if status.Running == nil || status.Running.ID != running.ID {
		t.Errorf("Running = %+v, want %s", status.Running, running.ID)
	}
	if status.Counts[domain.JobStatusPending] != 1 || status.Counts[domain.JobStatusRunning] != 1 {
		t.Errorf("counts = %v", status.Counts)
	}
}

func TestResetWildcardUsage(t *testing.T) {
	svc, _ := newTestService(t,
		map[string]domain.TemplateConfig{"test": sequentialTemplate("__color__", 0)},
		map[string][]string{"color": {"red", "blue"}},
	)
	ctx := context.Background()

	svc.SubmitSingle(ctx, "test", nil)
	usage, _ := svc.WildcardUsage(ctx, "color")
	total := 0
	for _, u := range usage {
		total += u.Count
	}
	if total != 1 {
		t.Fatalf("usage total = %d, want 1", total)
	}

	if err := svc.ResetWildcardUsage(ctx, "color", nil); err != nil {
		t.Fatalf("ResetWildcardUsage() error = %v", err)
	}
	usage, _ = svc.WildcardUsage(ctx, "color")
	for _, u := range usage {
		if u.Count != 0 {
			t.Errorf("usage not reset: %+v", usage)
		}
	}
}

func TestResetShuffleDefaultsFromTemplate(t *testing.T) {
	shuffling := sequentialTemplate("a __color__ cat", 0)
	shuffling.Wildcards.ShuffleOnReset = true
	plain := sequentialTemplate("a __mood__ dog", 0)
	plain.Name = "plain"

	svc, _ := newTestService(t,
		map[string]domain.TemplateConfig{"test": shuffling, "plain": plain},
		map[string][]string{"color": {"red", "blue"}, "mood": {"calm", "wild"}},
	)
	ctx := context.Background()

	// color is used by a template with shuffle_on_reset, mood is not.
	if !svc.shuffleOnReset("color") {
		t.Error("shuffleOnReset(color) = false, want true from template settings")
	}
	if svc.shuffleOnReset("mood") {
		t.Error("shuffleOnReset(mood) = true, want false")
	}

	if err := svc.ResetWildcardUsage(ctx, "color", nil); err != nil {
		t.Fatalf("ResetWildcardUsage() error = %v", err)
	}

	// An explicit flag overrides the template setting in both directions.
	off := false
	if err := svc.ResetWildcardUsage(ctx, "color", &off); err != nil {
		t.Fatalf("ResetWildcardUsage(override off) error = %v", err)
	}
	on := true
	if err := svc.ResetWildcardUsage(ctx, "mood", &on); err != nil {
		t.Fatalf("ResetWildcardUsage(override on) error = %v", err)
	}
}
