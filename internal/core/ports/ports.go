package ports

import (
	"context"

	"promptforge/internal/core/domain"
)

// GenerationBackend drives the external image-generation service. Generate
// blocks until the backend resolves the job; onProgress is invoked for each
// progress checkpoint the backend yields. Interrupt requests a backend-side
// abort of whatever is currently generating.
type GenerationBackend interface {
	Generate(ctx context.Context, job *domain.Job, onProgress func(domain.ProgressEvent)) error
	Interrupt(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ConfigStore resolves named template configs, validated at the boundary.
type ConfigStore interface {
	Get(name string) (*domain.TemplateConfig, error)
	Names() []string
}

// EventBus fans progress and job status events out to consumers
// (websocket hub, MQTT bridge, dashboards).
type EventBus interface {
	PublishProgress(ctx context.Context, ev domain.ProgressEvent) error
	PublishJobUpdate(ctx context.Context, ev domain.JobEvent) error
	SubscribeProgress(ctx context.Context) (<-chan domain.ProgressEvent, error)
	SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobEvent, error)
}

// JobArchive records terminal jobs for history. Best effort; the queue never
// depends on it and keeps its own state in memory.
type JobArchive interface {
	RecordTerminal(ctx context.Context, job *domain.Job) error
	ListRecent(ctx context.Context, offset, limit int) ([]*domain.Job, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}
