package memory

import (
	"context"
	"sync"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/ports"
)

// Bus is the in-process event bus, used when no Redis URL is configured and
// by tests. Slow subscribers drop events instead of blocking the scheduler.
type Bus struct {
	mu       sync.Mutex
	progress map[chan domain.ProgressEvent]struct{}
	updates  map[chan domain.JobEvent]struct{}
}

func New() ports.EventBus {
	return &Bus{
		progress: make(map[chan domain.ProgressEvent]struct{}),
		updates:  make(map[chan domain.JobEvent]struct{}),
	}
}

func (b *Bus) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.progress {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Bus) PublishJobUpdate(ctx context.Context, ev domain.JobEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.updates {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Bus) SubscribeProgress(ctx context.Context) (<-chan domain.ProgressEvent, error) {
	ch := make(chan domain.ProgressEvent, 256)
	b.mu.Lock()
	b.progress[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.progress, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (b *Bus) SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobEvent, error) {
	ch := make(chan domain.JobEvent, 256)
	b.mu.Lock()
	b.updates[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.updates, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
