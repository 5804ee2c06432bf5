package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
)

const (
	progressChannel = "promptforge:progress"
	jobChannel      = "promptforge:jobs"
)

// Bus publishes progress and job events over Redis channels so dashboards
// can follow a generation from a separate process.
type Bus struct {
	client *redis.Client
}

func NewBus(url string) (ports.EventBus, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &Bus{client: client}, client, nil
}

func (b *Bus) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, progressChannel, data).Err()
}

func (b *Bus) PublishJobUpdate(ctx context.Context, ev domain.JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, jobChannel, data).Err()
}

func (b *Bus) SubscribeProgress(ctx context.Context) (<-chan domain.ProgressEvent, error) {
	pubsub := b.client.Subscribe(ctx, progressChannel)
	ch := make(chan domain.ProgressEvent, 256)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var ev domain.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("dropping malformed progress event", "error", err)
					continue
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func (b *Bus) SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobEvent, error) {
	pubsub := b.client.Subscribe(ctx, jobChannel)
	ch := make(chan domain.JobEvent, 256)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var ev domain.JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("dropping malformed job event", "error", err)
					continue
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}()
	return ch, nil
}
