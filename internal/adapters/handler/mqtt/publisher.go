package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
)

// Publisher bridges the event bus onto MQTT topics so external automations
// (home dashboards, notification bots) can follow generations without
// speaking our HTTP API.
type Publisher struct {
	client mqtt.Client
	bus    ports.EventBus
	prefix string
}

// NewPublisher connects to the broker and returns the bridge.
func NewPublisher(bus ports.EventBus, brokerURL string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("promptforge-%d", time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("connected to MQTT broker", "broker", brokerURL)
	return &Publisher{
		client: client,
		bus:    bus,
		prefix: "promptforge",
	}, nil
}

// Start launches the consumers.
func (p *Publisher) Start(ctx context.Context) {
	go p.consumeProgress(ctx)
	go p.consumeJobUpdates(ctx)
}

func (p *Publisher) consumeProgress(ctx context.Context) {
	ch, err := p.bus.SubscribeProgress(ctx)
	if err != nil {
		logger.Error("mqtt: failed to subscribe to progress", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			// Topic: promptforge/progress/{job_id}
			topic := fmt.Sprintf("%s/progress/%s", p.prefix, ev.JobID)
			payload, _ := json.Marshal(ev)
			p.client.Publish(topic, 0, false, payload)
		}
	}
}

func (p *Publisher) consumeJobUpdates(ctx context.Context) {
	ch, err := p.bus.SubscribeJobUpdates(ctx)
	if err != nil {
		logger.Error("mqtt: failed to subscribe to job updates", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			event := map[string]interface{}{
				"type":    "job_update",
				"payload": ev,
			}
			data, _ := json.Marshal(event)

			// Publish to the job specific topic; retained so late subscribers
			// see the last known state.
			topic := fmt.Sprintf("%s/job/%s", p.prefix, ev.JobID)
			p.client.Publish(topic, 0, true, data)
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
