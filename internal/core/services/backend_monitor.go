package services

import (
	"context"
	"time"

	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
)

// BackendMonitor pings the generation backend on an interval and logs
// transitions, so an unreachable backend is visible before the next job
// fails against it.
type BackendMonitor struct {
	backend   ports.GenerationBackend
	interval  time.Duration
	reachable bool
}

func NewBackendMonitor(backend ports.GenerationBackend, interval time.Duration) *BackendMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BackendMonitor{
		backend:   backend,
		interval:  interval,
		reachable: true,
	}
}

// Run blocks until ctx is cancelled.
func (m *BackendMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *BackendMonitor) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := m.backend.Ping(ctx)
	switch {
	case err != nil && m.reachable:
		m.reachable = false
		logger.Error("generation backend unreachable", "error", err)
	case err == nil && !m.reachable:
		m.reachable = true
		logger.Info("generation backend recovered")
	}
}
