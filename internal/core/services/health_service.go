package services

import (
	"context"
	"time"

	"promptforge/internal/core/ports"
)

// Pinger is anything with a connectivity check. Optional dependencies
// (Redis, Postgres) register one; nil entries are reported as disabled.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService aggregates component checks for the health endpoint.
type HealthService struct {
	backend ports.GenerationBackend
	extras  map[string]Pinger
}

type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

func NewHealthService(backend ports.GenerationBackend) *HealthService {
	return &HealthService{
		backend: backend,
		extras:  make(map[string]Pinger),
	}
}

// Register adds an optional component to the health report. A nil pinger
// marks the component as disabled rather than unhealthy.
func (h *HealthService) Register(name string, p Pinger) {
	h.extras[name] = p
}

// Check pings every component. The backend being down makes the whole report
// unhealthy; optional components only flag their own entry.
func (h *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := HealthReport{
		Healthy:    true,
		Components: make(map[string]string),
		CheckedAt:  time.Now(),
	}

	if err := h.backend.Ping(ctx); err != nil {
		report.Healthy = false
		report.Components["backend"] = err.Error()
	} else {
		report.Components["backend"] = "ok"
	}

	for name, p := range h.extras {
		if p == nil {
			report.Components[name] = "disabled"
			continue
		}
		if err := p.Ping(ctx); err != nil {
			report.Components[name] = err.Error()
		} else {
			report.Components[name] = "ok"
		}
	}
	return report
}
