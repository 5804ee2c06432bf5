package domain

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Failed jobs may still transition back to pending while retries remain;
// the queue owns that check.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// GenerationParams is passed through to the backend untouched. The core
// never interprets these fields beyond serializing them.
type GenerationParams struct {
	Steps     int     `json:"steps" toml:"steps"`
	CFGScale  float64 `json:"cfg_scale" toml:"cfg_scale"`
	Width     int     `json:"width" toml:"width"`
	Height    int     `json:"height" toml:"height"`
	Seed      int64   `json:"seed" toml:"seed"`
	Sampler   string  `json:"sampler" toml:"sampler"`
	BatchSize int     `json:"batch_size" toml:"batch_size"`
}

type Job struct {
	ID             string           `json:"id" gorm:"primaryKey"`
	ConfigName     string           `json:"config_name"`
	Prompt         string           `json:"prompt"`
	NegativePrompt string           `json:"negative_prompt"`
	Params         GenerationParams `json:"params" gorm:"embedded;embeddedPrefix:param_"`
	Priority       int              `json:"priority"`
	Status         JobStatus        `json:"status"`
	RetryCount     int              `json:"retry_count" gorm:"default:0"`
	MaxRetries     int              `json:"max_retries" gorm:"default:2"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// TableName overrides the table name used by the history archive
func (Job) TableName() string {
	return "jobs"
}
