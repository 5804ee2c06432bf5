package domain

// ProgressEvent is republished by the scheduler for each progress checkpoint
// the backend yields while a job runs.
type ProgressEvent struct {
	JobID   string  `json:"job_id"`
	Step    int     `json:"step"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// JobEvent announces a job status change.
type JobEvent struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}
