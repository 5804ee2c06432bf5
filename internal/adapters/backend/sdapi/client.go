package sdapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"promptforge/internal/core/circuitbreaker"
	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
)

const defaultPollInterval = 500 * time.Millisecond

// Client talks to a Stable Diffusion WebUI compatible HTTP API. Generation
// is a single blocking txt2img call; progress comes from polling the
// /progress endpoint on the side while the call is in flight.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	poll    time.Duration
}

func NewClient(baseURL string, poll time.Duration) *Client {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			// No overall request timeout: txt2img holds its response
			// headers until the render finishes, which can take minutes.
			// Only the connect phase is bounded; cancellation of a stuck
			// call comes from the request context.
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		breaker: circuitbreaker.New("generation-backend"),
		poll:    poll,
	}
}

var _ ports.GenerationBackend = (*Client)(nil)

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	BatchSize      int     `json:"batch_size,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

type progressResponse struct {
	Progress float64 `json:"progress"`
	State    struct {
		SamplingStep  int `json:"sampling_step"`
		SamplingSteps int `json:"sampling_steps"`
	} `json:"state"`
}

// Generate submits the job and blocks until the backend resolves it. The
// progress poller is stopped and fully drained before Generate returns, so
// onProgress is never invoked afterwards.
func (c *Client) Generate(ctx context.Context, job *domain.Job, onProgress func(domain.ProgressEvent)) error {
	pollCtx, stopPolling := context.WithCancel(ctx)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		c.pollProgress(pollCtx, job, onProgress)
	}()

	err := c.breaker.Execute(ctx, func() error {
		return c.txt2img(ctx, job)
	})

	stopPolling()
	<-pollerDone

	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	return nil
}

func (c *Client) txt2img(ctx context.Context, job *domain.Job) error {
	payload := txt2imgRequest{
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Steps:          job.Params.Steps,
		CFGScale:       job.Params.CFGScale,
		Width:          job.Params.Width,
		Height:         job.Params.Height,
		Seed:           job.Params.Seed,
		SamplerName:    job.Params.Sampler,
		BatchSize:      job.Params.BatchSize,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("txt2img returned %d: %s", resp.StatusCode, snippet)
	}

	var result txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding txt2img response: %v", err)
	}
	logger.Debug("generation finished", "job_id", job.ID, "images", len(result.Images))
	return nil
}

func (c *Client) pollProgress(ctx context.Context, job *domain.Job, onProgress func(domain.ProgressEvent)) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		prog, err := c.fetchProgress(ctx)
		if err != nil {
			continue
		}
		total := prog.State.SamplingSteps
		if total == 0 {
			total = job.Params.Steps
		}
		onProgress(domain.ProgressEvent{
			JobID:   job.ID,
			Step:    prog.State.SamplingStep,
			Total:   total,
			Percent: prog.Progress * 100,
		})
	}
}

func (c *Client) fetchProgress(ctx context.Context) (*progressResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sdapi/v1/progress?skip_current_image=true", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("progress returned %d", resp.StatusCode)
	}
	var prog progressResponse
	if err := json.NewDecoder(resp.Body).Decode(&prog); err != nil {
		return nil, err
	}
	return &prog, nil
}

// Interrupt asks the backend to abort the in-flight generation. The aborted
// txt2img call still returns on its own; callers must not assume the job is
// gone the moment Interrupt succeeds.
func (c *Client) Interrupt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/interrupt", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: interrupt returned %d", domain.ErrBackend, resp.StatusCode)
	}
	return nil
}

// Ping reports backend reachability. Goes through the circuit breaker so a
// tripped breaker also surfaces as unhealthy.
func (c *Client) Ping(ctx context.Context) error {
	err := c.breaker.Execute(ctx, func() error {
		_, err := c.fetchProgress(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	return nil
}
