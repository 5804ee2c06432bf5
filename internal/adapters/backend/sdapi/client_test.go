package sdapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"promptforge/internal/core/domain"
)

func testJob() *domain.Job {
	return &domain.Job{
		ID:             "job-1",
		Prompt:         "a red cat",
		NegativePrompt: "blurry",
		Params: domain.GenerationParams{
			Steps:    20,
			CFGScale: 7,
			Width:    512,
			Height:   512,
			Sampler:  "Euler a",
		},
	}
}

func TestClientTimeoutConfig(t *testing.T) {
	c := NewClient("http://example", 0)

	// The overall timeout stays off so long renders are not cut short; the
	// connect phase alone is bounded by the transport dialer.
	if c.http.Timeout != 0 {
		t.Errorf("client timeout = %v, want none", c.http.Timeout)
	}
	tr, ok := c.http.Transport.(*http.Transport)
	if !ok {
		t.Fatal("client transport not configured")
	}
	if tr.DialContext == nil {
		t.Error("dial timeout not configured")
	}
}

func TestGenerateSubmitsJob(t *testing.T) {
	var got txt2imgRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sdapi/v1/txt2img":
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			json.NewEncoder(w).Encode(txt2imgResponse{Images: []string{"aGk="}})
		case "/sdapi/v1/progress":
			json.NewEncoder(w).Encode(progressResponse{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	if err := c.Generate(context.Background(), testJob(), func(domain.ProgressEvent) {}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Prompt != "a red cat" || got.NegativePrompt != "blurry" {
		t.Errorf("submitted prompt = %q / %q", got.Prompt, got.NegativePrompt)
	}
	if got.Steps != 20 || got.SamplerName != "Euler a" {
		t.Errorf("submitted params = %+v", got)
	}
}

func TestGenerateWrapsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	err := c.Generate(context.Background(), testJob(), func(domain.ProgressEvent) {})
	if !errors.Is(err, domain.ErrBackend) {
		t.Errorf("Generate() error = %v, want ErrBackend", err)
	}
}

func TestGeneratePollsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sdapi/v1/txt2img":
			// Slow enough for the poller to get a few rounds in.
			time.Sleep(100 * time.Millisecond)
			json.NewEncoder(w).Encode(txt2imgResponse{})
		case "/sdapi/v1/progress":
			var prog progressResponse
			prog.Progress = 0.5
			prog.State.SamplingStep = 10
			prog.State.SamplingSteps = 20
			json.NewEncoder(w).Encode(prog)
		}
	}))
	defer srv.Close()

	var events atomic.Int32
	var last atomic.Value
	c := NewClient(srv.URL, 10*time.Millisecond)
	err := c.Generate(context.Background(), testJob(), func(ev domain.ProgressEvent) {
		events.Add(1)
		last.Store(ev)
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if events.Load() == 0 {
		t.Fatal("no progress events observed")
	}
	ev := last.Load().(domain.ProgressEvent)
	if ev.JobID != "job-1" || ev.Step != 10 || ev.Total != 20 || ev.Percent != 50 {
		t.Errorf("progress event = %+v", ev)
	}
}

func TestInterrupt(t *testing.T) {
	var interrupted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sdapi/v1/interrupt" && r.Method == http.MethodPost {
			interrupted.Store(true)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	if err := c.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if !interrupted.Load() {
		t.Error("interrupt endpoint never hit")
	}
}

func TestPingUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Minute)
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrBackend) {
		t.Errorf("Ping() error = %v, want ErrBackend", err)
	}
}
