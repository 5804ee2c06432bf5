package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
	"promptforge/internal/core/services"
)

// requestIDLogging copies chi's request id into the logging context so that
// service-level InfoContext lines carry it.
func requestIDLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

type Server struct {
	router    *chi.Mux
	svc       *services.GenerationService
	healthSvc *services.HealthService
	hub       *Hub
	archive   ports.JobArchive // nil when history is disabled
}

func NewServer(svc *services.GenerationService, healthSvc *services.HealthService, hub *Hub, archive ports.JobArchive) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		healthSvc: healthSvc,
		hub:       hub,
		archive:   archive,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestIDLogging)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ws", s.handleWS)

	s.router.Route("/api/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Post("/{name}/submit", s.handleSubmitSingle)
		r.Post("/{name}/generate", s.handleSubmitBatch)
		r.Post("/{name}/preview", s.handlePreview)
	})

	s.router.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.handleQueueStatus)
		r.Get("/{id}", s.handleGetJob)
		r.Post("/{id}/cancel", s.handleCancelJob)
		r.Post("/{id}/retry", s.handleRetryJob)
		r.Post("/clear", s.handleClearCompleted)
		r.Post("/clear-all", s.handleClearAll)
	})

	s.router.Route("/api/history", func(r chi.Router) {
		r.Get("/", s.handleHistory)
		r.Get("/stats", s.handleHistoryStats)
	})

	s.router.Route("/api/wildcards", func(r chi.Router) {
		r.Get("/", s.handleListWildcards)
		r.Get("/{name}/usage", s.handleWildcardUsage)
		r.Post("/{name}/reset", s.handleResetWildcard)
	})

	// Serve static files for frontend (simple fs server for now)
	fileServer := http.FileServer(http.Dir("./web"))
	s.router.Handle("/*", fileServer)
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for custom http.Server setups.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.Check(r.Context())
	if !report.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("backend unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.Check(r.Context())
	if !report.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string][]string{"templates": s.svc.ConfigNames()})
}

func (s *Server) handleSubmitSingle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var overrides *services.SubmitOverrides
	if r.ContentLength > 0 {
		overrides = &services.SubmitOverrides{}
		if err := json.NewDecoder(r.Body).Decode(overrides); err != nil {
			http.Error(w, `{"error": "Invalid JSON", "details": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
	}

	job, err := s.svc.SubmitSingle(r.Context(), name, overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	s.updateQueueDepth(r)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

type BatchRequest struct {
	BatchSize  int    `json:"batch_size"`
	NumBatches int    `json:"num_batches"`
	Prompt     string `json:"prompt,omitempty"`
	Seed       *int64 `json:"seed,omitempty"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	req := BatchRequest{BatchSize: 1, NumBatches: 1}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "Invalid JSON", "details": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
	}
	if req.BatchSize < 1 || req.NumBatches < 1 || req.BatchSize*req.NumBatches > 1000 {
		http.Error(w, `{"error": "Validation failed", "details": "batch dimensions must be between 1 and 1000 total"}`, http.StatusBadRequest)
		return
	}

	var overrides *services.SubmitOverrides
	if req.Prompt != "" || req.Seed != nil {
		overrides = &services.SubmitOverrides{Prompt: req.Prompt, Seed: req.Seed}
	}

	jobs, err := s.svc.SubmitBatch(r.Context(), name, req.BatchSize, req.NumBatches, overrides)
	if err != nil && len(jobs) == 0 {
		writeError(w, err)
		return
	}
	s.updateQueueDepth(r)

	resp := map[string]interface{}{"jobs": jobs}
	if err != nil {
		// Partial batch: earlier slots were enqueued before resolution failed.
		resp["error"] = err.Error()
		w.WriteHeader(http.StatusMultiStatus)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(resp)
}

type PreviewRequest struct {
	Count        int  `json:"count"`
	AllowMissing bool `json:"allow_missing"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	req := PreviewRequest{Count: 1}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "Invalid JSON", "details": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
	}
	if req.Count < 1 || req.Count > 100 {
		http.Error(w, `{"error": "Validation failed", "details": "count must be between 1 and 100"}`, http.StatusBadRequest)
		return
	}

	prompts, err := s.svc.PreviewBatch(r.Context(), name, req.Count, req.AllowMissing)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string][]string{"prompts": prompts})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	status := s.svc.QueueStatus(r.Context())
	SetQueueDepth(status.Counts[domain.JobStatusPending])
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.svc.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.CancelJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled", "job_id": id})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.svc.RetryJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(job)
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := s.svc.ClearCompleted(r.Context())
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	removed := s.svc.ClearAll(r.Context())
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

func (s *Server) handleListWildcards(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.WildcardNames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string][]string{"wildcards": names})
}

func (s *Server) handleWildcardUsage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	usage, err := s.svc.WildcardUsage(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"name": name, "usage": usage})
}

// ResetRequest optionally forces the reshuffle decision. When Shuffle is
// omitted the templates using the set decide via shuffle_on_reset.
type ResetRequest struct {
	Shuffle *bool `json:"shuffle"`
}

func (s *Server) handleResetWildcard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ResetRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "Invalid JSON", "details": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
	}

	if err := s.svc.ResetWildcardUsage(r.Context(), name, req.Shuffle); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "reset", "name": name})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, `{"error": "History disabled", "details": "no database configured"}`, http.StatusNotImplemented)
		return
	}

	offset := 0
	limit := 20
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}

	jobs, err := s.archive.ListRecent(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"jobs": jobs, "offset": offset, "limit": limit})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, `{"error": "History disabled", "details": "no database configured"}`, http.StatusNotImplemented)
		return
	}
	counts, err := s.archive.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(counts)
}

func (s *Server) updateQueueDepth(r *http.Request) {
	status := s.svc.QueueStatus(r.Context())
	SetQueueDepth(status.Counts[domain.JobStatusPending])
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConfigNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrWildcardNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrEmptyWildcardSet),
		errors.Is(err, domain.ErrRecursionLimit):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackend):
		code = http.StatusBadGateway
	}
	http.Error(w, `{"error": "`+http.StatusText(code)+`", "details": "`+err.Error()+`"}`, code)
}
