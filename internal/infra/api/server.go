// File: internal/infra/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/config"
	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
	"github.com/Alterya/agents-sub000/internal/infra/guard"
	"github.com/Alterya/agents-sub000/internal/infra/jobs"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

// Server wires the job submission, inspection and report routes to the
// dispatcher and registry. All routes are JSON except the SSE stream.
type Server struct {
	dispatcher jobs.Dispatcher
	registry   *jobs.Registry
	reports    repository.RunReportRepository
	scales     usecase.ScaleUseCase
	ai         adapter.ChatAdapter
	limiter    guard.RateLimiter
	jobsCfg    config.JobsConfig
	log        *zerolog.Logger
}

func NewServer(
	dispatcher jobs.Dispatcher,
	registry *jobs.Registry,
	reports repository.RunReportRepository,
	scales usecase.ScaleUseCase,
	ai adapter.ChatAdapter,
	limiter guard.RateLimiter,
	jobsCfg config.JobsConfig,
	log *zerolog.Logger,
) *Server {
	return &Server{
		dispatcher: dispatcher,
		registry:   registry,
		reports:    reports,
		scales:     scales,
		ai:         ai,
		limiter:    limiter,
		jobsCfg:    jobsCfg,
		log:        log,
	}
}

// Router builds the chi mux with the middleware stack applied.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(s.log), RequestLog(s.log), Recover(s.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(RateLimit(s.limiter)).Post("/battles", s.handleCreateBattle)
		r.With(RateLimit(s.limiter)).Post("/scale-tests", s.handleCreateScale)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Get("/jobs/{id}/stream", s.handleStreamJob)
		r.Get("/reports/{runId}", s.handleGetReport)
		r.Get("/models", s.handleListModels)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type battleRequest struct {
	ID           string  `json:"id,omitempty"`
	AgentID      string  `json:"agentId"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	Goal         string  `json:"goal,omitempty"`
	UserMessage  string  `json:"userMessage,omitempty"`
	MessageLimit int     `json:"messageLimit,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

type scaleRequest struct {
	battleRequest
	Runs      int     `json:"runs"`
	BudgetUSD float64 `json:"budgetUsd,omitempty"`
}

func (s *Server) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req battleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	if req.Provider == "" || req.Model == "" {
		writeError(w, errors.Join(domain.ErrInvalidArgument, errors.New("provider and model are required")))
		return
	}
	jobID := req.ID
	if jobID == "" {
		jobID = jobs.NewID()
	}
	job, err := s.dispatcher.Dispatch(r.Context(), jobs.Request{
		JobID: jobID,
		Owner: clientIP(r),
		Type:  model.JobTypeBattle,
		Battle: &usecase.BattleInput{
			RunID:        jobID,
			AgentID:      req.AgentID,
			Provider:     req.Provider,
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			Goal:         req.Goal,
			UserMessage:  req.UserMessage,
			MessageLimit: req.MessageLimit,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleCreateScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	if req.Provider == "" || req.Model == "" {
		writeError(w, errors.Join(domain.ErrInvalidArgument, errors.New("provider and model are required")))
		return
	}
	budget := req.BudgetUSD
	if budget <= 0 {
		budget = s.jobsCfg.ScaleBudgetUSD
	}
	jobID := req.ID
	if jobID == "" {
		jobID = jobs.NewID()
	}
	input := usecase.ScaleInput{
		RunID:        jobID,
		AgentID:      req.AgentID,
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Goal:         req.Goal,
		UserMessage:  req.UserMessage,
		MessageLimit: req.MessageLimit,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Runs:         req.Runs,
		BudgetUSD:    budget,
	}
	// Run-count and budget violations come back synchronously; no job is
	// created for a batch that would never start.
	if err := s.scales.Preflight(r.Context(), input); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.dispatcher.Dispatch(r.Context(), jobs.Request{
		JobID: jobID,
		Owner: clientIP(r),
		Type:  model.JobTypeScale,
		Scale: &input,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleListModels aggregates the model names of every configured provider.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.ai.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

type reportResponse struct {
	RunID         string             `json:"runId"`
	AgentID       string             `json:"agentId,omitempty"`
	Model         string             `json:"model"`
	RunCount      int                `json:"runCount"`
	Failures      []model.RunFailure `json:"failures,omitempty"`
	Summary       string             `json:"summary,omitempty"`
	RevisedPrompt string             `json:"revisedPrompt,omitempty"`
	Stats         model.RunStats     `json:"stats"`
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.GetByRunID(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		RunID:         report.RunID,
		AgentID:       report.AgentID,
		Model:         report.Model,
		RunCount:      report.RunCount,
		Failures:      report.Failures,
		Summary:       report.Summary,
		RevisedPrompt: report.RevisedPrompt,
		Stats:         report.Stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses; everything else is a 500
// with a terse body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrBudgetExceeded):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrTooManyJobs):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCapExceeded):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
