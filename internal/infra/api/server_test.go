//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/config"
	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/infra/guard"
	"github.com/Alterya/agents-sub000/internal/infra/jobs"
	"github.com/Alterya/agents-sub000/internal/infra/worker"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

// ---- minimal fakes for the usecase layer ----

type stubBattles struct {
	RunFunc func(ctx context.Context, in usecase.BattleInput) (model.BattleResult, error)
}

func (s *stubBattles) Run(ctx context.Context, in usecase.BattleInput) (model.BattleResult, error) {
	if s.RunFunc != nil {
		return s.RunFunc(ctx, in)
	}
	return model.BattleResult{ConversationID: "c1", GoalReached: true, EndedReason: model.EndedReasonGoal}, nil
}

type stubScales struct {
	PreflightErr error
}

func (s *stubScales) Preflight(ctx context.Context, in usecase.ScaleInput) error {
	return s.PreflightErr
}

func (s *stubScales) Run(ctx context.Context, in usecase.ScaleInput) (model.ScaleResult, error) {
	return model.ScaleResult{RunID: in.RunID, Total: in.Runs, Succeeded: in.Runs}, nil
}

type stubAdapter struct {
	models    []string
	modelsErr error
}

func (s *stubAdapter) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	return adapter.ChatResult{Text: "ok"}, nil
}

func (s *stubAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return 0, nil
}

func (s *stubAdapter) ListModels(ctx context.Context) ([]string, error) {
	return s.models, s.modelsErr
}

type stubReports struct {
	mu      sync.Mutex
	byRunID map[string]*model.RunReport
}

func (s *stubReports) Save(ctx context.Context, r *model.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byRunID == nil {
		s.byRunID = map[string]*model.RunReport{}
	}
	cp := *r
	s.byRunID[r.RunID] = &cp
	return nil
}

func (s *stubReports) GetByRunID(ctx context.Context, runID string) (*model.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byRunID[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type testEnv struct {
	server   *Server
	registry *jobs.Registry
	battles  *stubBattles
	scales   *stubScales
	reports  *stubReports
	ai       *stubAdapter
}

func newTestEnv(t *testing.T, limiter guard.RateLimiter) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := jobs.NewRegistry(time.Minute)
	battles := &stubBattles{}
	scales := &stubScales{}
	reports := &stubReports{}
	ai := &stubAdapter{models: []string{"gpt-4o-mini", "gemini-1.5-flash"}}
	pool := worker.NewPool(4, newTestLogger())
	pool.Start(ctx)
	t.Cleanup(pool.Stop)
	dispatcher := jobs.NewInprocDispatcher(registry, battles, scales, pool, 3, time.Minute, newTestLogger())

	srv := NewServer(dispatcher, registry, reports, scales, ai, limiter, config.JobsConfig{MaxScaleRuns: 10}, newTestLogger())
	return &testEnv{server: srv, registry: registry, battles: battles, scales: scales, reports: reports, ai: ai}
}

func postJSON(t *testing.T, h http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateBattle(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	rec := postJSON(t, router, "/api/v1/battles", `{"id":"j1","provider":"openai","model":"gpt-4o-mini","userMessage":"hi","goal":"code"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var job model.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID != "j1" || job.Type != model.JobTypeBattle {
		t.Fatalf("job = %+v", job)
	}

	// Resubmitting the same id is idempotent.
	rec = postJSON(t, router, "/api/v1/battles", `{"id":"j1","provider":"openai","model":"gpt-4o-mini"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resubmit status = %d", rec.Code)
	}
}

func TestCreateBattle_Validation(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	rec := postJSON(t, router, "/api/v1/battles", `{"model":"gpt-4o-mini"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing provider: status = %d", rec.Code)
	}
	rec = postJSON(t, router, "/api/v1/battles", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d", rec.Code)
	}
}

func TestCreateScale_BudgetRejection(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	env.scales.PreflightErr = fmt.Errorf("%w: estimated $0.0063 exceeds budget $0.0010", domain.ErrBudgetExceeded)
	router := env.server.Router()

	rec := postJSON(t, router, "/api/v1/scale-tests", `{"provider":"openai","model":"gpt-4o-mini","runs":3,"budgetUsd":0.001}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds budget") {
		t.Fatalf("body = %s, want the estimate", rec.Body.String())
	}
	// No job must exist for a rejected batch.
	if n := env.registry.ActiveCountForOwner("10.0.0.1"); n != 0 {
		t.Fatalf("active jobs = %d, want 0", n)
	}
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	_, _ = env.registry.Create("j1", model.JobTypeBattle, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	rec := postJSON(t, router, "/api/v1/jobs/missing/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}
}

func TestRateLimitOnSubmission(t *testing.T) {
	env := newTestEnv(t, guard.NewMemoryRateLimiter(1))
	router := env.server.Router()

	rec := postJSON(t, router, "/api/v1/battles", `{"provider":"openai","model":"gpt-4o-mini"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first submission: status = %d", rec.Code)
	}
	rec = postJSON(t, router, "/api/v1/battles", `{"provider":"openai","model":"gpt-4o-mini"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submission: status = %d, want 429", rec.Code)
	}
}

func TestGetReport(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	_ = env.reports.Save(context.Background(), &model.RunReport{
		RunID:    "run-1",
		Model:    "gpt-4o-mini",
		RunCount: 3,
		Summary:  "all good",
		Stats:    model.RunStats{Succeeded: 2, Failed: 1},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/run-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got reportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Stats.Succeeded != 2 {
		t.Fatalf("report = %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: status = %d", rec.Code)
	}
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	router := env.server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Models) != 2 || got.Models[0] != "gpt-4o-mini" {
		t.Fatalf("models = %v", got.Models)
	}

	// No registered providers still answers with an empty list, not null.
	env.ai.models = nil
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	if !strings.Contains(rec.Body.String(), `"models":[]`) {
		t.Fatalf("body = %s, want an empty array", rec.Body.String())
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrBudgetExceeded, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrJobTerminal, http.StatusConflict},
		{domain.ErrTooManyJobs, http.StatusTooManyRequests},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrCapExceeded, http.StatusUnprocessableEntity},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		if rec.Code != c.want {
			t.Fatalf("%v -> %d, want %d", c.err, rec.Code, c.want)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, guard.NopRateLimiter{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
