// File: internal/infra/jobs/dispatcher.go
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/infra/logging"
	"github.com/Alterya/agents-sub000/internal/infra/worker"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

// errManualStop is the cancellation cause set by Cancel; anything other than
// a deadline reads as a manual stop downstream.
var errManualStop = errors.New("job cancelled")

// Request is one job submission. Exactly one of Battle/Scale is set and must
// match Type.
type Request struct {
	JobID  string               `json:"jobId"`
	Owner  string               `json:"owner,omitempty"`
	Type   model.JobType        `json:"type"`
	Battle *usecase.BattleInput `json:"battle,omitempty"`
	Scale  *usecase.ScaleInput  `json:"scale,omitempty"`
}

// Dispatcher admits and schedules jobs. Dispatch is idempotent on job id:
// resubmitting a live id returns the existing job instead of starting a
// second execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (model.Job, error)
	Cancel(id string) error
}

// executor holds the run path shared by the in-process and redis-backed
// dispatchers: admission, the pending→running→terminal transitions and the
// per-job cancellation plumbing.
type executor struct {
	registry *Registry
	battles  usecase.BattleUseCase
	scales   usecase.ScaleUseCase
	ownerCap int
	timeout  time.Duration
	log      *zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

func newExecutor(
	registry *Registry,
	battles usecase.BattleUseCase,
	scales usecase.ScaleUseCase,
	ownerCap int,
	timeout time.Duration,
	log *zerolog.Logger,
) *executor {
	return &executor{
		registry: registry,
		battles:  battles,
		scales:   scales,
		ownerCap: ownerCap,
		timeout:  timeout,
		log:      log,
		cancels:  make(map[string]context.CancelCauseFunc),
	}
}

// admit validates the request and creates the pending job. A live duplicate
// id short-circuits to the existing job with ok=false.
func (e *executor) admit(req *Request) (model.Job, bool, error) {
	if err := validate(req); err != nil {
		return model.Job{}, false, err
	}
	if existing, err := e.registry.Get(req.JobID); err == nil {
		return existing, false, nil
	}
	if req.Owner != "" && !e.registry.CanStartForOwner(req.Owner, e.ownerCap) {
		return model.Job{}, false, fmt.Errorf("%w: owner %s has %d active jobs", domain.ErrTooManyJobs, req.Owner, e.registry.ActiveCountForOwner(req.Owner))
	}
	job, err := e.registry.Create(req.JobID, req.Type, req.Owner)
	if err != nil {
		// Lost the race against a concurrent submission of the same id.
		if errors.Is(err, domain.ErrAlreadyExists) {
			if existing, getErr := e.registry.Get(req.JobID); getErr == nil {
				return existing, false, nil
			}
		}
		return model.Job{}, false, err
	}
	return job, true, nil
}

func validate(req *Request) error {
	if req.JobID == "" {
		req.JobID = NewID()
	}
	switch req.Type {
	case model.JobTypeBattle:
		if req.Battle == nil {
			return fmt.Errorf("%w: battle payload required", domain.ErrInvalidArgument)
		}
	case model.JobTypeScale:
		if req.Scale == nil {
			return fmt.Errorf("%w: scale payload required", domain.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidArgument, req.Type)
	}
	return nil
}

// run executes one admitted job to its terminal state. The job context races
// the request timeout against Cancel; the battle loop maps the cause to a
// timeout or manual termination reason.
func (e *executor) run(ctx context.Context, req Request) {
	job, err := e.registry.Get(req.JobID)
	if err != nil || job.Status.Terminal() {
		// Evicted or cancelled while queued; nothing to do.
		return
	}
	if _, err := e.registry.Update(req.JobID, Patch{Status: model.JobStatusRunning}); err != nil {
		return
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	if e.timeout > 0 {
		var stop context.CancelFunc
		jobCtx, stop = context.WithTimeout(jobCtx, e.timeout)
		defer stop()
	}
	e.mu.Lock()
	e.cancels[req.JobID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, req.JobID)
		e.mu.Unlock()
		cancel(nil)
	}()

	jobCtx = logging.WithJobID(jobCtx, req.JobID)
	log := logging.With(jobCtx, e.log)

	var (
		data   interface{}
		runErr error
	)
	switch req.Type {
	case model.JobTypeBattle:
		data, runErr = e.battles.Run(jobCtx, *req.Battle)
	case model.JobTypeScale:
		data, runErr = e.scales.Run(jobCtx, *req.Scale)
	}

	patch := Patch{Status: model.JobStatusSucceeded, Data: data}
	if runErr != nil {
		patch = Patch{Status: model.JobStatusFailed, Data: data, Error: runErr.Error()}
		log.Warn().Err(runErr).Str("type", string(req.Type)).Msg("job failed")
	} else {
		log.Info().Str("type", string(req.Type)).Msg("job finished")
	}
	if _, err := e.registry.Update(req.JobID, patch); err != nil {
		log.Warn().Err(err).Msg("terminal job update failed")
	}
}

// cancel stops a running job or fails a still-pending one. Terminal jobs are
// left untouched.
func (e *executor) cancel(id string) error {
	e.mu.Lock()
	fn, running := e.cancels[id]
	e.mu.Unlock()
	if running {
		fn(errManualStop)
		return nil
	}

	job, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	// Pending in the queue: fail it now, run skips it when dequeued.
	_, err = e.registry.Update(id, Patch{Status: model.JobStatusFailed, Error: errManualStop.Error()})
	return err
}

// Compile-time check
var _ Dispatcher = (*InprocDispatcher)(nil)

// InprocDispatcher runs jobs on a local worker pool.
type InprocDispatcher struct {
	exec *executor
	pool *worker.Pool
}

func NewInprocDispatcher(
	registry *Registry,
	battles usecase.BattleUseCase,
	scales usecase.ScaleUseCase,
	pool *worker.Pool,
	ownerCap int,
	timeout time.Duration,
	log *zerolog.Logger,
) *InprocDispatcher {
	return &InprocDispatcher{
		exec: newExecutor(registry, battles, scales, ownerCap, timeout, log),
		pool: pool,
	}
}

func (d *InprocDispatcher) Dispatch(ctx context.Context, req Request) (model.Job, error) {
	job, created, err := d.exec.admit(&req)
	if err != nil || !created {
		return job, err
	}
	if err := d.pool.Submit(func(taskCtx context.Context) error {
		d.exec.run(taskCtx, req)
		return nil
	}); err != nil {
		failed, _ := d.exec.registry.Update(req.JobID, Patch{Status: model.JobStatusFailed, Error: err.Error()})
		return failed, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

func (d *InprocDispatcher) Cancel(id string) error { return d.exec.cancel(id) }
