// File: internal/infra/jobs/registry.go
package jobs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/infra/metrics"
)

// Listener receives a job snapshot after every update.
type Listener func(job model.Job)

// Patch is a partial job update. Zero values leave the field untouched.
type Patch struct {
	Status model.JobStatus
	Data   interface{}
	Error  string
}

type subscriber struct {
	id int
	fn Listener
}

// Registry owns all live job records, their status transitions, per-owner
// concurrency accounting and the per-job listener sets. All mutation goes
// through one lock; consumers only ever see copies.
//
// Jobs are evicted a TTL after reaching a terminal status. Clock and TTL are
// injectable so tests run deterministically with a short TTL.
type Registry struct {
	mu          sync.Mutex
	jobs        map[string]*model.Job
	subscribers map[string][]subscriber
	ownerActive map[string]int
	nextSubID   int

	now      func() time.Time
	evictTTL time.Duration
}

func NewRegistry(evictTTL time.Duration) *Registry {
	return &Registry{
		jobs:        make(map[string]*model.Job),
		subscribers: make(map[string][]subscriber),
		ownerActive: make(map[string]int),
		now:         time.Now,
		evictTTL:    evictTTL,
	}
}

// WithClock overrides the registry clock; test hook.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// NewID returns a sortable job id.
func NewID() string { return strings.ToLower(ulid.Make().String()) }

// Create inserts a pending job. A live job with the same id is rejected with
// ErrAlreadyExists so submission stays idempotent for the caller.
func (r *Registry) Create(id string, typ model.JobType, owner string) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return model.Job{}, fmt.Errorf("%w: job %s", domain.ErrAlreadyExists, id)
	}
	job := model.NewJob(id, typ, owner, r.now())
	r.jobs[id] = job
	if owner != "" {
		r.ownerActive[owner]++
	}
	return *job, nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, domain.ErrNotFound
	}
	return *job, nil
}

// Update merges patch into the job, notifies subscribers with the new
// snapshot and, on a terminal transition, releases the owner slot and
// schedules eviction. Updating an unknown id is a no-op; updating a job that
// is already terminal never changes its status.
func (r *Registry) Update(id string, patch Patch) (model.Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return model.Job{}, domain.ErrNotFound
	}

	wasTerminal := job.Status.Terminal()
	if patch.Status != "" && !wasTerminal {
		job.Status = patch.Status
	}
	if patch.Data != nil {
		job.Data = patch.Data
	}
	if patch.Error != "" {
		job.Error = patch.Error
	}
	job.UpdatedAt = r.now()

	if !wasTerminal && job.Status.Terminal() {
		if job.Owner != "" {
			if r.ownerActive[job.Owner] > 0 {
				r.ownerActive[job.Owner]--
			}
			if r.ownerActive[job.Owner] == 0 {
				delete(r.ownerActive, job.Owner)
			}
		}
		metrics.IncJobFinished(string(job.Type), string(job.Status))
		time.AfterFunc(r.evictTTL, func() { r.evict(id) })
	}

	snapshot := *job
	subs := make([]subscriber, len(r.subscribers[id]))
	copy(subs, r.subscribers[id])
	r.mu.Unlock()

	// Callbacks run outside the lock, in registration order.
	for _, s := range subs {
		s.fn(snapshot)
	}
	return snapshot, nil
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	delete(r.subscribers, id)
}

// Subscribe registers fn for every future update of id and returns an
// unsubscribe function. Subscribing to an unknown id is allowed; it simply
// never fires.
func (r *Registry) Subscribe(id string, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	subID := r.nextSubID
	r.subscribers[id] = append(r.subscribers[id], subscriber{id: subID, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subscribers[id]
		for i, s := range subs {
			if s.id == subID {
				r.subscribers[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(r.subscribers[id]) == 0 {
			delete(r.subscribers, id)
		}
	}
}

// ActiveCountForOwner returns the number of live (non-terminal) jobs held by
// owner.
func (r *Registry) ActiveCountForOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerActive[owner]
}

// CanStartForOwner is the admission check against the per-owner cap.
func (r *Registry) CanStartForOwner(owner string, cap int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerActive[owner] < cap
}
