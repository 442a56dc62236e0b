//go:build !integration

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alterya/agents-sub000/internal/domain/model"
)

// fakeRedis implements the client surface the queue needs with an in-memory
// list and channel-based blocking pop.
type fakeRedis struct {
	mu    sync.Mutex
	lists map[string][]string
	wake  chan struct{}
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: map[string][]string{}, wake: make(chan struct{}, 16)}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) error {
	f.mu.Lock()
	for _, v := range values {
		switch s := v.(type) {
		case string:
			f.lists[key] = append([]string{s}, f.lists[key]...)
		case []byte:
			f.lists[key] = append([]string{string(s)}, f.lists[key]...)
		}
	}
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeRedis) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	deadline := time.After(timeout)
	for {
		f.mu.Lock()
		for _, key := range keys {
			if l := f.lists[key]; len(l) > 0 {
				last := l[len(l)-1]
				f.lists[key] = l[:len(l)-1]
				f.mu.Unlock()
				return []string{key, last}, nil
			}
		}
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-f.wake:
		}
	}
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error { return nil }

func (f *fakeRedis) FlushDB(ctx context.Context) error { return nil }

func (f *fakeRedis) Close() error { return nil }

func TestRedisDispatcher_RunsQueuedJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := NewRegistry(time.Minute)
	battles := &fakeBattles{}
	scales := &fakeScales{}
	client := newFakeRedis()

	d := NewRedisDispatcher(registry, battles, scales, client, "jobs", 3, time.Minute, testLogger())
	d.Start(ctx, 2)
	t.Cleanup(d.Stop)

	job, err := d.Dispatch(context.Background(), battleRequest("j1", "1.2.3.4"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	done := waitTerminal(t, registry, "j1")
	if done.Status != model.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded (error=%s)", done.Status, done.Error)
	}
	if battles.callCount() != 1 {
		t.Fatalf("battle ran %d times, want 1", battles.callCount())
	}
}

func TestRedisDispatcher_MalformedPayloadDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := NewRegistry(time.Minute)
	battles := &fakeBattles{}
	client := newFakeRedis()

	d := NewRedisDispatcher(registry, battles, &fakeScales{}, client, "jobs", 3, time.Minute, testLogger())
	d.Start(ctx, 1)
	t.Cleanup(d.Stop)

	_ = client.LPush(context.Background(), "jobs", "{not json")

	// A good job after the bad payload still runs.
	if _, err := d.Dispatch(context.Background(), battleRequest("j1", "")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	done := waitTerminal(t, registry, "j1")
	if done.Status != model.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", done.Status)
	}
}

func TestRedisDispatcher_CancelPendingBeforePop(t *testing.T) {
	registry := NewRegistry(time.Minute)
	battles := &fakeBattles{}
	client := newFakeRedis()

	// No consumers started; the job stays in the list.
	d := NewRedisDispatcher(registry, battles, &fakeScales{}, client, "jobs", 3, time.Minute, testLogger())

	if _, err := d.Dispatch(context.Background(), battleRequest("j1", "")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Cancel("j1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Start a consumer afterwards; the popped job is already terminal and
	// must be skipped.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx, 1)
	t.Cleanup(d.Stop)

	time.Sleep(50 * time.Millisecond)
	if battles.callCount() != 0 {
		t.Fatalf("battle ran %d times, want 0 for a cancelled job", battles.callCount())
	}
	job, _ := registry.Get("j1")
	if job.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
}
