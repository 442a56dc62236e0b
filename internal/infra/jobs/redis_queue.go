// File: internal/infra/jobs/redis_queue.go
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/infra/redis"
	"github.com/Alterya/agents-sub000/internal/usecase"
)

const popTimeout = 2 * time.Second

// Compile-time check
var _ Dispatcher = (*RedisDispatcher)(nil)

// RedisDispatcher pushes admitted jobs onto a redis list and runs them from
// a blocking pop loop. Admission state stays in the local registry, so the
// queue buys durability of the backlog, not cross-process handoff.
type RedisDispatcher struct {
	exec  *executor
	redis redis.RedisClient
	queue string
	log   *zerolog.Logger

	wg   sync.WaitGroup
	stop context.CancelFunc
}

func NewRedisDispatcher(
	registry *Registry,
	battles usecase.BattleUseCase,
	scales usecase.ScaleUseCase,
	client redis.RedisClient,
	queue string,
	ownerCap int,
	timeout time.Duration,
	log *zerolog.Logger,
) *RedisDispatcher {
	return &RedisDispatcher{
		exec:  newExecutor(registry, battles, scales, ownerCap, timeout, log),
		redis: client,
		queue: queue,
		log:   log,
	}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, req Request) (model.Job, error) {
	job, created, err := d.exec.admit(&req)
	if err != nil || !created {
		return job, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		failed, _ := d.exec.registry.Update(req.JobID, Patch{Status: model.JobStatusFailed, Error: err.Error()})
		return failed, fmt.Errorf("encode job: %w", err)
	}
	if err := d.redis.LPush(ctx, d.queue, payload); err != nil {
		failed, _ := d.exec.registry.Update(req.JobID, Patch{Status: model.JobStatusFailed, Error: err.Error()})
		return failed, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (d *RedisDispatcher) Cancel(id string) error { return d.exec.cancel(id) }

// Start launches n consumer loops that pop and run jobs until ctx is done
// or Stop is called.
func (d *RedisDispatcher) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	ctx, d.stop = context.WithCancel(ctx)
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.consume(ctx)
		}()
	}
}

func (d *RedisDispatcher) Stop() {
	if d.stop != nil {
		d.stop()
	}
	d.wg.Wait()
}

func (d *RedisDispatcher) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := d.redis.BRPop(ctx, popTimeout, d.queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Msg("queue pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(popTimeout):
			}
			continue
		}
		// BRPop returns [key, value]; an empty result is a quiet timeout.
		if len(res) < 2 {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
			d.log.Error().Err(err).Msg("discarding malformed job payload")
			continue
		}
		d.exec.run(ctx, req)
	}
}
