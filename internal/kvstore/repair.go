package kvstore

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type repairJob struct {
	backend Backend
	rec     Record
}

// repairer writes authoritative records back into stale backends off the
// hydration path.
type repairer struct {
	jobs   chan repairJob
	logger *zap.Logger
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newRepairer(logger *zap.Logger, bufferSize int) *repairer {
	ctx, cancel := context.WithCancel(context.Background())
	return &repairer{
		jobs:   make(chan repairJob, bufferSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *repairer) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				r.logger.Debug("draining repairs before shutdown", zap.Int("remaining", len(r.jobs)))
				for len(r.jobs) > 0 {
					r.apply(context.Background(), <-r.jobs)
				}
				return
			case job := <-r.jobs:
				r.apply(context.Background(), job)
			}
		}
	}()
}

func (r *repairer) apply(ctx context.Context, job repairJob) {
	if err := job.backend.Put(ctx, job.rec); err != nil {
		r.logger.Error("failed to repair stale backend",
			zap.String("backend", job.backend.Name()),
			zap.String("key", job.rec.Key),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("repaired stale backend",
		zap.String("backend", job.backend.Name()),
		zap.String("key", job.rec.Key),
		zap.Int64("timestamp", job.rec.Timestamp),
	)
}

func (r *repairer) enqueue(job repairJob) {
	select {
	case r.jobs <- job:
	default:
		r.logger.Warn("repair queue full, dropping repair", zap.String("key", job.rec.Key))
	}
}

func (r *repairer) shutdown() {
	r.cancel()
	r.wg.Wait()
}
