package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/utils"
)

// Worker is the leaf job processor runtime spawned by the orchestrator.
// It claims pending hydration jobs for its registered handler types and
// heartbeats its lifecycle row while running.
type Worker struct {
	db          *gorm.DB
	log         *logger.Logger
	jobs        repos.HydrationJobRepo
	lifecycle   repos.WorkerLifecycleRepo
	registry    *Registry
	lifecycleID uuid.UUID
}

func New(db *gorm.DB, baseLog *logger.Logger, jobs repos.HydrationJobRepo, lifecycle repos.WorkerLifecycleRepo, registry *Registry, lifecycleID uuid.UUID) *Worker {
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "HydrationWorker", "lifecycle_id", lifecycleID),
		jobs:        jobs,
		lifecycle:   lifecycle,
		registry:    registry,
		lifecycleID: lifecycleID,
	}
}

// Run blocks until ctx is cancelled (SIGINT from a drain request). It exits
// cleanly so the orchestrator's exit handler records STOPPED.
func (w *Worker) Run(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting hydration worker pool", "concurrency", concurrency)

	done := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go func() {
			w.claimLoop(ctx, workerID)
			done <- struct{}{}
		}()
	}
	go w.heartbeatLoop(ctx)

	for i := 0; i < concurrency; i++ {
		<-done
	}
	w.log.Info("Hydration worker drained")
}

func (w *Worker) claimLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	jobTypes := w.registry.Types()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.jobs.ClaimNextRunnable(ctx, nil, jobTypes)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}

			h, ok := w.registry.Get(job.JobType)
			jc := NewJobContext(ctx, w.db, w.log, job, w.jobs)
			if !ok {
				w.log.Warn("No handler registered for job_type", "worker_id", workerID, "job_type", job.JobType, "job_id", job.ID)
				jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
				continue
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Job handler panic", "worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "panic", r)
						jc.Fail("panic", errFromRecover(r))
					}
				}()
				if runErr := h.Run(jc); runErr != nil {
					// Handlers normally call jc.Fail themselves; safety net.
					jc.Fail("run", runErr)
				}
			}()
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	if w.lifecycleID == uuid.Nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.lifecycle.Heartbeat(ctx, nil, w.lifecycleID); err != nil {
				w.log.Warn("Lifecycle heartbeat failed", "error", err)
			}
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
