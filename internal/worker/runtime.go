package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/types"
)

// Handler processes one claimed hydration job.
type Handler interface {
	Type() string
	Run(jc *JobContext) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// JobContext is the per-claim execution context handed to handlers. Handlers
// own only their claimed row; Complete/Fail are the only status transitions
// they may make.
type JobContext struct {
	Ctx context.Context
	Job *types.HydrationJob

	db   *gorm.DB
	log  *logger.Logger
	repo repos.HydrationJobRepo
}

func NewJobContext(ctx context.Context, db *gorm.DB, log *logger.Logger, job *types.HydrationJob, repo repos.HydrationJobRepo) *JobContext {
	return &JobContext{
		Ctx:  ctx,
		Job:  job,
		db:   db,
		log:  log.With("job_id", job.ID, "job_type", job.JobType),
		repo: repo,
	}
}

func (jc *JobContext) DB() *gorm.DB { return jc.db }

func (jc *JobContext) Heartbeat() {
	if err := jc.repo.Heartbeat(jc.Ctx, nil, jc.Job.ID); err != nil {
		jc.log.Warn("Job heartbeat failed", "error", err)
	}
}

// MarkContentReady signals partial readiness before the row itself completes.
func (jc *JobContext) MarkContentReady() {
	if err := jc.repo.UpdateFields(jc.Ctx, nil, jc.Job.ID, map[string]interface{}{
		"content_ready": true,
	}); err != nil {
		jc.log.Warn("content_ready update failed", "error", err)
	}
}

func (jc *JobContext) Complete() {
	now := time.Now()
	if err := jc.repo.UpdateFields(jc.Ctx, nil, jc.Job.ID, map[string]interface{}{
		"status":       types.JobStatusCompleted,
		"completed_at": now,
	}); err != nil {
		jc.log.Error("Job completion update failed", "error", err)
	}
}

func (jc *JobContext) Fail(stage string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	now := time.Now()
	if uErr := jc.repo.UpdateFields(jc.Ctx, nil, jc.Job.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"last_error":    fmt.Sprintf("%s: %s", stage, msg),
		"last_error_at": now,
		"completed_at":  now,
	}); uErr != nil {
		jc.log.Error("Job failure update failed", "stage", stage, "error", uErr)
	}
}
