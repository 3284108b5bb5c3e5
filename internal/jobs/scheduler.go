package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/repos"
)

// Scheduler drives registered jobs on their interval or cron schedule. Every
// invocation is guarded by the job's lock; a contended lock is a logged skip,
// not a failure.
type Scheduler struct {
	log     *logger.Logger
	locks   repos.JobLockRepo
	reg     *Registry
	owner   string
	metrics *observability.Metrics
}

func NewScheduler(baseLog *logger.Logger, locks repos.JobLockRepo, reg *Registry, metrics *observability.Metrics) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		log:     baseLog.With("component", "JobScheduler"),
		locks:   locks,
		reg:     reg,
		owner:   fmt.Sprintf("%s:%d", host, os.Getpid()),
		metrics: metrics,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	var c *cron.Cron
	for _, def := range s.reg.All() {
		def := def
		if def.EverySec > 0 {
			go s.intervalLoop(ctx, def)
			continue
		}
		if def.CronSpec != "" {
			if c == nil {
				c = cron.New()
			}
			if _, err := c.AddFunc(def.CronSpec, func() { s.runGuarded(ctx, def) }); err != nil {
				s.log.Error("Invalid cron spec for job", "job", def.Name, "spec", def.CronSpec, "error", err)
			}
		}
	}
	if c != nil {
		c.Start()
		go func() {
			<-ctx.Done()
			c.Stop()
		}()
	}
}

// RunJob triggers a registered job by name, for external cron callers.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	def, ok := s.reg.Get(name)
	if !ok {
		return fmt.Errorf("no job registered with name %s", name)
	}
	s.runGuarded(ctx, def)
	return nil
}

func (s *Scheduler) intervalLoop(ctx context.Context, def Definition) {
	ticker := time.NewTicker(time.Duration(def.EverySec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded(ctx, def)
		}
	}
}

func (s *Scheduler) runGuarded(ctx context.Context, def Definition) {
	res, err := s.locks.Acquire(ctx, nil, def.LockKey, s.owner, def.Timeout)
	if err != nil {
		// Fail closed: an acquire error never counts as holding the lock.
		s.log.Warn("Lock acquire failed, skipping job run", "job", def.Name, "lock", def.LockKey, "error", err)
		s.metrics.JobRunOutcome(def.Name, "lock_error")
		return
	}
	if res.Skipped {
		s.log.Debug("Lock held elsewhere, skipping job run", "job", def.Name, "lock", def.LockKey, "reason", res.Reason)
		s.metrics.JobRunOutcome(def.Name, "skipped")
		return
	}
	defer func() {
		if rErr := s.locks.Release(ctx, nil, def.LockKey, s.owner); rErr != nil {
			s.log.Warn("Lock release failed", "job", def.Name, "lock", def.LockKey, "error", rErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Job panicked", "job", def.Name, "panic", r)
			s.metrics.JobRunOutcome(def.Name, "panic")
		}
	}()

	start := time.Now()
	if err := def.Run(ctx); err != nil {
		s.log.Error("Job run failed", "job", def.Name, "duration", time.Since(start).String(), "error", err)
		s.metrics.JobRunOutcome(def.Name, "error")
		return
	}
	s.log.Debug("Job run completed", "job", def.Name, "duration", time.Since(start).String())
	s.metrics.JobRunOutcome(def.Name, "ok")
}
