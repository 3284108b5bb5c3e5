package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Definition is one named, idempotent, lock-guarded job. Schedule is either
// EverySec (interval ticker) or CronSpec (robfig cron expression); a job with
// neither is only run when an external caller triggers it by name.
type Definition struct {
	Name     string
	LockKey  string
	Timeout  time.Duration
	EverySec int
	CronSpec string
	Run      func(ctx context.Context) error
}

// Registry is an explicit table of job definitions, built at process startup
// and handed to the scheduler. Registration has no side effects beyond the
// table itself.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("job name is empty")
	}
	if def.Run == nil {
		return fmt.Errorf("job %s has no run function", def.Name)
	}
	if def.LockKey == "" {
		def.LockKey = def.Name
	}
	if def.Timeout <= 0 {
		def.Timeout = 5 * time.Minute
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[def.Name]; exists {
		return fmt.Errorf("job already registered: %s", def.Name)
	}
	r.jobs[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.jobs[name]
	return def, ok
}

func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.jobs))
	for _, def := range r.jobs {
		out = append(out, def)
	}
	return out
}
