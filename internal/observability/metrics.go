package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Metrics exposes the pipeline's counters in Prometheus text exposition
// format. Every method is safe on a nil receiver so callers never have to
// branch on whether metrics are wired.
type Metrics struct {
	workersSpawned  *Counter
	workerExits     *CounterVec
	jobRunOutcomes  *CounterVec
	fanOutJobs      *CounterVec
	rootsCompleted  *Counter
	reconcileErrors *Counter
	workersByStatus *GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		workersSpawned:  NewCounter("vidya_workers_spawned_total", "Worker processes spawned by the orchestrator."),
		workerExits:     NewCounterVec("vidya_worker_exits_total", "Worker process exits by outcome.", []string{"outcome"}),
		jobRunOutcomes:  NewCounterVec("vidya_scheduled_job_runs_total", "Scheduled job run outcomes by job/outcome.", []string{"job", "outcome"}),
		fanOutJobs:      NewCounterVec("vidya_hydration_fanout_jobs_total", "Hydration jobs created by fan-out, by hierarchy level.", []string{"level"}),
		rootsCompleted:  NewCounter("vidya_hydration_roots_completed_total", "Root hydration jobs marked completed."),
		reconcileErrors: NewCounter("vidya_hydration_reconcile_root_errors_total", "Per-root reconciliation errors."),
		workersByStatus: NewGaugeVec("vidya_workers_by_status", "Worker lifecycle rows by status.", []string{"status"}),
	}
}

func (m *Metrics) WorkerSpawned() {
	if m == nil {
		return
	}
	m.workersSpawned.Inc()
}

func (m *Metrics) WorkerExited(outcome string) {
	if m == nil {
		return
	}
	m.workerExits.Inc(outcome)
}

func (m *Metrics) JobRunOutcome(job, outcome string) {
	if m == nil {
		return
	}
	m.jobRunOutcomes.Inc(job, outcome)
}

func (m *Metrics) FanOut(level int, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.fanOutJobs.Add(float64(count), fmt.Sprintf("%d", level))
}

func (m *Metrics) RootCompleted() {
	if m == nil {
		return
	}
	m.rootsCompleted.Inc()
}

func (m *Metrics) ReconcileRootError() {
	if m == nil {
		return
	}
	m.reconcileErrors.Inc()
}

func (m *Metrics) SetWorkersByStatus(status string, count float64) {
	if m == nil {
		return
	}
	m.workersByStatus.Set(count, status)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.workersSpawned,
		m.workerExits,
		m.jobRunOutcomes,
		m.fanOutJobs,
		m.rootsCompleted,
		m.reconcileErrors,
		m.workersByStatus,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	lbl := labelString(c.labelNames, values)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[lbl]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range sortedKeys(c.values) {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, k := range sortedKeys(g.values) {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, g.values[k]); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", n, v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
