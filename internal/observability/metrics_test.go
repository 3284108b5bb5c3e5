package observability

import (
	"strings"
	"testing"
)

func TestMetricsWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.WorkerSpawned()
	m.WorkerSpawned()
	m.WorkerExited("failed")
	m.JobRunOutcome("hydration_reconciler", "ok")
	m.FanOut(2, 5)
	m.RootCompleted()
	m.SetWorkersByStatus("RUNNING", 3)

	var b strings.Builder
	if err := m.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		"vidya_workers_spawned_total 2.000000",
		`vidya_worker_exits_total{outcome="failed"} 1.000000`,
		`vidya_scheduled_job_runs_total{job="hydration_reconciler",outcome="ok"} 1.000000`,
		`vidya_hydration_fanout_jobs_total{level="2"} 5.000000`,
		"vidya_hydration_roots_completed_total 1.000000",
		`vidya_workers_by_status{status="RUNNING"} 3.000000`,
		"# TYPE vidya_workers_by_status gauge",
		"# TYPE vidya_workers_spawned_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.WorkerSpawned()
	m.WorkerExited("stopped")
	m.JobRunOutcome("j", "ok")
	m.FanOut(1, 1)
	m.RootCompleted()
	m.ReconcileRootError()
	m.SetWorkersByStatus("RUNNING", 1)

	var b strings.Builder
	if err := m.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty exposition from nil metrics, got %q", b.String())
	}
}

func TestCounterVecLabelOrderStable(t *testing.T) {
	c := NewCounterVec("test_total", "test", []string{"b_label", "a_label"})
	c.Inc("x", "y")
	c.Inc("x", "y")
	if got := c.Value("x", "y"); got != 2 {
		t.Fatalf("expected 2, got %f", got)
	}

	var b strings.Builder
	if err := c.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if !strings.Contains(b.String(), `test_total{b_label="x",a_label="y"} 2.000000`) {
		t.Fatalf("unexpected exposition:\n%s", b.String())
	}
}
