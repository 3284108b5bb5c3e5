package orchestrator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/repos/testutil"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type fakeLifecycleRepo struct {
	rows    map[uuid.UUID]*types.WorkerLifecycle
	updates map[uuid.UUID][]map[string]interface{}
}

func newFakeLifecycleRepo() *fakeLifecycleRepo {
	return &fakeLifecycleRepo{
		rows:    map[uuid.UUID]*types.WorkerLifecycle{},
		updates: map[uuid.UUID][]map[string]interface{}{},
	}
}

func (f *fakeLifecycleRepo) add(status string) *types.WorkerLifecycle {
	row := &types.WorkerLifecycle{ID: uuid.New(), Type: "content-hydration", Status: status}
	f.rows[row.ID] = row
	return row
}

func (f *fakeLifecycleRepo) Create(ctx context.Context, tx *gorm.DB, row *types.WorkerLifecycle) (*types.WorkerLifecycle, error) {
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeLifecycleRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkerLifecycle, error) {
	return f.rows[id], nil
}

func (f *fakeLifecycleRepo) FindByStatus(ctx context.Context, tx *gorm.DB, status string) ([]*types.WorkerLifecycle, error) {
	var out []*types.WorkerLifecycle
	for _, row := range f.rows {
		if row.Status == status {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLifecycleRepo) CountByStatus(ctx context.Context, tx *gorm.DB) ([]types.StatusCount, error) {
	counts := map[string]int64{}
	for _, row := range f.rows {
		counts[row.Status]++
	}
	var out []types.StatusCount
	for status, n := range counts {
		out = append(out, types.StatusCount{Status: status, Count: n})
	}
	return out, nil
}

func (f *fakeLifecycleRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.updates[id] = append(f.updates[id], updates)
	if row, ok := f.rows[id]; ok {
		if s, ok := updates["status"].(string); ok {
			row.Status = s
		}
		if pid, ok := updates["pid"].(int); ok {
			row.PID = pid
		}
	}
	return nil
}

func (f *fakeLifecycleRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

type fakeHandle struct {
	pid      int
	exitCode int
	waitErr  error
	exited   chan struct{}
	signals  []os.Signal
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.signals = append(h.signals, sig)
	return nil
}

func (h *fakeHandle) Wait() (int, error) {
	<-h.exited
	return h.exitCode, h.waitErr
}

type fakeSpawner struct {
	handles  map[uuid.UUID]*fakeHandle
	spawnErr error
	spawned  int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{handles: map[uuid.UUID]*fakeHandle{}}
}

func (s *fakeSpawner) Spawn(ctx context.Context, row *types.WorkerLifecycle) (ProcessHandle, error) {
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	s.spawned++
	h := &fakeHandle{pid: 1000 + s.spawned, exited: make(chan struct{})}
	s.handles[row.ID] = h
	return h, nil
}

func newTestOrchestrator(t *testing.T, lifecycle *fakeLifecycleRepo, spawner *fakeSpawner) *Orchestrator {
	t.Helper()
	return New(Config{PollInterval: time.Minute, Host: "test-host"}, testutil.Logger(t), lifecycle, spawner, nil, nil)
}

// awaitExit consumes the exitMsg posted by the spawn watcher goroutine and
// feeds it to the handler, standing in for the process loop.
func awaitExit(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case msg := <-o.msgs:
		m, ok := msg.(exitMsg)
		if !ok {
			t.Fatalf("expected exitMsg, got %T", msg)
		}
		o.handleExit(context.Background(), m)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for exit message")
	}
}

func TestPollSpawnsStartingWorkers(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	row := lifecycle.add(types.LifecycleStarting)
	o := newTestOrchestrator(t, lifecycle, spawner)

	o.handlePoll(context.Background())

	if spawner.spawned != 1 {
		t.Fatalf("expected 1 spawn, got %d", spawner.spawned)
	}
	if row.Status != types.LifecycleRunning {
		t.Fatalf("expected RUNNING, got %s", row.Status)
	}
	if row.PID == 0 {
		t.Fatalf("expected pid recorded")
	}
	if _, ok := o.tracked[row.ID]; !ok {
		t.Fatalf("expected process tracked")
	}

	// A second poll must not double-spawn a tracked worker.
	o.handlePoll(context.Background())
	if spawner.spawned != 1 {
		t.Fatalf("expected no respawn, got %d spawns", spawner.spawned)
	}
}

func TestSpawnFailureMarksRowFailed(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	spawner.spawnErr = errors.New("binary not found")
	row := lifecycle.add(types.LifecycleStarting)
	o := newTestOrchestrator(t, lifecycle, spawner)

	o.handlePoll(context.Background())

	if row.Status != types.LifecycleFailed {
		t.Fatalf("expected FAILED, got %s", row.Status)
	}
	if len(o.tracked) != 0 {
		t.Fatalf("expected nothing tracked after spawn failure")
	}
}

func TestCleanExitMarksRowStopped(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	row := lifecycle.add(types.LifecycleStarting)
	o := newTestOrchestrator(t, lifecycle, spawner)

	o.handlePoll(context.Background())
	close(spawner.handles[row.ID].exited)
	awaitExit(t, o)

	if row.Status != types.LifecycleStopped {
		t.Fatalf("expected STOPPED, got %s", row.Status)
	}
	if _, ok := o.tracked[row.ID]; ok {
		t.Fatalf("expected process untracked after exit")
	}
}

func TestNonzeroExitMarksRowFailed(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	row := lifecycle.add(types.LifecycleStarting)
	o := newTestOrchestrator(t, lifecycle, spawner)

	o.handlePoll(context.Background())
	h := spawner.handles[row.ID]
	h.exitCode = 3
	close(h.exited)
	awaitExit(t, o)

	if row.Status != types.LifecycleFailed {
		t.Fatalf("expected FAILED, got %s", row.Status)
	}
	last := lifecycle.updates[row.ID][len(lifecycle.updates[row.ID])-1]
	meta, ok := last["meta"].(datatypes.JSON)
	if !ok || len(meta) == 0 {
		t.Fatalf("expected exit metadata recorded, got %v", last["meta"])
	}
}

func TestDrainSignalsTrackedProcess(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	row := lifecycle.add(types.LifecycleStarting)
	o := newTestOrchestrator(t, lifecycle, spawner)

	o.handlePoll(context.Background())
	row.Status = types.LifecycleDraining
	o.handleDrain(context.Background())

	h := spawner.handles[row.ID]
	if len(h.signals) != 1 || h.signals[0] != os.Interrupt {
		t.Fatalf("expected one interrupt signal, got %v", h.signals)
	}
}

func TestDrainIgnoresUntrackedRows(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	spawner := newFakeSpawner()
	lifecycle.add(types.LifecycleDraining)
	o := newTestOrchestrator(t, lifecycle, spawner)

	// Must not panic or signal anything for a row this host never spawned.
	o.handleDrain(context.Background())
}

func TestExitForUnknownProcessIsIgnored(t *testing.T) {
	lifecycle := newFakeLifecycleRepo()
	o := newTestOrchestrator(t, lifecycle, newFakeSpawner())

	o.handleExit(context.Background(), exitMsg{id: uuid.New(), exitCode: 1})

	if len(lifecycle.updates) != 0 {
		t.Fatalf("expected no updates for unknown process, got %v", lifecycle.updates)
	}
}
