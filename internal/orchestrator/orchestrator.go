package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type Config struct {
	PollInterval  time.Duration
	HeartbeatFile string
	Host          string
}

// Orchestrator supervises worker OS processes for STARTING lifecycle rows.
// A single goroutine owns the tracked-process map; poll ticks, drain ticks
// and process exits all arrive as messages on one channel, so no two
// concurrent paths ever touch the map.
type Orchestrator struct {
	cfg       Config
	log       *logger.Logger
	lifecycle repos.WorkerLifecycleRepo
	spawner   ProcessSpawner
	audit     *services.AuditService
	metrics   *observability.Metrics

	msgs    chan message
	tracked map[uuid.UUID]ProcessHandle
	started time.Time
}

type message interface{ isMessage() }

type pollMsg struct{}
type drainMsg struct{}
type exitMsg struct {
	id       uuid.UUID
	exitCode int
	waitErr  error
}

func (pollMsg) isMessage()  {}
func (drainMsg) isMessage() {}
func (exitMsg) isMessage()  {}

func New(cfg Config, baseLog *logger.Logger, lifecycle repos.WorkerLifecycleRepo, spawner ProcessSpawner, audit *services.AuditService, metrics *observability.Metrics) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	return &Orchestrator{
		cfg:       cfg,
		log:       baseLog.With("component", "WorkerOrchestrator"),
		lifecycle: lifecycle,
		spawner:   spawner,
		audit:     audit,
		metrics:   metrics,
		msgs:      make(chan message, 64),
		tracked:   make(map[uuid.UUID]ProcessHandle),
	}
}

// Run blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.started = time.Now()
	o.log.Info("Orchestrator starting", "poll_interval", o.cfg.PollInterval.String(), "host", o.cfg.Host)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.tickLoop(gctx) })
	g.Go(func() error { return o.heartbeatLoop(gctx) })
	g.Go(func() error { return o.processLoop(gctx) })
	return g.Wait()
}

func (o *Orchestrator) tickLoop(ctx context.Context) error {
	poll := time.NewTicker(o.cfg.PollInterval)
	drain := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()
	defer drain.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			o.send(ctx, pollMsg{})
		case <-drain.C:
			o.send(ctx, drainMsg{})
		}
	}
}

func (o *Orchestrator) send(ctx context.Context, msg message) {
	select {
	case o.msgs <- msg:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) processLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-o.msgs:
			switch m := msg.(type) {
			case pollMsg:
				o.handlePoll(ctx)
			case drainMsg:
				o.handleDrain(ctx)
			case exitMsg:
				o.handleExit(ctx, m)
			}
		}
	}
}

func (o *Orchestrator) handlePoll(ctx context.Context) {
	rows, err := o.lifecycle.FindByStatus(ctx, nil, types.LifecycleStarting)
	if err != nil {
		o.log.Warn("Poll for STARTING rows failed", "error", err)
		return
	}
	for _, row := range rows {
		if _, ok := o.tracked[row.ID]; ok {
			continue
		}
		o.spawn(ctx, row)
	}
}

func (o *Orchestrator) spawn(ctx context.Context, row *types.WorkerLifecycle) {
	handle, err := o.spawner.Spawn(ctx, row)
	if err != nil {
		o.log.Error("Worker spawn failed", "lifecycle_id", row.ID, "type", row.Type, "error", err)
		now := time.Now()
		if uErr := o.lifecycle.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
			"status":     types.LifecycleFailed,
			"stopped_at": now,
			"meta":       metaJSON(map[string]interface{}{"spawn_error": err.Error()}),
		}); uErr != nil {
			o.log.Warn("Lifecycle update after spawn failure failed", "lifecycle_id", row.ID, "error", uErr)
		}
		o.audit.Worker(ctx, row.ID, "spawn_failed", map[string]interface{}{"error": err.Error()})
		return
	}

	o.tracked[row.ID] = handle
	now := time.Now()
	if err := o.lifecycle.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
		"status":            types.LifecycleRunning,
		"pid":               handle.PID(),
		"host":              o.cfg.Host,
		"started_at":        now,
		"last_heartbeat_at": now,
	}); err != nil {
		o.log.Warn("Lifecycle update after spawn failed", "lifecycle_id", row.ID, "error", err)
	}
	o.metrics.WorkerSpawned()
	o.audit.Worker(ctx, row.ID, "spawned", map[string]interface{}{"pid": handle.PID(), "host": o.cfg.Host})
	o.log.Info("Worker spawned", "lifecycle_id", row.ID, "type", row.Type, "pid", handle.PID())

	id := row.ID
	go func() {
		code, waitErr := handle.Wait()
		o.send(ctx, exitMsg{id: id, exitCode: code, waitErr: waitErr})
	}()
}

func (o *Orchestrator) handleExit(ctx context.Context, m exitMsg) {
	if _, ok := o.tracked[m.id]; !ok {
		return
	}
	delete(o.tracked, m.id)

	status := types.LifecycleStopped
	outcome := "stopped"
	meta := map[string]interface{}{"exit_code": m.exitCode}
	if m.waitErr != nil {
		meta["wait_error"] = m.waitErr.Error()
	}
	if m.exitCode != 0 || m.waitErr != nil {
		status = types.LifecycleFailed
		outcome = "failed"
	}

	now := time.Now()
	if err := o.lifecycle.UpdateFields(ctx, nil, m.id, map[string]interface{}{
		"status":     status,
		"stopped_at": now,
		"meta":       metaJSON(meta),
	}); err != nil {
		// The row stays stale until someone reconciles it by hand; the poll
		// loop itself must keep going.
		o.log.Error("Lifecycle update after exit failed", "lifecycle_id", m.id, "status", status, "error", err)
	}
	o.metrics.WorkerExited(outcome)
	o.audit.Worker(ctx, m.id, "exited", meta)
	o.log.Info("Worker exited", "lifecycle_id", m.id, "exit_code", m.exitCode, "status", status)
}

func (o *Orchestrator) handleDrain(ctx context.Context) {
	rows, err := o.lifecycle.FindByStatus(ctx, nil, types.LifecycleDraining)
	if err != nil {
		o.log.Warn("Poll for DRAINING rows failed", "error", err)
		return
	}
	for _, row := range rows {
		handle, ok := o.tracked[row.ID]
		if !ok {
			continue
		}
		if err := handle.Signal(os.Interrupt); err != nil {
			o.log.Warn("Drain signal failed", "lifecycle_id", row.ID, "pid", handle.PID(), "error", err)
			continue
		}
		o.log.Info("Drain signal sent", "lifecycle_id", row.ID, "pid", handle.PID())
	}
}

func (o *Orchestrator) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.writeHeartbeat("local")
			o.publishWorkerGauges(ctx)
		}
	}
}

func (o *Orchestrator) publishWorkerGauges(ctx context.Context) {
	counts, err := o.lifecycle.CountByStatus(ctx, nil)
	if err != nil {
		o.log.Debug("Worker status counts failed", "error", err)
		return
	}
	for _, c := range counts {
		o.metrics.SetWorkersByStatus(c.Status, float64(c.Count))
	}
}

func metaJSON(m map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error())))
	}
	return datatypes.JSON(b)
}
