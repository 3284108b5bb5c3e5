package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/vidyabase/vidya-backend/internal/types"
)

// ProcessHandle is one live worker OS process.
type ProcessHandle interface {
	PID() int
	Signal(sig os.Signal) error
	// Wait blocks until the process exits and returns its exit code. A
	// signal-terminated process reports a nonzero code.
	Wait() (int, error)
}

// ProcessSpawner starts a worker process for a lifecycle row.
type ProcessSpawner interface {
	Spawn(ctx context.Context, row *types.WorkerLifecycle) (ProcessHandle, error)
}

type execSpawner struct {
	workerBin string
}

// NewExecSpawner spawns local subprocesses of the given worker binary with
// --type and --lifecycle-id arguments.
func NewExecSpawner(workerBin string) ProcessSpawner {
	return &execSpawner{workerBin: workerBin}
}

func (s *execSpawner) Spawn(ctx context.Context, row *types.WorkerLifecycle) (ProcessHandle, error) {
	if s.workerBin == "" {
		return nil, fmt.Errorf("worker binary path not configured")
	}
	cmd := exec.Command(s.workerBin, "--type", row.Type, "--lifecycle-id", row.ID.String())
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}
	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return h.cmd.Process.Signal(sig)
}

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
