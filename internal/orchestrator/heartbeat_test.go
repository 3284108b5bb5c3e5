package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vidyabase/vidya-backend/internal/repos/testutil"
)

func TestHeartbeatFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.yaml")
	o := New(Config{PollInterval: time.Minute, Host: "hb-host", HeartbeatFile: path},
		testutil.Logger(t), newFakeLifecycleRepo(), newFakeSpawner(), nil, nil)
	o.started = time.Now().Add(-time.Hour)

	o.writeHeartbeat("local")

	status, err := ReadHeartbeatFile(path)
	if err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if status.Host != "hb-host" || status.Mode != "local" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if !status.StartedAt.Before(status.LastHeartbeatAt) {
		t.Fatalf("expected started_at before last_heartbeat_at")
	}
}

func TestWriteHeartbeatNoopWithoutPath(t *testing.T) {
	o := New(Config{PollInterval: time.Minute}, testutil.Logger(t), newFakeLifecycleRepo(), newFakeSpawner(), nil, nil)
	o.writeHeartbeat("local")
}

func TestReadHeartbeatFileMissing(t *testing.T) {
	if _, err := ReadHeartbeatFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing heartbeat file")
	}
}
