package orchestrator

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HeartbeatStatus is the on-disk liveness artifact external probes read.
type HeartbeatStatus struct {
	PID             int       `yaml:"pid"`
	Host            string    `yaml:"host"`
	Mode            string    `yaml:"mode"`
	StartedAt       time.Time `yaml:"started_at"`
	LastHeartbeatAt time.Time `yaml:"last_heartbeat_at"`
}

// writeHeartbeat is best-effort; a failed write is logged and never fatal.
func (o *Orchestrator) writeHeartbeat(mode string) {
	if o.cfg.HeartbeatFile == "" {
		return
	}
	status := HeartbeatStatus{
		PID:             os.Getpid(),
		Host:            o.cfg.Host,
		Mode:            mode,
		StartedAt:       o.started,
		LastHeartbeatAt: time.Now(),
	}
	b, err := yaml.Marshal(status)
	if err != nil {
		o.log.Warn("Heartbeat marshal failed", "error", err)
		return
	}
	if err := os.WriteFile(o.cfg.HeartbeatFile, b, 0o644); err != nil {
		o.log.Warn("Heartbeat write failed", "file", o.cfg.HeartbeatFile, "error", err)
	}
}

// ReadHeartbeatFile loads the status artifact for the liveness endpoint.
func ReadHeartbeatFile(path string) (*HeartbeatStatus, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status HeartbeatStatus
	if err := yaml.Unmarshal(b, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
