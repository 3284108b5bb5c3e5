package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LifecycleStarting = "STARTING"
	LifecycleRunning  = "RUNNING"
	LifecycleDraining = "DRAINING"
	LifecycleStopped  = "STOPPED"
	LifecycleFailed   = "FAILED"
)

// WorkerLifecycle tracks one spawned worker OS process (or cluster Job).
// The orchestrator owns spawn/exit transitions; the worker itself owns
// heartbeats and drain acknowledgement. The two never write the same fields.
type WorkerLifecycle struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Type            string         `gorm:"column:type;not null;index" json:"type"`
	Host            string         `gorm:"column:host" json:"host,omitempty"`
	PID             int            `gorm:"column:pid" json:"pid,omitempty"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	Meta            datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time     `gorm:"column:last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
	StoppedAt       *time.Time     `gorm:"column:stopped_at" json:"stopped_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (WorkerLifecycle) TableName() string { return "worker_lifecycle" }
