package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent is an append-only operator-facing log line attached to a root
// hydration job or a worker lifecycle row. Writes are always best-effort.
type AuditEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Scope     string         `gorm:"column:scope;not null;index" json:"scope"`
	ScopeID   *uuid.UUID     `gorm:"type:uuid;column:scope_id;index" json:"scope_id,omitempty"`
	Event     string         `gorm:"column:event;not null" json:"event"`
	Detail    datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }

const (
	AuditScopeHydration = "hydration"
	AuditScopeWorker    = "worker"
)
