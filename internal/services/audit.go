package services

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/types"
)

// AuditService records operator-facing events on the audit trail and mirrors
// them onto the Redis bus for live dashboards. Both writes are best-effort:
// an observability failure never touches the pipeline's correctness path.
type AuditService struct {
	log     *logger.Logger
	repo    repos.AuditEventRepo
	rdb     *goredis.Client
	channel string
}

func NewAuditService(baseLog *logger.Logger, repo repos.AuditEventRepo, rdb *goredis.Client, channel string) *AuditService {
	if channel == "" {
		channel = "hydration_events"
	}
	return &AuditService{
		log:     baseLog.With("service", "AuditService"),
		repo:    repo,
		rdb:     rdb,
		channel: channel,
	}
}

func (s *AuditService) Hydration(ctx context.Context, rootJobID uuid.UUID, event string, detail map[string]interface{}) {
	s.emit(ctx, types.AuditScopeHydration, rootJobID, event, detail)
}

func (s *AuditService) Worker(ctx context.Context, lifecycleID uuid.UUID, event string, detail map[string]interface{}) {
	s.emit(ctx, types.AuditScopeWorker, lifecycleID, event, detail)
}

func (s *AuditService) emit(ctx context.Context, scope string, scopeID uuid.UUID, event string, detail map[string]interface{}) {
	if s == nil {
		return
	}
	var raw datatypes.JSON
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	id := scopeID
	row := &types.AuditEvent{
		ID:      uuid.New(),
		Scope:   scope,
		ScopeID: &id,
		Event:   event,
		Detail:  raw,
	}
	if s.repo != nil {
		if err := s.repo.Create(ctx, nil, row); err != nil {
			s.log.Warn("Audit event write failed", "scope", scope, "event", event, "error", err)
		}
	}
	if s.rdb != nil {
		payload, err := json.Marshal(row)
		if err != nil {
			return
		}
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.rdb.Publish(pubCtx, s.channel, payload).Err(); err != nil {
			s.log.Warn("Audit event publish failed", "scope", scope, "event", event, "error", err)
		}
	}
}
