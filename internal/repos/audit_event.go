package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type AuditEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *types.AuditEvent) error
	FindRecentByScope(ctx context.Context, tx *gorm.DB, scope string, scopeID uuid.UUID, limit int) ([]*types.AuditEvent, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return &auditEventRepo{
		db:  db,
		log: baseLog.With("repo", "AuditEventRepo"),
	}
}

func (r *auditEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.AuditEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(event).Error
}

func (r *auditEventRepo) FindRecentByScope(ctx context.Context, tx *gorm.DB, scope string, scopeID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*types.AuditEvent
	err := transaction.WithContext(ctx).
		Where("scope = ? AND scope_id = ?", scope, scopeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
