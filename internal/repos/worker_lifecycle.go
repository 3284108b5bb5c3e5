package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type WorkerLifecycleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.WorkerLifecycle) (*types.WorkerLifecycle, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkerLifecycle, error)
	FindByStatus(ctx context.Context, tx *gorm.DB, status string) ([]*types.WorkerLifecycle, error)
	CountByStatus(ctx context.Context, tx *gorm.DB) ([]types.StatusCount, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type workerLifecycleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkerLifecycleRepo(db *gorm.DB, baseLog *logger.Logger) WorkerLifecycleRepo {
	return &workerLifecycleRepo{
		db:  db,
		log: baseLog.With("repo", "WorkerLifecycleRepo"),
	}
}

func (r *workerLifecycleRepo) Create(ctx context.Context, tx *gorm.DB, row *types.WorkerLifecycle) (*types.WorkerLifecycle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *workerLifecycleRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkerLifecycle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.WorkerLifecycle
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *workerLifecycleRepo) FindByStatus(ctx context.Context, tx *gorm.DB, status string) ([]*types.WorkerLifecycle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WorkerLifecycle
	err := transaction.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workerLifecycleRepo) CountByStatus(ctx context.Context, tx *gorm.DB) ([]types.StatusCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.StatusCount
	err := transaction.WithContext(ctx).
		Model(&types.WorkerLifecycle{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workerLifecycleRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.WorkerLifecycle{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *workerLifecycleRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.WorkerLifecycle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_heartbeat_at": now,
			"updated_at":        now,
		}).Error
}
