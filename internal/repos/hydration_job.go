package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type HydrationJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.HydrationJob) ([]*types.HydrationJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HydrationJob, error)
	// FindIncompleteRoots returns level-0 jobs that are not yet terminal.
	FindIncompleteRoots(ctx context.Context, tx *gorm.DB, limit int) ([]*types.HydrationJob, error)
	FindByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]*types.HydrationJob, error)
	CountByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]types.StatusCount, error)
	FindFailedByRoot(ctx context.Context, tx *gorm.DB, rootID uuid.UUID) ([]*types.HydrationJob, error)
	ListRoots(ctx context.Context, tx *gorm.DB, status string, limit, offset int) ([]*types.HydrationJob, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// ClaimNextRunnable picks one pending leaf job (levels 1-4) and marks it
	// running under FOR UPDATE SKIP LOCKED so concurrent workers never claim
	// the same row.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobTypes []string) (*types.HydrationJob, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	// RequeueStale flips running jobs whose claim went silent back to pending.
	RequeueStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration, maxAttempts int) (int64, error)
}

type hydrationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHydrationJobRepo(db *gorm.DB, baseLog *logger.Logger) HydrationJobRepo {
	return &hydrationJobRepo{
		db:  db,
		log: baseLog.With("repo", "HydrationJobRepo"),
	}
}

func (r *hydrationJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.HydrationJob) ([]*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.HydrationJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *hydrationJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.HydrationJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *hydrationJobRepo) FindIncompleteRoots(ctx context.Context, tx *gorm.DB, limit int) ([]*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.HydrationJob
	err := transaction.WithContext(ctx).
		Where("hierarchy_level = ? AND status NOT IN ?", types.LevelRoot, []string{types.JobStatusCompleted, types.JobStatusFailed}).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) FindByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HydrationJob
	err := transaction.WithContext(ctx).
		Where("root_job_id = ? AND hierarchy_level = ?", rootID, level).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) CountByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]types.StatusCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.StatusCount
	err := transaction.WithContext(ctx).
		Model(&types.HydrationJob{}).
		Select("status, count(*) as count").
		Where("root_job_id = ? AND hierarchy_level = ?", rootID, level).
		Group("status").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) FindFailedByRoot(ctx context.Context, tx *gorm.DB, rootID uuid.UUID) ([]*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HydrationJob
	err := transaction.WithContext(ctx).
		Where("root_job_id = ? AND status = ?", rootID, types.JobStatusFailed).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) ListRoots(ctx context.Context, tx *gorm.DB, status string, limit, offset int) ([]*types.HydrationJob, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := transaction.WithContext(ctx).
		Model(&types.HydrationJob{}).
		Where("hierarchy_level = ?", types.LevelRoot)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.HydrationJob
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *hydrationJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.HydrationJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *hydrationJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobTypes []string) (*types.HydrationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	var claimed *types.HydrationJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.HydrationJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("hierarchy_level > ? AND status = ?", types.LevelRoot, types.JobStatusPending)
		if len(jobTypes) > 0 {
			q = q.Where("job_type IN ?", jobTypes)
		}
		qErr := q.Order("created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.HydrationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *hydrationJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.HydrationJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *hydrationJobRepo) RequeueStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration, maxAttempts int) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleAfter)
	res := transaction.WithContext(ctx).
		Model(&types.HydrationJob{}).
		Where("hierarchy_level > ? AND status = ? AND attempts < ? AND (heartbeat_at IS NULL OR heartbeat_at < ?) AND locked_at < ?",
			types.LevelRoot, types.JobStatusRunning, maxAttempts, staleCutoff, staleCutoff).
		Updates(map[string]interface{}{
			"status":     types.JobStatusPending,
			"locked_at":  nil,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
