package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/types"
)

// AcquireResult reports the outcome of a lock acquisition attempt. A skipped
// acquisition is a normal no-op for the caller, never an error.
type AcquireResult struct {
	Acquired bool   `json:"acquired"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type JobLockRepo interface {
	// Acquire takes the named lock for ttl in a single conditional upsert.
	// If an unexpired lock exists the result is {Skipped, Reason: "locked"}.
	// Any storage error means the caller does NOT hold the lock.
	Acquire(ctx context.Context, tx *gorm.DB, name, owner string, ttl time.Duration) (AcquireResult, error)
	// Release drops the named lock if held by owner. Idempotent.
	Release(ctx context.Context, tx *gorm.DB, name, owner string) error
}

type jobLockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobLockRepo(db *gorm.DB, baseLog *logger.Logger) JobLockRepo {
	return &jobLockRepo{
		db:  db,
		log: baseLog.With("repo", "JobLockRepo"),
	}
}

func (r *jobLockRepo) Acquire(ctx context.Context, tx *gorm.DB, name, owner string, ttl time.Duration) (AcquireResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	lock := types.JobLock{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	// INSERT ... ON CONFLICT (name) DO UPDATE ... WHERE expires_at <= now.
	// Exactly one of two concurrent callers wins the row.
	res := transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lte{Column: clause.Column{Table: "job_lock", Name: "expires_at"}, Value: now},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":       owner,
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		}),
	}).Create(&lock)
	if res.Error != nil {
		return AcquireResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return AcquireResult{Skipped: true, Reason: "locked"}, nil
	}
	return AcquireResult{Acquired: true}, nil
}

func (r *jobLockRepo) Release(ctx context.Context, tx *gorm.DB, name, owner string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("name = ? AND owner = ?", name, owner).
		Delete(&types.JobLock{}).Error
}
