package types

import "time"

// JobLock is a named TTL mutex row. At most one unexpired row exists per name;
// acquisition is a single conditional upsert, never read-then-write.
type JobLock struct {
	Name       string    `gorm:"column:name;primaryKey" json:"name"`
	Owner      string    `gorm:"column:owner" json:"owner,omitempty"`
	AcquiredAt time.Time `gorm:"column:acquired_at;not null" json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
}

func (JobLock) TableName() string { return "job_lock" }
