package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vidyabase/vidya-backend/internal/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedSubject(tb testing.TB, ctx context.Context, tx *gorm.DB, code string) *types.Subject {
	tb.Helper()
	s := &types.Subject{
		ID:        uuid.New(),
		BoardCode: "cbse",
		Grade:     "10",
		Code:      code,
		Language:  "en",
		Name:      "Subject " + code,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed subject: %v", err)
	}
	return s
}

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID uuid.UUID, position int) *types.Chapter {
	tb.Helper()
	c := &types.Chapter{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Position:  position,
		Name:      "chapter",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return c
}

func SeedTopic(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID, chapterID uuid.UUID, position int) *types.Topic {
	tb.Helper()
	t := &types.Topic{
		ID:        uuid.New(),
		SubjectID: subjectID,
		ChapterID: chapterID,
		Position:  position,
		Name:      "topic",
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed topic: %v", err)
	}
	return t
}

func SeedRootJob(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID uuid.UUID, status string) *types.HydrationJob {
	tb.Helper()
	j := &types.HydrationJob{
		ID:             uuid.New(),
		HierarchyLevel: types.LevelRoot,
		JobType:        types.JobTypeRoot,
		SubjectID:      subjectID,
		Language:       "en",
		Status:         status,
		Payload:        datatypes.JSON([]byte(`{"generate_notes":true,"generate_questions":true}`)),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed root job: %v", err)
	}
	return j
}

func SeedChildJob(tb testing.TB, ctx context.Context, tx *gorm.DB, root *types.HydrationJob, level int, jobType, status string) *types.HydrationJob {
	tb.Helper()
	j := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      PtrUUID(root.ID),
		ParentJobID:    PtrUUID(root.ID),
		HierarchyLevel: level,
		JobType:        jobType,
		SubjectID:      root.SubjectID,
		Language:       root.Language,
		Status:         status,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed child job: %v", err)
	}
	return j
}

func SeedWorkerLifecycle(tb testing.TB, ctx context.Context, tx *gorm.DB, status string) *types.WorkerLifecycle {
	tb.Helper()
	w := &types.WorkerLifecycle{
		ID:     uuid.New(),
		Type:   "content-hydration",
		Status: status,
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed worker lifecycle: %v", err)
	}
	return w
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
