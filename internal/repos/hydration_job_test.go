package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vidyabase/vidya-backend/internal/repos/testutil"
	"github.com/vidyabase/vidya-backend/internal/types"
)

func TestHydrationJobRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewHydrationJobRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	subjectID := uuid.New()

	root := &types.HydrationJob{
		ID:             uuid.New(),
		HierarchyLevel: types.LevelRoot,
		JobType:        types.JobTypeRoot,
		SubjectID:      subjectID,
		Language:       "en",
		Status:         types.JobStatusPending,
		Payload:        datatypes.JSON([]byte(`{"generate_notes":true}`)),
		CreatedAt:      now.Add(-2 * time.Hour),
	}
	syllabus := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &root.ID,
		ParentJobID:    &root.ID,
		HierarchyLevel: types.LevelSyllabus,
		JobType:        types.JobTypeSyllabus,
		SubjectID:      subjectID,
		Language:       "en",
		Status:         types.JobStatusPending,
		CreatedAt:      now.Add(-90 * time.Minute),
	}
	expandDone := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &root.ID,
		ParentJobID:    &syllabus.ID,
		HierarchyLevel: types.LevelTopicExpand,
		JobType:        types.JobTypeTopicExpand,
		SubjectID:      subjectID,
		Language:       "en",
		Status:         types.JobStatusCompleted,
		CreatedAt:      now.Add(-80 * time.Minute),
	}
	expandFailed := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &root.ID,
		ParentJobID:    &syllabus.ID,
		HierarchyLevel: types.LevelTopicExpand,
		JobType:        types.JobTypeTopicExpand,
		SubjectID:      subjectID,
		Language:       "en",
		Status:         types.JobStatusFailed,
		LastError:      "expand_topics: backend timeout",
		CreatedAt:      now.Add(-70 * time.Minute),
	}

	if _, err := repo.Create(ctx, tx, []*types.HydrationJob{root, syllabus, expandDone, expandFailed}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, root.ID)
	if err != nil || got == nil || got.ID != root.ID {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if missing, err := repo.GetByID(ctx, tx, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: err=%v got=%v", err, missing)
	}

	roots, err := repo.FindIncompleteRoots(ctx, tx, 10)
	if err != nil {
		t.Fatalf("FindIncompleteRoots: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != root.ID {
		t.Fatalf("FindIncompleteRoots: expected root only, got %d rows", len(roots))
	}

	l2, err := repo.FindByRootAndLevel(ctx, tx, root.ID, types.LevelTopicExpand)
	if err != nil || len(l2) != 2 {
		t.Fatalf("FindByRootAndLevel: err=%v len=%d", err, len(l2))
	}

	counts, err := repo.CountByRootAndLevel(ctx, tx, root.ID, types.LevelTopicExpand)
	if err != nil {
		t.Fatalf("CountByRootAndLevel: %v", err)
	}
	byStatus := map[string]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	if byStatus[types.JobStatusCompleted] != 1 || byStatus[types.JobStatusFailed] != 1 {
		t.Fatalf("CountByRootAndLevel: unexpected grouping %v", byStatus)
	}

	failed, err := repo.FindFailedByRoot(ctx, tx, root.ID)
	if err != nil || len(failed) != 1 || failed[0].ID != expandFailed.ID {
		t.Fatalf("FindFailedByRoot: err=%v len=%d", err, len(failed))
	}

	// Only the pending syllabus job is claimable; claims walk created_at ASC.
	claim1, err := repo.ClaimNextRunnable(ctx, tx, nil)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #1: %v", err)
	}
	if claim1 == nil || claim1.ID != syllabus.ID {
		t.Fatalf("ClaimNextRunnable #1: expected syllabus job, got %v", claim1)
	}
	claim2, err := repo.ClaimNextRunnable(ctx, tx, nil)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #2: %v", err)
	}
	if claim2 != nil {
		t.Fatalf("ClaimNextRunnable #2: expected nil, got %v", claim2)
	}

	claimed, err := repo.GetByID(ctx, tx, syllabus.ID)
	if err != nil {
		t.Fatalf("GetByID claimed: %v", err)
	}
	if claimed.Status != types.JobStatusRunning || claimed.Attempts != 1 || claimed.LockedAt == nil {
		t.Fatalf("claim must mark running with attempts=1, got %+v", claimed)
	}

	// Type filter must not hand out jobs of unregistered types.
	noteOnly, err := repo.ClaimNextRunnable(ctx, tx, []string{types.JobTypeNoteGen})
	if err != nil || noteOnly != nil {
		t.Fatalf("ClaimNextRunnable filtered: err=%v got=%v", err, noteOnly)
	}

	if err := repo.Heartbeat(ctx, tx, syllabus.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	if err := repo.UpdateFields(ctx, tx, root.ID, map[string]interface{}{
		"status":            types.JobStatusRunning,
		"chapters_expected": 2,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	updated, _ := repo.GetByID(ctx, tx, root.ID)
	if updated.Status != types.JobStatusRunning || updated.ChaptersExpected != 2 {
		t.Fatalf("UpdateFields: not applied, got %+v", updated)
	}

	rows, total, err := repo.ListRoots(ctx, tx, types.JobStatusRunning, 10, 0)
	if err != nil || total != 1 || len(rows) != 1 {
		t.Fatalf("ListRoots: err=%v total=%d len=%d", err, total, len(rows))
	}
	if rows, total, err = repo.ListRoots(ctx, tx, types.JobStatusFailed, 10, 0); err != nil || total != 0 || len(rows) != 0 {
		t.Fatalf("ListRoots filtered: err=%v total=%d len=%d", err, total, len(rows))
	}
}

func TestHydrationJobRepoRequeueStale(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewHydrationJobRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	rootID := uuid.New()
	stale := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &rootID,
		HierarchyLevel: types.LevelNoteGen,
		JobType:        types.JobTypeNoteGen,
		SubjectID:      uuid.New(),
		Language:       "en",
		Status:         types.JobStatusRunning,
		Attempts:       1,
		LockedAt:       testutil.PtrTime(now.Add(-2 * time.Hour)),
		HeartbeatAt:    testutil.PtrTime(now.Add(-2 * time.Hour)),
	}
	fresh := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &rootID,
		HierarchyLevel: types.LevelNoteGen,
		JobType:        types.JobTypeNoteGen,
		SubjectID:      stale.SubjectID,
		Language:       "en",
		Status:         types.JobStatusRunning,
		Attempts:       1,
		LockedAt:       testutil.PtrTime(now),
		HeartbeatAt:    testutil.PtrTime(now),
	}
	exhausted := &types.HydrationJob{
		ID:             uuid.New(),
		RootJobID:      &rootID,
		HierarchyLevel: types.LevelNoteGen,
		JobType:        types.JobTypeNoteGen,
		SubjectID:      stale.SubjectID,
		Language:       "en",
		Status:         types.JobStatusRunning,
		Attempts:       5,
		LockedAt:       testutil.PtrTime(now.Add(-2 * time.Hour)),
		HeartbeatAt:    testutil.PtrTime(now.Add(-2 * time.Hour)),
	}
	if _, err := repo.Create(ctx, tx, []*types.HydrationJob{stale, fresh, exhausted}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.RequeueStale(ctx, tx, 30*time.Minute, 5)
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("RequeueStale: expected 1 row, got %d", n)
	}

	requeued, _ := repo.GetByID(ctx, tx, stale.ID)
	if requeued.Status != types.JobStatusPending {
		t.Fatalf("expected stale job pending, got %s", requeued.Status)
	}
	untouched, _ := repo.GetByID(ctx, tx, fresh.ID)
	if untouched.Status != types.JobStatusRunning {
		t.Fatalf("expected fresh job untouched, got %s", untouched.Status)
	}
	capped, _ := repo.GetByID(ctx, tx, exhausted.ID)
	if capped.Status != types.JobStatusRunning {
		t.Fatalf("expected exhausted job untouched, got %s", capped.Status)
	}
}
