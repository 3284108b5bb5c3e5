package repos

import (
	"context"
	"testing"
	"time"

	"github.com/vidyabase/vidya-backend/internal/repos/testutil"
)

func TestJobLockRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewJobLockRepo(db, testutil.Logger(t))

	lockName := "test_reconciler_" + time.Now().Format("150405.000000000")

	res, err := repo.Acquire(ctx, tx, lockName, "owner-a", time.Minute)
	if err != nil {
		t.Fatalf("Acquire #1: %v", err)
	}
	if !res.Acquired || res.Skipped {
		t.Fatalf("Acquire #1: expected acquired, got %+v", res)
	}

	// A second owner must be refused while the lock is live.
	res, err = repo.Acquire(ctx, tx, lockName, "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("Acquire #2: %v", err)
	}
	if !res.Skipped || res.Reason != "locked" {
		t.Fatalf("Acquire #2: expected skip, got %+v", res)
	}

	// Release by the wrong owner is a no-op; the lock stays held.
	if err := repo.Release(ctx, tx, lockName, "owner-b"); err != nil {
		t.Fatalf("Release wrong owner: %v", err)
	}
	res, err = repo.Acquire(ctx, tx, lockName, "owner-b", time.Minute)
	if err != nil || !res.Skipped {
		t.Fatalf("Acquire after wrong-owner release: err=%v res=%+v", err, res)
	}

	if err := repo.Release(ctx, tx, lockName, "owner-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Idempotent release.
	if err := repo.Release(ctx, tx, lockName, "owner-a"); err != nil {
		t.Fatalf("Release again: %v", err)
	}

	res, err = repo.Acquire(ctx, tx, lockName, "owner-b", time.Minute)
	if err != nil || !res.Acquired {
		t.Fatalf("Acquire after release: err=%v res=%+v", err, res)
	}
}

func TestJobLockRepoExpiredLockIsTakeable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewJobLockRepo(db, testutil.Logger(t))

	lockName := "test_expiry_" + time.Now().Format("150405.000000000")

	res, err := repo.Acquire(ctx, tx, lockName, "owner-a", -time.Second)
	if err != nil || !res.Acquired {
		t.Fatalf("Acquire expired: err=%v res=%+v", err, res)
	}

	// The previous holder's TTL has lapsed, so the CAS update wins the row.
	res, err = repo.Acquire(ctx, tx, lockName, "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("Acquire takeover: %v", err)
	}
	if !res.Acquired {
		t.Fatalf("Acquire takeover: expected acquired, got %+v", res)
	}
}
