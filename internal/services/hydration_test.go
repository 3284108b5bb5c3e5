package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/repos/testutil"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type stubSubjectRepo struct {
	subject *types.Subject
}

func (s *stubSubjectRepo) Create(ctx context.Context, tx *gorm.DB, subject *types.Subject) (*types.Subject, error) {
	return subject, nil
}

func (s *stubSubjectRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Subject, error) {
	return s.subject, nil
}

func (s *stubSubjectRepo) GetByScope(ctx context.Context, tx *gorm.DB, boardCode, grade, code, language string) (*types.Subject, error) {
	return s.subject, nil
}

type stubChapterRepo struct {
	chapters []*types.Chapter
}

func (s *stubChapterRepo) Create(ctx context.Context, tx *gorm.DB, chapters []*types.Chapter) ([]*types.Chapter, error) {
	return chapters, nil
}

func (s *stubChapterRepo) ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Chapter, error) {
	return s.chapters, nil
}

type stubTopicRepo struct {
	topics []*types.Topic
}

func (s *stubTopicRepo) Create(ctx context.Context, tx *gorm.DB, topics []*types.Topic) ([]*types.Topic, error) {
	return topics, nil
}

func (s *stubTopicRepo) ListByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) ([]*types.Topic, error) {
	return s.topics, nil
}

func (s *stubTopicRepo) ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Topic, error) {
	return s.topics, nil
}

func (s *stubTopicRepo) CountByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) (int64, error) {
	return int64(len(s.topics)), nil
}

type stubJobRepo struct {
	created []*types.HydrationJob
	root    *types.HydrationJob
	failed  []*types.HydrationJob
}

func (s *stubJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.HydrationJob) ([]*types.HydrationJob, error) {
	s.created = append(s.created, jobs...)
	return jobs, nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HydrationJob, error) {
	return s.root, nil
}

func (s *stubJobRepo) FindIncompleteRoots(ctx context.Context, tx *gorm.DB, limit int) ([]*types.HydrationJob, error) {
	return nil, nil
}

func (s *stubJobRepo) FindByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]*types.HydrationJob, error) {
	return nil, nil
}

func (s *stubJobRepo) CountByRootAndLevel(ctx context.Context, tx *gorm.DB, rootID uuid.UUID, level int) ([]types.StatusCount, error) {
	return nil, nil
}

func (s *stubJobRepo) FindFailedByRoot(ctx context.Context, tx *gorm.DB, rootID uuid.UUID) ([]*types.HydrationJob, error) {
	return s.failed, nil
}

func (s *stubJobRepo) ListRoots(ctx context.Context, tx *gorm.DB, status string, limit, offset int) ([]*types.HydrationJob, int64, error) {
	return nil, 0, nil
}

func (s *stubJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *stubJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobTypes []string) (*types.HydrationJob, error) {
	return nil, nil
}

func (s *stubJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func (s *stubJobRepo) RequeueStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration, maxAttempts int) (int64, error) {
	return 0, nil
}

func newTestService(t *testing.T, subjects *stubSubjectRepo, chapters *stubChapterRepo, topics *stubTopicRepo, jobs *stubJobRepo) *HydrationService {
	t.Helper()
	return NewHydrationService(nil, testutil.Logger(t), jobs, subjects, chapters, topics, nil, nil)
}

func TestSubmitCreatesRootJob(t *testing.T) {
	subject := &types.Subject{ID: uuid.New(), Language: "en"}
	jobs := &stubJobRepo{}
	svc := newTestService(t, &stubSubjectRepo{subject: subject}, &stubChapterRepo{}, &stubTopicRepo{}, jobs)

	res, err := svc.Submit(context.Background(), nil, HydrationRequest{
		Language: "en", BoardCode: "cbse", Grade: "10", SubjectCode: "phy",
		Options: HydrationSubmitOptions{HydrationOptions: types.HydrationOptions{GenerateNotes: true}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.JobID == nil {
		t.Fatalf("expected job id")
	}
	if len(jobs.created) != 1 {
		t.Fatalf("expected 1 root job created, got %d", len(jobs.created))
	}
	root := jobs.created[0]
	if root.HierarchyLevel != types.LevelRoot || root.JobType != types.JobTypeRoot {
		t.Fatalf("unexpected root job: %+v", root)
	}
	if root.SubjectID != subject.ID || root.Status != types.JobStatusPending {
		t.Fatalf("unexpected root job scope: %+v", root)
	}
	if len(root.Payload) == 0 {
		t.Fatalf("expected options payload on root job")
	}
}

func TestSubmitUnknownSubject(t *testing.T) {
	svc := newTestService(t, &stubSubjectRepo{}, &stubChapterRepo{}, &stubTopicRepo{}, &stubJobRepo{})

	_, err := svc.Submit(context.Background(), nil, HydrationRequest{
		Language: "en", BoardCode: "cbse", Grade: "10", SubjectCode: "nope",
	})
	if err != ErrSubjectNotFound {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestSubmitDryRunCreatesNothing(t *testing.T) {
	subject := &types.Subject{ID: uuid.New()}
	jobs := &stubJobRepo{}
	svc := newTestService(t, &stubSubjectRepo{subject: subject}, &stubChapterRepo{}, &stubTopicRepo{}, jobs)

	res, err := svc.Submit(context.Background(), nil, HydrationRequest{
		Language: "en", BoardCode: "cbse", Grade: "10", SubjectCode: "phy",
		Options: HydrationSubmitOptions{
			HydrationOptions: types.HydrationOptions{GenerateNotes: true, GenerateQuestions: true},
			DryRun:           true,
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.DryRun || res.Estimate == nil {
		t.Fatalf("expected dry-run estimate, got %+v", res)
	}
	if len(jobs.created) != 0 {
		t.Fatalf("dry run must not create jobs, created %d", len(jobs.created))
	}
	if res.Estimate.EstimatedCostUSD <= 0 || res.Estimate.Questions == 0 {
		t.Fatalf("unexpected estimate: %+v", res.Estimate)
	}
}

func TestEstimateUsesKnownCurriculum(t *testing.T) {
	subject := &types.Subject{ID: uuid.New()}
	chapters := &stubChapterRepo{chapters: []*types.Chapter{{}, {}}}
	topics := &stubTopicRepo{topics: []*types.Topic{{}, {}, {}, {}}}
	svc := newTestService(t, &stubSubjectRepo{subject: subject}, chapters, topics, &stubJobRepo{})

	est, err := svc.estimate(context.Background(), nil, subject, types.HydrationOptions{
		GenerateQuestions: true,
		Difficulties:      []string{"easy", "medium"},
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.Chapters != 2 || est.Topics != 4 {
		t.Fatalf("expected 2 chapters / 4 topics, got %d/%d", est.Chapters, est.Topics)
	}
	// 4 topics x 2 difficulties x default 10 per difficulty.
	if est.Questions != 80 {
		t.Fatalf("expected 80 questions, got %d", est.Questions)
	}
	if est.Notes != 0 {
		t.Fatalf("expected no notes in estimate, got %d", est.Notes)
	}
}

func TestEstimateFallsBackToDefaults(t *testing.T) {
	svc := newTestService(t, &stubSubjectRepo{}, &stubChapterRepo{}, &stubTopicRepo{}, &stubJobRepo{})

	est, err := svc.estimate(context.Background(), nil, nil, types.HydrationOptions{GenerateNotes: true})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.Chapters != defaultChapters || est.Topics != defaultChapters*defaultTopicsPer {
		t.Fatalf("expected default curriculum size, got %d/%d", est.Chapters, est.Topics)
	}
	if est.Notes != est.Topics {
		t.Fatalf("expected one note per topic, got %d", est.Notes)
	}
	if est.EstimatedMinutes <= 0 {
		t.Fatalf("expected positive duration estimate")
	}
}

func TestStatusAggregatesRoot(t *testing.T) {
	completedAt := time.Now()
	root := &types.HydrationJob{
		ID:                 uuid.New(),
		HierarchyLevel:     types.LevelRoot,
		Status:             types.JobStatusCompleted,
		ChaptersExpected:   2,
		ChaptersCompleted:  2,
		TopicsExpected:     4,
		TopicsCompleted:    4,
		QuestionsExpected:  8,
		QuestionsCompleted: 6,
		CreatedAt:          completedAt.Add(-10 * time.Minute),
		CompletedAt:        &completedAt,
	}
	failed := []*types.HydrationJob{{
		ID:             uuid.New(),
		HierarchyLevel: types.LevelQuestionGen,
		JobType:        types.JobTypeQuestionGen,
		Status:         types.JobStatusFailed,
		LastError:      "generate_questions: backend timeout",
	}}
	jobs := &stubJobRepo{root: root, failed: failed}
	svc := newTestService(t, &stubSubjectRepo{}, &stubChapterRepo{}, &stubTopicRepo{}, jobs)

	status, err := svc.Status(context.Background(), nil, root.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != types.JobStatusCompleted {
		t.Fatalf("unexpected status %s", status.Status)
	}
	if status.Progress.Levels.Questions.Completed != 6 || status.Progress.Levels.Questions.Expected != 8 {
		t.Fatalf("unexpected question progress: %+v", status.Progress.Levels.Questions)
	}
	want := float64(2+4+6) / float64(2+4+8) * 100
	if status.Progress.OverallPct != want {
		t.Fatalf("expected overall pct %.2f, got %.2f", want, status.Progress.OverallPct)
	}
	if len(status.FailedJobs) != 1 || status.FailedJobs[0].LastError == "" {
		t.Fatalf("expected failed job surfaced, got %+v", status.FailedJobs)
	}
	if status.Timing.DurationSec < 599 || status.Timing.DurationSec > 601 {
		t.Fatalf("expected ~600s duration, got %.1f", status.Timing.DurationSec)
	}
}

func TestStatusRejectsNonRootJob(t *testing.T) {
	child := &types.HydrationJob{ID: uuid.New(), HierarchyLevel: types.LevelNoteGen}
	svc := newTestService(t, &stubSubjectRepo{}, &stubChapterRepo{}, &stubTopicRepo{}, &stubJobRepo{root: child})

	if _, err := svc.Status(context.Background(), nil, child.ID); err != ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestOverallPct(t *testing.T) {
	if got := overallPct(&types.HydrationJob{Status: types.JobStatusCompleted}); got != 100 {
		t.Fatalf("expected vacuous completion at 100%%, got %.1f", got)
	}
	if got := overallPct(&types.HydrationJob{Status: types.JobStatusRunning}); got != 0 {
		t.Fatalf("expected 0%% with no expectations, got %.1f", got)
	}
}
