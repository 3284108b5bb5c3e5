package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/types"
)

var (
	ErrSubjectNotFound = fmt.Errorf("subject not found for requested scope")
	ErrJobNotFound     = fmt.Errorf("hydration job not found")
)

// HydrationRequest is the admin submission payload.
type HydrationRequest struct {
	Language    string                 `json:"language" binding:"required"`
	BoardCode   string                 `json:"board_code" binding:"required"`
	Grade       string                 `json:"grade" binding:"required"`
	SubjectCode string                 `json:"subject_code" binding:"required"`
	Options     HydrationSubmitOptions `json:"options"`
}

type HydrationSubmitOptions struct {
	types.HydrationOptions
	DryRun bool `json:"dry_run,omitempty"`
}

type HydrationEstimate struct {
	Chapters         int     `json:"chapters"`
	Topics           int     `json:"topics"`
	Notes            int     `json:"notes"`
	Questions        int     `json:"questions"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	EstimatedMinutes int     `json:"estimated_minutes"`
}

type SubmitResult struct {
	JobID    *uuid.UUID         `json:"job_id,omitempty"`
	DryRun   bool               `json:"dry_run,omitempty"`
	Estimate *HydrationEstimate `json:"estimate,omitempty"`
}

type LevelProgress struct {
	Completed int `json:"completed"`
	Expected  int `json:"expected"`
}

type HydrationProgress struct {
	OverallPct float64 `json:"overall_pct"`
	Levels     struct {
		Chapters  LevelProgress `json:"chapters"`
		Topics    LevelProgress `json:"topics"`
		Notes     LevelProgress `json:"notes"`
		Questions LevelProgress `json:"questions"`
	} `json:"levels"`
}

type FailedJob struct {
	ID             uuid.UUID `json:"id"`
	HierarchyLevel int       `json:"hierarchy_level"`
	JobType        string    `json:"job_type"`
	LastError      string    `json:"last_error,omitempty"`
}

type HydrationStatus struct {
	ID       uuid.UUID         `json:"id"`
	Status   string            `json:"status"`
	Progress HydrationProgress `json:"progress"`
	Timing   struct {
		CreatedAt   time.Time  `json:"created_at"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
		DurationSec float64    `json:"duration_sec"`
	} `json:"timing"`
	Cost            *HydrationEstimate            `json:"cost,omitempty"`
	RecentLogs      []*types.AuditEvent           `json:"recent_logs"`
	ChildJobSummary map[int][]types.StatusCount   `json:"child_job_summary"`
	FailedJobs      []FailedJob                   `json:"failed_jobs"`
}

type HydrationService struct {
	db       *gorm.DB
	log      *logger.Logger
	jobs     repos.HydrationJobRepo
	subjects repos.SubjectRepo
	chapters repos.ChapterRepo
	topics   repos.TopicRepo
	audit    *AuditService
	events   repos.AuditEventRepo
}

func NewHydrationService(db *gorm.DB, baseLog *logger.Logger, jobs repos.HydrationJobRepo, subjects repos.SubjectRepo, chapters repos.ChapterRepo, topics repos.TopicRepo, audit *AuditService, events repos.AuditEventRepo) *HydrationService {
	return &HydrationService{
		db:       db,
		log:      baseLog.With("service", "HydrationService"),
		jobs:     jobs,
		subjects: subjects,
		chapters: chapters,
		topics:   topics,
		audit:    audit,
		events:   events,
	}
}

// Submit creates the level-0 root job for a hydration request, or returns
// only estimates when dry-run is requested.
func (s *HydrationService) Submit(ctx context.Context, tx *gorm.DB, req HydrationRequest) (*SubmitResult, error) {
	subject, err := s.subjects.GetByScope(ctx, tx, req.BoardCode, req.Grade, req.SubjectCode, req.Language)
	if err != nil {
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	if req.Options.DryRun {
		est, err := s.estimate(ctx, tx, subject, req.Options.HydrationOptions)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{DryRun: true, Estimate: est}, nil
	}

	if subject == nil {
		return nil, ErrSubjectNotFound
	}

	payload, err := json.Marshal(req.Options.HydrationOptions)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	root := &types.HydrationJob{
		ID:             uuid.New(),
		HierarchyLevel: types.LevelRoot,
		JobType:        types.JobTypeRoot,
		SubjectID:      subject.ID,
		Language:       req.Language,
		Status:         types.JobStatusPending,
		Payload:        datatypes.JSON(payload),
	}
	if _, err := s.jobs.Create(ctx, tx, []*types.HydrationJob{root}); err != nil {
		return nil, fmt.Errorf("create root job: %w", err)
	}
	s.audit.Hydration(ctx, root.ID, "submitted", map[string]interface{}{
		"subject_id": subject.ID,
		"language":   req.Language,
	})
	id := root.ID
	return &SubmitResult{JobID: &id}, nil
}

// Status aggregates a root job's tree into the dashboard view.
func (s *HydrationService) Status(ctx context.Context, tx *gorm.DB, rootID uuid.UUID) (*HydrationStatus, error) {
	root, err := s.jobs.GetByID(ctx, tx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil || root.HierarchyLevel != types.LevelRoot {
		return nil, ErrJobNotFound
	}

	out := &HydrationStatus{
		ID:              root.ID,
		Status:          root.Status,
		ChildJobSummary: map[int][]types.StatusCount{},
	}
	out.Timing.CreatedAt = root.CreatedAt
	out.Timing.CompletedAt = root.CompletedAt
	if root.CompletedAt != nil {
		out.Timing.DurationSec = root.CompletedAt.Sub(root.CreatedAt).Seconds()
	} else {
		out.Timing.DurationSec = time.Since(root.CreatedAt).Seconds()
	}

	out.Progress.Levels.Chapters = LevelProgress{Completed: root.ChaptersCompleted, Expected: root.ChaptersExpected}
	out.Progress.Levels.Topics = LevelProgress{Completed: root.TopicsCompleted, Expected: root.TopicsExpected}
	out.Progress.Levels.Notes = LevelProgress{Completed: root.NotesCompleted, Expected: root.NotesExpected}
	out.Progress.Levels.Questions = LevelProgress{Completed: root.QuestionsCompleted, Expected: root.QuestionsExpected}
	out.Progress.OverallPct = overallPct(root)

	for level := types.LevelSyllabus; level <= types.MaxHierarchyLevel; level++ {
		counts, err := s.jobs.CountByRootAndLevel(ctx, tx, root.ID, level)
		if err != nil {
			return nil, err
		}
		if len(counts) > 0 {
			out.ChildJobSummary[level] = counts
		}
	}

	failed, err := s.jobs.FindFailedByRoot(ctx, tx, root.ID)
	if err != nil {
		return nil, err
	}
	out.FailedJobs = make([]FailedJob, 0, len(failed))
	for _, j := range failed {
		out.FailedJobs = append(out.FailedJobs, FailedJob{
			ID:             j.ID,
			HierarchyLevel: j.HierarchyLevel,
			JobType:        j.JobType,
			LastError:      j.LastError,
		})
	}

	if s.events != nil {
		logs, err := s.events.FindRecentByScope(ctx, tx, types.AuditScopeHydration, root.ID, 20)
		if err != nil {
			s.log.Warn("Recent logs lookup failed", "root_job_id", root.ID, "error", err)
		} else {
			out.RecentLogs = logs
		}
	}
	if out.RecentLogs == nil {
		out.RecentLogs = []*types.AuditEvent{}
	}

	subject, err := s.subjects.GetByID(ctx, tx, root.SubjectID)
	if err == nil && subject != nil {
		opts := types.HydrationOptions{}
		_ = json.Unmarshal([]byte(root.Payload), &opts)
		if est, estErr := s.estimate(ctx, tx, subject, opts); estErr == nil {
			out.Cost = est
		}
	}

	return out, nil
}

// List returns paginated root jobs for the jobs table UI.
func (s *HydrationService) List(ctx context.Context, tx *gorm.DB, status string, limit, offset int) ([]*types.HydrationJob, int64, error) {
	return s.jobs.ListRoots(ctx, tx, status, limit, offset)
}

// Per-item generation estimates. Tuned from observed generation runs; these
// feed dry-run responses and the status cost block, nothing else.
const (
	costPerChapterUSD  = 0.04
	costPerTopicUSD    = 0.02
	costPerNoteUSD     = 0.12
	costPerQuestionUSD = 0.03
	secondsPerNote     = 45
	secondsPerQuestion = 20
	defaultChapters    = 12
	defaultTopicsPer   = 4
)

func (s *HydrationService) estimate(ctx context.Context, tx *gorm.DB, subject *types.Subject, opts types.HydrationOptions) (*HydrationEstimate, error) {
	chapterCount := defaultChapters
	topicCount := defaultChapters * defaultTopicsPer
	if subject != nil {
		chapters, err := s.chapters.ListBySubject(ctx, tx, subject.ID)
		if err != nil {
			return nil, err
		}
		topics, err := s.topics.ListBySubject(ctx, tx, subject.ID)
		if err != nil {
			return nil, err
		}
		if len(chapters) > 0 {
			chapterCount = len(chapters)
			topicCount = len(topics)
		}
	}

	difficulties := len(opts.Difficulties)
	if difficulties == 0 {
		difficulties = 3
	}
	perDifficulty := opts.QuestionsPerDifficulty
	if perDifficulty <= 0 {
		perDifficulty = 10
	}

	est := &HydrationEstimate{Chapters: chapterCount, Topics: topicCount}
	cost := float64(chapterCount)*costPerChapterUSD + float64(topicCount)*costPerTopicUSD
	seconds := 120
	if opts.GenerateNotes {
		est.Notes = topicCount
		cost += float64(topicCount) * costPerNoteUSD
		seconds += topicCount * secondsPerNote
	}
	if opts.GenerateQuestions {
		est.Questions = topicCount * difficulties * perDifficulty
		cost += float64(est.Questions) * costPerQuestionUSD
		seconds += topicCount * difficulties * secondsPerQuestion
	}
	est.EstimatedCostUSD = cost
	est.EstimatedMinutes = (seconds + 59) / 60
	return est, nil
}

func overallPct(root *types.HydrationJob) float64 {
	expected := root.ChaptersExpected + root.TopicsExpected + root.NotesExpected + root.QuestionsExpected
	if expected == 0 {
		if root.Status == types.JobStatusCompleted {
			return 100
		}
		return 0
	}
	completed := root.ChaptersCompleted + root.TopicsCompleted + root.NotesCompleted + root.QuestionsCompleted
	pct := float64(completed) / float64(expected) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
