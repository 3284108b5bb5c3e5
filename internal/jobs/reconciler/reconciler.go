package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/types"
)

const (
	// LockKey guards a reconciliation tick; TTL is well above the expected
	// tick duration so overlapping ticks skip instead of queueing.
	LockKey = "hydration_reconciler"
	LockTTL = 5 * time.Minute

	maxRootsPerTick = 100
)

// Reconciler walks each incomplete root hydration tree strictly level 1→4,
// fanning out the next level once the current one is fully terminal and
// recomputing the root's aggregate counters from scratch on every pass.
// Callers must hold the reconciler job lock around Tick.
type Reconciler struct {
	log      *logger.Logger
	jobs     repos.HydrationJobRepo
	chapters repos.ChapterRepo
	topics   repos.TopicRepo
	audit    *services.AuditService
	metrics  *observability.Metrics
}

func New(baseLog *logger.Logger, jobs repos.HydrationJobRepo, chapters repos.ChapterRepo, topics repos.TopicRepo, audit *services.AuditService, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		log:      baseLog.With("component", "HydrationReconciler"),
		jobs:     jobs,
		chapters: chapters,
		topics:   topics,
		audit:    audit,
		metrics:  metrics,
	}
}

// Tick scans incomplete roots and reconciles each one inside its own error
// boundary; one broken root never aborts the others.
func (r *Reconciler) Tick(ctx context.Context) error {
	roots, err := r.jobs.FindIncompleteRoots(ctx, nil, maxRootsPerTick)
	if err != nil {
		return fmt.Errorf("find incomplete roots: %w", err)
	}
	for _, root := range roots {
		if err := r.reconcileRoot(ctx, root); err != nil {
			r.log.Error("Root reconciliation failed", "root_job_id", root.ID, "error", err)
			r.metrics.ReconcileRootError()
		}
	}
	return nil
}

func (r *Reconciler) reconcileRoot(ctx context.Context, root *types.HydrationJob) error {
	opts, err := decodeOptions(root.Payload)
	if err != nil {
		return fmt.Errorf("decode root options: %w", err)
	}

	chapters, err := r.chapters.ListBySubject(ctx, nil, root.SubjectID)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	topics, err := r.topics.ListBySubject(ctx, nil, root.SubjectID)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	levels := make(map[int][]*types.HydrationJob, types.MaxHierarchyLevel)
	allTerminal := true

	for level := types.LevelSyllabus; level <= types.MaxHierarchyLevel; level++ {
		children, err := r.jobs.FindByRootAndLevel(ctx, nil, root.ID, level)
		if err != nil {
			return fmt.Errorf("find level %d jobs: %w", level, err)
		}
		levels[level] = children

		plan := r.planLevel(root, level, opts, chapters, topics, levels)
		missing := subtractExisting(plan, children)
		if len(missing) > 0 {
			// Idempotent fan-out: only units not already present are
			// created, so a crashed-and-retried tick cannot duplicate.
			created, err := r.jobs.Create(ctx, nil, missing)
			if err != nil {
				return fmt.Errorf("fan out level %d: %w", level, err)
			}
			levels[level] = append(children, created...)
			r.metrics.FanOut(level, len(created))
			r.audit.Hydration(ctx, root.ID, "fan_out", map[string]interface{}{
				"hierarchy_level": level,
				"jobs_created":    len(created),
			})
			allTerminal = false
			break
		}

		if anyNonTerminal(levels[level]) {
			// Nothing below this level can be decided yet this tick.
			allTerminal = false
			break
		}
		// Level fully terminal (possibly vacuously, with zero jobs): descend.
	}

	if err := r.updateRootProgress(ctx, root, opts, chapters, topics, levels, allTerminal); err != nil {
		return fmt.Errorf("update root progress: %w", err)
	}
	return nil
}

// planLevel returns the full desired set of jobs for a level under a root.
// Levels with no implied work return an empty plan and count as vacuously
// complete.
func (r *Reconciler) planLevel(root *types.HydrationJob, level int, opts types.HydrationOptions, chapters []*types.Chapter, topics []*types.Topic, levels map[int][]*types.HydrationJob) []*types.HydrationJob {
	rootID := root.ID
	base := func() *types.HydrationJob {
		return &types.HydrationJob{
			ID:             uuid.New(),
			RootJobID:      &rootID,
			HierarchyLevel: level,
			SubjectID:      root.SubjectID,
			Language:       root.Language,
			Status:         types.JobStatusPending,
		}
	}

	switch level {
	case types.LevelSyllabus:
		job := base()
		job.ParentJobID = &rootID
		job.JobType = types.JobTypeSyllabus
		return []*types.HydrationJob{job}

	case types.LevelTopicExpand:
		parent := singleJobID(levels[types.LevelSyllabus])
		out := make([]*types.HydrationJob, 0, len(chapters))
		for _, ch := range chapters {
			chID := ch.ID
			job := base()
			job.ParentJobID = parent
			job.JobType = types.JobTypeTopicExpand
			job.ChapterID = &chID
			out = append(out, job)
		}
		return out

	case types.LevelNoteGen:
		if !opts.GenerateNotes {
			return nil
		}
		parents := jobIDByChapter(levels[types.LevelTopicExpand])
		out := make([]*types.HydrationJob, 0, len(topics))
		for _, t := range topics {
			tID, chID := t.ID, t.ChapterID
			job := base()
			job.ParentJobID = parents[chID]
			job.JobType = types.JobTypeNoteGen
			job.ChapterID = &chID
			job.TopicID = &tID
			out = append(out, job)
		}
		return out

	case types.LevelQuestionGen:
		if !opts.GenerateQuestions {
			return nil
		}
		difficulties := opts.Difficulties
		if len(difficulties) == 0 {
			difficulties = []string{"easy", "medium", "hard"}
		}
		noteParents := jobIDByTopic(levels[types.LevelNoteGen])
		chapterParents := jobIDByChapter(levels[types.LevelTopicExpand])
		out := make([]*types.HydrationJob, 0, len(topics)*len(difficulties))
		for _, t := range topics {
			tID, chID := t.ID, t.ChapterID
			parent := noteParents[tID]
			if parent == nil {
				parent = chapterParents[chID]
			}
			for _, diff := range difficulties {
				job := base()
				job.ParentJobID = parent
				job.JobType = types.JobTypeQuestionGen
				job.ChapterID = &chID
				job.TopicID = &tID
				job.Difficulty = diff
				out = append(out, job)
			}
		}
		return out
	}
	return nil
}

func (r *Reconciler) updateRootProgress(ctx context.Context, root *types.HydrationJob, opts types.HydrationOptions, chapters []*types.Chapter, topics []*types.Topic, levels map[int][]*types.HydrationJob, allTerminal bool) error {
	topicsByChapter := map[uuid.UUID]int{}
	for _, t := range topics {
		topicsByChapter[t.ChapterID]++
	}

	chaptersCompleted := 0
	topicsCompleted := 0
	for _, j := range levels[types.LevelTopicExpand] {
		if j.Status != types.JobStatusCompleted || j.ChapterID == nil {
			continue
		}
		chaptersCompleted++
		topicsCompleted += topicsByChapter[*j.ChapterID]
	}

	notesExpected := 0
	if opts.GenerateNotes {
		notesExpected = len(topics)
	}
	difficulties := len(opts.Difficulties)
	if difficulties == 0 {
		difficulties = 3
	}
	questionsExpected := 0
	if opts.GenerateQuestions {
		questionsExpected = len(topics) * difficulties
	}

	updates := map[string]interface{}{
		"chapters_expected":   len(chapters),
		"chapters_completed":  chaptersCompleted,
		"topics_expected":     len(topics),
		"topics_completed":    topicsCompleted,
		"notes_expected":      notesExpected,
		"notes_completed":     countCompleted(levels[types.LevelNoteGen]),
		"questions_expected":  questionsExpected,
		"questions_completed": countCompleted(levels[types.LevelQuestionGen]),
	}

	switch {
	case allTerminal:
		// Every level is terminal or vacuous. Failed leaves are tolerated;
		// the counters simply come up short of expected.
		updates["status"] = types.JobStatusCompleted
		updates["completed_at"] = time.Now()
	case root.Status == types.JobStatusPending:
		updates["status"] = types.JobStatusRunning
	}

	if err := r.jobs.UpdateFields(ctx, nil, root.ID, updates); err != nil {
		return err
	}
	if allTerminal && root.Status != types.JobStatusCompleted {
		r.metrics.RootCompleted()
		r.audit.Hydration(ctx, root.ID, "root_completed", map[string]interface{}{
			"topics_completed":    topicsCompleted,
			"questions_completed": countCompleted(levels[types.LevelQuestionGen]),
		})
	}
	return nil
}

func decodeOptions(payload datatypes.JSON) (types.HydrationOptions, error) {
	var opts types.HydrationOptions
	if len(payload) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(payload), &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// subtractExisting removes planned units already present among children,
// keyed by the natural scope of the level (chapter, topic, difficulty).
func subtractExisting(plan, children []*types.HydrationJob) []*types.HydrationJob {
	if len(plan) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(children))
	for _, j := range children {
		seen[scopeKey(j)] = struct{}{}
	}
	out := make([]*types.HydrationJob, 0, len(plan))
	for _, j := range plan {
		if _, ok := seen[scopeKey(j)]; ok {
			continue
		}
		out = append(out, j)
	}
	return out
}

func scopeKey(j *types.HydrationJob) string {
	ch, tp := "", ""
	if j.ChapterID != nil {
		ch = j.ChapterID.String()
	}
	if j.TopicID != nil {
		tp = j.TopicID.String()
	}
	return fmt.Sprintf("%d|%s|%s|%s", j.HierarchyLevel, ch, tp, j.Difficulty)
}

func anyNonTerminal(jobs []*types.HydrationJob) bool {
	for _, j := range jobs {
		if !j.IsTerminal() {
			return true
		}
	}
	return false
}

func countCompleted(jobs []*types.HydrationJob) int {
	n := 0
	for _, j := range jobs {
		if j.Status == types.JobStatusCompleted {
			n++
		}
	}
	return n
}

func singleJobID(jobs []*types.HydrationJob) *uuid.UUID {
	if len(jobs) == 0 {
		return nil
	}
	id := jobs[0].ID
	return &id
}

func jobIDByChapter(jobs []*types.HydrationJob) map[uuid.UUID]*uuid.UUID {
	out := make(map[uuid.UUID]*uuid.UUID, len(jobs))
	for _, j := range jobs {
		if j.ChapterID == nil {
			continue
		}
		id := j.ID
		out[*j.ChapterID] = &id
	}
	return out
}

func jobIDByTopic(jobs []*types.HydrationJob) map[uuid.UUID]*uuid.UUID {
	out := make(map[uuid.UUID]*uuid.UUID, len(jobs))
	for _, j := range jobs {
		if j.TopicID == nil {
			continue
		}
		id := j.ID
		out[*j.TopicID] = &id
	}
	return out
}
