package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Hydration job statuses. A job is terminal once it is completed or failed.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Hierarchy levels of the hydration tree.
const (
	LevelRoot          = 0
	LevelSyllabus      = 1
	LevelTopicExpand   = 2
	LevelNoteGen       = 3
	LevelQuestionGen   = 4
	MaxHierarchyLevel  = 4
)

// Job types, one per hierarchy level below the root.
const (
	JobTypeRoot        = "hydration_root"
	JobTypeSyllabus    = "syllabus"
	JobTypeTopicExpand = "topic_expand"
	JobTypeNoteGen     = "note_gen"
	JobTypeQuestionGen = "question_gen"
)

// HydrationJob is one node of the 5-level curriculum hydration tree.
// RootJobID is nil only for the level-0 root and never changes after creation.
type HydrationJob struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RootJobID      *uuid.UUID     `gorm:"type:uuid;column:root_job_id;index" json:"root_job_id,omitempty"`
	ParentJobID    *uuid.UUID     `gorm:"type:uuid;column:parent_job_id;index" json:"parent_job_id,omitempty"`
	HierarchyLevel int            `gorm:"column:hierarchy_level;not null;index" json:"hierarchy_level"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	SubjectID      uuid.UUID      `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	ChapterID      *uuid.UUID     `gorm:"type:uuid;column:chapter_id;index" json:"chapter_id,omitempty"`
	TopicID        *uuid.UUID     `gorm:"type:uuid;column:topic_id;index" json:"topic_id,omitempty"`
	Language       string         `gorm:"column:language;not null" json:"language"`
	Difficulty     string         `gorm:"column:difficulty" json:"difficulty,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedAt       *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	LastError      string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	ContentReady   bool           `gorm:"column:content_ready;not null;default:false" json:"content_ready"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	// Aggregate counters, meaningful on the root row only. The reconciler
	// recomputes them from scratch on every tick; nothing increments them.
	ChaptersExpected   int `gorm:"column:chapters_expected;not null;default:0" json:"chapters_expected"`
	ChaptersCompleted  int `gorm:"column:chapters_completed;not null;default:0" json:"chapters_completed"`
	TopicsExpected     int `gorm:"column:topics_expected;not null;default:0" json:"topics_expected"`
	TopicsCompleted    int `gorm:"column:topics_completed;not null;default:0" json:"topics_completed"`
	NotesExpected      int `gorm:"column:notes_expected;not null;default:0" json:"notes_expected"`
	NotesCompleted     int `gorm:"column:notes_completed;not null;default:0" json:"notes_completed"`
	QuestionsExpected  int `gorm:"column:questions_expected;not null;default:0" json:"questions_expected"`
	QuestionsCompleted int `gorm:"column:questions_completed;not null;default:0" json:"questions_completed"`

	CreatedAt   time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (HydrationJob) TableName() string { return "hydration_job" }

func (j *HydrationJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// HydrationOptions is the root job payload submitted by the admin API.
type HydrationOptions struct {
	GenerateNotes          bool     `json:"generate_notes"`
	GenerateQuestions      bool     `json:"generate_questions"`
	Difficulties           []string `json:"difficulties,omitempty"`
	QuestionsPerDifficulty int      `json:"questions_per_difficulty,omitempty"`
	SkipValidation         bool     `json:"skip_validation,omitempty"`
}

// StatusCount is a grouped count of jobs sharing a status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
