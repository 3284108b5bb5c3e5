package types

import (
	"time"

	"github.com/google/uuid"
)

// Subject/Chapter/Topic form the curriculum scope the hydration tree fans out
// over. Chapters and topics are produced by the level-1 syllabus processor;
// the reconciler only ever reads them.

type Subject struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BoardCode string    `gorm:"column:board_code;not null;index:idx_subject_scope" json:"board_code"`
	Grade     string    `gorm:"column:grade;not null;index:idx_subject_scope" json:"grade"`
	Code      string    `gorm:"column:code;not null;index:idx_subject_scope" json:"code"`
	Language  string    `gorm:"column:language;not null;index:idx_subject_scope" json:"language"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Subject) TableName() string { return "subject" }

type Chapter struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID uuid.UUID `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	Position  int       `gorm:"column:position;not null;default:0" json:"position"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Chapter) TableName() string { return "chapter" }

type Topic struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID uuid.UUID `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	ChapterID uuid.UUID `gorm:"type:uuid;column:chapter_id;not null;index" json:"chapter_id"`
	Position  int       `gorm:"column:position;not null;default:0" json:"position"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Topic) TableName() string { return "topic" }
