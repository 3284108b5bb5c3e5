package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type SubjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, subject *types.Subject) (*types.Subject, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Subject, error)
	GetByScope(ctx context.Context, tx *gorm.DB, boardCode, grade, code, language string) (*types.Subject, error)
}

type ChapterRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chapters []*types.Chapter) ([]*types.Chapter, error)
	ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Chapter, error)
}

type TopicRepo interface {
	Create(ctx context.Context, tx *gorm.DB, topics []*types.Topic) ([]*types.Topic, error)
	ListByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) ([]*types.Topic, error)
	ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Topic, error)
	CountByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) (int64, error)
}

type subjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectRepo(db *gorm.DB, baseLog *logger.Logger) SubjectRepo {
	return &subjectRepo{db: db, log: baseLog.With("repo", "SubjectRepo")}
}

func (r *subjectRepo) Create(ctx context.Context, tx *gorm.DB, subject *types.Subject) (*types.Subject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(subject).Error; err != nil {
		return nil, err
	}
	return subject, nil
}

func (r *subjectRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Subject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var subject types.Subject
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&subject).Error
	if err != nil {
		return nil, err
	}
	if subject.ID == uuid.Nil {
		return nil, nil
	}
	return &subject, nil
}

func (r *subjectRepo) GetByScope(ctx context.Context, tx *gorm.DB, boardCode, grade, code, language string) (*types.Subject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var subject types.Subject
	err := transaction.WithContext(ctx).
		Where("board_code = ? AND grade = ? AND code = ? AND language = ?", boardCode, grade, code, language).
		Limit(1).
		Find(&subject).Error
	if err != nil {
		return nil, err
	}
	if subject.ID == uuid.Nil {
		return nil, nil
	}
	return &subject, nil
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) Create(ctx context.Context, tx *gorm.DB, chapters []*types.Chapter) ([]*types.Chapter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chapters) == 0 {
		return []*types.Chapter{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

func (r *chapterRepo) ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Chapter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chapter
	err := transaction.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

func (r *topicRepo) Create(ctx context.Context, tx *gorm.DB, topics []*types.Topic) ([]*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(topics) == 0 {
		return []*types.Topic{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

func (r *topicRepo) ListByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) ([]*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Topic
	err := transaction.WithContext(ctx).
		Where("chapter_id = ?", chapterID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicRepo) ListBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) ([]*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Topic
	err := transaction.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicRepo) CountByChapter(ctx context.Context, tx *gorm.DB, chapterID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Topic{}).
		Where("chapter_id = ?", chapterID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
