package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrGeneratorUnavailable is returned by the no-op generator substituted when
// no content backend is configured. Leaf processors fail their job row with
// it instead of discovering a missing backend at import time.
var ErrGeneratorUnavailable = errors.New("content generator not configured")

type GeneratedChapter struct {
	Name   string
	Topics []string
}

type GeneratedNote struct {
	TopicID uuid.UUID
	Body    string
}

type GeneratedQuestion struct {
	TopicID    uuid.UUID
	Difficulty string
	Prompt     string
	Answer     string
}

// ContentGeneratorClient is the outbound collaborator invoked by leaf job
// processors. Internals of generation are out of scope; this is only the
// scope-in, content-out contract.
type ContentGeneratorClient interface {
	GenerateSyllabus(ctx context.Context, subjectID uuid.UUID, language string) ([]GeneratedChapter, error)
	ExpandChapterTopics(ctx context.Context, chapterID uuid.UUID, language string) error
	GenerateNote(ctx context.Context, topicID uuid.UUID, language string) (GeneratedNote, error)
	GenerateQuestions(ctx context.Context, topicID uuid.UUID, language, difficulty string, count int) ([]GeneratedQuestion, error)
}

type unavailableGenerator struct{}

// NewUnavailableGenerator returns the "not configured" variant of the
// generator capability.
func NewUnavailableGenerator() ContentGeneratorClient {
	return unavailableGenerator{}
}

func (unavailableGenerator) GenerateSyllabus(ctx context.Context, subjectID uuid.UUID, language string) ([]GeneratedChapter, error) {
	return nil, ErrGeneratorUnavailable
}

func (unavailableGenerator) ExpandChapterTopics(ctx context.Context, chapterID uuid.UUID, language string) error {
	return ErrGeneratorUnavailable
}

func (unavailableGenerator) GenerateNote(ctx context.Context, topicID uuid.UUID, language string) (GeneratedNote, error) {
	return GeneratedNote{}, ErrGeneratorUnavailable
}

func (unavailableGenerator) GenerateQuestions(ctx context.Context, topicID uuid.UUID, language, difficulty string, count int) ([]GeneratedQuestion, error) {
	return nil, ErrGeneratorUnavailable
}
