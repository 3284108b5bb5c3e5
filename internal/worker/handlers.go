package worker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/types"
)

// RegisterContentHandlers wires the four leaf processors onto the registry.
func RegisterContentHandlers(reg *Registry, baseLog *logger.Logger, gen services.ContentGeneratorClient, jobs repos.HydrationJobRepo, chapters repos.ChapterRepo, topics repos.TopicRepo) error {
	handlers := []Handler{
		&syllabusHandler{log: baseLog, gen: gen, chapters: chapters, topics: topics},
		&topicExpandHandler{log: baseLog, gen: gen},
		&noteGenHandler{log: baseLog, gen: gen},
		&questionGenHandler{log: baseLog, gen: gen, jobs: jobs},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// syllabusHandler produces the chapter/topic skeleton for a subject. It is
// idempotent: a subject that already has chapters is left untouched.
type syllabusHandler struct {
	log      *logger.Logger
	gen      services.ContentGeneratorClient
	chapters repos.ChapterRepo
	topics   repos.TopicRepo
}

func (h *syllabusHandler) Type() string { return types.JobTypeSyllabus }

func (h *syllabusHandler) Run(jc *JobContext) error {
	existing, err := h.chapters.ListBySubject(jc.Ctx, nil, jc.Job.SubjectID)
	if err != nil {
		jc.Fail("list_chapters", err)
		return nil
	}
	if len(existing) > 0 {
		jc.MarkContentReady()
		jc.Complete()
		return nil
	}

	generated, err := h.gen.GenerateSyllabus(jc.Ctx, jc.Job.SubjectID, jc.Job.Language)
	if err != nil {
		jc.Fail("generate_syllabus", err)
		return nil
	}

	for i, gc := range generated {
		chapter := &types.Chapter{
			ID:        uuid.New(),
			SubjectID: jc.Job.SubjectID,
			Position:  i + 1,
			Name:      gc.Name,
		}
		if _, err := h.chapters.Create(jc.Ctx, nil, []*types.Chapter{chapter}); err != nil {
			jc.Fail("create_chapter", err)
			return nil
		}
		rows := make([]*types.Topic, 0, len(gc.Topics))
		for j, name := range gc.Topics {
			rows = append(rows, &types.Topic{
				ID:        uuid.New(),
				SubjectID: jc.Job.SubjectID,
				ChapterID: chapter.ID,
				Position:  j + 1,
				Name:      name,
			})
		}
		if _, err := h.topics.Create(jc.Ctx, nil, rows); err != nil {
			jc.Fail("create_topics", err)
			return nil
		}
		jc.Heartbeat()
	}

	jc.MarkContentReady()
	jc.Complete()
	return nil
}

type topicExpandHandler struct {
	log *logger.Logger
	gen services.ContentGeneratorClient
}

func (h *topicExpandHandler) Type() string { return types.JobTypeTopicExpand }

func (h *topicExpandHandler) Run(jc *JobContext) error {
	if jc.Job.ChapterID == nil {
		jc.Fail("scope", fmt.Errorf("topic_expand job missing chapter scope"))
		return nil
	}
	if err := h.gen.ExpandChapterTopics(jc.Ctx, *jc.Job.ChapterID, jc.Job.Language); err != nil {
		jc.Fail("expand_topics", err)
		return nil
	}
	jc.MarkContentReady()
	jc.Complete()
	return nil
}

type noteGenHandler struct {
	log *logger.Logger
	gen services.ContentGeneratorClient
}

func (h *noteGenHandler) Type() string { return types.JobTypeNoteGen }

func (h *noteGenHandler) Run(jc *JobContext) error {
	if jc.Job.TopicID == nil {
		jc.Fail("scope", fmt.Errorf("note_gen job missing topic scope"))
		return nil
	}
	if _, err := h.gen.GenerateNote(jc.Ctx, *jc.Job.TopicID, jc.Job.Language); err != nil {
		jc.Fail("generate_note", err)
		return nil
	}
	jc.MarkContentReady()
	jc.Complete()
	return nil
}

type questionGenHandler struct {
	log  *logger.Logger
	gen  services.ContentGeneratorClient
	jobs repos.HydrationJobRepo
}

func (h *questionGenHandler) Type() string { return types.JobTypeQuestionGen }

func (h *questionGenHandler) Run(jc *JobContext) error {
	if jc.Job.TopicID == nil || jc.Job.Difficulty == "" {
		jc.Fail("scope", fmt.Errorf("question_gen job missing topic or difficulty scope"))
		return nil
	}
	count := 10
	if jc.Job.RootJobID != nil {
		if root, err := h.jobs.GetByID(jc.Ctx, nil, *jc.Job.RootJobID); err == nil && root != nil && len(root.Payload) > 0 {
			var opts types.HydrationOptions
			if json.Unmarshal([]byte(root.Payload), &opts) == nil && opts.QuestionsPerDifficulty > 0 {
				count = opts.QuestionsPerDifficulty
			}
		}
	}
	if _, err := h.gen.GenerateQuestions(jc.Ctx, *jc.Job.TopicID, jc.Job.Language, jc.Job.Difficulty, count); err != nil {
		jc.Fail("generate_questions", err)
		return nil
	}
	jc.MarkContentReady()
	jc.Complete()
	return nil
}
