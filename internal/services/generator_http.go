package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vidyabase/vidya-backend/internal/logger"
)

// httpGenerator calls the external content-generation service over JSON.
// Generation internals live entirely on the other side of this client.
type httpGenerator struct {
	log     *logger.Logger
	baseURL string
	client  *http.Client
}

// NewHTTPGenerator returns the real generator capability, or the unavailable
// variant when no base URL is configured.
func NewHTTPGenerator(baseLog *logger.Logger, baseURL string) ContentGeneratorClient {
	if baseURL == "" {
		return NewUnavailableGenerator()
	}
	return &httpGenerator{
		log:     baseLog.With("service", "ContentGeneratorClient"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *httpGenerator) GenerateSyllabus(ctx context.Context, subjectID uuid.UUID, language string) ([]GeneratedChapter, error) {
	var out struct {
		Chapters []GeneratedChapter `json:"chapters"`
	}
	err := g.post(ctx, "/v1/syllabus", map[string]interface{}{
		"subject_id": subjectID,
		"language":   language,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Chapters, nil
}

func (g *httpGenerator) ExpandChapterTopics(ctx context.Context, chapterID uuid.UUID, language string) error {
	return g.post(ctx, "/v1/topics/expand", map[string]interface{}{
		"chapter_id": chapterID,
		"language":   language,
	}, nil)
}

func (g *httpGenerator) GenerateNote(ctx context.Context, topicID uuid.UUID, language string) (GeneratedNote, error) {
	var out GeneratedNote
	err := g.post(ctx, "/v1/notes", map[string]interface{}{
		"topic_id": topicID,
		"language": language,
	}, &out)
	return out, err
}

func (g *httpGenerator) GenerateQuestions(ctx context.Context, topicID uuid.UUID, language, difficulty string, count int) ([]GeneratedQuestion, error) {
	var out struct {
		Questions []GeneratedQuestion `json:"questions"`
	}
	err := g.post(ctx, "/v1/questions", map[string]interface{}{
		"topic_id":   topicID,
		"language":   language,
		"difficulty": difficulty,
		"count":      count,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (g *httpGenerator) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("content generator call %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("content generator call %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
