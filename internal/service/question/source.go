package question

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

var (
	ErrPresetNotFound   = errors.New("preset not found")
	ErrEmptyQuestionSet = errors.New("question set is empty")
	ErrNoGenerator      = errors.New("preset has no fixed questions and no generator is configured")
)

// Generator produces questions for presets without a fixed bank.
type Generator interface {
	GenerateQuestions(ctx context.Context, p preset.Preset) ([]string, error)
}

// Source 返回预设的题目：优先固定题库，否则交给大模型生成。
type Source struct {
	presets   preset.Store
	generator Generator
	now       func() time.Time
}

// NewSource builds a question source. generator may be nil when only fixed
// banks are served.
func NewSource(presets preset.Store, generator Generator) *Source {
	return &Source{
		presets:   presets,
		generator: generator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Questions returns a fresh question set for presetID.
func (s *Source) Questions(ctx context.Context, presetID string) (*interview.QuestionSet, error) {
	p, ok := s.presets.FindByID(presetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, presetID)
	}

	var questions []string
	switch {
	case p.HasFixedBank():
		questions = append([]string(nil), p.Questions...)
	case s.generator == nil:
		return nil, ErrNoGenerator
	default:
		generated, err := s.generator.GenerateQuestions(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("generate questions for %s: %w", presetID, err)
		}
		questions = generated
	}

	if len(questions) == 0 {
		return nil, ErrEmptyQuestionSet
	}
	return &interview.QuestionSet{
		PresetID:    presetID,
		Questions:   questions,
		GeneratedAt: s.now(),
	}, nil
}
