package interview

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

// Finalizer 计算用时、评分并持久化面试结果。
// 只有把会话从 Registry 中移除的一方才会调用它。
type Finalizer struct {
	evaluator Evaluator
	results   ResultStore
	presets   preset.Store
	clock     Clock
	newID     func() string
}

// NewFinalizer builds a finalizer. evaluator may be nil, in which case the
// heuristic score is always used.
func NewFinalizer(evaluator Evaluator, results ResultStore, presets preset.Store, clock Clock) *Finalizer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Finalizer{
		evaluator: evaluator,
		results:   results,
		presets:   presets,
		clock:     clock,
		newID:     uuid.NewString,
	}
}

// Finalize persists the completed interview. It returns an error when the
// record could not be written; the caller reports a null result id.
func (f *Finalizer) Finalize(ctx context.Context, st State) (*model.CompletedInterview, error) {
	now := f.clock.Now()
	elapsed := int64(now.Sub(st.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	var p *preset.Preset
	if f.presets != nil {
		if found, ok := f.presets.FindByID(st.PresetID); ok {
			p = &found
		}
	}

	eval := f.evaluate(ctx, p, st)

	record := model.CompletedInterview{
		ID:             f.newID(),
		UserID:         st.UserID,
		PresetID:       st.PresetID,
		Answers:        st.Answers,
		ElapsedSeconds: elapsed,
		Score:          eval.Score,
		Feedback:       eval.Feedback,
		CreatedAt:      now,
	}
	if record.Answers == nil {
		record.Answers = []model.QuestionAnswer{}
	}

	if err := f.results.SaveResult(ctx, record); err != nil {
		return nil, fmt.Errorf("persist interview for user %s: %w", st.UserID, err)
	}

	log.Printf("[interview] finalized result=%s user=%s preset=%s answers=%d score=%d elapsed=%ds",
		record.ID, record.UserID, record.PresetID, len(record.Answers), record.Score, record.ElapsedSeconds)
	return &record, nil
}

func (f *Finalizer) evaluate(ctx context.Context, p *preset.Preset, st State) model.Evaluation {
	if f.evaluator != nil {
		eval, err := f.evaluator.Evaluate(ctx, p, st.Answers)
		if err == nil {
			return eval
		}
		log.Printf("[interview] evaluator failed, use heuristic: %v", err)
	}
	return HeuristicEvaluation(st.Questions.Len(), st.Answers)
}

// HeuristicEvaluation scores coverage (questions answered) and depth (words
// per answer, follow-ups included).
func HeuristicEvaluation(totalQuestions int, answers []model.QuestionAnswer) model.Evaluation {
	if totalQuestions <= 0 || len(answers) == 0 {
		return model.Evaluation{Score: 0, Feedback: "The interview ended before any question was answered."}
	}

	answered, words := 0, 0
	for _, qa := range answers {
		if strings.TrimSpace(qa.Answer.Content) != "" || strings.TrimSpace(qa.Answer.Code) != "" {
			answered++
		}
		words += len(strings.Fields(qa.Answer.Content))
		for _, ex := range qa.Followups {
			words += len(strings.Fields(ex.Answer))
		}
	}

	coverage := math.Min(float64(answered)/float64(totalQuestions), 1)
	depth := math.Min(float64(words)/float64(len(answers))/60, 1)
	score := int(math.Round(100 * (0.6*coverage + 0.4*depth)))

	var feedback string
	switch {
	case coverage < 1:
		feedback = fmt.Sprintf("You answered %d of %d questions. Try to finish the full interview next time.", answered, totalQuestions)
	case depth < 0.5:
		feedback = "You covered every question, but most answers were brief. Walk through your reasoning in more detail."
	default:
		feedback = "You covered every question with detailed answers."
	}
	return model.Evaluation{Score: score, Feedback: feedback}
}
