package interview

import (
	"context"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

// QuestionSource returns the ordered questions for a preset.
type QuestionSource interface {
	Questions(ctx context.Context, presetID string) (*model.QuestionSet, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type FollowupGenerator interface {
	GenerateFollowup(ctx context.Context, req model.FollowupRequest) (model.Followup, error)
}

type ClarificationResponder interface {
	Clarify(ctx context.Context, activePrompt, reply string) (string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, p *preset.Preset, answers []model.QuestionAnswer) (model.Evaluation, error)
}

type ResultStore interface {
	SaveResult(ctx context.Context, result model.CompletedInterview) error
}

// Tickets validates and invalidates session credentials.
type Tickets interface {
	Validate(ctx context.Context, token string) (model.Ticket, error)
	Invalidate(ctx context.Context, token string) error
}

// Sender delivers outbound messages to one client connection. Send must be
// safe for concurrent use.
type Sender interface {
	Send(msg model.Outbound) error
	Closed() bool
}
