package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

var (
	ErrEmptyResponse     = errors.New("model returned an empty response")
	ErrEvaluatorDisabled = errors.New("llm evaluator disabled")
)

// Options 控制可选的链路
type Options struct {
	EvaluatorEnabled bool
}

// Service 使用 eino 链路完成出题、追问、澄清与评分。
type Service struct {
	chatModel model.BaseChatModel
	prompts   *PromptBuilder
	opts      Options
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the Ark chat model from configuration and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, Options{EvaluatorEnabled: cfg.EvaluatorEnabled})
}

// NewServiceWithModel compiles the interviewer chain on top of an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile interviewer chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		prompts:   NewPromptBuilder(),
		opts:      opts,
		chain:     runnable,
	}, nil
}

func (s *Service) invoke(ctx context.Context, system, query string) (string, error) {
	msg, err := s.chain.Invoke(ctx, map[string]any{
		"system": system,
		"query":  query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run interviewer chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(msg.Content), nil
}

// GenerateQuestions 为预设生成一组主问题
func (s *Service) GenerateQuestions(ctx context.Context, p preset.Preset) ([]string, error) {
	system, query := s.prompts.QuestionsPrompt(p)
	content, err := s.invoke(ctx, system, query)
	if err != nil {
		return nil, err
	}

	var payload questionsPayload
	if err := parseJSONObject(content, &payload); err != nil {
		return nil, fmt.Errorf("parse questions output: %w", err)
	}

	questions := make([]string, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, ErrEmptyResponse
	}
	if p.QuestionCount > 0 && len(questions) > p.QuestionCount {
		questions = questions[:p.QuestionCount]
	}

	log.Printf("[ai] generated %d questions for preset=%s", len(questions), p.ID)
	return questions, nil
}

// GenerateFollowup asks the model for the next probing question. An empty
// question is only accepted together with the end-of-chain flag.
func (s *Service) GenerateFollowup(ctx context.Context, req interview.FollowupRequest) (interview.Followup, error) {
	system, query := s.prompts.FollowupPrompt(req)
	content, err := s.invoke(ctx, system, query)
	if err != nil {
		return interview.Followup{}, err
	}

	var payload followupPayload
	if err := parseJSONObject(content, &payload); err != nil {
		return interview.Followup{}, fmt.Errorf("parse followup output: %w", err)
	}

	question := strings.TrimSpace(payload.Question)
	if question == "" && !payload.IsThisTheEnd {
		return interview.Followup{}, ErrEmptyResponse
	}
	return interview.Followup{Question: question, IsEnd: payload.IsThisTheEnd}, nil
}

// Clarify 对当前题目给出更易懂的表述
func (s *Service) Clarify(ctx context.Context, activePrompt, reply string) (string, error) {
	system, query := s.prompts.ClarifyPrompt(activePrompt, reply)
	return s.invoke(ctx, system, query)
}

// Evaluate scores the transcript. Callers fall back to a heuristic on error.
func (s *Service) Evaluate(ctx context.Context, p *preset.Preset, answers []interview.QuestionAnswer) (interview.Evaluation, error) {
	if !s.opts.EvaluatorEnabled {
		return interview.Evaluation{}, ErrEvaluatorDisabled
	}

	system, query := s.prompts.EvaluatePrompt(p, answers)
	content, err := s.invoke(ctx, system, query)
	if err != nil {
		return interview.Evaluation{}, err
	}

	var payload evaluationPayload
	if err := parseJSONObject(content, &payload); err != nil {
		return interview.Evaluation{}, fmt.Errorf("parse evaluation output: %w", err)
	}

	return interview.Evaluation{
		Score:    clampScore(payload.Score),
		Feedback: strings.TrimSpace(payload.Feedback),
	}, nil
}

// parseJSONObject 截取模型输出中第一个 { 到最后一个 } 之间的内容再解析
func parseJSONObject(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("missing json object")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), out)
}

func clampScore(score float64) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(score + 0.5)
	}
}

type questionsPayload struct {
	Questions []string `json:"questions"`
}

type followupPayload struct {
	Question     string `json:"question"`
	IsThisTheEnd bool   `json:"isThisTheEnd"`
}

type evaluationPayload struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}
