package interview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/zhouzirui/z-interview/backend/internal/analysis/clarify"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

var ErrEmptyQuestionSet = errors.New("question set is empty")

// ErrFirstQuestionUndelivered means the session was registered but the client
// went away before question 1 reached it. The session has already been closed.
var ErrFirstQuestionUndelivered = errors.New("first question not delivered")

const (
	msgQuestionsUnavailable = "failed to load interview questions"
	msgSessionConflict      = "this session is already connected"
	msgAudioUnsupported     = "audio answers are not supported"
	msgInvalidAudio         = "invalid audio payload"
	msgTranscriptionFailed  = "failed to transcribe audio, please try again"
	msgClarifyFailed        = "failed to rephrase the question, please try again"
	msgFollowupFailed       = "failed to process your answer, please try again"
	msgInternal             = "internal error while processing message"
)

const finalizeTimeout = 30 * time.Second

// Config holds orchestrator policy.
type Config struct {
	FollowupBudget int
}

// Dependencies 编排器依赖的协作者。Audio 为空表示不提供语音，Transcriber 为空表示不接受音频回答。
type Dependencies struct {
	Registry    *Registry
	Tickets     Tickets
	Questions   QuestionSource
	Audio       *AudioService
	Transcriber Transcriber
	Followups   FollowupGenerator
	Clarifier   ClarificationResponder
	Finalizer   *Finalizer
	Clock       Clock
}

// Orchestrator runs the interview state machine for every connection.
type Orchestrator struct {
	Dependencies
	cfg Config
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if cfg.FollowupBudget < 1 {
		cfg.FollowupBudget = 2
	}
	return &Orchestrator{Dependencies: deps, cfg: cfg}
}

// Start validates token, registers a session and sends the first question.
// Before registration a failure sends a single error message and the caller
// should close the connection. Once registered, a failed send of question 1
// closes the session here, as a disconnect would.
func (o *Orchestrator) Start(ctx context.Context, token string, out Sender) error {
	ticket, err := o.Tickets.Validate(ctx, token)
	if err != nil {
		return o.reject(out, err.Error(), fmt.Errorf("validate ticket: %w", err))
	}

	set, err := o.Questions.Questions(ctx, ticket.PresetID)
	if err != nil {
		return o.reject(out, msgQuestionsUnavailable, fmt.Errorf("load questions for %s: %w", ticket.PresetID, err))
	}
	first, ok := set.At(1)
	if !ok {
		return o.reject(out, msgQuestionsUnavailable, ErrEmptyQuestionSet)
	}

	st := &State{
		Token:         token,
		UserID:        ticket.UserID,
		PresetID:      ticket.PresetID,
		Questions:     set,
		QuestionIndex: 1,
		ActivePrompt:  first,
		StartedAt:     o.Clock.Now(),
		Phase:         PhaseAwaitingAnswer,
	}
	sess := newSession(st, out)

	sess.mu.Lock()
	if err := o.Registry.Insert(token, sess); err != nil {
		sess.mu.Unlock()
		return o.reject(out, msgSessionConflict, err)
	}
	log.Printf("[interview] session started token=%s user=%s preset=%s questions=%d", token, st.UserID, st.PresetID, set.Len())

	err = o.sendFirstQuestion(ctx, sess, first)
	sess.mu.Unlock()
	if err != nil {
		// 注册之后的发送失败按断开处理
		log.Printf("[interview] client gone before first question token=%s: %v", token, err)
		_ = o.Close(ctx, token)
		return fmt.Errorf("%w: %w", ErrFirstQuestionUndelivered, err)
	}
	return nil
}

func (o *Orchestrator) sendFirstQuestion(ctx context.Context, sess *Session, first string) error {
	question := model.NewQuestion(first, 1, false)
	if o.Audio == nil {
		return o.send(sess, question)
	}

	o.Audio.Prefetch(ctx, sess.state.Questions.Questions[1:])

	audio, err := o.Audio.Synthesize(ctx, first)
	if err != nil {
		log.Printf("[interview] first question audio failed token=%s: %v", sess.state.Token, err)
		if err := o.send(sess, question); err != nil {
			return err
		}
		return o.send(sess, model.NewAudioFailed())
	}
	return o.send(sess, question.WithAudio(encodeAudio(audio)))
}

// Handle applies one inbound message. Messages for unknown or finished
// sessions are dropped.
func (o *Orchestrator) Handle(ctx context.Context, token string, msg model.Inbound) {
	sess, ok := o.Registry.Get(token)
	if !ok {
		log.Printf("[interview] drop %s for inactive token=%s", msg.Type, token)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[interview] panic handling %s token=%s: %v\n%s", msg.Type, token, r, debug.Stack())
			_ = o.send(sess, model.NewError(msgInternal))
		}
	}()

	st := sess.state
	if st.Phase == PhaseTerminal {
		return
	}

	switch msg.Type {
	case model.TypePing:
		_ = o.send(sess, model.NewPong())
	case model.TypeQuestionAnswer:
		if st.Phase != PhaseAwaitingAnswer {
			log.Printf("[interview] ignore questionAnswer in %s token=%s", st.Phase, token)
			return
		}
		o.handleQuestionAnswer(ctx, sess, msg)
	case model.TypeFollowupAnswer:
		if st.Phase != PhaseAwaitingFollowupAnswer {
			log.Printf("[interview] ignore followupAnswer in %s token=%s", st.Phase, token)
			return
		}
		o.handleFollowupAnswer(ctx, sess, msg)
	default:
		log.Printf("[interview] ignore unknown message type %q token=%s", msg.Type, token)
	}
}

func (o *Orchestrator) handleQuestionAnswer(ctx context.Context, sess *Session, msg model.Inbound) {
	st := sess.state
	content, ok := o.resolveContent(ctx, sess, msg)
	if !ok {
		return
	}
	if o.clarifyIfAsked(ctx, sess, content, func(reply string) model.Prompt {
		return model.NewQuestion(reply, st.QuestionIndex, false)
	}) {
		return
	}

	question := st.currentQuestion()
	answer := model.Answer{Content: content, Code: msg.Code, Whiteboard: msg.Whiteboard}
	fu, err := o.Followups.GenerateFollowup(ctx, model.FollowupRequest{
		Question:      question,
		ActivePrompt:  st.ActivePrompt,
		QuestionIndex: st.QuestionIndex,
		Answer:        answer,
	})
	if err != nil {
		log.Printf("[interview] follow-up generation failed token=%s q=%d: %v", st.Token, st.QuestionIndex, err)
		_ = o.send(sess, model.NewError(msgFollowupFailed))
		return
	}

	st.Answers = append(st.Answers, model.QuestionAnswer{
		QuestionIndex: st.QuestionIndex,
		Question:      question,
		Answer:        answer,
	})

	// 生成器既结束又没有给出问题时无可追问
	if strings.TrimSpace(fu.Question) == "" {
		o.advance(ctx, sess)
		return
	}
	o.issueFollowup(ctx, sess, fu)
}

func (o *Orchestrator) handleFollowupAnswer(ctx context.Context, sess *Session, msg model.Inbound) {
	st := sess.state
	content, ok := o.resolveContent(ctx, sess, msg)
	if !ok {
		return
	}
	if o.clarifyIfAsked(ctx, sess, content, func(reply string) model.Prompt {
		return model.NewFollowup(model.FollowupRecord{Question: reply, ForWhatQuestion: st.QuestionIndex})
	}) {
		return
	}

	issued := st.followupsFor(st.QuestionIndex)
	answers := append(append([]string(nil), st.FollowupAnswers...), content)

	if len(issued) >= o.cfg.FollowupBudget || (len(issued) > 0 && issued[len(issued)-1].IsThisTheEnd) {
		st.FollowupAnswers = answers
		o.advance(ctx, sess)
		return
	}

	req := model.FollowupRequest{
		Question:      st.currentQuestion(),
		ActivePrompt:  st.ActivePrompt,
		QuestionIndex: st.QuestionIndex,
		Followups:     pairExchanges(issued, answers),
	}
	if main, ok := st.currentAnswer(); ok {
		req.Answer = main.Answer
	}

	fu, err := o.Followups.GenerateFollowup(ctx, req)
	if err != nil {
		log.Printf("[interview] follow-up generation failed token=%s q=%d: %v", st.Token, st.QuestionIndex, err)
		_ = o.send(sess, model.NewError(msgFollowupFailed))
		return
	}

	st.FollowupAnswers = answers
	if fu.IsEnd || strings.TrimSpace(fu.Question) == "" {
		o.advance(ctx, sess)
		return
	}
	o.issueFollowup(ctx, sess, fu)
}

func (o *Orchestrator) issueFollowup(ctx context.Context, sess *Session, fu model.Followup) {
	st := sess.state
	record := model.FollowupRecord{
		Question:        fu.Question,
		IsThisTheEnd:    fu.IsEnd,
		ForWhatQuestion: st.QuestionIndex,
	}
	st.Followups = append(st.Followups, record)
	st.ActivePrompt = record.Question
	st.Phase = PhaseAwaitingFollowupAnswer
	o.sendWithAudio(ctx, sess, model.NewFollowup(record))
}

// advance attaches the finished follow-up chain to its main answer and moves
// to the next question or to the terminal phase.
func (o *Orchestrator) advance(ctx context.Context, sess *Session) {
	st := sess.state
	if main, ok := st.currentAnswer(); ok {
		main.Followups = st.exchanges()
	}
	st.FollowupAnswers = nil
	st.QuestionIndex++

	if next, ok := st.Questions.At(st.QuestionIndex); ok {
		st.Phase = PhaseAwaitingAnswer
		st.ActivePrompt = next
		o.sendWithAudio(ctx, sess, model.NewQuestion(next, st.QuestionIndex, true))
		return
	}

	st.Phase = PhaseTerminal
	if !o.Registry.Remove(st.Token, sess) {
		return
	}
	resultID := o.finalize(ctx, st.Snapshot())
	_ = o.send(sess, model.NewInterviewComplete(resultID))
	o.invalidate(ctx, st.Token)
}

// Close ends the session bound to token, if any, and invalidates the
// credential. It is safe to call more than once.
func (o *Orchestrator) Close(ctx context.Context, token string) error {
	if sess, ok := o.Registry.Get(token); ok && o.Registry.Remove(token, sess) {
		sess.mu.Lock()
		sess.state.Phase = PhaseTerminal
		snapshot := sess.state.Snapshot()
		sess.mu.Unlock()

		resultID := o.finalize(ctx, snapshot)
		if !sess.out.Closed() {
			_ = o.send(sess, model.NewInterviewComplete(resultID))
		}
	}
	return o.invalidate(ctx, token)
}

// Wait blocks until background audio work has drained.
func (o *Orchestrator) Wait() {
	if o.Audio != nil {
		o.Audio.Wait()
	}
}

func (o *Orchestrator) finalize(ctx context.Context, st State) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	record, err := o.Finalizer.Finalize(ctx, st)
	if err != nil {
		log.Printf("[interview] finalize failed token=%s: %v", st.Token, err)
		return ""
	}
	return record.ID
}

func (o *Orchestrator) invalidate(ctx context.Context, token string) error {
	if err := o.Tickets.Invalidate(context.WithoutCancel(ctx), token); err != nil {
		log.Printf("[interview] invalidate ticket token=%s: %v", token, err)
		return err
	}
	return nil
}

// resolveContent returns the answer text, transcribing audio when present.
func (o *Orchestrator) resolveContent(ctx context.Context, sess *Session, msg model.Inbound) (string, bool) {
	if !msg.HasAudio() {
		return msg.Content, true
	}
	if o.Transcriber == nil {
		_ = o.send(sess, model.NewError(msgAudioUnsupported))
		return "", false
	}

	audio, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		_ = o.send(sess, model.NewError(msgInvalidAudio))
		return "", false
	}

	text, err := o.Transcriber.Transcribe(ctx, audio, msg.AudioMimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Printf("[interview] transcription failed token=%s: %v", sess.state.Token, err)
		_ = o.send(sess, model.NewError(msgTranscriptionFailed))
		return "", false
	}
	return text, true
}

// clarifyIfAsked answers a clarification request without touching progress.
// It reports whether content was a clarification request.
func (o *Orchestrator) clarifyIfAsked(ctx context.Context, sess *Session, content string, reply func(string) model.Prompt) bool {
	if !clarify.IsClarifying(content) {
		return false
	}

	st := sess.state
	text, err := o.Clarifier.Clarify(ctx, st.ActivePrompt, content)
	if err != nil {
		log.Printf("[interview] clarification failed token=%s: %v", st.Token, err)
		_ = o.send(sess, model.NewError(msgClarifyFailed))
		return true
	}

	st.ActivePrompt = text
	o.sendWithAudio(ctx, sess, reply(text))
	return true
}

// sendWithAudio never delays text: cached audio rides along inline, otherwise
// audio (or audioFailed) follows in a separate message.
func (o *Orchestrator) sendWithAudio(ctx context.Context, sess *Session, p model.Prompt) {
	if o.Audio == nil {
		_ = o.send(sess, p)
		return
	}

	text := p.PromptText()
	if audio, ok := o.Audio.Cached(text); ok {
		_ = o.send(sess, p.WithAudio(encodeAudio(audio)))
		return
	}

	if err := o.send(sess, p); err != nil {
		return
	}

	bg := context.WithoutCancel(ctx)
	o.Audio.Go(func() {
		audio, err := o.Audio.Synthesize(bg, text)
		if sess.out.Closed() {
			return
		}
		if err != nil {
			log.Printf("[interview] audio synthesis failed token=%s: %v", sess.state.Token, err)
			_ = o.send(sess, model.NewAudioFailed())
			return
		}
		_ = o.send(sess, model.NewAudio(encodeAudio(audio)))
	})
}

func (o *Orchestrator) send(sess *Session, msg model.Outbound) error {
	if err := sess.out.Send(msg); err != nil {
		log.Printf("[interview] send %s failed: %v", msg.Kind(), err)
		return err
	}
	return nil
}

func (o *Orchestrator) reject(out Sender, message string, err error) error {
	log.Printf("[interview] reject connection: %v", err)
	_ = out.Send(model.NewError(message))
	return err
}

func encodeAudio(audio []byte) string {
	return base64.StdEncoding.EncodeToString(audio)
}
