package interview

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

const testToken = "tok-1"

type harness struct {
	orch        *Orchestrator
	clock       *fakeClock
	tickets     *fakeTickets
	questions   *staticQuestions
	synth       *fakeSynth
	transcriber *fakeTranscriber
	followups   *scriptedFollowups
	clarifier   *fakeClarifier
	results     *fakeResults
	out         *recordingSender
}

type harnessOption func(*harness, *Dependencies, *Config)

func withoutSpeech() harnessOption {
	return func(_ *harness, d *Dependencies, _ *Config) {
		d.Audio = nil
		d.Transcriber = nil
	}
}

func newHarness(t *testing.T, questions []string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		tickets: newFakeTickets(model.Ticket{
			Token: testToken, UserID: "user-1", PresetID: "go-backend", Active: true,
		}),
		questions:   &staticQuestions{sets: map[string][]string{"go-backend": questions}},
		synth:       newFakeSynth(),
		transcriber: &fakeTranscriber{},
		followups:   &scriptedFollowups{},
		clarifier:   &fakeClarifier{reply: "Let me put it another way."},
		results:     &fakeResults{},
		out:         &recordingSender{},
	}
	presets := preset.NewMemoryStore(preset.Seed())
	deps := Dependencies{
		Tickets:     h.tickets,
		Questions:   NewQuestionCache(h.questions, time.Hour, h.clock, false),
		Audio:       NewAudioService(nil, h.synth, 2),
		Transcriber: h.transcriber,
		Followups:   h.followups,
		Clarifier:   h.clarifier,
		Finalizer:   NewFinalizer(&fakeEvaluator{eval: model.Evaluation{Score: 80, Feedback: "solid"}}, h.results, presets, h.clock),
		Clock:       h.clock,
	}
	cfg := Config{FollowupBudget: 2}
	for _, opt := range opts {
		opt(h, &deps, &cfg)
	}
	h.orch = NewOrchestrator(deps, cfg)
	t.Cleanup(h.orch.Wait)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orch.Start(context.Background(), testToken, h.out))
	h.orch.Wait()
}

func (h *harness) send(msg model.Inbound) {
	h.orch.Handle(context.Background(), testToken, msg)
	h.orch.Wait()
}

func (h *harness) snapshot(t *testing.T) State {
	t.Helper()
	sess, ok := h.orch.Registry.Get(testToken)
	require.True(t, ok, "session should be live")
	return sess.Snapshot()
}

func answer(content string) model.Inbound {
	return model.Inbound{Type: model.TypeQuestionAnswer, Content: content}
}

func followupAnswer(content string) model.Inbound {
	return model.Inbound{Type: model.TypeFollowupAnswer, Content: content}
}

func next(f string) followupStep { return followupStep{followup: model.Followup{Question: f}} }

func TestStartSendsFirstQuestionWithAudio(t *testing.T) {
	h := newHarness(t, []string{"Explain goroutines.", "Explain channels."})
	h.start(t)

	msgs := h.out.Messages()
	require.Len(t, msgs, 1)
	q, ok := msgs[0].(model.QuestionMessage)
	require.True(t, ok)
	assert.Equal(t, "Explain goroutines.", q.Question)
	assert.Equal(t, 1, q.QuestionIndex)
	assert.False(t, q.ResetEditor)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("audio:Explain goroutines.")), q.Audio)

	// question 2 is prefetched in the background
	assert.Equal(t, 1, h.synth.Calls("Explain channels."))
	assert.Equal(t, 1, h.orch.Registry.Len())
}

func TestStartFirstQuestionAudioFailure(t *testing.T) {
	h := newHarness(t, []string{"Explain goroutines."})
	h.synth.Fail("Explain goroutines.")
	h.start(t)

	assert.Equal(t, []model.MessageType{model.TypeQuestion, model.TypeAudioFailed}, h.out.Kinds())
	q := h.out.Messages()[0].(model.QuestionMessage)
	assert.Empty(t, q.Audio)
}

func TestStartWithoutSpeech(t *testing.T) {
	h := newHarness(t, []string{"Explain goroutines."}, withoutSpeech())
	h.start(t)

	require.Equal(t, []model.MessageType{model.TypeQuestion}, h.out.Kinds())
	assert.Empty(t, h.out.Messages()[0].(model.QuestionMessage).Audio)
	assert.Equal(t, 0, h.synth.Calls("Explain goroutines."))
}

func TestStartRejectsUnknownToken(t *testing.T) {
	h := newHarness(t, []string{"Q1"})
	err := h.orch.Start(context.Background(), "nope", h.out)
	require.Error(t, err)

	require.Equal(t, []model.MessageType{model.TypeError}, h.out.Kinds())
	assert.Equal(t, 0, h.orch.Registry.Len())
}

func TestStartQuestionFetchFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.questions.err = errors.New("llm down")

	err := h.orch.Start(context.Background(), testToken, h.out)
	require.Error(t, err)
	msg := h.out.Messages()[0].(model.ErrorMessage)
	assert.Equal(t, msgQuestionsUnavailable, msg.Message)
	assert.Empty(t, h.tickets.Invalidated())
}

func TestStartRejectsSecondConnection(t *testing.T) {
	h := newHarness(t, []string{"Q1"})
	h.start(t)

	other := &recordingSender{}
	err := h.orch.Start(context.Background(), testToken, other)
	require.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, []model.MessageType{model.TypeError}, other.Kinds())
	assert.Equal(t, 1, h.orch.Registry.Len())
}

func TestStartClientGoneBeforeFirstQuestion(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"})
	h.out.Close()

	err := h.orch.Start(context.Background(), testToken, h.out)
	h.orch.Wait()
	require.ErrorIs(t, err, ErrFirstQuestionUndelivered)

	assert.Equal(t, 0, h.orch.Registry.Len())
	saved := h.results.Saved()
	require.Len(t, saved, 1)
	assert.Empty(t, saved[0].Answers)
	assert.Equal(t, []string{testToken}, h.tickets.Invalidated())
	assert.Empty(t, h.out.Messages())

	// the credential is spent, so a retry is refused rather than treated as a conflict
	retry := &recordingSender{}
	err = h.orch.Start(context.Background(), testToken, retry)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 0, h.orch.Registry.Len())
}

func TestStartClientGoneWithoutSpeech(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.out.Close()

	require.ErrorIs(t, h.orch.Start(context.Background(), testToken, h.out), ErrFirstQuestionUndelivered)
	assert.Equal(t, 0, h.orch.Registry.Len())
	assert.Len(t, h.results.Saved(), 1)
	assert.Equal(t, []string{testToken}, h.tickets.Invalidated())
}

func TestEndToEndTwoQuestions(t *testing.T) {
	h := newHarness(t, []string{"Explain goroutines.", "Explain channels."})
	h.followups.steps = []followupStep{
		next("How are they scheduled?"),
		{followup: model.Followup{IsEnd: true}},
		next("When would you use a buffered channel?"),
		{followup: model.Followup{IsEnd: true}},
	}
	h.start(t)
	h.clock.Advance(90 * time.Second)

	h.out.Reset()
	h.send(answer("They are lightweight threads."))
	require.Equal(t, []model.MessageType{model.TypeFollowup, model.TypeAudio}, h.out.Kinds())
	fu := h.out.Messages()[0].(model.FollowupMessage)
	assert.Equal(t, model.FollowupRecord{Question: "How are they scheduled?", ForWhatQuestion: 1}, fu.Followup)

	h.out.Reset()
	h.send(followupAnswer("By the runtime scheduler."))
	require.Equal(t, []model.MessageType{model.TypeQuestion}, h.out.Kinds())
	q2 := h.out.Messages()[0].(model.QuestionMessage)
	assert.Equal(t, 2, q2.QuestionIndex)
	assert.True(t, q2.ResetEditor)
	assert.NotEmpty(t, q2.Audio, "prefetched audio rides inline")

	h.send(answer("Typed pipes between goroutines."))
	require.Equal(t, PhaseAwaitingFollowupAnswer, h.snapshot(t).Phase)

	h.out.Reset()
	h.send(followupAnswer("can you explain what you mean"))
	fu = h.out.Messages()[0].(model.FollowupMessage)
	assert.Equal(t, 2, fu.Followup.ForWhatQuestion)
	assert.False(t, fu.Followup.IsThisTheEnd)
	st := h.snapshot(t)
	assert.Equal(t, PhaseAwaitingFollowupAnswer, st.Phase)
	assert.Empty(t, st.FollowupAnswers)

	h.out.Reset()
	h.send(followupAnswer("When producers are bursty."))
	require.Equal(t, []model.MessageType{model.TypeInterviewComplete}, h.out.Kinds())
	done := h.out.Messages()[0].(model.InterviewComplete)
	require.NotNil(t, done.ResultID)

	saved := h.results.Saved()
	require.Len(t, saved, 1)
	rec := saved[0]
	assert.Equal(t, *done.ResultID, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, int64(90), rec.ElapsedSeconds)
	assert.Equal(t, 80, rec.Score)
	require.Len(t, rec.Answers, 2)
	assert.Equal(t, "They are lightweight threads.", rec.Answers[0].Answer.Content)
	assert.Equal(t, []model.FollowupExchange{{Question: "How are they scheduled?", Answer: "By the runtime scheduler."}}, rec.Answers[0].Followups)
	assert.Equal(t, []model.FollowupExchange{{Question: "When would you use a buffered channel?", Answer: "When producers are bursty."}}, rec.Answers[1].Followups)

	assert.Equal(t, []string{testToken}, h.tickets.Invalidated())
	assert.Equal(t, 0, h.orch.Registry.Len())
}

func TestFollowupBudgetIsAHardCap(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech())
	h.followups.steps = []followupStep{next("F1"), next("F2"), next("F3")}
	h.start(t)

	h.send(answer("a1"))
	h.send(followupAnswer("f1"))
	h.send(followupAnswer("f2"))

	assert.Len(t, h.followups.requests, 2)
	var followups int
	for _, m := range h.out.Messages() {
		if m.Kind() == model.TypeFollowup {
			followups++
		}
	}
	assert.Equal(t, 2, followups)

	st := h.snapshot(t)
	assert.Equal(t, 2, st.QuestionIndex)
	assert.Equal(t, PhaseAwaitingAnswer, st.Phase)
	assert.Equal(t, []model.FollowupExchange{{Question: "F1", Answer: "f1"}, {Question: "F2", Answer: "f2"}}, st.Answers[0].Followups)

	// the second generator call sees the first exchange
	assert.Equal(t, []model.FollowupExchange{{Question: "F1", Answer: "f1"}}, h.followups.requests[1].Followups)
	assert.Equal(t, "a1", h.followups.requests[1].Answer.Content)
}

func TestLastQuestionCompletesWhenBudgetIsSpent(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech())
	h.followups.steps = []followupStep{
		{followup: model.Followup{IsEnd: true}},
		next("F2a"),
		next("F2b"),
		next("F2c"),
	}
	h.start(t)

	h.send(answer("a1"))
	require.Equal(t, 2, h.snapshot(t).QuestionIndex)

	h.send(answer("a2"))
	h.send(followupAnswer("f2a"))
	h.out.Reset()
	h.send(followupAnswer("f2b"))

	// the generator still had follow-ups to give but is not asked again
	assert.Len(t, h.followups.requests, 3)
	require.Equal(t, []model.MessageType{model.TypeInterviewComplete}, h.out.Kinds())

	saved := h.results.Saved()
	require.Len(t, saved, 1)
	require.Len(t, saved[0].Answers, 2)
	assert.Empty(t, saved[0].Answers[0].Followups)
	assert.Equal(t, []model.FollowupExchange{{Question: "F2a", Answer: "f2a"}, {Question: "F2b", Answer: "f2b"}}, saved[0].Answers[1].Followups)
	assert.Equal(t, []string{testToken}, h.tickets.Invalidated())
}

func TestFollowupFlaggedEndAdvancesWithoutGenerator(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech())
	h.followups.steps = []followupStep{{followup: model.Followup{Question: "Last one?", IsEnd: true}}}
	h.start(t)

	h.send(answer("a1"))
	fu := h.out.Messages()[1].(model.FollowupMessage)
	assert.True(t, fu.Followup.IsThisTheEnd)

	h.send(followupAnswer("f1"))
	assert.Len(t, h.followups.requests, 1)
	assert.Equal(t, 2, h.snapshot(t).QuestionIndex)
}

func TestGeneratorFailureKeepsState(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.followups.steps = []followupStep{{err: errors.New("timeout")}}
	h.start(t)
	h.out.Reset()

	h.send(answer("a1"))
	require.Equal(t, []model.MessageType{model.TypeError}, h.out.Kinds())
	st := h.snapshot(t)
	assert.Empty(t, st.Answers)
	assert.Equal(t, PhaseAwaitingAnswer, st.Phase)
}

func TestDisconnectAfterFirstAnswerPersistsPartialTranscript(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2", "Q3"}, withoutSpeech())
	h.followups.steps = []followupStep{next("F1")}
	h.start(t)
	h.send(answer("a1"))

	h.out.Close()
	require.NoError(t, h.orch.Close(context.Background(), testToken))

	saved := h.results.Saved()
	require.Len(t, saved, 1)
	require.Len(t, saved[0].Answers, 1)
	assert.Equal(t, "Q1", saved[0].Answers[0].Question)
	assert.Equal(t, []model.FollowupExchange{{Question: "F1"}}, saved[0].Answers[0].Followups)
	assert.Equal(t, 0, h.orch.Registry.Len())

	// a second close finds nothing to finalize
	require.NoError(t, h.orch.Close(context.Background(), testToken))
	assert.Len(t, h.results.Saved(), 1)
}

func TestCloseAfterCompletionFinalizesOnce(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.start(t)
	h.send(answer("a1"))
	require.Len(t, h.results.Saved(), 1)

	require.NoError(t, h.orch.Close(context.Background(), testToken))
	assert.Len(t, h.results.Saved(), 1)
}

func TestCloseWithoutAnswers(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech())
	h.start(t)
	h.out.Reset()

	require.NoError(t, h.orch.Close(context.Background(), testToken))
	saved := h.results.Saved()
	require.Len(t, saved, 1)
	assert.NotNil(t, saved[0].Answers)
	assert.Empty(t, saved[0].Answers)
	assert.Equal(t, []model.MessageType{model.TypeInterviewComplete}, h.out.Kinds())
}

func TestPersistFailureReportsNullResult(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.results.err = errors.New("disk full")
	h.start(t)
	h.out.Reset()

	h.send(answer("a1"))
	done := h.out.Messages()[0].(model.InterviewComplete)
	assert.Nil(t, done.ResultID)
	assert.Equal(t, []string{testToken}, h.tickets.Invalidated())
}

func TestAudioAnswerIsTranscribed(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech(), func(h *harness, d *Dependencies, _ *Config) {
		d.Transcriber = h.transcriber
	})
	h.transcriber.text = "spoken answer"
	h.start(t)

	h.send(model.Inbound{
		Type:          model.TypeQuestionAnswer,
		Content:       "ignored",
		Audio:         base64.StdEncoding.EncodeToString([]byte("webm-bytes")),
		AudioMimeType: "audio/webm",
	})

	assert.Equal(t, []byte("webm-bytes"), h.transcriber.got)
	require.Len(t, h.followups.requests, 1)
	assert.Equal(t, "spoken answer", h.followups.requests[0].Answer.Content)
}

func TestTranscriptionFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, []string{"Q1"})
	h.transcriber.err = errors.New("asr down")
	h.start(t)
	h.out.Reset()

	h.send(model.Inbound{Type: model.TypeQuestionAnswer, Audio: base64.StdEncoding.EncodeToString([]byte("x"))})

	require.Equal(t, []model.MessageType{model.TypeError}, h.out.Kinds())
	assert.Empty(t, h.followups.requests)
	st := h.snapshot(t)
	assert.Empty(t, st.Answers)
	assert.Equal(t, 1, st.QuestionIndex)
}

func TestClarificationDuringMainQuestion(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, withoutSpeech())
	h.start(t)
	h.out.Reset()

	h.send(answer("Could you repeat the question?"))

	require.Equal(t, []model.MessageType{model.TypeQuestion}, h.out.Kinds())
	q := h.out.Messages()[0].(model.QuestionMessage)
	assert.Equal(t, "Let me put it another way.", q.Question)
	assert.Equal(t, 1, q.QuestionIndex)
	assert.False(t, q.ResetEditor)
	assert.Empty(t, h.followups.requests)

	st := h.snapshot(t)
	assert.Equal(t, "Let me put it another way.", st.ActivePrompt)
	assert.Empty(t, st.Answers)
}

func TestClarificationDuringFollowup(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.followups.steps = []followupStep{next("F1")}
	h.start(t)
	h.send(answer("a1"))
	h.out.Reset()

	h.send(followupAnswer("I don't understand"))

	fu := h.out.Messages()[0].(model.FollowupMessage)
	assert.Equal(t, model.FollowupRecord{Question: "Let me put it another way.", ForWhatQuestion: 1}, fu.Followup)
	st := h.snapshot(t)
	assert.Len(t, st.Followups, 1, "clarification is not a new follow-up")
	assert.Equal(t, PhaseAwaitingFollowupAnswer, st.Phase)
}

func TestPingAndIgnoredMessages(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.start(t)
	h.out.Reset()

	h.send(model.Inbound{Type: "dance"})
	h.send(followupAnswer("out of turn"))
	assert.Empty(t, h.out.Messages())

	h.send(model.Inbound{Type: model.TypePing})
	assert.Equal(t, []model.MessageType{model.TypePong}, h.out.Kinds())

	h.orch.Handle(context.Background(), "unknown", model.Inbound{Type: model.TypePing})
	assert.Len(t, h.out.Messages(), 1)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	h := newHarness(t, []string{"Q1"}, withoutSpeech())
	h.followups.steps = []followupStep{{panic: true}}
	h.start(t)
	h.out.Reset()

	h.send(answer("a1"))
	require.Equal(t, []model.MessageType{model.TypeError}, h.out.Kinds())
	assert.Equal(t, msgInternal, h.out.Messages()[0].(model.ErrorMessage).Message)

	h.send(model.Inbound{Type: model.TypePing})
	assert.Equal(t, model.TypePong, h.out.Messages()[1].Kind())
}

func TestUncachedFollowupAudioFailure(t *testing.T) {
	h := newHarness(t, []string{"Q1"})
	h.followups.steps = []followupStep{next("F1")}
	h.synth.Fail("F1")
	h.start(t)
	h.out.Reset()

	h.send(answer("a1"))
	assert.Equal(t, []model.MessageType{model.TypeFollowup, model.TypeAudioFailed}, h.out.Kinds())
}
