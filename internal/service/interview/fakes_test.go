package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSender struct {
	mu     sync.Mutex
	msgs   []model.Outbound
	closed bool
}

func (s *recordingSender) Send(msg model.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("connection closed")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSender) Messages() []model.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Outbound(nil), s.msgs...)
}

func (s *recordingSender) Kinds() []model.MessageType {
	var kinds []model.MessageType
	for _, m := range s.Messages() {
		kinds = append(kinds, m.Kind())
	}
	return kinds
}

func (s *recordingSender) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

type fakeTickets struct {
	mu          sync.Mutex
	tickets     map[string]model.Ticket
	invalidated []string
}

func newFakeTickets(tickets ...model.Ticket) *fakeTickets {
	f := &fakeTickets{tickets: make(map[string]model.Ticket)}
	for _, t := range tickets {
		f.tickets[t.Token] = t
	}
	return f
}

func (f *fakeTickets) Validate(_ context.Context, token string) (model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[token]
	if !ok {
		return model.Ticket{}, errors.New("session token not found")
	}
	if !t.Active {
		return model.Ticket{}, errors.New("session token is no longer active")
	}
	return t, nil
}

func (f *fakeTickets) Invalidate(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[token]
	if !ok {
		return errors.New("session token not found")
	}
	t.Active = false
	f.tickets[token] = t
	f.invalidated = append(f.invalidated, token)
	return nil
}

func (f *fakeTickets) Invalidated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

type staticQuestions struct {
	sets  map[string][]string
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *staticQuestions) Questions(ctx context.Context, presetID string) (*model.QuestionSet, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	qs, ok := s.sets[presetID]
	if !ok {
		return nil, fmt.Errorf("unknown preset %s", presetID)
	}
	return &model.QuestionSet{PresetID: presetID, Questions: qs}, nil
}

type fakeSynth struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	delay time.Duration
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls[text]++
	fail := f.fail[text]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("tts unavailable")
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynth) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeSynth) Fail(text string) {
	f.mu.Lock()
	f.fail[text] = true
	f.mu.Unlock()
}

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.got = audio
	return f.text, f.err
}

type followupStep struct {
	followup model.Followup
	err      error
	panic    bool
}

// scriptedFollowups returns steps in order, then repeats the last one.
type scriptedFollowups struct {
	steps    []followupStep
	requests []model.FollowupRequest
}

func (s *scriptedFollowups) GenerateFollowup(_ context.Context, req model.FollowupRequest) (model.Followup, error) {
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return model.Followup{IsEnd: true}, nil
	}
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	if step.panic {
		panic("generator exploded")
	}
	return step.followup, step.err
}

type fakeClarifier struct {
	reply string
	err   error
	calls int
}

func (f *fakeClarifier) Clarify(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeEvaluator struct {
	eval model.Evaluation
	err  error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ *preset.Preset, _ []model.QuestionAnswer) (model.Evaluation, error) {
	return f.eval, f.err
}

type fakeResults struct {
	mu    sync.Mutex
	saved []model.CompletedInterview
	err   error
}

func (f *fakeResults) SaveResult(_ context.Context, r model.CompletedInterview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeResults) Saved() []model.CompletedInterview {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CompletedInterview(nil), f.saved...)
}
