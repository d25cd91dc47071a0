package interview

import (
	"sync"
	"time"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// Phase 会话状态机的阶段
type Phase int

const (
	PhaseAwaitingAnswer Phase = iota
	PhaseAwaitingFollowupAnswer
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingAnswer:
		return "AWAITING_ANSWER"
	case PhaseAwaitingFollowupAnswer:
		return "AWAITING_FOLLOWUP_ANSWER"
	case PhaseTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}

// State is the live state of one interview.
type State struct {
	Token         string
	UserID        string
	PresetID      string
	Questions     *model.QuestionSet
	QuestionIndex int // 1-based
	ActivePrompt  string
	// Followups holds every follow-up issued so far, tagged by main question.
	Followups []model.FollowupRecord
	// FollowupAnswers belong to the current main question only.
	FollowupAnswers []string
	Answers         []model.QuestionAnswer
	StartedAt       time.Time
	Phase           Phase
}

func (st *State) currentQuestion() string {
	q, _ := st.Questions.At(st.QuestionIndex)
	return q
}

// followupsFor returns the follow-ups issued for main question index.
func (st *State) followupsFor(index int) []model.FollowupRecord {
	var out []model.FollowupRecord
	for _, f := range st.Followups {
		if f.ForWhatQuestion == index {
			out = append(out, f)
		}
	}
	return out
}

// exchanges 将当前主问题的追问与已收到的回答配对
func (st *State) exchanges() []model.FollowupExchange {
	return pairExchanges(st.followupsFor(st.QuestionIndex), st.FollowupAnswers)
}

func pairExchanges(records []model.FollowupRecord, answers []string) []model.FollowupExchange {
	out := make([]model.FollowupExchange, 0, len(records))
	for i, r := range records {
		ex := model.FollowupExchange{Question: r.Question}
		if i < len(answers) {
			ex.Answer = answers[i]
		}
		out = append(out, ex)
	}
	return out
}

// currentAnswer returns the recorded answer for the current main question.
func (st *State) currentAnswer() (*model.QuestionAnswer, bool) {
	if n := len(st.Answers); n > 0 && st.Answers[n-1].QuestionIndex == st.QuestionIndex {
		return &st.Answers[n-1], true
	}
	return nil, false
}

// Snapshot deep-copies the transcript. A follow-up chain still in progress is
// attached to its main answer so a disconnect loses nothing.
func (st *State) Snapshot() State {
	cp := *st
	cp.Followups = append([]model.FollowupRecord(nil), st.Followups...)
	cp.FollowupAnswers = append([]string(nil), st.FollowupAnswers...)
	cp.Answers = make([]model.QuestionAnswer, len(st.Answers))
	for i, qa := range st.Answers {
		qa.Followups = append([]model.FollowupExchange(nil), qa.Followups...)
		cp.Answers[i] = qa
	}
	if answer, ok := cp.currentAnswer(); ok && len(answer.Followups) == 0 {
		answer.Followups = st.exchanges()
	}
	return cp
}

// Session couples a state with the connection it belongs to. mu serializes
// message handling and finalization.
type Session struct {
	mu    sync.Mutex
	state *State
	out   Sender
}

func newSession(st *State, out Sender) *Session {
	return &Session{state: st, out: out}
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}
