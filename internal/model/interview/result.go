package interview

import "time"

// Answer is what the candidate submitted for a prompt. Code and Whiteboard are
// optional artifacts (source snippet, base64 diagram snapshot).
type Answer struct {
	Content    string `json:"content"`
	Code       string `json:"code,omitempty"`
	Whiteboard string `json:"whiteboard,omitempty"`
}

// FollowupExchange pairs a follow-up question with the reply it got.
type FollowupExchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionAnswer is one main question together with its answer and the
// follow-up chain that was attached to it.
type QuestionAnswer struct {
	QuestionIndex int                `json:"questionIndex"`
	Question      string             `json:"question"`
	Answer        Answer             `json:"answer"`
	Followups     []FollowupExchange `json:"followups,omitempty"`
}

// CompletedInterview is written exactly once per session by the finalizer.
type CompletedInterview struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	PresetID       string           `json:"presetId"`
	Answers        []QuestionAnswer `json:"answers"`
	ElapsedSeconds int64            `json:"elapsedSeconds"`
	Score          int              `json:"score"`
	Feedback       string           `json:"feedback"`
	CreatedAt      time.Time        `json:"createdAt"`
}
