package interview

import "time"

// QuestionSet 面试题集合，按顺序提问
type QuestionSet struct {
	PresetID    string    `json:"presetId"`
	Questions   []string  `json:"questions"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Len 返回主问题数量
func (qs *QuestionSet) Len() int {
	if qs == nil {
		return 0
	}
	return len(qs.Questions)
}

// At 按 1 开始的序号返回主问题
func (qs *QuestionSet) At(index int) (string, bool) {
	if qs == nil || index < 1 || index > len(qs.Questions) {
		return "", false
	}
	return qs.Questions[index-1], true
}

// FollowupRecord 追问记录，生成后不可修改
type FollowupRecord struct {
	Question        string `json:"question"`
	IsThisTheEnd    bool   `json:"isThisTheEnd"`
	ForWhatQuestion int    `json:"forWhatQuestion"`
}

// Followup 追问生成器的输出
type Followup struct {
	Question string
	IsEnd    bool
}

// FollowupRequest 追问生成所需的上下文
type FollowupRequest struct {
	Question      string
	ActivePrompt  string
	QuestionIndex int
	Answer        Answer
	Followups     []FollowupExchange
}

// Evaluation 评分与反馈
type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}
