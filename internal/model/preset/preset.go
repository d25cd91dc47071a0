package preset

// Preset describes an interview template shown to the frontend.
type Preset struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Title         string   `json:"title" yaml:"title"`
	Level         string   `json:"level" yaml:"level"`
	Description   string   `json:"description,omitempty" yaml:"description"`
	Topics        []string `json:"topics,omitempty" yaml:"topics"`
	QuestionCount int      `json:"questionCount" yaml:"question_count"`
	Questions     []string `json:"-" yaml:"questions"`    // 固定题库，为空时由 LLM 生成
	VoiceID       string   `json:"voiceId,omitempty" yaml:"voice_id"`
	PromptHint    string   `json:"promptHint,omitempty" yaml:"prompt_hint"`
}

// HasFixedBank reports whether the preset ships its own questions.
func (p Preset) HasFixedBank() bool {
	return len(p.Questions) > 0
}

// Seed provides the default interview presets.
func Seed() []Preset {
	return []Preset{
		{
			ID:            "go-backend",
			Name:          "Go 后端工程师",
			Title:         "Backend Engineer (Go)",
			Level:         "mid",
			Description:   "覆盖并发模型、HTTP 服务与存储设计的后端面试。",
			Topics:        []string{"goroutines", "channels", "http", "databases"},
			QuestionCount: 3,
			PromptHint:    "Focus on practical trade-offs the candidate has actually made.",
		},
		{
			ID:            "frontend-react",
			Name:          "前端工程师",
			Title:         "Frontend Engineer (React)",
			Level:         "junior",
			Description:   "组件设计、状态管理与浏览器基础。",
			Topics:        []string{"react", "state management", "css", "browser"},
			QuestionCount: 3,
			PromptHint:    "Keep questions concrete and ask for small code examples.",
		},
		{
			ID:            "system-design",
			Name:          "系统设计",
			Title:         "System Design",
			Level:         "senior",
			Description:   "固定题库的系统设计面试。",
			Topics:        []string{"scalability", "caching", "consistency"},
			QuestionCount: 2,
			Questions: []string{
				"Design a URL shortener that handles ten thousand writes per second. Where would you start?",
				"How would you add a cache in front of a read-heavy database, and how would you keep it consistent?",
			},
			PromptHint: "Push on bottlenecks and failure modes.",
		},
	}
}
