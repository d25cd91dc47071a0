package speech

// Transcript is returned by the transcription endpoint.
type Transcript struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// Health 语音服务状态
type Health struct {
	Enabled bool   `json:"enabled"`
	Voice   string `json:"voice,omitempty"`
}
