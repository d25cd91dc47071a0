package speech

// Config 语音服务配置
type Config struct {
	// Volcengine 凭证
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	APIKey      string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key

	ConcurrentMode bool `json:"concurrentMode"` // ASR 并发版资源（false 为小时版）

	// 为空时使用官方地址，测试中指向本地服务
	TTSEndpoint string `json:"ttsEndpoint,omitempty"`
	ASREndpoint string `json:"asrEndpoint,omitempty"`

	ASRLanguage string `json:"asrLanguage"`

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout int `json:"timeout"` // seconds
}
