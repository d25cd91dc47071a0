package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zhouzirui/z-interview/backend/internal/model/speech"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Service 语音服务：文字转语音与语音转文字
type Service struct {
	cfg *speech.Config
	tts *ttsClient
	asr *asrClient
}

// NewService 创建语音服务实例
func NewService(cfg *speech.Config) *Service {
	return &Service{
		cfg: cfg,
		tts: newTTSClient(cfg),
		asr: newASRClient(cfg),
	}
}

// Synthesize renders text with the configured voice and returns mp3 bytes.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.SynthesizeVoice(ctx, text, "")
}

// SynthesizeVoice 使用指定音色合成，voice 为空时使用默认音色
func (s *Service) SynthesizeVoice(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.tts.synthesize(ctx, text, voice)
}

// Transcribe converts a recorded answer to text. mimeType is the browser
// supplied content type, e.g. "audio/webm;codecs=opus".
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	format, ok := formatFromMime(mimeType)
	if !ok {
		return "", ErrUnsupportedFormat
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.asr.transcribe(ctx, audio, format)
}

// Health reports the speech configuration exposed to clients.
func (s *Service) Health() speech.Health {
	return speech.Health{Enabled: true, Voice: s.cfg.TTSVoice}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
}

type audioFormat struct {
	container string
	codec     string
}

// formatFromMime 将浏览器的 MIME 类型映射为识别服务支持的格式
func formatFromMime(mimeType string) (audioFormat, bool) {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "", "audio/wav", "audio/x-wav", "audio/wave":
		return audioFormat{container: "wav", codec: "raw"}, true
	case "audio/pcm", "audio/l16":
		return audioFormat{container: "pcm", codec: "raw"}, true
	case "audio/mpeg", "audio/mp3":
		return audioFormat{container: "mp3", codec: "raw"}, true
	case "audio/ogg", "audio/webm", "audio/opus":
		return audioFormat{container: "ogg", codec: "opus"}, true
	default:
		return audioFormat{}, false
	}
}
