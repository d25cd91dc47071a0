package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-interview/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/z-interview/backend/internal/service/speech"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

const maxUploadSize = 32 << 20

// SpeechService 抽象语音识别与健康检查，便于测试与替换实现
type SpeechService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Health() speech.Health
}

// AudioSource 带缓存的语音合成，面试题的预取结果可以直接复用
type AudioSource interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	audio     AudioSource
}

// New 创建语音处理器
func New(speechSvc SpeechService, audio AudioSource) *Handler {
	return &Handler{speechSvc: speechSvc, audio: audio}
}

// RegisterRoutes 注册语音相关的路由。语音未配置时只保留健康检查。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Get("/health", h.handleHealth)

		if h.speechSvc == nil {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
			}
			speechRouter.Post("/transcribe", unavailable)
			speechRouter.Post("/synthesize", unavailable)
			return
		}

		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
	})
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	mimeType := strings.TrimSpace(r.FormValue("mimeType"))
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = inferMimeType(header.Filename)
	}

	text, err := h.speechSvc.Transcribe(r.Context(), data, mimeType)
	if err != nil {
		if errors.Is(err, speechsvc.ErrUnsupportedFormat) {
			utils.RespondError(w, http.StatusBadRequest, "unsupported audio format: "+mimeType)
			return
		}
		log.Printf("[speech] ASR error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, speech.Transcript{Text: text, Format: mimeType})
}

// handleSynthesize 处理文本转语音请求，返回 mp3
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.audio.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech.mp3")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.speechSvc == nil {
		utils.RespondJSON(w, http.StatusOK, speech.Health{Enabled: false})
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.speechSvc.Health())
}

// inferMimeType 从文件名推断音频类型
func inferMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".pcm":
		return "audio/pcm"
	case ".wav":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "audio/wav"
}
