package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-interview/backend/internal/handler/interview"
	"github.com/zhouzirui/z-interview/backend/internal/handler/preset"
	"github.com/zhouzirui/z-interview/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/z-interview/backend/internal/middleware"
	presetModel "github.com/zhouzirui/z-interview/backend/internal/model/preset"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	speechService "github.com/zhouzirui/z-interview/backend/internal/service/speech"
	"github.com/zhouzirui/z-interview/backend/internal/service/ticket"
)

// Dependencies 路由所需的服务。Interviews 为空表示大模型未配置，Speech 为空表示语音未配置。
type Dependencies struct {
	Presets        presetModel.Store
	Tickets        *ticket.Service
	Results        repository.ResultRepository
	Interviews     *interviewService.Orchestrator
	Speech         *speechService.Service
	Audio          *interviewService.AudioService
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	// 避免把 nil 指针包装成非 nil 接口
	var sessions interview.Sessions
	if deps.Interviews != nil {
		sessions = deps.Interviews
	}
	var speechSvc speech.SpeechService
	var audio speech.AudioSource
	if deps.Speech != nil && deps.Audio != nil {
		speechSvc = deps.Speech
		audio = deps.Audio
	}

	r.Route("/api", func(api chi.Router) {
		preset.New(deps.Presets).RegisterRoutes(api)
		interview.New(deps.Tickets, sessions, deps.Results).RegisterRoutes(api)
		speech.New(speechSvc, audio).RegisterRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
