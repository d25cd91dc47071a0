package interview

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
	interviewsvc "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/ticket"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

// Provisioner 用户开通与凭证签发
type Provisioner interface {
	CreateUser(ctx context.Context, name string) (model.User, error)
	Issue(ctx context.Context, userID, presetID string) (model.Ticket, error)
}

// Sessions drives live interviews; implemented by the orchestrator.
type Sessions interface {
	Start(ctx context.Context, token string, out interviewsvc.Sender) error
	Handle(ctx context.Context, token string, msg model.Inbound)
	Close(ctx context.Context, token string) error
}

type Results interface {
	GetResult(ctx context.Context, id string) (model.CompletedInterview, error)
}

// Handler 面试相关的 HTTP 与 WebSocket 处理器。sessions 为空时面试接口返回 503。
type Handler struct {
	tickets  Provisioner
	sessions Sessions
	results  Results
	upgrader websocket.Upgrader

	pingInterval time.Duration
	readTimeout  time.Duration
}

// New 创建面试处理器
func New(tickets Provisioner, sessions Sessions, results Results) *Handler {
	return &Handler{
		tickets:  tickets,
		sessions: sessions,
		results:  results,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pingInterval: 54 * time.Second,
		readTimeout:  60 * time.Second,
	}
}

// RegisterRoutes 注册用户、凭证、结果与面试 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleCreateUser)

	r.Route("/interview", func(ir chi.Router) {
		ir.Get("/results/{id}", h.handleGetResult)

		if h.sessions == nil {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "interview service unavailable")
			}
			ir.Post("/sessions", unavailable)
			ir.Post("/sessions/{token}/close", unavailable)
			ir.Get("/ws", unavailable)
			ir.Get("/ws/{token}", unavailable)
			return
		}

		ir.Post("/sessions", h.handleIssue)
		ir.Post("/sessions/{token}/close", h.handleClose)
		ir.Get("/ws", h.handleMissingToken)
		ir.Get("/ws/{token}", h.handleWebSocket)
	})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.tickets.CreateUser(r.Context(), payload.Name)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, user)
}

// handleIssue 签发会话凭证
func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID   string `json:"userId"`
		PresetID string `json:"presetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issued, err := h.tickets.Issue(r.Context(), strings.TrimSpace(payload.UserID), strings.TrimSpace(payload.PresetID))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, issued)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.sessions.Close(r.Context(), token); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ticket.ErrNameRequired),
		errors.Is(err, ticket.ErrUserRequired),
		errors.Is(err, ticket.ErrPresetRequired),
		errors.Is(err, ticket.ErrPresetNotFound):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrResultNotFound),
		errors.Is(err, ticket.ErrTicketNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("[interview] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
