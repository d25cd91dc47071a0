package preset

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

// Handler 面试预设的HTTP处理器
type Handler struct {
	presets preset.Store
}

// New 创建预设处理器
func New(presets preset.Store) *Handler {
	return &Handler{presets: presets}
}

// RegisterRoutes 注册预设相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/presets", h.handleListPresets)
	r.Get("/presets/{id}", h.handleGetPreset)
}

func (h *Handler) handleListPresets(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.presets.List())
}

func (h *Handler) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.presets.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "preset not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
