package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/caixa/internal/platform/httpx"
	"github.com/odyssey-erp/caixa/internal/units"
)

// Lister lists business units.
type Lister interface {
	List(ctx context.Context, activeOnly bool) ([]units.Unit, error)
}

// Handler exposes the unit catalogue.
type Handler struct {
	logger  *slog.Logger
	service Lister
}

// NewHandler constructs the units handler.
func NewHandler(logger *slog.Logger, service Lister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET /units. ?all=true includes inactive units.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/units", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	list, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list units", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []units.Unit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"units": list})
}
