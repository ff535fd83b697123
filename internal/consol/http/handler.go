package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/platform/httpx"
)

// Consolidator is the subset of consol.Service the handler uses.
type Consolidator interface {
	Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (consol.ConsolidatedSummary, error)
}

// Handler wires the consolidated view endpoint.
type Handler struct {
	logger  *slog.Logger
	service Consolidator
}

// NewHandler constructs the consolidation handler.
func NewHandler(logger *slog.Logger, service Consolidator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidation/{date}", h.getConsolidation)
}

func (h *Handler) getConsolidation(w http.ResponseWriter, r *http.Request) {
	date, err := ledger.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	ids, err := ParseUnitIDs(r.URL.Query().Get("units"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := date.Format(ledger.DateLayout) + "|" + r.URL.Query().Get("units")
	view, shared, err := collapse(r.Context(), key, func(ctx context.Context) (consol.ConsolidatedSummary, error) {
		return h.service.Consolidate(ctx, date, ids)
	})
	if err != nil {
		if !ledger.IsValidation(err) {
			h.logger.Error("consolidate", slog.String("date", date.Format(ledger.DateLayout)), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if shared {
		w.Header().Set("X-Consolidation-Shared", "1")
	}
	httpx.JSON(w, http.StatusOK, view)
}

// ParseUnitIDs parses a comma separated id list. An empty value means all
// units.
func ParseUnitIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: unit id %q", httpx.ErrValidation, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
