package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/platform/httpx"
	"github.com/odyssey-erp/caixa/internal/reconciliation"
	"github.com/odyssey-erp/caixa/report"
)

const renderTemplate = "reconciliation"

// ReportBuilder assembles report models.
type ReportBuilder interface {
	Build(ctx context.Context, date time.Time, unitID int64) (reconciliation.Report, error)
}

// Renderer hands a model to the report collaborator.
type Renderer interface {
	Render(ctx context.Context, template string, model any) (report.Document, error)
}

// Handler wires reconciliation report endpoints.
type Handler struct {
	logger   *slog.Logger
	builder  ReportBuilder
	renderer Renderer
}

// NewHandler constructs the handler. A nil renderer disables the render route.
func NewHandler(logger *slog.Logger, builder ReportBuilder, renderer Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, builder: builder, renderer: renderer}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reconciliation/{date}", h.getModel)
	if h.renderer != nil {
		r.Post("/reconciliation/{date}/render", h.render)
	}
}

func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	model, ok := h.build(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, model)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	model, ok := h.build(w, r)
	if !ok {
		return
	}
	doc, err := h.renderer.Render(r.Context(), renderTemplate, model)
	if err != nil {
		if errors.Is(err, report.ErrRendererUnavailable) {
			h.logger.Warn("render reconciliation skipped, circuit open", slog.Any("error", err))
			w.Header().Set("Retry-After", "30")
			httpx.Problem(w, http.StatusServiceUnavailable, "Renderer Unavailable", "")
			return
		}
		h.logger.Error("render reconciliation", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Renderer Failed", "")
		return
	}
	filename := fmt.Sprintf("fechamento-%s-%s.pdf", unitToken(model.Header.UnitID), model.Header.Date.Format(ledger.DateLayout))
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", "inline; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func (h *Handler) build(w http.ResponseWriter, r *http.Request) (reconciliation.Report, bool) {
	date, err := ledger.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return reconciliation.Report{}, false
	}
	unitID := ledger.AllUnits
	if raw := strings.TrimSpace(r.URL.Query().Get("unit")); raw != "" && raw != "all" {
		unitID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || unitID < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: unit %q", httpx.ErrValidation, raw))
			return reconciliation.Report{}, false
		}
	}
	model, err := h.builder.Build(r.Context(), date, unitID)
	if err != nil {
		if !ledger.IsValidation(err) {
			h.logger.Error("build reconciliation", slog.Int64("unit_id", unitID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return reconciliation.Report{}, false
	}
	return model, true
}

func unitToken(unitID int64) string {
	if unitID == ledger.AllUnits {
		return "todas"
	}
	return strconv.FormatInt(unitID, 10)
}
