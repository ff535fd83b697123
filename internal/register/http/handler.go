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
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/platform/httpx"
	"github.com/odyssey-erp/caixa/internal/register"
)

// IdempotencyHeader carries the client-chosen retry key.
const IdempotencyHeader = "Idempotency-Key"

// RegisterService is the subset of register.Service the handlers use.
type RegisterService interface {
	Open(ctx context.Context, in register.OpenInput) (register.Register, error)
	Close(ctx context.Context, in register.CloseInput) (register.Register, error)
	RecordMovements(ctx context.Context, in register.RecordInput) (ledger.Summary, error)
	GetRegister(ctx context.Context, unitID int64, date time.Time) (register.Register, error)
	GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error)
	ListMovements(ctx context.Context, unitID int64, date time.Time) ([]ledger.Movement, error)
}

// Handler wires register lifecycle and ingestion endpoints.
type Handler struct {
	logger     *slog.Logger
	service    RegisterService
	normalizer *ledger.Normalizer
	validator  *validator.Validate
	location   *time.Location
}

// NewHandler constructs a Handler. Business dates derived from timestamps use
// loc; nil means UTC.
func NewHandler(logger *slog.Logger, service RegisterService, normalizer *ledger.Normalizer, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		logger:     logger,
		service:    service,
		normalizer: normalizer,
		validator:  validator.New(),
		location:   loc,
	}
}

// MountRoutes registers the handler routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/registers/{unitID}/{date}", func(r chi.Router) {
		r.Get("/", h.getRegister)
		r.Get("/summary", h.getSummary)
		r.Get("/movements", h.listMovements)
		r.Post("/open", h.open)
		r.Post("/close", h.close)
		r.Post("/movements", h.recordManual)
	})
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/sales", h.ingestSale)
		r.Post("/appointment-payments", h.ingestAppointment)
	})
}

type openRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Operator       string          `json:"operator" validate:"required,max=120"`
}

type closeRequest struct {
	Operator string `json:"operator" validate:"max=120"`
}

type manualRequest struct {
	Kind          string          `json:"kind" validate:"required"`
	Direction     string          `json:"direction" validate:"omitempty,oneof=INFLOW OUTFLOW"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description" validate:"max=500"`
	OccurredAt    *time.Time      `json:"occurred_at"`
}

type saleRequest struct {
	SaleID           string          `json:"sale_id" validate:"required,max=120"`
	UnitID           int64           `json:"unit_id" validate:"required,gt=0"`
	Date             string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaymentMethod    string          `json:"payment_method"`
	InstallmentCount int             `json:"installment_count" validate:"gte=0,lte=48"`
	Description      string          `json:"description" validate:"max=500"`
	OccurredAt       *time.Time      `json:"occurred_at"`
}

type paymentRequest struct {
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
}

type appointmentRequest struct {
	AppointmentID string           `json:"appointment_id" validate:"required,max=120"`
	UnitID        int64            `json:"unit_id" validate:"required,gt=0"`
	Date          string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Payments      []paymentRequest `json:"payments" validate:"dive"`
	Description   string           `json:"description" validate:"max=500"`
	OccurredAt    *time.Time       `json:"occurred_at"`
}

type movementsResponse struct {
	UnitID    int64             `json:"unit_id"`
	Date      string            `json:"date"`
	Movements []ledger.Movement `json:"movements"`
}

type recordResponse struct {
	Movements []ledger.Movement `json:"movements"`
	Summary   ledger.Summary    `json:"summary"`
}

func (h *Handler) getRegister(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.GetRegister(r.Context(), unitID, date)
	if err != nil {
		h.fail(w, r, "get register", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.GetSummary(r.Context(), unitID, date)
	if err != nil {
		h.fail(w, r, "get summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), unitID, date)
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	if movements == nil {
		movements = []ledger.Movement{}
	}
	httpx.JSON(w, http.StatusOK, movementsResponse{UnitID: unitID, Date: date.Format(ledger.DateLayout), Movements: movements})
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req openRequest
	if !h.decode(w, r, &req) {
		return
	}
	opening, err := ledger.CentsFromDecimal(req.OpeningBalance)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.Open(r.Context(), register.OpenInput{
		UnitID:         unitID,
		Date:           date,
		OpeningBalance: opening,
		Operator:       strings.TrimSpace(req.Operator),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, r, "open register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reg)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req closeRequest
	if !h.decodeWith(w, r, &req, httpx.DecodeOptionalJSON) {
		return
	}
	reg, err := h.service.Close(r.Context(), register.CloseInput{
		UnitID:         unitID,
		Date:           date,
		Operator:       strings.TrimSpace(req.Operator),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, r, "close register", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) recordManual(w http.ResponseWriter, r *http.Request) {
	unitID, date, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req manualRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := ledger.CentsFromDecimal(req.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.normalizer.FromManual(r.Context(), ledger.ManualEntry{
		UnitID:        unitID,
		Date:          date,
		Kind:          ledger.ManualKind(req.Kind),
		Direction:     ledger.Direction(strings.ToUpper(req.Direction)),
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		OccurredAt:    timeValue(req.OccurredAt),
	})
	if err != nil {
		h.fail(w, r, "normalise manual entry", err)
		return
	}
	h.record(w, r, unitID, date, []ledger.Movement{m})
}

func (h *Handler) ingestSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := ledger.CentsFromDecimal(req.TotalAmount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	occurredAt := timeValue(req.OccurredAt)
	date, err := h.businessDate(req.Date, occurredAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.normalizer.FromSale(r.Context(), ledger.SaleEvent{
		SaleID:           req.SaleID,
		UnitID:           req.UnitID,
		Date:             date,
		TotalAmount:      amount,
		PaymentMethod:    req.PaymentMethod,
		InstallmentCount: req.InstallmentCount,
		Description:      req.Description,
		OccurredAt:       occurredAt,
	})
	if err != nil {
		h.fail(w, r, "normalise sale", err)
		return
	}
	h.record(w, r, m.UnitID, m.Date, []ledger.Movement{m})
}

func (h *Handler) ingestAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payments := make([]ledger.PartialPayment, 0, len(req.Payments))
	for _, p := range req.Payments {
		amount, err := ledger.CentsFromDecimal(p.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		payments = append(payments, ledger.PartialPayment{PaymentMethod: p.PaymentMethod, Amount: amount})
	}
	occurredAt := timeValue(req.OccurredAt)
	date, err := h.businessDate(req.Date, occurredAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.normalizer.FromAppointmentPayments(r.Context(), ledger.AppointmentPaymentEvent{
		AppointmentID: req.AppointmentID,
		UnitID:        req.UnitID,
		Date:          date,
		Payments:      payments,
		Description:   req.Description,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		h.fail(w, r, "normalise appointment payments", err)
		return
	}
	h.record(w, r, req.UnitID, ledger.Day(date), movements)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request, unitID int64, date time.Time, movements []ledger.Movement) {
	summary, err := h.service.RecordMovements(r.Context(), register.RecordInput{
		UnitID:         unitID,
		Date:           date,
		Movements:      movements,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, r, "record movements", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recordResponse{Movements: movements, Summary: summary})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	return h.decodeWith(w, r, target, httpx.DecodeJSON)
}

func (h *Handler) decodeWith(w http.ResponseWriter, r *http.Request, target any, decode func(http.ResponseWriter, *http.Request, any) error) bool {
	if err := decode(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

// businessDate prefers an explicit date and otherwise takes the calendar day
// of the event in the cashier time zone.
func (h *Handler) businessDate(raw string, occurredAt time.Time) (time.Time, error) {
	if raw != "" {
		date, err := ledger.ParseDay(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		return date, nil
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return ledger.Day(occurredAt.In(h.location)), nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !ledger.IsLifecycle(err) && !ledger.IsValidation(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func scopeParams(r *http.Request) (int64, time.Time, error) {
	unitID, err := strconv.ParseInt(chi.URLParam(r, "unitID"), 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: unit id must be numeric", httpx.ErrValidation)
	}
	date, err := ledger.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return unitID, date, nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
