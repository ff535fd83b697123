package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/shared"
)

// Repository is the persistence contract for registers and their movements.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LoadRegister(ctx context.Context, scope ledger.Scope) (Register, error)
	ListMovements(ctx context.Context, scope ledger.Scope) ([]ledger.Movement, error)
	ListOpenBefore(ctx context.Context, date time.Time) ([]Register, error)
}

// TxRepository exposes operations that run inside a single transaction. The
// register row is the serialisation point for its scope.
type TxRepository interface {
	ClaimKey(ctx context.Context, key, module string) error
	LoadRegisterForUpdate(ctx context.Context, scope ledger.Scope) (Register, error)
	InsertRegister(ctx context.Context, reg Register) (Register, error)
	AppendMovements(ctx context.Context, registerID string, movements []ledger.Movement) error
	ListMovements(ctx context.Context, scope ledger.Scope) ([]ledger.Movement, error)
	UpdateRegister(ctx context.Context, reg Register, expectedVersion int64) error
}

// Metrics receives lifecycle counters.
type Metrics interface {
	RegisterOpened(unitID int64)
	RegisterClosed(unitID int64)
	MovementsRecorded(unitID int64, movements []ledger.Movement)
	OperationRejected(reason string)
}

// Invalidator is notified after every committed change so cached views can be
// discarded.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Auditor stores lifecycle audit entries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Units       ledger.UnitDirectory
	Metrics     Metrics
	Invalidator Invalidator
	Audit       Auditor
	// StrictScope panics on ErrScopeMismatch instead of logging and rejecting.
	StrictScope bool
}

// Service implements the cash register state machine.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cfg    ServiceConfig
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger.With(slog.String("component", "register")),
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Open starts the day for a unit with the operator-supplied opening balance.
func (s *Service) Open(ctx context.Context, in OpenInput) (Register, error) {
	if err := in.Validate(); err != nil {
		s.reject("open_invalid")
		return Register{}, err
	}
	if err := s.checkUnit(ctx, in.UnitID); err != nil {
		s.reject("open_unknown_unit")
		return Register{}, err
	}
	scope := ledger.NewScope(in.UnitID, in.Date)
	var reg Register
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, in.IdempotencyKey, moduleOpen); err != nil {
			return err
		}
		existing, err := tx.LoadRegisterForUpdate(ctx, scope)
		switch {
		case err == nil:
			if existing.IsOpen() {
				return ledger.ErrAlreadyOpen
			}
			return fmt.Errorf("%w: day %s was already closed", ledger.ErrRegisterClosed, scope)
		case !errors.Is(err, ErrRegisterNotFound):
			return err
		}
		openedAt := s.now().UTC()
		reg, err = tx.InsertRegister(ctx, Register{
			UnitID:         scope.UnitID,
			Date:           scope.Date,
			Status:         StatusOpen,
			OpeningBalance: in.OpeningBalance,
			Operator:       in.Operator,
			OpenedAt:       &openedAt,
			Version:        1,
		})
		return err
	})
	if err != nil {
		s.logLifecycle("open register", scope, err)
		return Register{}, err
	}
	s.logger.Info("register opened", scopeAttrs(scope, slog.String("register_id", reg.ID), slog.String("operator", reg.Operator))...)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RegisterOpened(scope.UnitID)
	}
	s.audit(ctx, "register.open", reg, map[string]any{"opening_balance": reg.OpeningBalance})
	s.invalidate(ctx)
	return reg, nil
}

// RecordMovement posts a single movement and returns the live summary.
func (s *Service) RecordMovement(ctx context.Context, unitID int64, date time.Time, m ledger.Movement, idempotencyKey string) (ledger.Summary, error) {
	return s.RecordMovements(ctx, RecordInput{
		UnitID:         unitID,
		Date:           date,
		Movements:      []ledger.Movement{m},
		IdempotencyKey: idempotencyKey,
	})
}

// RecordMovements posts movements against an open register. A closed or
// never-opened day rejects the whole batch with ErrRegisterClosed; nothing is
// redirected to another day.
func (s *Service) RecordMovements(ctx context.Context, in RecordInput) (ledger.Summary, error) {
	if in.UnitID <= ledger.AllUnits {
		s.reject("record_invalid_scope")
		return ledger.Summary{}, ledger.ErrInvalidScope
	}
	scope := ledger.NewScope(in.UnitID, in.Date)
	for _, m := range in.Movements {
		if !scope.Contains(m) {
			return ledger.Summary{}, s.scopeMismatch(scope, fmt.Errorf("%w: movement %s for %d:%s posted to %s",
				ledger.ErrScopeMismatch, m.ID, m.UnitID, m.Date.Format(ledger.DateLayout), scope))
		}
		if m.Amount <= 0 {
			s.reject("record_invalid_amount")
			return ledger.Summary{}, ledger.ErrInvalidAmount
		}
	}

	var summary ledger.Summary
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, in.IdempotencyKey, moduleRecord); err != nil {
			return err
		}
		reg, err := tx.LoadRegisterForUpdate(ctx, scope)
		if err != nil {
			if errors.Is(err, ErrRegisterNotFound) {
				return ledger.ErrRegisterClosed
			}
			return err
		}
		if !reg.IsOpen() {
			return ledger.ErrRegisterClosed
		}
		if len(in.Movements) > 0 {
			if err := tx.AppendMovements(ctx, reg.ID, in.Movements); err != nil {
				return err
			}
		}
		movements, err := tx.ListMovements(ctx, scope)
		if err != nil {
			return err
		}
		summary, err = ledger.Aggregate(scope, reg.OpeningBalance, movements)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrScopeMismatch) {
			return ledger.Summary{}, s.scopeMismatch(scope, err)
		}
		if errors.Is(err, ledger.ErrRegisterClosed) {
			s.reject("register_closed")
		}
		s.logLifecycle("record movements", scope, err)
		return ledger.Summary{}, err
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.MovementsRecorded(scope.UnitID, in.Movements)
	}
	s.logger.Debug("movements recorded", scopeAttrs(scope, slog.Int("count", len(in.Movements)))...)
	s.invalidate(ctx)
	return summary, nil
}

// Close freezes the day's totals. It is the only place totals become
// immutable; the register cannot be reopened afterwards.
func (s *Service) Close(ctx context.Context, in CloseInput) (Register, error) {
	if in.UnitID <= ledger.AllUnits {
		return Register{}, ledger.ErrInvalidScope
	}
	scope := ledger.NewScope(in.UnitID, in.Date)
	var reg Register
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, in.IdempotencyKey, moduleClose); err != nil {
			return err
		}
		current, err := tx.LoadRegisterForUpdate(ctx, scope)
		if err != nil {
			if errors.Is(err, ErrRegisterNotFound) {
				return ledger.ErrNotOpen
			}
			return err
		}
		if !current.IsOpen() {
			return ledger.ErrNotOpen
		}
		movements, err := tx.ListMovements(ctx, scope)
		if err != nil {
			return err
		}
		totals, err := ledger.Aggregate(scope, current.OpeningBalance, movements)
		if err != nil {
			return err
		}
		closedAt := s.now().UTC()
		reg = current
		reg.Status = StatusClosed
		reg.ClosedAt = &closedAt
		reg.ClosedBy = in.Operator
		reg.FrozenTotals = &totals
		reg.Version = current.Version + 1
		return tx.UpdateRegister(ctx, reg, current.Version)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrScopeMismatch) {
			return Register{}, s.scopeMismatch(scope, err)
		}
		s.logLifecycle("close register", scope, err)
		return Register{}, err
	}
	s.logger.Info("register closed", scopeAttrs(scope,
		slog.String("register_id", reg.ID),
		slog.Int64("closing_balance", reg.FrozenTotals.ClosingBalance),
	)...)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RegisterClosed(scope.UnitID)
	}
	s.audit(ctx, "register.close", reg, map[string]any{
		"closing_balance": reg.FrozenTotals.ClosingBalance,
		"gross_revenue":   reg.FrozenTotals.GrossRevenue,
		"collected_cash":  reg.FrozenTotals.CollectedCash,
	})
	s.invalidate(ctx)
	return reg, nil
}

// GetRegister returns the register for a scope, synthesising an implicit
// closed register with zero opening balance when none exists.
func (s *Service) GetRegister(ctx context.Context, unitID int64, date time.Time) (Register, error) {
	if unitID <= ledger.AllUnits {
		return Register{}, ledger.ErrInvalidScope
	}
	scope := ledger.NewScope(unitID, date)
	reg, err := s.repo.LoadRegister(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrRegisterNotFound) {
			return implicitRegister(scope), nil
		}
		return Register{}, err
	}
	return reg, nil
}

// GetSummary returns the live summary of an open register, the frozen totals
// of a closed one, or an all-zero summary for a scope never opened.
func (s *Service) GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error) {
	reg, err := s.GetRegister(ctx, unitID, date)
	if err != nil {
		return ledger.Summary{}, err
	}
	scope := reg.Scope()
	if !reg.Persisted() {
		return ledger.ZeroSummary(scope, 0), nil
	}
	if !reg.IsOpen() && reg.FrozenTotals != nil {
		return *reg.FrozenTotals, nil
	}
	movements, err := s.repo.ListMovements(ctx, scope)
	if err != nil {
		return ledger.Summary{}, err
	}
	summary, err := ledger.Aggregate(scope, reg.OpeningBalance, movements)
	if err != nil {
		return ledger.Summary{}, s.scopeMismatch(scope, err)
	}
	return summary, nil
}

// ListMovements returns the canonical movements recorded for a scope.
func (s *Service) ListMovements(ctx context.Context, unitID int64, date time.Time) ([]ledger.Movement, error) {
	if unitID <= ledger.AllUnits {
		return nil, ledger.ErrInvalidScope
	}
	return s.repo.ListMovements(ctx, ledger.NewScope(unitID, date))
}

// OpenBefore lists registers still open for dates strictly before date.
func (s *Service) OpenBefore(ctx context.Context, date time.Time) ([]Register, error) {
	return s.repo.ListOpenBefore(ctx, ledger.Day(date))
}

func (s *Service) checkUnit(ctx context.Context, unitID int64) error {
	if s.cfg.Units == nil {
		return nil
	}
	ok, err := s.cfg.Units.Exists(ctx, unitID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrUnknownUnit, unitID)
	}
	return nil
}

func (s *Service) scopeMismatch(scope ledger.Scope, err error) error {
	if !errors.Is(err, ledger.ErrScopeMismatch) {
		return err
	}
	s.reject("scope_mismatch")
	s.logger.Error("aggregation scope violated", scopeAttrs(scope, slog.Any("error", err))...)
	if s.cfg.StrictScope {
		panic(err)
	}
	return err
}

func (s *Service) logLifecycle(msg string, scope ledger.Scope, err error) {
	if ledger.IsLifecycle(err) || ledger.IsValidation(err) {
		s.logger.Warn(msg+" rejected", scopeAttrs(scope, slog.Any("error", err))...)
		return
	}
	s.logger.Error(msg, scopeAttrs(scope, slog.Any("error", err))...)
}

func (s *Service) reject(reason string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.OperationRejected(reason)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cfg.Invalidator == nil {
		return
	}
	if err := s.cfg.Invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate cached views", slog.Any("error", err))
	}
}

func (s *Service) audit(ctx context.Context, action string, reg Register, meta map[string]any) {
	if s.cfg.Audit == nil {
		return
	}
	actor := reg.Operator
	if reg.ClosedBy != "" && action == "register.close" {
		actor = reg.ClosedBy
	}
	meta["unit_id"] = reg.UnitID
	meta["date"] = reg.Date.Format(ledger.DateLayout)
	err := s.cfg.Audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "cash_register",
		EntityID: reg.ID,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func claim(ctx context.Context, tx TxRepository, key, module string) error {
	if key == "" {
		return nil
	}
	return tx.ClaimKey(ctx, key, module)
}

func scopeAttrs(scope ledger.Scope, extra ...any) []any {
	attrs := []any{
		slog.Int64("unit_id", scope.UnitID),
		slog.String("date", scope.Date.Format(ledger.DateLayout)),
	}
	return append(attrs, extra...)
}
