package register

import (
	"errors"
	"strings"
	"time"

	"github.com/odyssey-erp/caixa/internal/ledger"
)

// Status enumerates the register lifecycle. A day goes Closed (implicit) →
// Open → Closed and never reopens.
type Status string

const (
	StatusClosed Status = "CLOSED"
	StatusOpen   Status = "OPEN"
)

// Register is the per-unit, per-day cash drawer.
type Register struct {
	ID             string          `json:"id,omitempty"`
	UnitID         int64           `json:"unit_id"`
	Date           time.Time       `json:"date"`
	Status         Status          `json:"status"`
	OpeningBalance int64           `json:"opening_balance"`
	Operator       string          `json:"operator,omitempty"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	ClosedBy       string          `json:"closed_by,omitempty"`
	FrozenTotals   *ledger.Summary `json:"frozen_totals,omitempty"`
	Version        int64           `json:"version"`
}

// Scope returns the (unit, date) identity of the register.
func (r Register) Scope() ledger.Scope {
	return ledger.NewScope(r.UnitID, r.Date)
}

// Persisted reports whether the register was ever opened.
func (r Register) Persisted() bool {
	return r.ID != ""
}

// IsOpen reports whether movements may be posted.
func (r Register) IsOpen() bool {
	return r.Status == StatusOpen
}

// implicitRegister is the zero-value register synthesised for scopes that were
// never opened.
func implicitRegister(scope ledger.Scope) Register {
	return Register{UnitID: scope.UnitID, Date: scope.Date, Status: StatusClosed}
}

// OpenInput captures the operator request to open a day.
type OpenInput struct {
	UnitID         int64
	Date           time.Time
	OpeningBalance int64
	Operator       string
	IdempotencyKey string
}

// Validate checks the open request.
func (in OpenInput) Validate() error {
	if in.UnitID <= ledger.AllUnits {
		return ledger.ErrInvalidScope
	}
	if in.Date.IsZero() {
		return errors.New("register: date required")
	}
	if in.OpeningBalance < 0 {
		return ledger.ErrInvalidAmount
	}
	if strings.TrimSpace(in.Operator) == "" {
		return errors.New("register: operator required")
	}
	return nil
}

// RecordInput bundles movements to post against one scope. All movements are
// accepted or rejected together.
type RecordInput struct {
	UnitID         int64
	Date           time.Time
	Movements      []ledger.Movement
	IdempotencyKey string
}

// CloseInput captures the operator request to close a day.
type CloseInput struct {
	UnitID         int64
	Date           time.Time
	Operator       string
	IdempotencyKey string
}

// ErrRegisterNotFound is returned by repositories when no row exists for a scope.
var ErrRegisterNotFound = errors.New("register: not found")

// ErrVersionConflict indicates the register row changed under an update.
var ErrVersionConflict = errors.New("register: concurrent update detected")

// Idempotency modules, one per mutating operation.
const (
	moduleOpen   = "register.open"
	moduleRecord = "register.record"
	moduleClose  = "register.close"
)
