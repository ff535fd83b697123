package ledger

import "errors"

// Validation errors are caller errors and are never retried.
var (
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrUnknownUnit indicates the unit id does not resolve to a known unit.
	ErrUnknownUnit = errors.New("ledger: unknown unit")
	// ErrInvalidInstallments indicates an installment count below one.
	ErrInvalidInstallments = errors.New("ledger: installment count must be at least one")
	// ErrInvalidDirection indicates a direction other than INFLOW or OUTFLOW.
	ErrInvalidDirection = errors.New("ledger: direction must be INFLOW or OUTFLOW")
)

// Lifecycle errors are expected conditions callers branch on.
var (
	// ErrInvalidScope indicates a lifecycle operation against the all-units scope.
	ErrInvalidScope = errors.New("ledger: operation requires a concrete unit")
	// ErrAlreadyOpen indicates the register for the scope is already open.
	ErrAlreadyOpen = errors.New("ledger: register already open")
	// ErrNotOpen indicates the register for the scope is not open.
	ErrNotOpen = errors.New("ledger: register not open")
	// ErrRegisterClosed indicates a movement was rejected because the day is closed.
	ErrRegisterClosed = errors.New("ledger: register closed for movements")
	// ErrDuplicateRequest indicates an idempotency key that was already used.
	ErrDuplicateRequest = errors.New("ledger: duplicate request")
)

// ErrScopeMismatch signals calling code handed the aggregator movements
// outside the requested scope. It is a wiring bug, not a data condition.
var ErrScopeMismatch = errors.New("ledger: movement outside aggregation scope")

// IsLifecycle reports whether err is one of the recoverable lifecycle errors.
func IsLifecycle(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrNotOpen) ||
		errors.Is(err, ErrRegisterClosed) ||
		errors.Is(err, ErrDuplicateRequest)
}

// IsValidation reports whether err is a caller validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownUnit) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrInvalidInstallments) ||
		errors.Is(err, ErrInvalidDirection)
}
