package ledger

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date layout used for scopes.
const DateLayout = "2006-01-02"

// AllUnits is the sentinel unit id for the group-wide (consolidated) scope.
const AllUnits int64 = 0

// Direction tells whether a movement adds or removes money from the drawer.
type Direction string

const (
	DirectionInflow  Direction = "INFLOW"
	DirectionOutflow Direction = "OUTFLOW"
)

// Valid reports whether the direction is known.
func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// Origin explains why a movement happened. SaleDeferred is revenue that was
// recognised but not collected yet.
type Origin string

const (
	OriginSaleImmediate      Origin = "SALE_IMMEDIATE"
	OriginSaleDeferred       Origin = "SALE_DEFERRED"
	OriginAppointmentPayment Origin = "APPOINTMENT_PAYMENT"
	OriginManualSupply       Origin = "MANUAL_SUPPLY"
	OriginManualWithdrawal   Origin = "MANUAL_WITHDRAWAL"
	OriginManualAdjustment   Origin = "MANUAL_ADJUSTMENT"
	OriginOther              Origin = "OTHER"
)

// IsRevenue reports whether amounts with this origin count toward gross revenue.
func (o Origin) IsRevenue() bool {
	switch o {
	case OriginSaleImmediate, OriginSaleDeferred, OriginAppointmentPayment, OriginOther:
		return true
	default:
		return false
	}
}

// ParseOrigin maps free-form input to an Origin, falling back to OriginOther.
func ParseOrigin(raw string) Origin {
	switch o := Origin(strings.ToUpper(strings.TrimSpace(raw))); o {
	case OriginSaleImmediate, OriginSaleDeferred, OriginAppointmentPayment,
		OriginManualSupply, OriginManualWithdrawal, OriginManualAdjustment:
		return o
	default:
		return OriginOther
	}
}

// PaymentMethod is informational and only drives breakdown reporting.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentPix        PaymentMethod = "PIX"
	PaymentBankSlip   PaymentMethod = "BANK_SLIP"
	PaymentOther      PaymentMethod = "OTHER"
)

// PaymentMethods lists every method in reporting order.
var PaymentMethods = []PaymentMethod{
	PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentPix, PaymentBankSlip, PaymentOther,
}

// ParsePaymentMethod maps free-form input to a PaymentMethod. Unknown values
// become PaymentOther.
func ParsePaymentMethod(raw string) PaymentMethod {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "CASH", "DINHEIRO":
		return PaymentCash
	case "DEBIT_CARD", "DEBIT", "DEBITO":
		return PaymentDebitCard
	case "CREDIT_CARD", "CREDIT", "CREDITO":
		return PaymentCreditCard
	case "PIX":
		return PaymentPix
	case "BANK_SLIP", "BOLETO":
		return PaymentBankSlip
	default:
		return PaymentOther
	}
}

// Scope identifies one unit's ledger for one calendar date.
type Scope struct {
	UnitID int64
	Date   time.Time
}

// NewScope normalises the date to a calendar day.
func NewScope(unitID int64, date time.Time) Scope {
	return Scope{UnitID: unitID, Date: Day(date)}
}

// IsGroup reports whether the scope is the all-units sentinel.
func (s Scope) IsGroup() bool {
	return s.UnitID <= AllUnits
}

// Contains reports whether a movement belongs to this scope.
func (s Scope) Contains(m Movement) bool {
	return m.UnitID == s.UnitID && SameDay(m.Date, s.Date)
}

// Key renders a stable identifier usable for locks and cache keys.
func (s Scope) Key() string {
	return fmt.Sprintf("%d:%s", s.UnitID, s.Date.Format(DateLayout))
}

func (s Scope) String() string {
	return s.Key()
}

// Movement is one immutable money event. Amount is in minor units and always
// positive; the direction carries the sign.
type Movement struct {
	ID               string        `json:"id"`
	UnitID           int64         `json:"unit_id"`
	Date             time.Time     `json:"date"`
	Direction        Direction     `json:"direction"`
	Origin           Origin        `json:"origin"`
	Amount           int64         `json:"amount"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	Description      string        `json:"description"`
	LinkedEntityRef  string        `json:"linked_entity_ref,omitempty"`
	InstallmentCount int           `json:"installment_count"`
	OccurredAt       time.Time     `json:"occurred_at"`
}

// Signed returns the amount with the direction applied.
func (m Movement) Signed() int64 {
	if m.Direction == DirectionOutflow {
		return -m.Amount
	}
	return m.Amount
}

// MethodTotals holds per payment method sums.
type MethodTotals struct {
	Method  PaymentMethod `json:"method"`
	Inflow  int64         `json:"inflow"`
	Outflow int64         `json:"outflow"`
}

// Summary is the derived per-scope ledger. It is recomputed on every read
// for open registers and frozen on close.
type Summary struct {
	UnitID          int64          `json:"unit_id"`
	Date            time.Time      `json:"date"`
	OpeningBalance  int64          `json:"opening_balance"`
	GrossRevenue    int64          `json:"gross_revenue"`
	CollectedCash   int64          `json:"collected_cash"`
	DeferredRevenue int64          `json:"deferred_revenue"`
	TotalInflow     int64          `json:"total_inflow"`
	TotalOutflow    int64          `json:"total_outflow"`
	ClosingBalance  int64          `json:"closing_balance"`
	MovementCount   int            `json:"movement_count"`
	ByMethod        []MethodTotals `json:"by_method"`
}

// CollectedRevenue is gross revenue minus revenue not yet received in cash.
func (s Summary) CollectedRevenue() int64 {
	return s.GrossRevenue - s.DeferredRevenue
}

// ZeroSummary is the summary of a scope that has no movements.
func ZeroSummary(scope Scope, openingBalance int64) Summary {
	return Summary{
		UnitID:         scope.UnitID,
		Date:           scope.Date,
		OpeningBalance: openingBalance,
		ClosingBalance: openingBalance,
		ByMethod:       emptyMethodTotals(),
	}
}

func emptyMethodTotals() []MethodTotals {
	out := make([]MethodTotals, len(PaymentMethods))
	for i, m := range PaymentMethods {
		out[i] = MethodTotals{Method: m}
	}
	return out
}

// Day truncates a timestamp to its calendar date, keeping the wall clock date
// of the value's location.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay compares two values by calendar date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger: invalid date %q", raw)
	}
	return t, nil
}
