package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SaleEvent is a finalised point-of-sale transaction.
type SaleEvent struct {
	SaleID           string
	UnitID           int64
	Date             time.Time
	TotalAmount      int64
	PaymentMethod    string
	InstallmentCount int
	Description      string
	OccurredAt       time.Time
}

// PartialPayment is one slice of an appointment payment.
type PartialPayment struct {
	PaymentMethod string
	Amount        int64
}

// AppointmentPaymentEvent groups the partial payments recorded for one
// appointment. An empty Payments slice yields no movements.
type AppointmentPaymentEvent struct {
	AppointmentID string
	UnitID        int64
	Date          time.Time
	Payments      []PartialPayment
	Description   string
	OccurredAt    time.Time
}

// ManualKind names the operator action behind a manual entry.
type ManualKind string

const (
	ManualSupply     ManualKind = "SUPPLY"
	ManualWithdrawal ManualKind = "WITHDRAWAL"
	ManualAdjustment ManualKind = "ADJUSTMENT"
)

// ManualEntry is an operator-entered drawer movement.
type ManualEntry struct {
	UnitID        int64
	Date          time.Time
	Kind          ManualKind
	Direction     Direction
	Amount        int64
	PaymentMethod string
	Description   string
	OccurredAt    time.Time
}

// UnitDirectory resolves unit ids.
type UnitDirectory interface {
	Exists(ctx context.Context, unitID int64) (bool, error)
}

// Normalizer converts source events to canonical movements.
type Normalizer struct {
	units UnitDirectory
	newID func() string
	now   func() time.Time
}

// NewNormalizer constructs a Normalizer. A nil directory accepts every
// positive unit id.
func NewNormalizer(units UnitDirectory) *Normalizer {
	return &Normalizer{
		units: units,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (n *Normalizer) WithClock(now func() time.Time) {
	if now != nil {
		n.now = now
	}
}

// WithIDGenerator overrides movement id generation.
func (n *Normalizer) WithIDGenerator(gen func() string) {
	if gen != nil {
		n.newID = gen
	}
}

// FromSale maps a sale to one inflow. Installment plans with more than one
// installment are deferred revenue.
func (n *Normalizer) FromSale(ctx context.Context, ev SaleEvent) (Movement, error) {
	if err := n.checkUnit(ctx, ev.UnitID); err != nil {
		return Movement{}, err
	}
	if ev.TotalAmount <= 0 {
		return Movement{}, ErrInvalidAmount
	}
	installments := ev.InstallmentCount
	if installments < 1 {
		installments = 1
	}
	origin := OriginSaleImmediate
	if installments > 1 {
		origin = OriginSaleDeferred
	}
	desc := ev.Description
	if strings.TrimSpace(desc) == "" {
		desc = fmt.Sprintf("Sale %s", ev.SaleID)
	}
	return n.build(ev.UnitID, ev.Date, ev.OccurredAt, Movement{
		Direction:        DirectionInflow,
		Origin:           origin,
		Amount:           ev.TotalAmount,
		PaymentMethod:    ParsePaymentMethod(ev.PaymentMethod),
		Description:      desc,
		LinkedEntityRef:  ev.SaleID,
		InstallmentCount: installments,
	}), nil
}

// FromAppointmentPayments maps each partial payment to its own inflow.
// Validation is all-or-nothing: one bad slice rejects the whole event.
func (n *Normalizer) FromAppointmentPayments(ctx context.Context, ev AppointmentPaymentEvent) ([]Movement, error) {
	if err := n.checkUnit(ctx, ev.UnitID); err != nil {
		return nil, err
	}
	for i, p := range ev.Payments {
		if p.Amount <= 0 {
			return nil, fmt.Errorf("%w: payment %d of appointment %s", ErrInvalidAmount, i, ev.AppointmentID)
		}
	}
	desc := ev.Description
	if strings.TrimSpace(desc) == "" {
		desc = fmt.Sprintf("Appointment %s", ev.AppointmentID)
	}
	out := make([]Movement, 0, len(ev.Payments))
	for _, p := range ev.Payments {
		out = append(out, n.build(ev.UnitID, ev.Date, ev.OccurredAt, Movement{
			Direction:        DirectionInflow,
			Origin:           OriginAppointmentPayment,
			Amount:           p.Amount,
			PaymentMethod:    ParsePaymentMethod(p.PaymentMethod),
			Description:      desc,
			LinkedEntityRef:  ev.AppointmentID,
			InstallmentCount: 1,
		}))
	}
	return out, nil
}

// FromManual maps an operator entry. Supply is always an inflow and
// withdrawal an outflow; adjustments take the direction given. Entries whose
// kind is not recognised are kept with OriginOther.
func (n *Normalizer) FromManual(ctx context.Context, entry ManualEntry) (Movement, error) {
	if entry.Amount <= 0 {
		return Movement{}, ErrInvalidAmount
	}
	if err := n.checkUnit(ctx, entry.UnitID); err != nil {
		return Movement{}, err
	}
	origin, direction := classifyManual(entry.Kind, entry.Direction)
	if !direction.Valid() {
		return Movement{}, fmt.Errorf("%w: manual entry direction %q", ErrInvalidDirection, entry.Direction)
	}
	return n.build(entry.UnitID, entry.Date, entry.OccurredAt, Movement{
		Direction:        direction,
		Origin:           origin,
		Amount:           entry.Amount,
		PaymentMethod:    ParsePaymentMethod(entry.PaymentMethod),
		Description:      entry.Description,
		InstallmentCount: 1,
	}), nil
}

func classifyManual(kind ManualKind, dir Direction) (Origin, Direction) {
	switch ManualKind(strings.ToUpper(strings.TrimSpace(string(kind)))) {
	case ManualSupply:
		return OriginManualSupply, DirectionInflow
	case ManualWithdrawal:
		return OriginManualWithdrawal, DirectionOutflow
	case ManualAdjustment:
		return OriginManualAdjustment, dir
	default:
		return OriginOther, dir
	}
}

func (n *Normalizer) checkUnit(ctx context.Context, unitID int64) error {
	if unitID <= AllUnits {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, unitID)
	}
	if n.units == nil {
		return nil
	}
	ok, err := n.units.Exists(ctx, unitID)
	if err != nil {
		return fmt.Errorf("ledger: resolve unit %d: %w", unitID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, unitID)
	}
	return nil
}

func (n *Normalizer) build(unitID int64, date, occurredAt time.Time, m Movement) Movement {
	now := n.now()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	if date.IsZero() {
		date = occurredAt
	}
	m.ID = n.newID()
	m.UnitID = unitID
	m.Date = Day(date)
	m.OccurredAt = occurredAt.UTC()
	m.Description = cleanDescription(m.Description)
	return m
}

func cleanDescription(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
