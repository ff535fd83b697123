package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubUnits map[int64]bool

func (s stubUnits) Exists(ctx context.Context, unitID int64) (bool, error) {
	return s[unitID], nil
}

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(stubUnits{1: true, 2: true})
	seq := 0
	n.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("mv-%d", seq)
	})
	n.WithClock(func() time.Time { return time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC) })
	return n
}

func TestFromSaleClassifiesInstallments(t *testing.T) {
	n := newTestNormalizer()
	ctx := context.Background()

	immediate, err := n.FromSale(ctx, SaleEvent{SaleID: "s-1", UnitID: 1, Date: day, TotalAmount: 50000, PaymentMethod: "pix", InstallmentCount: 1})
	if err != nil {
		t.Fatalf("FromSale() error = %v", err)
	}
	if immediate.Origin != OriginSaleImmediate || immediate.Direction != DirectionInflow {
		t.Fatalf("unexpected immediate sale movement %+v", immediate)
	}
	if immediate.PaymentMethod != PaymentPix || immediate.LinkedEntityRef != "s-1" {
		t.Fatalf("unexpected method or ref %+v", immediate)
	}

	deferred, err := n.FromSale(ctx, SaleEvent{SaleID: "s-2", UnitID: 1, Date: day, TotalAmount: 30000, PaymentMethod: "credit_card", InstallmentCount: 3})
	if err != nil {
		t.Fatalf("FromSale() error = %v", err)
	}
	if deferred.Origin != OriginSaleDeferred || deferred.InstallmentCount != 3 {
		t.Fatalf("expected deferred sale with 3 installments got %+v", deferred)
	}
	if deferred.ID == immediate.ID {
		t.Fatalf("expected distinct movement ids")
	}
}

func TestFromSaleValidates(t *testing.T) {
	n := newTestNormalizer()
	if _, err := n.FromSale(context.Background(), SaleEvent{UnitID: 9, TotalAmount: 100}); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit got %v", err)
	}
	if _, err := n.FromSale(context.Background(), SaleEvent{UnitID: 1, TotalAmount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount got %v", err)
	}
}

func TestFromAppointmentPaymentsSplitsPerPayment(t *testing.T) {
	n := newTestNormalizer()
	ev := AppointmentPaymentEvent{
		AppointmentID: "apt-7",
		UnitID:        2,
		Date:          day,
		Payments: []PartialPayment{
			{PaymentMethod: "cash", Amount: 4000},
			{PaymentMethod: "debit", Amount: 6000},
		},
	}
	got, err := n.FromAppointmentPayments(context.Background(), ev)
	if err != nil {
		t.Fatalf("FromAppointmentPayments() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 movements got %d", len(got))
	}
	for _, m := range got {
		if m.Origin != OriginAppointmentPayment || m.UnitID != 2 || m.LinkedEntityRef != "apt-7" {
			t.Fatalf("unexpected movement %+v", m)
		}
	}
	if got[1].PaymentMethod != PaymentDebitCard {
		t.Fatalf("expected debit card got %s", got[1].PaymentMethod)
	}

	empty, err := n.FromAppointmentPayments(context.Background(), AppointmentPaymentEvent{AppointmentID: "apt-8", UnitID: 2})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no movements for no payments, got %v %v", empty, err)
	}

	ev.Payments = append(ev.Payments, PartialPayment{PaymentMethod: "cash", Amount: -1})
	if _, err := n.FromAppointmentPayments(context.Background(), ev); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount got %v", err)
	}
}

func TestFromManualMapsKinds(t *testing.T) {
	n := newTestNormalizer()
	ctx := context.Background()
	cases := []struct {
		entry  ManualEntry
		origin Origin
		dir    Direction
	}{
		{ManualEntry{UnitID: 1, Kind: ManualSupply, Amount: 100}, OriginManualSupply, DirectionInflow},
		{ManualEntry{UnitID: 1, Kind: ManualWithdrawal, Amount: 100}, OriginManualWithdrawal, DirectionOutflow},
		{ManualEntry{UnitID: 1, Kind: ManualAdjustment, Direction: DirectionOutflow, Amount: 100}, OriginManualAdjustment, DirectionOutflow},
		{ManualEntry{UnitID: 1, Kind: "tip", Direction: DirectionInflow, Amount: 100}, OriginOther, DirectionInflow},
	}
	for _, tc := range cases {
		got, err := n.FromManual(ctx, tc.entry)
		if err != nil {
			t.Fatalf("FromManual(%s) error = %v", tc.entry.Kind, err)
		}
		if got.Origin != tc.origin || got.Direction != tc.dir {
			t.Fatalf("FromManual(%s) = %s/%s want %s/%s", tc.entry.Kind, got.Origin, got.Direction, tc.origin, tc.dir)
		}
		if !SameDay(got.Date, day) {
			t.Fatalf("expected date defaulted from clock, got %s", got.Date)
		}
	}
}

func TestFromManualValidates(t *testing.T) {
	n := newTestNormalizer()
	ctx := context.Background()
	if _, err := n.FromManual(ctx, ManualEntry{UnitID: 1, Kind: ManualSupply, Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount got %v", err)
	}
	if _, err := n.FromManual(ctx, ManualEntry{UnitID: 42, Kind: ManualSupply, Amount: 10}); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit got %v", err)
	}
	if _, err := n.FromManual(ctx, ManualEntry{UnitID: AllUnits, Kind: ManualSupply, Amount: 10}); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit for group scope got %v", err)
	}
	if _, err := n.FromManual(ctx, ManualEntry{UnitID: 1, Kind: ManualAdjustment, Amount: 10}); err == nil {
		t.Fatalf("expected adjustment without direction to fail")
	}
}

func TestDescriptionIsNormalised(t *testing.T) {
	n := newTestNormalizer()
	got, err := n.FromManual(context.Background(), ManualEntry{
		UnitID:      1,
		Kind:        ManualWithdrawal,
		Amount:      10,
		Description: "  troco   para\tcafé ",
	})
	if err != nil {
		t.Fatalf("FromManual() error = %v", err)
	}
	if got.Description != "troco para café" {
		t.Fatalf("unexpected description %q", got.Description)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"cash":        PaymentCash,
		"Credit Card": PaymentCreditCard,
		"debit-card":  PaymentDebitCard,
		"PIX":         PaymentPix,
		"boleto":      PaymentBankSlip,
		"voucher":     PaymentOther,
	}
	for raw, want := range cases {
		if got := ParsePaymentMethod(raw); got != want {
			t.Fatalf("ParsePaymentMethod(%q) = %s want %s", raw, got, want)
		}
	}
}
