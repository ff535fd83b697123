package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func mv(id string, dir Direction, origin Origin, amount int64) Movement {
	return Movement{
		ID:            id,
		UnitID:        1,
		Date:          day,
		Direction:     dir,
		Origin:        origin,
		Amount:        amount,
		PaymentMethod: PaymentCash,
	}
}

func TestAggregateScenario(t *testing.T) {
	movements := []Movement{
		mv("a", DirectionInflow, OriginSaleImmediate, 50000),
		mv("b", DirectionInflow, OriginSaleDeferred, 30000),
		mv("c", DirectionOutflow, OriginManualWithdrawal, 10000),
	}
	got, err := Aggregate(NewScope(1, day), 20000, movements)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got.GrossRevenue != 80000 {
		t.Fatalf("expected gross revenue 80000 got %d", got.GrossRevenue)
	}
	if got.CollectedCash != 50000 {
		t.Fatalf("expected collected cash 50000 got %d", got.CollectedCash)
	}
	if got.TotalOutflow != 10000 {
		t.Fatalf("expected outflow 10000 got %d", got.TotalOutflow)
	}
	if got.ClosingBalance != 60000 {
		t.Fatalf("expected closing balance 60000 got %d", got.ClosingBalance)
	}
	if got.DeferredRevenue != 30000 {
		t.Fatalf("expected deferred revenue 30000 got %d", got.DeferredRevenue)
	}
	if got.MovementCount != 3 {
		t.Fatalf("expected 3 movements got %d", got.MovementCount)
	}
}

func TestAggregateManualSupplyCountsAsCollected(t *testing.T) {
	movements := []Movement{
		mv("a", DirectionInflow, OriginManualSupply, 5000),
		mv("b", DirectionInflow, OriginAppointmentPayment, 7000),
	}
	got, err := Aggregate(NewScope(1, day), 0, movements)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got.GrossRevenue != 7000 {
		t.Fatalf("supply must not count as revenue, got gross %d", got.GrossRevenue)
	}
	if got.CollectedCash != 12000 {
		t.Fatalf("expected collected cash 12000 got %d", got.CollectedCash)
	}
	if got.CollectedRevenue() != 7000 {
		t.Fatalf("expected collected revenue 7000 got %d", got.CollectedRevenue())
	}
	if got.ClosingBalance != 12000 {
		t.Fatalf("expected closing balance 12000 got %d", got.ClosingBalance)
	}
}

func TestAggregateRejectsForeignMovements(t *testing.T) {
	other := mv("x", DirectionInflow, OriginSaleImmediate, 100)
	other.UnitID = 2
	_, err := Aggregate(NewScope(1, day), 0, []Movement{other})
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch got %v", err)
	}

	late := mv("y", DirectionInflow, OriginSaleImmediate, 100)
	late.Date = day.AddDate(0, 0, 1)
	_, err = Aggregate(NewScope(1, day), 0, []Movement{late})
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch for other date got %v", err)
	}
}

func TestAggregateRejectsGroupScopeAndBadAmounts(t *testing.T) {
	if _, err := Aggregate(NewScope(AllUnits, day), 0, nil); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope got %v", err)
	}
	bad := mv("z", DirectionInflow, OriginSaleImmediate, 0)
	if _, err := Aggregate(NewScope(1, day), 0, []Movement{bad}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount got %v", err)
	}
}

func TestAggregateEmptyScope(t *testing.T) {
	got, err := Aggregate(NewScope(1, day), 1500, nil)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got.ClosingBalance != 1500 || got.GrossRevenue != 0 || got.MovementCount != 0 {
		t.Fatalf("unexpected summary for empty scope: %+v", got)
	}
	if len(got.ByMethod) != len(PaymentMethods) {
		t.Fatalf("expected %d method rows got %d", len(PaymentMethods), len(got.ByMethod))
	}
}

func randomMovements(r *rand.Rand, n int, revenueOnly bool) []Movement {
	origins := []Origin{OriginSaleImmediate, OriginSaleDeferred, OriginAppointmentPayment, OriginOther}
	if !revenueOnly {
		origins = append(origins, OriginManualSupply, OriginManualAdjustment)
	}
	out := make([]Movement, 0, n)
	for i := 0; i < n; i++ {
		m := mv(string(rune('a'+i%26)), DirectionInflow, origins[r.Intn(len(origins))], r.Int63n(1_000_000)+1)
		if !revenueOnly && r.Intn(4) == 0 {
			m.Direction = DirectionOutflow
			m.Origin = OriginManualWithdrawal
		}
		m.PaymentMethod = PaymentMethods[r.Intn(len(PaymentMethods))]
		out = append(out, m)
	}
	return out
}

func TestAggregateProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	scope := NewScope(1, day)
	for i := 0; i < 200; i++ {
		opening := r.Int63n(100_000)
		movements := randomMovements(r, r.Intn(40), false)

		first, err := Aggregate(scope, opening, movements)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		second, err := Aggregate(scope, opening, movements)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if first.ClosingBalance != second.ClosingBalance || first.GrossRevenue != second.GrossRevenue ||
			first.CollectedCash != second.CollectedCash || first.TotalOutflow != second.TotalOutflow {
			t.Fatalf("aggregate not deterministic: %+v vs %+v", first, second)
		}
		if first.ClosingBalance != first.OpeningBalance+first.CollectedCash-first.TotalOutflow {
			t.Fatalf("closing balance identity broken: %+v", first)
		}
		if first.GrossRevenue < first.CollectedRevenue() {
			t.Fatalf("gross revenue below collected revenue: %+v", first)
		}
		var methodIn, methodOut int64
		for _, mt := range first.ByMethod {
			methodIn += mt.Inflow
			methodOut += mt.Outflow
		}
		if methodIn != first.TotalInflow || methodOut != first.TotalOutflow {
			t.Fatalf("method breakdown does not decompose totals: %+v", first)
		}
	}
}

func TestAggregateGrossCoversCollectedForRevenueMovements(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		got, err := Aggregate(NewScope(1, day), 0, randomMovements(r, r.Intn(30), true))
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if got.GrossRevenue < got.CollectedCash {
			t.Fatalf("gross %d below collected %d", got.GrossRevenue, got.CollectedCash)
		}
	}
}

func TestSummaryAddIsPointwise(t *testing.T) {
	a, _ := Aggregate(NewScope(1, day), 100, []Movement{mv("a", DirectionInflow, OriginSaleImmediate, 400)})
	bm := mv("b", DirectionOutflow, OriginManualWithdrawal, 50)
	bm.UnitID = 2
	bm.PaymentMethod = PaymentPix
	b, _ := Aggregate(NewScope(2, day), 10, []Movement{bm})
	sum := a.Add(b)
	if sum.OpeningBalance != 110 || sum.GrossRevenue != 400 || sum.TotalOutflow != 50 || sum.ClosingBalance != 460 {
		t.Fatalf("unexpected sum %+v", sum)
	}
	for _, mt := range sum.ByMethod {
		if mt.Method == PaymentPix && mt.Outflow != 50 {
			t.Fatalf("expected pix outflow 50 got %d", mt.Outflow)
		}
		if mt.Method == PaymentCash && mt.Inflow != 400 {
			t.Fatalf("expected cash inflow 400 got %d", mt.Inflow)
		}
	}
}
