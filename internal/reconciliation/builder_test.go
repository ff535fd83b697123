package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/register"
	"github.com/odyssey-erp/caixa/internal/units"
)

var testDay = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 15, hour, minute, 0, 0, time.UTC)
}

type fakeRegisters struct {
	registers map[int64]register.Register
	movements map[int64][]ledger.Movement
}

func (f *fakeRegisters) GetRegister(ctx context.Context, unitID int64, date time.Time) (register.Register, error) {
	if reg, ok := f.registers[unitID]; ok {
		return reg, nil
	}
	return register.Register{UnitID: unitID, Date: date, Status: register.StatusClosed}, nil
}

func (f *fakeRegisters) GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error) {
	reg, _ := f.GetRegister(ctx, unitID, date)
	return ledger.Aggregate(ledger.NewScope(unitID, date), reg.OpeningBalance, f.movements[unitID])
}

func (f *fakeRegisters) ListMovements(ctx context.Context, unitID int64, date time.Time) ([]ledger.Movement, error) {
	return f.movements[unitID], nil
}

type fakeConsolidator struct {
	registers *fakeRegisters
	ids       []int64
}

func (f *fakeConsolidator) Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (consol.ConsolidatedSummary, error) {
	totals := ledger.ZeroSummary(ledger.NewScope(ledger.AllUnits, date), 0)
	rows := []consol.UnitRow{}
	for _, id := range f.ids {
		summary, err := f.registers.GetSummary(ctx, id, date)
		if err != nil {
			return consol.ConsolidatedSummary{}, err
		}
		totals = totals.Add(summary)
		rows = append(rows, consol.UnitRow{UnitID: id, Summary: summary})
	}
	return consol.ConsolidatedSummary{Date: date, Units: rows, Totals: totals}, nil
}

type namer map[int64]string

func (n namer) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := n[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func fixture() (*fakeRegisters, *Builder) {
	regs := &fakeRegisters{
		registers: map[int64]register.Register{
			1: {ID: "r1", UnitID: 1, Date: testDay, Status: register.StatusOpen, OpeningBalance: 20000, Operator: "ana"},
		},
		movements: map[int64][]ledger.Movement{
			1: {
				{ID: "m3", UnitID: 1, Date: testDay, Direction: ledger.DirectionOutflow, Origin: ledger.OriginManualWithdrawal, Amount: 10000, PaymentMethod: ledger.PaymentCash, OccurredAt: at(17, 0)},
				{ID: "m2", UnitID: 1, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginSaleDeferred, Amount: 30000, PaymentMethod: ledger.PaymentCreditCard, InstallmentCount: 4, LinkedEntityRef: "S-2", OccurredAt: at(11, 0)},
				{ID: "m1", UnitID: 1, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginSaleImmediate, Amount: 50000, PaymentMethod: ledger.PaymentCash, OccurredAt: at(9, 30)},
			},
			2: {
				{ID: "n1", UnitID: 2, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginAppointmentPayment, Amount: 7000, PaymentMethod: ledger.PaymentPix, OccurredAt: at(10, 0)},
			},
		},
	}
	builder := NewBuilder(regs, &fakeConsolidator{registers: regs, ids: []int64{1, 2}}, namer{1: "Centro", 2: "Norte"})
	builder.WithClock(func() time.Time { return at(18, 0) })
	return regs, builder
}

func TestBuildUnitReport(t *testing.T) {
	_, builder := fixture()
	report, err := builder.Build(context.Background(), testDay, 1)
	require.NoError(t, err)

	assert.Equal(t, "Centro", report.Header.UnitName)
	assert.Equal(t, "ana", report.Header.Operator)
	assert.Equal(t, string(register.StatusOpen), report.Header.Status)
	assert.False(t, report.IsGroup())
	require.NotNil(t, report.Summary)
	assert.Equal(t, int64(60000), report.Totals().ClosingBalance)

	require.Len(t, report.Inflows, 2)
	assert.Equal(t, "m1", report.Inflows[0].ID)
	assert.Equal(t, "m2", report.Inflows[1].ID)
	require.Len(t, report.Outflows, 1)
	assert.Equal(t, "m3", report.Outflows[0].ID)

	require.Len(t, report.Deferred, 1)
	assert.Equal(t, []int64{7500, 7500, 7500, 7500}, report.Deferred[0].Installments)
	assert.Equal(t, "S-2", report.Deferred[0].LinkedEntityRef)
}

func TestBuildGroupReport(t *testing.T) {
	_, builder := fixture()
	report, err := builder.Build(context.Background(), testDay, ledger.AllUnits)
	require.NoError(t, err)

	assert.True(t, report.IsGroup())
	assert.Equal(t, units.AllUnitsLabel, report.Header.UnitName)
	assert.Empty(t, report.Header.Status)
	require.NotNil(t, report.Consolidated)
	assert.Nil(t, report.Summary)
	assert.Equal(t, int64(87000), report.Totals().GrossRevenue)

	ids := make([]string, len(report.Inflows))
	for i, m := range report.Inflows {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"m1", "n1", "m2"}, ids)
}

func TestBuildUnknownUnit(t *testing.T) {
	_, builder := fixture()
	_, err := builder.Build(context.Background(), testDay, 42)
	assert.ErrorIs(t, err, ledger.ErrUnknownUnit)
}

func TestBuildRejectsForeignMovements(t *testing.T) {
	regs, builder := fixture()
	regs.movements[2] = append(regs.movements[2], ledger.Movement{ID: "x", UnitID: 1, Date: testDay, Direction: ledger.DirectionInflow, Amount: 1})
	_, err := builder.Build(context.Background(), testDay, 2)
	assert.ErrorIs(t, err, ledger.ErrScopeMismatch)
}

func TestPartitionTieBreaksOnID(t *testing.T) {
	same := at(12, 0)
	in, out := Partition([]ledger.Movement{
		{ID: "b", Direction: ledger.DirectionInflow, OccurredAt: same},
		{ID: "a", Direction: ledger.DirectionInflow, OccurredAt: same},
	})
	require.Len(t, in, 2)
	assert.Equal(t, "a", in[0].ID)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}
