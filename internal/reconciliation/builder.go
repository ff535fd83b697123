package reconciliation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/register"
	"github.com/odyssey-erp/caixa/internal/units"
)

// RegisterReader exposes register queries.
type RegisterReader interface {
	GetRegister(ctx context.Context, unitID int64, date time.Time) (register.Register, error)
	GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error)
	ListMovements(ctx context.Context, unitID int64, date time.Time) ([]ledger.Movement, error)
}

// Consolidator builds the group view.
type Consolidator interface {
	Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (consol.ConsolidatedSummary, error)
}

// UnitNamer resolves display names.
type UnitNamer interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Builder assembles report models.
type Builder struct {
	registers    RegisterReader
	consolidator Consolidator
	units        UnitNamer
	now          func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(registers RegisterReader, consolidator Consolidator, units UnitNamer) *Builder {
	return &Builder{registers: registers, consolidator: consolidator, units: units, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (b *Builder) WithClock(clock func() time.Time) {
	if clock != nil {
		b.now = clock
	}
}

// Build returns the report for unitID on date. ledger.AllUnits selects the
// consolidated report over every active unit.
func (b *Builder) Build(ctx context.Context, date time.Time, unitID int64) (Report, error) {
	if unitID == ledger.AllUnits {
		return b.buildGroup(ctx, date)
	}
	if unitID < 0 {
		return Report{}, fmt.Errorf("%w: %d", ledger.ErrUnknownUnit, unitID)
	}
	return b.buildUnit(ctx, date, unitID)
}

func (b *Builder) buildUnit(ctx context.Context, date time.Time, unitID int64) (Report, error) {
	names, err := b.units.Names(ctx, []int64{unitID})
	if err != nil {
		return Report{}, err
	}
	name, ok := names[unitID]
	if !ok {
		return Report{}, fmt.Errorf("%w: %d", ledger.ErrUnknownUnit, unitID)
	}
	reg, err := b.registers.GetRegister(ctx, unitID, date)
	if err != nil {
		return Report{}, err
	}
	summary, err := b.registers.GetSummary(ctx, unitID, date)
	if err != nil {
		return Report{}, err
	}
	movements, err := b.registers.ListMovements(ctx, unitID, date)
	if err != nil {
		return Report{}, err
	}
	scope := ledger.NewScope(unitID, date)
	for _, m := range movements {
		if !scope.Contains(m) {
			return Report{}, fmt.Errorf("%w: movement %s in report for %s", ledger.ErrScopeMismatch, m.ID, scope)
		}
	}
	report, err := b.assemble(movements)
	if err != nil {
		return Report{}, err
	}
	report.Header = Header{
		UnitID:      unitID,
		UnitName:    name,
		Date:        scope.Date,
		Operator:    reg.Operator,
		ClosedBy:    reg.ClosedBy,
		Status:      string(reg.Status),
		GeneratedAt: b.now().UTC(),
	}
	report.Summary = &summary
	return report, nil
}

func (b *Builder) buildGroup(ctx context.Context, date time.Time) (Report, error) {
	view, err := b.consolidator.Consolidate(ctx, date, nil)
	if err != nil {
		return Report{}, err
	}
	ids := view.UnitIDs()
	perUnit := make([][]ledger.Movement, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			list, err := b.registers.ListMovements(gctx, id, date)
			if err != nil {
				return err
			}
			perUnit[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	var all []ledger.Movement
	for _, list := range perUnit {
		all = append(all, list...)
	}
	report, err := b.assemble(all)
	if err != nil {
		return Report{}, err
	}
	report.Header = Header{
		UnitID:      ledger.AllUnits,
		UnitName:    units.AllUnitsLabel,
		Date:        ledger.Day(date),
		GeneratedAt: b.now().UTC(),
	}
	report.Consolidated = &view
	return report, nil
}

func (b *Builder) assemble(movements []ledger.Movement) (Report, error) {
	inflows, outflows := Partition(movements)
	deferred, err := DeferredSchedules(inflows)
	if err != nil {
		return Report{}, err
	}
	return Report{Inflows: inflows, Outflows: outflows, Deferred: deferred}, nil
}
