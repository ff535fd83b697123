package ledger

import "fmt"

// Aggregate computes the ledger summary for one scope. It is a pure function:
// the same inputs always yield the same Summary.
//
// Every movement must belong to the scope. A foreign movement is a caller bug
// and fails with ErrScopeMismatch instead of being filtered out.
func Aggregate(scope Scope, openingBalance int64, movements []Movement) (Summary, error) {
	scope = NewScope(scope.UnitID, scope.Date)
	if scope.IsGroup() {
		return Summary{}, ErrInvalidScope
	}
	summary := ZeroSummary(scope, openingBalance)
	methods := make(map[PaymentMethod]int, len(summary.ByMethod))
	for i, mt := range summary.ByMethod {
		methods[mt.Method] = i
	}

	for _, m := range movements {
		if !scope.Contains(m) {
			return Summary{}, fmt.Errorf("%w: movement %s belongs to %d:%s, want %s",
				ErrScopeMismatch, m.ID, m.UnitID, m.Date.Format(DateLayout), scope.Key())
		}
		if m.Amount <= 0 {
			return Summary{}, fmt.Errorf("%w: movement %s", ErrInvalidAmount, m.ID)
		}
		idx, ok := methods[m.PaymentMethod]
		if !ok {
			idx = methods[PaymentOther]
		}
		switch m.Direction {
		case DirectionInflow:
			summary.TotalInflow += m.Amount
			summary.ByMethod[idx].Inflow += m.Amount
			if m.Origin.IsRevenue() {
				summary.GrossRevenue += m.Amount
			}
			if m.Origin == OriginSaleDeferred {
				summary.DeferredRevenue += m.Amount
			} else {
				summary.CollectedCash += m.Amount
			}
		case DirectionOutflow:
			summary.TotalOutflow += m.Amount
			summary.ByMethod[idx].Outflow += m.Amount
		default:
			return Summary{}, fmt.Errorf("%w: movement %s has %q", ErrInvalidDirection, m.ID, m.Direction)
		}
		summary.MovementCount++
	}

	summary.ClosingBalance = summary.OpeningBalance + summary.CollectedCash - summary.TotalOutflow
	return summary, nil
}

// Add returns the pointwise sum of two summaries. Identity fields are taken
// from the receiver.
func (s Summary) Add(other Summary) Summary {
	out := s
	out.OpeningBalance += other.OpeningBalance
	out.GrossRevenue += other.GrossRevenue
	out.CollectedCash += other.CollectedCash
	out.DeferredRevenue += other.DeferredRevenue
	out.TotalInflow += other.TotalInflow
	out.TotalOutflow += other.TotalOutflow
	out.ClosingBalance += other.ClosingBalance
	out.MovementCount += other.MovementCount

	merged := emptyMethodTotals()
	for i := range merged {
		for _, mt := range s.ByMethod {
			if mt.Method == merged[i].Method {
				merged[i].Inflow += mt.Inflow
				merged[i].Outflow += mt.Outflow
			}
		}
		for _, mt := range other.ByMethod {
			if mt.Method == merged[i].Method {
				merged[i].Inflow += mt.Inflow
				merged[i].Outflow += mt.Outflow
			}
		}
	}
	out.ByMethod = merged
	return out
}
