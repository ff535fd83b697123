// Package reconciliation assembles the closing report model for a unit or
// for all units. It performs no formatting; rendering belongs to the report
// collaborator.
package reconciliation

import (
	"sort"
	"time"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
)

// Header identifies the scope of a report.
type Header struct {
	UnitID   int64     `json:"unit_id"`
	UnitName string    `json:"unit_name"`
	Date     time.Time `json:"date"`
	Operator string    `json:"operator,omitempty"`
	ClosedBy string    `json:"closed_by,omitempty"`
	// Status is the register status for a single unit; empty for all units.
	Status      string    `json:"status,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// InstallmentSchedule lists the per-period amounts of a deferred sale.
type InstallmentSchedule struct {
	MovementID      string  `json:"movement_id"`
	LinkedEntityRef string  `json:"linked_entity_ref,omitempty"`
	Total           int64   `json:"total"`
	Installments    []int64 `json:"installments"`
}

// Report is the model handed to the renderer.
type Report struct {
	Header       Header                      `json:"header"`
	Summary      *ledger.Summary             `json:"summary,omitempty"`
	Consolidated *consol.ConsolidatedSummary `json:"consolidated,omitempty"`
	Inflows      []ledger.Movement           `json:"inflows"`
	Outflows     []ledger.Movement           `json:"outflows"`
	Deferred     []InstallmentSchedule       `json:"deferred"`
}

// IsGroup reports whether the report covers all units.
func (r Report) IsGroup() bool {
	return r.Header.UnitID == ledger.AllUnits
}

// Totals returns the summary the report is built around.
func (r Report) Totals() ledger.Summary {
	if r.Consolidated != nil {
		return r.Consolidated.Totals
	}
	if r.Summary != nil {
		return *r.Summary
	}
	return ledger.Summary{}
}

// Partition splits movements by direction, each side ordered by OccurredAt
// ascending with the movement id as tie-break.
func Partition(movements []ledger.Movement) (inflows, outflows []ledger.Movement) {
	inflows = make([]ledger.Movement, 0, len(movements))
	outflows = make([]ledger.Movement, 0)
	for _, m := range movements {
		if m.Direction == ledger.DirectionOutflow {
			outflows = append(outflows, m)
			continue
		}
		inflows = append(inflows, m)
	}
	sortChronological(inflows)
	sortChronological(outflows)
	return inflows, outflows
}

func sortChronological(list []ledger.Movement) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].OccurredAt.Equal(list[j].OccurredAt) {
			return list[i].OccurredAt.Before(list[j].OccurredAt)
		}
		return list[i].ID < list[j].ID
	})
}

// DeferredSchedules lists installment schedules for deferred sales.
func DeferredSchedules(movements []ledger.Movement) ([]InstallmentSchedule, error) {
	out := []InstallmentSchedule{}
	for _, m := range movements {
		if m.Origin != ledger.OriginSaleDeferred {
			continue
		}
		n := m.InstallmentCount
		if n < 1 {
			n = 1
		}
		parts, err := ledger.SplitInstallments(m.Amount, n)
		if err != nil {
			return nil, err
		}
		out = append(out, InstallmentSchedule{
			MovementID:      m.ID,
			LinkedEntityRef: m.LinkedEntityRef,
			Total:           m.Amount,
			Installments:    parts,
		})
	}
	return out, nil
}
