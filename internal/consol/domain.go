package consol

import (
	"time"

	"github.com/odyssey-erp/caixa/internal/ledger"
)

// UnitRow is one unit's line in the consolidated breakdown table.
type UnitRow struct {
	UnitID   int64          `json:"unit_id"`
	UnitName string         `json:"unit_name"`
	Summary  ledger.Summary `json:"summary"`
	// ShareBps is the unit's share of group gross revenue in basis points.
	ShareBps int64 `json:"share_bps"`
}

// ConsolidatedSummary is the read-only group view for one date.
type ConsolidatedSummary struct {
	Date        time.Time      `json:"date"`
	Units       []UnitRow      `json:"units"`
	Totals      ledger.Summary `json:"totals"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Unit returns the summary for a unit in the view.
func (c ConsolidatedSummary) Unit(unitID int64) (ledger.Summary, bool) {
	for _, row := range c.Units {
		if row.UnitID == unitID {
			return row.Summary, true
		}
	}
	return ledger.Summary{}, false
}

// UnitIDs lists the units in breakdown order.
func (c ConsolidatedSummary) UnitIDs() []int64 {
	ids := make([]int64, len(c.Units))
	for i, row := range c.Units {
		ids[i] = row.UnitID
	}
	return ids
}

func shareBps(part, total int64) int64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	return part * 10000 / total
}
