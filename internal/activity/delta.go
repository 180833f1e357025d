package activity

import (
	"fmt"
	"strings"
)

// DailyDelta is a project's net growth between two cumulative snapshots.
type DailyDelta struct {
	Project    string        `json:"project"`
	Date       string        `json:"date"`
	FromBlock  uint64        `json:"from_block"`
	ToBlock    uint64        `json:"to_block"`
	Growth     ContractStats `json:"growth"`
	Cumulative ContractStats `json:"cumulative"`
	Anomalies  []string      `json:"anomalies,omitempty"`
	// Excluded lists contract labels left out of Growth because their two
	// reads are not comparable.
	Excluded []string `json:"excluded,omitempty"`

	excluded []Diagnostic
}

// HasGrowth reports whether any counter grew in the period.
func (d DailyDelta) HasGrowth() bool {
	return d.Growth.GasUsed > 0 || d.Growth.TransactionsCount > 0 || d.Growth.TokenTransfersCount > 0
}

// Diagnostics describes clamped fields and excluded contracts.
func (d DailyDelta) Diagnostics() []Diagnostic {
	var out []Diagnostic
	if len(d.Anomalies) > 0 {
		out = append(out, Diagnostic{
			Kind:    KindAnomalousDelta,
			Project: d.Project,
			Detail:  fmt.Sprintf("negative growth clamped to zero: %v (blocks %d..%d)", d.Anomalies, d.FromBlock, d.ToBlock),
		})
	}
	return append(out, d.excluded...)
}

// BuildDelta subtracts earlier from later field by field. Counters are
// monotonic, so a negative difference means the two reads disagree; such
// a field is clamped to zero and listed in Anomalies.
//
// When both snapshots carry per-contract results, only contracts read by
// the same strategy without degradation at both blocks count toward
// Growth. Cumulative is always the later total.
func BuildDelta(later, earlier ProjectSnapshot, date string) (DailyDelta, error) {
	if later.Project != earlier.Project {
		return DailyDelta{}, fmt.Errorf("delta of %q against %q: project mismatch", later.Project, earlier.Project)
	}

	d := DailyDelta{
		Project:    later.Project,
		Date:       date,
		FromBlock:  earlier.AtBlock,
		ToBlock:    later.AtBlock,
		Cumulative: later.Totals,
	}

	from, to := earlier.Totals, later.Totals
	if len(later.Contracts) > 0 && len(later.Contracts) == len(earlier.Contracts) {
		from, to = ContractStats{}, ContractStats{}
		for i, lc := range later.Contracts {
			ec := earlier.Contracts[i]
			if reason := incomparable(ec, lc); reason != "" {
				d.exclude(ec, lc, reason)
				continue
			}
			from = from.Add(ec.Stats)
			to = to.Add(lc.Stats)
		}
	}

	d.Growth.GasUsed = d.sub("gas_used", to.GasUsed, from.GasUsed)
	d.Growth.TransactionsCount = d.sub("transactions_count", to.TransactionsCount, from.TransactionsCount)
	d.Growth.TokenTransfersCount = d.sub("token_transfers_count", to.TokenTransfersCount, from.TokenTransfersCount)
	return d, nil
}

func incomparable(earlier, later ContractResult) string {
	switch {
	case !strings.EqualFold(earlier.Address, later.Address):
		return "contract list changed"
	case earlier.Error != "" || later.Error != "":
		return "degraded read"
	case earlier.Strategy != later.Strategy:
		return "strategy changed"
	}
	return ""
}

// exclude records a contract left out of Growth. A contract whose two
// reads are identical changes nothing, so it is dropped silently.
func (d *DailyDelta) exclude(earlier, later ContractResult, reason string) {
	if earlier.Stats == later.Stats {
		return
	}
	d.Excluded = append(d.Excluded, later.Label)
	d.excluded = append(d.excluded, Diagnostic{
		Kind:    KindAnomalousDelta,
		Project: d.Project,
		Label:   later.Label,
		Address: later.Address,
		Detail: fmt.Sprintf("left out of growth, %s: %s/%s at block %d, %s/%s at block %d",
			reason, earlier.Strategy, okOr(earlier.Error), d.FromBlock, later.Strategy, okOr(later.Error), d.ToBlock),
	})
}

func okOr(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

func (d *DailyDelta) sub(field string, later, earlier uint64) uint64 {
	if later < earlier {
		d.Anomalies = append(d.Anomalies, field)
		return 0
	}
	return later - earlier
}
