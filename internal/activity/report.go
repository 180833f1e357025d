package activity

import "time"

// BalanceRecord is the native balance of one configured address.
type BalanceRecord struct {
	Project string `json:"project,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Balance string `json:"balance"`
	Symbol  string `json:"symbol,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// LiquidityRecord is the token balance held by a bridge's liquidity
// monitor address.
type LiquidityRecord struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	Balance    string `json:"balance"`
	RawBalance string `json:"raw_balance,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	Error      string `json:"error,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Summary aggregates a daily report.
type Summary struct {
	Projects       int           `json:"projects"`
	ActiveProjects int           `json:"active_projects"`
	Contracts      int           `json:"contracts"`
	Growth         ContractStats `json:"growth"`
	Cumulative     ContractStats `json:"cumulative"`
	Degraded       int           `json:"degraded"`
}

// Report is the output of one daily run.
type Report struct {
	Mode        Mode              `json:"mode"`
	Date        string            `json:"date"`
	Timezone    string            `json:"timezone"`
	GeneratedAt time.Time         `json:"generated_at"`
	Window      Window            `json:"window"`
	Blocks      BoundaryBlocks    `json:"blocks"`
	ChainHead   uint64            `json:"chain_head"`
	FromBlock   uint64            `json:"from_block"`
	ToBlock     uint64            `json:"to_block"`
	Deltas      []DailyDelta      `json:"deltas"`
	Cumulative  []ProjectSnapshot `json:"cumulative"`
	Balances    []BalanceRecord   `json:"balances,omitempty"`
	Liquidity   []LiquidityRecord `json:"liquidity,omitempty"`
	Summary     Summary           `json:"summary"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

// HasChanges reports whether any project grew in the period.
func (r *Report) HasChanges() bool { return len(r.Deltas) > 0 }

// ProjectTotals are a project's lifetime stats.
type ProjectTotals struct {
	Name          string           `json:"name"`
	Chain         string           `json:"chain,omitempty"`
	Description   string           `json:"description,omitempty"`
	Logo          string           `json:"logo,omitempty"`
	ContractCount int              `json:"contract_count"`
	Totals        ContractStats    `json:"totals"`
	Contracts     []ContractResult `json:"contracts"`
	Diagnostics   []Diagnostic     `json:"diagnostics,omitempty"`
}

// TotalsSummary aggregates a totals report.
type TotalsSummary struct {
	Projects  int           `json:"projects"`
	Contracts int           `json:"contracts"`
	Totals    ContractStats `json:"totals"`
}

// TotalsReport lists every project's lifetime stats, busiest first.
type TotalsReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Projects    []ProjectTotals `json:"projects"`
	Summary     TotalsSummary   `json:"summary"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
}

// Boundaries describes the current reporting window and its block
// estimates.
type Boundaries struct {
	Timezone   string         `json:"timezone"`
	Now        time.Time      `json:"now"`
	Window     Window         `json:"window"`
	Blocks     BoundaryBlocks `json:"blocks"`
	ChainHead  uint64         `json:"chain_head"`
	Diagnostic *Diagnostic    `json:"diagnostic,omitempty"`
}
