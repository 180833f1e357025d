package activity

import (
	"context"
	"log/slog"

	"github.com/web3-frozen/chain-activity/internal/registry"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// ContractResult is one contract's contribution to a project sum.
type ContractResult struct {
	Label    string        `json:"label"`
	Address  string        `json:"address"`
	Stats    ContractStats `json:"stats"`
	Strategy string        `json:"strategy"`
	Error    string        `json:"error,omitempty"`
}

// ProjectSnapshot is the sum of a project's contract stats, every
// contract measured as of the same AtBlock.
type ProjectSnapshot struct {
	Project     string           `json:"project"`
	AtBlock     uint64           `json:"at_block"`
	Totals      ContractStats    `json:"totals"`
	Contracts   []ContractResult `json:"contracts"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
}

// SnapshotBuilder sums per-contract stats into project snapshots.
type SnapshotBuilder struct {
	fetcher     *Fetcher
	concurrency int
	logger      *slog.Logger
}

func NewSnapshotBuilder(f *Fetcher, concurrency int, logger *slog.Logger) *SnapshotBuilder {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &SnapshotBuilder{fetcher: f, concurrency: concurrency, logger: logger}
}

// Build returns the project's cumulative stats as of atBlock. A failing
// contract contributes zero and is named in Diagnostics.
func (b *SnapshotBuilder) Build(ctx context.Context, p registry.Project, atBlock uint64) ProjectSnapshot {
	contracts := p.Contracts()
	results := b.collect(ctx, contracts, func(ctx context.Context, address string) FetchResult {
		return b.fetcher.Cumulative(ctx, address, atBlock)
	})

	snap := ProjectSnapshot{Project: p.Name, AtBlock: atBlock}
	snap.Totals, snap.Contracts, snap.Diagnostics = fold(p.Name, contracts, results)
	if len(snap.Diagnostics) > 0 {
		b.logger.Warn("snapshot degraded", "project", p.Name, "block", atBlock, "degraded", len(snap.Diagnostics))
	}
	return snap
}

// Totals returns the project's lifetime stats without a block bound.
func (b *SnapshotBuilder) Totals(ctx context.Context, p registry.Project) ProjectTotals {
	contracts := p.Contracts()
	results := b.collect(ctx, contracts, func(ctx context.Context, address string) FetchResult {
		stats, err := b.fetcher.FetchTotals(ctx, address)
		if err != nil {
			return FetchResult{Strategy: StrategyZero, Degraded: true, Kind: Classify(err), Err: err}
		}
		return FetchResult{Stats: stats, Strategy: StrategyTotals}
	})

	pt := ProjectTotals{
		Name:          p.Name,
		Chain:         p.Chain,
		Description:   p.Description,
		Logo:          p.Logo,
		ContractCount: len(contracts),
	}
	pt.Totals, pt.Contracts, pt.Diagnostics = fold(p.Name, contracts, results)
	return pt
}

// collect runs fn for every contract with bounded concurrency. Results are
// written by index, so no goroutine shares state with another.
func (b *SnapshotBuilder) collect(ctx context.Context, contracts []registry.Contract, fn func(context.Context, string) FetchResult) []FetchResult {
	results := make([]FetchResult, len(contracts))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, c := range contracts {
		i, c := i, c
		g.Go(func() error {
			results[i] = fn(ctx, c.Address)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fold(project string, contracts []registry.Contract, results []FetchResult) (ContractStats, []ContractResult, []Diagnostic) {
	var (
		total ContractStats
		out   = make([]ContractResult, len(contracts))
		diags []Diagnostic
	)
	for i, c := range contracts {
		r := results[i]
		total = total.Add(r.Stats)
		out[i] = ContractResult{Label: c.Label, Address: c.Address, Stats: r.Stats, Strategy: r.Strategy}
		if !r.Degraded {
			continue
		}
		out[i].Error = string(r.Kind)
		d := Diagnostic{
			Kind:     r.Kind,
			Project:  project,
			Label:    c.Label,
			Address:  c.Address,
			Strategy: r.Strategy,
		}
		if r.Err != nil {
			d.Detail = r.Err.Error()
		}
		diags = append(diags, d)
	}
	return total, out, diags
}
