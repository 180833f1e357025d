package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/web3-frozen/chain-activity/internal/registry"
)

// Blocks at 2s with head 200_000 at 2024-06-02 04:00 Shanghai:
// today0 = 192_800, yesterday0 = 149_600, dayBefore0 = 106_400.
func newTestAggregator(t *testing.T, idx *fakeIndexer, reg registry.Registry, col Collector, opts ...FetcherOption) *Aggregator {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := time.Date(2024, 6, 2, 4, 0, 0, 0, loc)
	clock := func() time.Time { return now }

	logger := discardLogger()
	resolver := NewResolver(idx, logger, WithClock(clock))
	builder := NewSnapshotBuilder(NewFetcher(idx, logger, opts...), 4, logger)
	return NewAggregator(reg, resolver, builder, col, logger,
		WithLocation(loc), WithAggregatorClock(clock), WithProjectConcurrency(2))
}

// edgesAt places one edge of the given gas at each block.
func edgesAt(gas uint64, blocks ...uint64) []Edge {
	out := make([]Edge, len(blocks))
	for i, b := range blocks {
		out[i] = Edge{GasUsed: gas, BlockNumber: b}
	}
	return out
}

func TestRunDailyReport(t *testing.T) {
	idx := newFakeIndexer()
	idx.head = 200_000
	idx.txs[addrA] = edgesAt(10, 120_000, 150_000, 170_000, 199_000)
	idx.transfers[addrA] = edgesAt(0, 156_000)
	idx.txs[addrB] = edgesAt(10, 1_000)
	idx.failing[addrC] = errBoom

	reg := fakeRegistry{
		projects: []registry.Project{
			{Name: "Active", ContractAddresses: map[string]string{"main": addrA}},
			{Name: "Idle", ContractAddresses: map[string]string{"main": addrB}},
			{Name: "Broken", ContractAddresses: map[string]string{"main": addrC}},
		},
	}
	col := fakeCollector{
		balances: []BalanceRecord{
			{Project: "Active", Name: "main", Address: addrA, Balance: "1.5", Symbol: "HSK"},
			{Project: "Broken", Name: "main", Address: "0xbad", Balance: "0", Error: string(KindInvalidAddress)},
		},
	}
	agg := newTestAggregator(t, idx, reg, col)

	rep, err := agg.RunDailyReport(context.Background(), ModeToday)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-01", rep.Date)
	assert.Equal(t, uint64(149_600), rep.FromBlock)
	assert.Equal(t, uint64(192_800), rep.ToBlock)
	assert.Equal(t, uint64(200_000), rep.ChainHead)

	require.Len(t, rep.Deltas, 1)
	assert.Equal(t, "Active", rep.Deltas[0].Project)
	assert.Equal(t, ContractStats{GasUsed: 20, TransactionsCount: 2, TokenTransfersCount: 1}, rep.Deltas[0].Growth)
	assert.Equal(t, ContractStats{GasUsed: 30, TransactionsCount: 3, TokenTransfersCount: 1}, rep.Deltas[0].Cumulative)
	assert.True(t, rep.HasChanges())

	assert.Len(t, rep.Cumulative, 3)
	assert.Equal(t, 3, rep.Summary.Projects)
	assert.Equal(t, 1, rep.Summary.ActiveProjects)
	assert.Equal(t, rep.Deltas[0].Growth, rep.Summary.Growth)
	assert.Len(t, rep.Balances, 2)

	var kinds []Kind
	for _, d := range rep.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	// Broken fails at both boundaries, plus the invalid balance address.
	assert.ElementsMatch(t, []Kind{KindUpstreamUnavailable, KindUpstreamUnavailable, KindInvalidAddress}, kinds)
	assert.Equal(t, 3, rep.Summary.Degraded)
}

func TestRunDailyReportExcludesDegradedContracts(t *testing.T) {
	idx := newFakeIndexer()
	idx.head = 200_000
	idx.txs[addrA] = edgesAt(10, 150_000, 170_000)
	idx.txs[addrB] = edgesAt(10, 1_000, 2_000, 180_000)
	// vault's history cannot be walked at the earlier boundary and its
	// lifetime totals read zero.
	idx.failingAt[addrB] = 149_600

	reg := fakeRegistry{projects: []registry.Project{
		{Name: "Mixed", ContractAddresses: map[string]string{"router": addrA, "vault": addrB}},
	}}
	agg := newTestAggregator(t, idx, reg, nil)

	rep, err := agg.RunDailyReport(context.Background(), ModeToday)
	require.NoError(t, err)

	require.Len(t, rep.Deltas, 1)
	d := rep.Deltas[0]
	assert.Equal(t, ContractStats{GasUsed: 20, TransactionsCount: 2}, d.Growth)
	assert.Equal(t, ContractStats{GasUsed: 50, TransactionsCount: 5}, d.Cumulative)
	assert.Equal(t, []string{"vault"}, d.Excluded)
	assert.Equal(t, d.Growth, rep.Summary.Growth)

	var anomalous []Diagnostic
	for _, diag := range rep.Diagnostics {
		if diag.Kind == KindAnomalousDelta {
			anomalous = append(anomalous, diag)
		}
	}
	require.Len(t, anomalous, 1)
	assert.Equal(t, "Mixed", anomalous[0].Project)
	assert.Equal(t, "vault", anomalous[0].Label)
	// The earlier degraded read plus the exclusion.
	assert.Equal(t, 2, rep.Summary.Degraded)
}

func TestRunDailyReportSurfacesClampedDelta(t *testing.T) {
	idx := newFakeIndexer()
	idx.head = 200_000
	skewed := Strategy{Name: StrategyPaginated, Fetch: func(_ context.Context, _ string, atBlock uint64) (ContractStats, error) {
		if atBlock == 149_600 {
			return ContractStats{GasUsed: 90, TransactionsCount: 9}, nil
		}
		return ContractStats{GasUsed: 100, TransactionsCount: 7}, nil
	}}
	reg := fakeRegistry{projects: []registry.Project{{Name: "Skewed", ContractAddresses: map[string]string{"main": addrA}}}}
	agg := newTestAggregator(t, idx, reg, nil, WithStrategies(skewed))

	rep, err := agg.RunDailyReport(context.Background(), ModeToday)
	require.NoError(t, err)

	require.Len(t, rep.Deltas, 1)
	assert.Equal(t, ContractStats{GasUsed: 10}, rep.Deltas[0].Growth)
	assert.Equal(t, []string{"transactions_count"}, rep.Deltas[0].Anomalies)

	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, KindAnomalousDelta, rep.Diagnostics[0].Kind)
	assert.Equal(t, "Skewed", rep.Diagnostics[0].Project)
	assert.Contains(t, rep.Diagnostics[0].Detail, "transactions_count")
	assert.Equal(t, 1, rep.Summary.Degraded)
}

func TestRunDailyReportYesterday(t *testing.T) {
	idx := newFakeIndexer()
	idx.head = 200_000
	idx.txs[addrA] = edgesAt(10, 100_000, 120_000)
	reg := fakeRegistry{projects: []registry.Project{{Name: "Active", ContractAddresses: map[string]string{"main": addrA}}}}
	agg := newTestAggregator(t, idx, reg, nil)

	rep, err := agg.RunDailyReport(context.Background(), ModeYesterday)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-31", rep.Date)
	assert.Equal(t, uint64(106_400), rep.FromBlock)
	assert.Equal(t, uint64(149_600), rep.ToBlock)
	require.Len(t, rep.Deltas, 1)
	assert.Equal(t, uint64(1), rep.Deltas[0].Growth.TransactionsCount)
	assert.Nil(t, rep.Balances)
}

func TestRunDailyReportNoChanges(t *testing.T) {
	idx := newFakeIndexer()
	reg := fakeRegistry{projects: []registry.Project{{Name: "Idle", ContractAddresses: map[string]string{"main": addrB}}}}
	agg := newTestAggregator(t, idx, reg, nil)

	rep, err := agg.RunDailyReport(context.Background(), ModeToday)
	require.NoError(t, err)
	assert.False(t, rep.HasChanges())
	assert.NotNil(t, rep.Deltas)
	assert.Empty(t, rep.Diagnostics)
}

func TestRunDailyReportHeadFailureDegrades(t *testing.T) {
	idx := newFakeIndexer()
	idx.headErr = errBoom
	reg := fakeRegistry{projects: []registry.Project{{Name: "Idle", ContractAddresses: map[string]string{"main": addrB}}}}
	agg := newTestAggregator(t, idx, reg, nil)

	rep, err := agg.RunDailyReport(context.Background(), ModeToday)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultFallbackHead), rep.ChainHead)
	require.NotEmpty(t, rep.Diagnostics)
	assert.Equal(t, KindUpstreamUnavailable, rep.Diagnostics[0].Kind)
}

func TestRegistryFailureIsFatal(t *testing.T) {
	idx := newFakeIndexer()
	agg := newTestAggregator(t, idx, fakeRegistry{err: errors.New("no such file")}, nil)

	_, err := agg.RunDailyReport(context.Background(), ModeToday)
	assert.Error(t, err)
	_, err = agg.ProjectTotals(context.Background())
	assert.Error(t, err)
	assert.Zero(t, idx.total())
}

func TestProjectTotalsSortedByTransactions(t *testing.T) {
	idx := newFakeIndexer()
	idx.totals[addrA] = ContractStats{TransactionsCount: 5}
	idx.totals[addrB] = ContractStats{TransactionsCount: 50}
	idx.totals[addrC] = ContractStats{TransactionsCount: 7}
	reg := fakeRegistry{projects: []registry.Project{
		{Name: "Small", ContractAddresses: map[string]string{"a": addrA}},
		{Name: "Big", ContractAddresses: map[string]string{"b": addrB, "c": addrC}},
	}}
	agg := newTestAggregator(t, idx, reg, nil)

	rep, err := agg.ProjectTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Projects, 2)
	assert.Equal(t, "Big", rep.Projects[0].Name)
	assert.Equal(t, uint64(57), rep.Projects[0].Totals.TransactionsCount)
	assert.Equal(t, TotalsSummary{Projects: 2, Contracts: 3, Totals: ContractStats{TransactionsCount: 62}}, rep.Summary)
}

func TestProjectDetail(t *testing.T) {
	idx := newFakeIndexer()
	idx.totals[addrA] = ContractStats{GasUsed: 3}
	reg := fakeRegistry{projects: []registry.Project{{Name: "Foo", ContractAddresses: map[string]string{"a": addrA}}}}
	agg := newTestAggregator(t, idx, reg, nil)

	pt, err := agg.ProjectDetail(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pt.Totals.GasUsed)

	_, err = agg.ProjectDetail(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrProjectNotFound)
}

func TestBoundaries(t *testing.T) {
	idx := newFakeIndexer()
	idx.head = 200_000
	agg := newTestAggregator(t, idx, fakeRegistry{}, nil)

	b := agg.Boundaries(context.Background())
	assert.Equal(t, "Asia/Shanghai", b.Timezone)
	assert.Equal(t, BoundaryBlocks{DayBefore: 106_400, Yesterday: 149_600, Today: 192_800}, b.Blocks)
	assert.Nil(t, b.Diagnostic)
}
