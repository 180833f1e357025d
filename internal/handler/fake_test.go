package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/lark"
	"github.com/web3-frozen/chain-activity/internal/registry"
)

var testLoc = time.FixedZone("CST", 8*60*60)

type fakeActivity struct {
	daily     *activity.Report
	totals    *activity.TotalsReport
	count     int
	liquidity []activity.LiquidityRecord
	balances  []activity.BalanceRecord
	err       error
	modes     []activity.Mode
}

func (f *fakeActivity) Location() *time.Location { return testLoc }

func (f *fakeActivity) Boundaries(context.Context) activity.Boundaries {
	return activity.Boundaries{Timezone: testLoc.String(), ChainHead: 200_000}
}

func (f *fakeActivity) RunDailyReport(_ context.Context, mode activity.Mode) (*activity.Report, error) {
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

func (f *fakeActivity) ProjectTotals(context.Context) (*activity.TotalsReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.totals, nil
}

func (f *fakeActivity) ProjectDetail(_ context.Context, name string) (*activity.ProjectTotals, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.totals.Projects {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	return nil, registry.ErrProjectNotFound
}

func (f *fakeActivity) ContractCount() (int, error) { return f.count, f.err }

func (f *fakeActivity) Balances(context.Context) ([]activity.BalanceRecord, error) {
	return f.balances, f.err
}

func (f *fakeActivity) Liquidity(context.Context) ([]activity.LiquidityRecord, error) {
	return f.liquidity, f.err
}

type fakeMessenger struct {
	targets []lark.Target
	cards   []lark.Card
	err     error
}

func (f *fakeMessenger) SendCard(_ context.Context, t lark.Target, card lark.Card) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.targets = append(f.targets, t)
	f.cards = append(f.cards, card)
	return "om_test", nil
}

var errRegistry = errors.New("load projects: open config/projects.json: no such file")

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleTotals() *activity.TotalsReport {
	return &activity.TotalsReport{
		Projects: []activity.ProjectTotals{
			{Name: "Foo", ContractCount: 2, Totals: activity.ContractStats{GasUsed: 900, TransactionsCount: 30}},
			{Name: "Bar", ContractCount: 1, Totals: activity.ContractStats{GasUsed: 100, TransactionsCount: 3}},
		},
		Summary: activity.TotalsSummary{Projects: 2, Contracts: 3, Totals: activity.ContractStats{GasUsed: 1000, TransactionsCount: 33}},
	}
}

func sampleDaily(changed bool) *activity.Report {
	rep := &activity.Report{Mode: activity.ModeToday, Date: "2024-06-02"}
	if changed {
		rep.Deltas = []activity.DailyDelta{{Project: "Foo", Growth: activity.ContractStats{GasUsed: 500, TransactionsCount: 5}}}
	}
	return rep
}
