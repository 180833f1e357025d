package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/web3-frozen/chain-activity/internal/metrics"
	"github.com/web3-frozen/chain-activity/internal/registry"
	"golang.org/x/sync/errgroup"
)

// DefaultTimezone is where report days begin and end.
const DefaultTimezone = "Asia/Shanghai"

// Collector reads point-in-time balances. Implementations resolve every
// entry independently and report failures inside the records.
type Collector interface {
	Balances(ctx context.Context, projects []registry.Project) []BalanceRecord
	Liquidity(ctx context.Context, bridges []registry.Bridge) []LiquidityRecord
}

// Aggregator fans report work out across every configured project.
type Aggregator struct {
	registry    registry.Registry
	resolver    *Resolver
	snapshots   *SnapshotBuilder
	collector   Collector
	loc         *time.Location
	now         func() time.Time
	concurrency int
	logger      *slog.Logger
}

type AggregatorOption func(*Aggregator)

// WithLocation sets the reporting timezone.
func WithLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithProjectConcurrency bounds how many projects are processed at once.
func WithProjectConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator wires the engine. collector may be nil, in which case
// reports carry no balances or liquidity.
func NewAggregator(reg registry.Registry, resolver *Resolver, snapshots *SnapshotBuilder, collector Collector, logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		registry:    reg,
		resolver:    resolver,
		snapshots:   snapshots,
		collector:   collector,
		loc:         time.UTC,
		now:         time.Now,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		a.loc = loc
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Location is the reporting timezone.
func (a *Aggregator) Location() *time.Location { return a.loc }

// Window returns the day boundaries around now.
func (a *Aggregator) Window() Window { return DayBoundaries(a.now(), a.loc) }

// Boundaries resolves the current window's boundaries to blocks.
func (a *Aggregator) Boundaries(ctx context.Context) Boundaries {
	now := a.now()
	w := DayBoundaries(now, a.loc)
	res := a.resolver.ResolveAll(ctx, w.DayBefore, w.Yesterday, w.Today)
	return Boundaries{
		Timezone:   a.loc.String(),
		Now:        now.In(a.loc),
		Window:     w,
		Blocks:     BoundaryBlocks{DayBefore: res.Heights[0], Yesterday: res.Heights[1], Today: res.Heights[2]},
		ChainHead:  res.Head,
		Diagnostic: res.Diagnostic,
	}
}

type snapshotPair struct {
	earlier, later ProjectSnapshot
}

// RunDailyReport computes each project's growth over the day selected by
// mode. Only a registry failure is returned as an error; upstream trouble
// degrades the report and is listed in its Diagnostics.
func (a *Aggregator) RunDailyReport(ctx context.Context, mode Mode) (*Report, error) {
	start := time.Now()
	report := "daily_" + string(mode)

	projects, err := a.registry.Projects()
	if err != nil {
		metrics.ReportRunsTotal.WithLabelValues(report, "error").Inc()
		return nil, fmt.Errorf("load projects: %w", err)
	}
	bridges, err := a.registry.Bridges()
	if err != nil {
		metrics.ReportRunsTotal.WithLabelValues(report, "error").Inc()
		return nil, fmt.Errorf("load bridges: %w", err)
	}

	b := a.Boundaries(ctx)
	earlierBlock, laterBlock := b.Blocks.Span(mode)
	rep := &Report{
		Mode:        mode,
		Date:        b.Window.Date(mode),
		Timezone:    b.Timezone,
		GeneratedAt: b.Now,
		Window:      b.Window,
		Blocks:      b.Blocks,
		ChainHead:   b.ChainHead,
		FromBlock:   earlierBlock,
		ToBlock:     laterBlock,
		Deltas:      []DailyDelta{},
	}
	if b.Diagnostic != nil {
		rep.Diagnostics = append(rep.Diagnostics, *b.Diagnostic)
	}

	pairs := make([]snapshotPair, len(projects))
	var g errgroup.Group
	g.Go(func() error {
		a.buildPairs(ctx, projects, earlierBlock, laterBlock, pairs)
		return nil
	})
	if a.collector != nil {
		g.Go(func() error {
			rep.Balances = a.collector.Balances(ctx, projects)
			return nil
		})
		g.Go(func() error {
			rep.Liquidity = a.collector.Liquidity(ctx, bridges)
			return nil
		})
	}
	_ = g.Wait()

	rep.Summary.Projects = len(projects)
	rep.Summary.Contracts = registry.ContractCount(projects)
	for i := range projects {
		p := pairs[i]
		rep.Cumulative = append(rep.Cumulative, p.later)
		rep.Summary.Cumulative = rep.Summary.Cumulative.Add(p.later.Totals)
		rep.Diagnostics = append(rep.Diagnostics, p.earlier.Diagnostics...)
		rep.Diagnostics = append(rep.Diagnostics, p.later.Diagnostics...)

		delta, err := BuildDelta(p.later, p.earlier, rep.Date)
		if err != nil {
			// Both snapshots come from the same project value.
			a.logger.Error("build delta", "project", projects[i].Name, "error", err)
			continue
		}
		if diags := delta.Diagnostics(); len(diags) > 0 {
			a.logger.Warn("anomalous delta", "project", delta.Project, "clamped", delta.Anomalies,
				"excluded", delta.Excluded, "from_block", delta.FromBlock, "to_block", delta.ToBlock)
			for _, d := range diags {
				metrics.DegradedTotal.WithLabelValues(string(d.Kind)).Inc()
			}
			rep.Diagnostics = append(rep.Diagnostics, diags...)
		}
		if delta.HasGrowth() {
			rep.Deltas = append(rep.Deltas, delta)
			rep.Summary.ActiveProjects++
			rep.Summary.Growth = rep.Summary.Growth.Add(delta.Growth)
		}
	}
	rep.Diagnostics = append(rep.Diagnostics, balanceDiagnostics(rep.Balances, rep.Liquidity)...)
	rep.Summary.Degraded = len(rep.Diagnostics)

	status := "ok"
	if rep.Summary.Degraded > 0 {
		status = "degraded"
	}
	metrics.ReportRunsTotal.WithLabelValues(report, status).Inc()
	metrics.ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
	a.logger.Info("daily report built",
		"mode", mode, "date", rep.Date, "from_block", earlierBlock, "to_block", laterBlock,
		"active", rep.Summary.ActiveProjects, "projects", rep.Summary.Projects,
		"degraded", rep.Summary.Degraded, "duration", time.Since(start))
	return rep, nil
}

// buildPairs fills pairs[i] with project i's snapshots at both blocks.
// Each goroutine owns exactly one field of one element.
func (a *Aggregator) buildPairs(ctx context.Context, projects []registry.Project, earlier, later uint64, pairs []snapshotPair) {
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			pairs[i].earlier = a.snapshots.Build(ctx, p, earlier)
			return nil
		})
		g.Go(func() error {
			pairs[i].later = a.snapshots.Build(ctx, p, later)
			return nil
		})
	}
	_ = g.Wait()
}

// ProjectTotals returns every project's lifetime stats sorted by
// transaction count, busiest first.
func (a *Aggregator) ProjectTotals(ctx context.Context) (*TotalsReport, error) {
	start := time.Now()
	projects, err := a.registry.Projects()
	if err != nil {
		metrics.ReportRunsTotal.WithLabelValues("totals", "error").Inc()
		return nil, fmt.Errorf("load projects: %w", err)
	}

	totals := make([]ProjectTotals, len(projects))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			totals[i] = a.snapshots.Totals(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	rep := &TotalsReport{GeneratedAt: a.now().In(a.loc), Projects: totals}
	for _, pt := range totals {
		rep.Summary.Projects++
		rep.Summary.Contracts += pt.ContractCount
		rep.Summary.Totals = rep.Summary.Totals.Add(pt.Totals)
		rep.Diagnostics = append(rep.Diagnostics, pt.Diagnostics...)
	}
	sort.SliceStable(rep.Projects, func(i, j int) bool {
		return rep.Projects[i].Totals.TransactionsCount > rep.Projects[j].Totals.TransactionsCount
	})

	status := "ok"
	if len(rep.Diagnostics) > 0 {
		status = "degraded"
	}
	metrics.ReportRunsTotal.WithLabelValues("totals", status).Inc()
	metrics.ReportDuration.WithLabelValues("totals").Observe(time.Since(start).Seconds())
	return rep, nil
}

// ProjectDetail returns one project's lifetime stats. The name matches
// case-insensitively.
func (a *Aggregator) ProjectDetail(ctx context.Context, name string) (*ProjectTotals, error) {
	projects, err := a.registry.Projects()
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	p, err := registry.Find(projects, name)
	if err != nil {
		return nil, err
	}
	pt := a.snapshots.Totals(ctx, p)
	return &pt, nil
}

// ContractCount is the number of configured addresses across projects.
func (a *Aggregator) ContractCount() (int, error) {
	projects, err := a.registry.Projects()
	if err != nil {
		return 0, fmt.Errorf("load projects: %w", err)
	}
	return registry.ContractCount(projects), nil
}

// Balances reads the native balance of every configured address.
func (a *Aggregator) Balances(ctx context.Context) ([]BalanceRecord, error) {
	projects, err := a.registry.Projects()
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	if a.collector == nil {
		return []BalanceRecord{}, nil
	}
	return a.collector.Balances(ctx, projects), nil
}

// Liquidity reads every bridge's monitored token balance.
func (a *Aggregator) Liquidity(ctx context.Context) ([]LiquidityRecord, error) {
	bridges, err := a.registry.Bridges()
	if err != nil {
		return nil, fmt.Errorf("load bridges: %w", err)
	}
	if a.collector == nil {
		return []LiquidityRecord{}, nil
	}
	return a.collector.Liquidity(ctx, bridges), nil
}

func balanceDiagnostics(balances []BalanceRecord, liquidity []LiquidityRecord) []Diagnostic {
	var out []Diagnostic
	for _, b := range balances {
		if b.Error != "" {
			out = append(out, Diagnostic{Kind: Kind(b.Error), Project: b.Project, Label: b.Name, Address: b.Address, Detail: b.Detail})
		}
	}
	for _, l := range liquidity {
		if l.Error != "" {
			out = append(out, Diagnostic{Kind: Kind(l.Error), Project: l.Name, Address: l.Address, Detail: l.Detail})
		}
	}
	return out
}
