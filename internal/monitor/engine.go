package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/lark"
	"github.com/web3-frozen/chain-activity/internal/metrics"
	"github.com/web3-frozen/chain-activity/internal/store"
)

const (
	DefaultPollInterval  = 5 * time.Minute
	DefaultDropThreshold = 0.10

	liquidityDedupTTL = 2 * time.Hour
	reportDedupTTL    = 26 * time.Hour
)

// Reports produces the data the engine delivers.
type Reports interface {
	RunDailyReport(ctx context.Context, mode activity.Mode) (*activity.Report, error)
	ProjectTotals(ctx context.Context) (*activity.TotalsReport, error)
	Liquidity(ctx context.Context) ([]activity.LiquidityRecord, error)
	Location() *time.Location
}

// Subscribers resolves delivery targets per event.
type Subscribers interface {
	GetTargets(ctx context.Context, eventName string) ([]store.Target, error)
	GetDailyReportTargets(ctx context.Context, eventName string, hour int) ([]store.Target, error)
	CountSubscriptions(ctx context.Context, eventName string) (int, error)
}

// Sender delivers Lark messages.
type Sender interface {
	SendCard(ctx context.Context, t lark.Target, card lark.Card) (string, error)
	SendText(ctx context.Context, t lark.Target, text string) (string, error)
}

// Deduper suppresses repeated deliveries.
type Deduper interface {
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string, ttl time.Duration)
	ClearByPattern(ctx context.Context, pattern string)
}

// Engine polls bridge liquidity and runs the hourly report schedule.
type Engine struct {
	reports   Reports
	subs      Subscribers
	sender    Sender
	dedup     Deduper
	logger    *slog.Logger
	interval  time.Duration
	threshold float64
	now       func() time.Time

	mu   sync.RWMutex
	last map[string]decimal.Decimal
}

type Option func(*Engine)

// WithPollInterval sets how often bridge liquidity is read.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithDropThreshold sets the default fractional drop that triggers an alert.
func WithDropThreshold(f float64) Option {
	return func(e *Engine) {
		if f > 0 {
			e.threshold = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the engine. dedup may be nil, in which case every
// qualifying alert is delivered.
func NewEngine(reports Reports, subs Subscribers, sender Sender, dedup Deduper, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		reports:   reports,
		subs:      subs,
		sender:    sender,
		dedup:     dedup,
		logger:    logger,
		interval:  DefaultPollInterval,
		threshold: DefaultDropThreshold,
		now:       time.Now,
		last:      make(map[string]decimal.Decimal),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LastLiquidity returns the most recent successful reading for a bridge.
func (e *Engine) LastLiquidity(bridge string) (decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.last[bridge]
	return v, ok
}

// Run starts the liquidity poll loop and the hourly report scheduler.
func (e *Engine) Run(ctx context.Context) {
	e.PollLiquidity(ctx)
	e.refreshSubscriptionGauges(ctx)

	pollTicker := time.NewTicker(e.interval)
	defer pollTicker.Stop()

	reportTimer := e.nextHourTimer()
	defer reportTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			e.PollLiquidity(ctx)
		case <-reportTimer.C:
			e.SendScheduledReports(ctx, e.now().In(e.reports.Location()).Hour())
			e.refreshSubscriptionGauges(ctx)
			reportTimer = e.nextHourTimer()
		}
	}
}

// PollLiquidity reads every bridge once and alerts on drops since the
// previous reading.
func (e *Engine) PollLiquidity(ctx context.Context) {
	recs, err := e.reports.Liquidity(ctx)
	if err != nil {
		e.logger.Error("liquidity poll failed", "error", err)
		return
	}

	for _, r := range recs {
		if r.Error != "" {
			e.logger.Warn("liquidity unavailable", "bridge", r.Name, "kind", r.Error, "detail", r.Detail)
			continue
		}
		curr, err := decimal.NewFromString(r.Balance)
		if err != nil {
			e.logger.Warn("unparseable liquidity balance", "bridge", r.Name, "balance", r.Balance, "error", err)
			continue
		}

		e.mu.Lock()
		prev, seen := e.last[r.Name]
		e.last[r.Name] = curr
		e.mu.Unlock()

		if !seen || !prev.IsPositive() {
			continue
		}
		if curr.GreaterThanOrEqual(prev) {
			if curr.GreaterThan(prev) && e.dedup != nil {
				e.dedup.ClearByPattern(ctx, "liquidity:"+r.Name+":*")
			}
			continue
		}
		drop := prev.Sub(curr).Div(prev).InexactFloat64()
		e.alertDrop(ctx, r, prev, curr, drop)
	}
}

func (e *Engine) alertDrop(ctx context.Context, r activity.LiquidityRecord, prev, curr decimal.Decimal, drop float64) {
	targets, err := e.subs.GetTargets(ctx, store.EventLiquidityAlert)
	if err != nil {
		e.logger.Error("get subscribers failed", "event", store.EventLiquidityAlert, "error", err)
		return
	}

	msg := fmt.Sprintf("🚨 %s LIQUIDITY DROP\n\n"+
		"Liquidity dropped by %.1f%% since the last check.\n"+
		"Previous: %s %s\n"+
		"Current:  %s %s\n"+
		"Drop:     -%s %s",
		strings.ToUpper(r.Name),
		drop*100,
		formatAmount(prev), r.Symbol,
		formatAmount(curr), r.Symbol,
		formatAmount(prev.Sub(curr)), r.Symbol)

	hour := e.now().In(e.reports.Location()).Format("2006010215")
	for _, t := range targets {
		threshold := e.threshold
		if t.ThresholdPct > 0 {
			threshold = t.ThresholdPct / 100
		}
		if drop < threshold {
			continue
		}
		key := fmt.Sprintf("liquidity:%s:%s:%s", r.Name, t.ReceiveID, hour)
		e.deliver(ctx, store.EventLiquidityAlert, key, liquidityDedupTTL, t, func(lt lark.Target) error {
			_, err := e.sender.SendText(ctx, lt, msg)
			return err
		})
	}
}

// SendScheduledReports delivers the daily and stats cards to recipients
// whose report hour is hour.
func (e *Engine) SendScheduledReports(ctx context.Context, hour int) {
	e.sendDailyReports(ctx, hour)
	e.sendStatsReports(ctx, hour)
}

func (e *Engine) sendDailyReports(ctx context.Context, hour int) {
	targets, err := e.subs.GetDailyReportTargets(ctx, store.EventDailyReport, hour)
	if err != nil {
		e.logger.Error("get subscribers failed", "event", store.EventDailyReport, "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	rep, err := e.reports.RunDailyReport(ctx, activity.ModeToday)
	if err != nil {
		e.logger.Error("daily report failed", "error", err)
		return
	}
	card, ok := lark.DailyCard(rep)
	if !ok {
		e.logger.Info("daily report skipped, no changes", "date", rep.Date)
		return
	}

	for _, t := range targets {
		key := fmt.Sprintf("report:daily:%s:%s", t.ReceiveID, rep.Date)
		e.deliver(ctx, store.EventDailyReport, key, reportDedupTTL, t, func(lt lark.Target) error {
			_, err := e.sender.SendCard(ctx, lt, card)
			return err
		})
	}
}

func (e *Engine) sendStatsReports(ctx context.Context, hour int) {
	targets, err := e.subs.GetDailyReportTargets(ctx, store.EventStatsReport, hour)
	if err != nil {
		e.logger.Error("get subscribers failed", "event", store.EventStatsReport, "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	rep, err := e.reports.ProjectTotals(ctx)
	if err != nil {
		e.logger.Error("stats report failed", "error", err)
		return
	}
	card := lark.StatsCard(rep, e.reports.Location())

	date := e.now().In(e.reports.Location()).Format("2006-01-02")
	for _, t := range targets {
		key := fmt.Sprintf("report:stats:%s:%s", t.ReceiveID, date)
		e.deliver(ctx, store.EventStatsReport, key, reportDedupTTL, t, func(lt lark.Target) error {
			_, err := e.sender.SendCard(ctx, lt, card)
			return err
		})
	}
}

func (e *Engine) deliver(ctx context.Context, event, key string, ttl time.Duration, t store.Target, send func(lark.Target) error) {
	if e.dedup != nil && e.dedup.AlreadySent(ctx, key) {
		metrics.AlertsDeduplicatedTotal.WithLabelValues(event).Inc()
		e.logger.Debug("delivery deduplicated", "key", key)
		return
	}
	lt := lark.Target{ReceiveID: t.ReceiveID, ReceiveIDType: t.ReceiveIDType}
	if err := send(lt); err != nil {
		metrics.AlertsFailedTotal.WithLabelValues(event).Inc()
		e.logger.Error("delivery failed", "event", event, "receive_id", t.ReceiveID, "error", err)
		return
	}
	metrics.AlertsSentTotal.WithLabelValues(event).Inc()
	if e.dedup != nil {
		e.dedup.Record(ctx, key, ttl)
	}
}

func (e *Engine) refreshSubscriptionGauges(ctx context.Context) {
	for _, event := range []string{store.EventDailyReport, store.EventStatsReport, store.EventLiquidityAlert} {
		n, err := e.subs.CountSubscriptions(ctx, event)
		if err != nil {
			e.logger.Warn("count subscriptions failed", "event", event, "error", err)
			continue
		}
		metrics.SubscriptionsActive.WithLabelValues(event).Set(float64(n))
	}
}

// nextHourTimer fires at the top of the next hour in the reporting timezone.
func (e *Engine) nextHourTimer() *time.Timer {
	now := e.now().In(e.reports.Location())
	next := now.Truncate(time.Hour).Add(time.Hour)
	d := next.Sub(now)
	e.logger.Info("next report check", "at", next.Format(time.RFC3339), "in", d.Round(time.Second))
	return time.NewTimer(d)
}

func formatAmount(d decimal.Decimal) string {
	million := decimal.NewFromInt(1_000_000)
	if d.GreaterThanOrEqual(million) {
		return d.Div(million).StringFixed(2) + "M"
	}
	if d.GreaterThanOrEqual(decimal.NewFromInt(1_000)) {
		return addCommas(d.StringFixed(2))
	}
	return d.StringFixed(4)
}

func addCommas(s string) string {
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	n := len(intPart)
	if n <= 3 {
		if len(parts) == 2 {
			return intPart + "." + parts[1]
		}
		return intPart
	}
	var result []byte
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if len(parts) == 2 {
		return string(result) + "." + parts[1]
	}
	return string(result)
}
