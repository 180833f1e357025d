package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-frozen/chain-activity/internal/metrics"
)

const (
	DefaultBlockInterval = 2 * time.Second
	DefaultFallbackHead  = 1_000_000
)

// HeadSource reports the latest block height of the chain.
type HeadSource interface {
	ChainHead(ctx context.Context) (uint64, error)
}

// Resolver estimates the block height at a wall-clock instant from the
// current head and an average block interval. It is a best-effort
// estimate: callers must tolerate an error of many blocks.
type Resolver struct {
	head         HeadSource
	interval     time.Duration
	fallbackHead uint64
	timeout      time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

func WithBlockInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithFallbackHead(h uint64) ResolverOption {
	return func(r *Resolver) { r.fallbackHead = h }
}

func WithHeadTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(head HeadSource, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		head:         head,
		interval:     DefaultBlockInterval,
		fallbackHead: DefaultFallbackHead,
		timeout:      10 * time.Second,
		now:          time.Now,
		logger:       logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolution is the outcome of resolving one or more instants against a
// single head reading.
type Resolution struct {
	Head       uint64      `json:"head"`
	Heights    []uint64    `json:"heights"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// Head returns the current chain head, or the fallback head with a
// diagnostic when the query fails.
func (r *Resolver) Head(ctx context.Context) (uint64, *Diagnostic) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	head, err := r.head.ChainHead(ctx)
	if err != nil {
		err = Upstream("chain head", err)
		r.logger.Warn("chain head query failed, using fallback", "fallback", r.fallbackHead, "error", err)
		metrics.DegradedTotal.WithLabelValues(string(Classify(err))).Inc()
		d := newDiagnostic(err)
		return r.fallbackHead, &d
	}
	metrics.ChainHead.Set(float64(head))
	return head, nil
}

// Resolve estimates the block height at ts.
func (r *Resolver) Resolve(ctx context.Context, ts time.Time) uint64 {
	return r.ResolveAll(ctx, ts).Heights[0]
}

// ResolveAll estimates heights for every instant from one head reading,
// so boundaries resolved together are mutually consistent.
func (r *Resolver) ResolveAll(ctx context.Context, ts ...time.Time) Resolution {
	head, diag := r.Head(ctx)
	now := r.now()
	res := Resolution{Head: head, Heights: make([]uint64, len(ts)), Diagnostic: diag}
	for i, t := range ts {
		res.Heights[i] = EstimateHeight(head, now, t, r.interval)
		r.logger.Debug("resolved block", "at", t.Format(time.RFC3339), "block", res.Heights[i], "head", head)
	}
	return res
}

// EstimateHeight returns max(1, head - floor((now-ts)/interval)). An
// instant in the future yields a height above head.
func EstimateHeight(head uint64, now, ts time.Time, interval time.Duration) uint64 {
	intervalMs := interval.Milliseconds()
	if intervalMs <= 0 {
		intervalMs = 1
	}
	delta := floorDiv(now.Sub(ts).Milliseconds(), intervalMs)

	if delta < 0 {
		return head + uint64(-delta)
	}
	if uint64(delta) >= head {
		return 1
	}
	h := head - uint64(delta)
	if h < 1 {
		return 1
	}
	return h
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
