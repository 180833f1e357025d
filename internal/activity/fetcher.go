package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/web3-frozen/chain-activity/internal/metrics"
)

const (
	DefaultMaxPages    = 50
	DefaultCallTimeout = 10 * time.Second

	StrategyPaginated = "paginated"
	StrategyTotals    = "totals"
	StrategyZero      = "zero"
)

// ValidAddress reports whether s is a 20-byte hex address.
func ValidAddress(s string) bool { return common.IsHexAddress(s) }

func checkAddress(address string) error {
	if !ValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// Strategy is one way of obtaining the cumulative stats of an address as
// of a block. Strategies are tried in order; the first success wins.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, address string, atBlock uint64) (ContractStats, error)
}

// FetchResult is the outcome of a strategy chain. Degraded is set when
// anything other than the first strategy produced Stats, in which case
// Kind and Err describe the failures that led there.
type FetchResult struct {
	Stats    ContractStats
	Strategy string
	Degraded bool
	Kind     Kind
	Err      error
}

type pageFunc func(ctx context.Context, address string, rng BlockRange, after string) (Page, error)

// Fetcher retrieves per-address stats from an Indexer.
type Fetcher struct {
	indexer    Indexer
	maxPages   int
	timeout    time.Duration
	logger     *slog.Logger
	strategies []Strategy
}

type FetcherOption func(*Fetcher)

// WithMaxPages caps the pages walked per list.
func WithMaxPages(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPages = n
		}
	}
}

// WithCallTimeout bounds every single indexer call.
func WithCallTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithStrategies replaces the default paginated→totals chain.
func WithStrategies(s ...Strategy) FetcherOption {
	return func(f *Fetcher) { f.strategies = s }
}

func NewFetcher(idx Indexer, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		indexer:  idx,
		maxPages: DefaultMaxPages,
		timeout:  DefaultCallTimeout,
		logger:   logger,
	}
	f.strategies = []Strategy{
		{Name: StrategyPaginated, Fetch: f.cumulativePaginated},
		{Name: StrategyTotals, Fetch: func(ctx context.Context, address string, _ uint64) (ContractStats, error) {
			return f.FetchTotals(ctx, address)
		}},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchRange walks the address's transactions and sums gas and count over
// edges whose block lies in rng. On failure the zero value is returned.
func (f *Fetcher) FetchRange(ctx context.Context, address string, rng BlockRange) (ContractStats, error) {
	if err := checkAddress(address); err != nil {
		return ContractStats{}, err
	}
	gas, count, err := f.walk(ctx, "transactions", address, rng, f.indexer.TransactionPage)
	if err != nil {
		return ContractStats{}, err
	}
	return ContractStats{GasUsed: gas, TransactionsCount: count}, nil
}

// FetchTotals returns the address's lifetime totals in one call.
func (f *Fetcher) FetchTotals(ctx context.Context, address string) (ContractStats, error) {
	if err := checkAddress(address); err != nil {
		return ContractStats{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stats, err := f.indexer.CumulativeStats(ctx, address)
	if err != nil {
		return ContractStats{}, Upstream("cumulative stats", err)
	}
	return stats, nil
}

// Cumulative returns the address's stats as of atBlock by running the
// strategy chain. It never fails: exhausting the chain yields zero stats
// tagged with the first failure's kind.
func (f *Fetcher) Cumulative(ctx context.Context, address string, atBlock uint64) FetchResult {
	if err := checkAddress(address); err != nil {
		metrics.DegradedTotal.WithLabelValues(string(KindInvalidAddress)).Inc()
		return FetchResult{Strategy: StrategyZero, Degraded: true, Kind: KindInvalidAddress, Err: err}
	}

	var errs []error
	for i, s := range f.strategies {
		stats, err := s.Fetch(ctx, address, atBlock)
		if err == nil {
			metrics.FetchStrategyTotal.WithLabelValues(s.Name).Inc()
			res := FetchResult{Stats: stats, Strategy: s.Name}
			if i > 0 {
				res.Degraded = true
				res.Kind = Classify(errs[0])
				res.Err = errors.Join(errs...)
				metrics.DegradedTotal.WithLabelValues(string(res.Kind)).Inc()
			}
			return res
		}
		f.logger.Warn("fetch strategy failed", "strategy", s.Name, "address", address, "block", atBlock, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	metrics.FetchStrategyTotal.WithLabelValues(StrategyZero).Inc()
	res := FetchResult{Strategy: StrategyZero, Degraded: true, Kind: KindUpstreamUnavailable}
	if len(errs) > 0 {
		res.Kind = Classify(errs[0])
		res.Err = errors.Join(errs...)
	} else {
		res.Err = fmt.Errorf("%w: no fetch strategy configured", ErrUpstreamUnavailable)
	}
	metrics.DegradedTotal.WithLabelValues(string(res.Kind)).Inc()
	return res
}

func (f *Fetcher) cumulativePaginated(ctx context.Context, address string, atBlock uint64) (ContractStats, error) {
	rng := UpTo(atBlock)
	gas, txs, err := f.walk(ctx, "transactions", address, rng, f.indexer.TransactionPage)
	if err != nil {
		return ContractStats{}, err
	}
	_, transfers, err := f.walk(ctx, "token transfers", address, rng, f.indexer.TokenTransferPage)
	if err != nil {
		return ContractStats{}, err
	}
	return ContractStats{GasUsed: gas, TransactionsCount: txs, TokenTransfersCount: transfers}, nil
}

// walk follows the cursor chain until the source reports no next page or
// returns an empty page. The page cap and the repeated-cursor check
// guarantee termination against inconsistent pagination.
func (f *Fetcher) walk(ctx context.Context, list, address string, rng BlockRange, fetch pageFunc) (gas, count uint64, err error) {
	seen := make(map[string]bool)
	after := ""
	for pages := 0; ; pages++ {
		if pages >= f.maxPages {
			return 0, 0, fmt.Errorf("%s of %s: %w: exceeded %d pages", list, address, ErrSchemaMismatch, f.maxPages)
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, Upstream(list, err)
		}

		page, err := f.page(ctx, fetch, address, rng, after)
		if err != nil {
			return 0, 0, Upstream(list+" page", err)
		}
		metrics.PagesFetchedTotal.Inc()

		for _, e := range page.Edges {
			if rng.Contains(e.BlockNumber) {
				gas += e.GasUsed
				count++
			}
		}

		if !page.HasNextPage || len(page.Edges) == 0 {
			return gas, count, nil
		}
		if page.EndCursor == "" || seen[page.EndCursor] {
			return 0, 0, fmt.Errorf("%s of %s: %w: cursor %q did not advance", list, address, ErrSchemaMismatch, page.EndCursor)
		}
		seen[page.EndCursor] = true
		after = page.EndCursor
	}
}

func (f *Fetcher) page(ctx context.Context, fetch pageFunc, address string, rng BlockRange, after string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return fetch(ctx, address, rng, after)
}
