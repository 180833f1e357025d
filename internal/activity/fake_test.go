package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/web3-frozen/chain-activity/internal/registry"
)

const (
	addrA = "0x00000000000000000000000000000000000000a1"
	addrB = "0x00000000000000000000000000000000000000b2"
	addrC = "0x00000000000000000000000000000000000000c3"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeIndexer serves in-memory edge lists with offset cursors and counts
// every call by "<call>:<address>".
type fakeIndexer struct {
	mu sync.Mutex

	head     uint64
	headErr  error
	pageSize int

	totals    map[string]ContractStats
	txs       map[string][]Edge
	transfers map[string][]Edge
	failing   map[string]error  // every call for the address fails
	failingAt map[string]uint64 // page calls bounded at this block fail
	endless   map[string]bool   // always has a next page with a fresh cursor
	stuck     map[string]bool   // always has a next page with the same cursor
	delay     time.Duration

	calls map[string]int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		head:      1000,
		pageSize:  100,
		totals:    map[string]ContractStats{},
		txs:       map[string][]Edge{},
		transfers: map[string][]Edge{},
		failing:   map[string]error{},
		failingAt: map[string]uint64{},
		endless:   map[string]bool{},
		stuck:     map[string]bool{},
		calls:     map[string]int{},
	}
}

func (f *fakeIndexer) count(call, address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call+":"+address]
}

func (f *fakeIndexer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeIndexer) record(call, address string) error {
	f.mu.Lock()
	f.calls[call+":"+address]++
	err := f.failing[address]
	f.mu.Unlock()
	return err
}

func (f *fakeIndexer) ChainHead(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	f.calls["head:"]++
	f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeIndexer) CumulativeStats(ctx context.Context, address string) (ContractStats, error) {
	if err := f.record("totals", address); err != nil {
		return ContractStats{}, err
	}
	return f.totals[address], nil
}

func (f *fakeIndexer) TransactionPage(ctx context.Context, address string, rng BlockRange, after string) (Page, error) {
	return f.page(ctx, "tx", f.txs, address, rng, after)
}

func (f *fakeIndexer) TokenTransferPage(ctx context.Context, address string, rng BlockRange, after string) (Page, error) {
	return f.page(ctx, "transfer", f.transfers, address, rng, after)
}

func (f *fakeIndexer) page(ctx context.Context, call string, lists map[string][]Edge, address string, rng BlockRange, after string) (Page, error) {
	if err := f.record(call, address); err != nil {
		return Page{}, err
	}
	f.mu.Lock()
	at, ok := f.failingAt[address]
	f.mu.Unlock()
	if ok && at == rng.To {
		return Page{}, errBoom
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if f.stuck[address] {
		return Page{Edges: []Edge{{GasUsed: 1, BlockNumber: 1}}, HasNextPage: true, EndCursor: "same"}, nil
	}
	start, _ := strconv.Atoi(after)
	if f.endless[address] {
		return Page{Edges: []Edge{{GasUsed: 1, BlockNumber: 1}}, HasNextPage: true, EndCursor: strconv.Itoa(start + 1)}, nil
	}

	edges := lists[address]
	end := min(start+f.pageSize, len(edges))
	if start > end {
		start = end
	}
	return Page{
		Edges:       edges[start:end],
		HasNextPage: end < len(edges),
		EndCursor:   strconv.Itoa(end),
	}, nil
}

// edges returns n edges at blocks 1..n, each burning gas.
func edges(n int, gas uint64) []Edge {
	out := make([]Edge, n)
	for i := range out {
		out[i] = Edge{GasUsed: gas, BlockNumber: uint64(i + 1)}
	}
	return out
}

type fakeRegistry struct {
	projects []registry.Project
	bridges  []registry.Bridge
	err      error
}

func (r fakeRegistry) Projects() ([]registry.Project, error) { return r.projects, r.err }
func (r fakeRegistry) Bridges() ([]registry.Bridge, error)   { return r.bridges, r.err }

type fakeCollector struct {
	balances  []BalanceRecord
	liquidity []LiquidityRecord
}

func (c fakeCollector) Balances(context.Context, []registry.Project) []BalanceRecord {
	return c.balances
}

func (c fakeCollector) Liquidity(context.Context, []registry.Bridge) []LiquidityRecord {
	return c.liquidity
}
