// Package evm reads native and ERC-20 balances over JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/metrics"
	"github.com/web3-frozen/chain-activity/internal/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChainRPC  = "https://mainnet.hsk.xyz"
	DefaultBridgeRPC = "https://ethereum.public.blockpi.network/v1/rpc/public"

	nativeDecimals = 18
)

// ChainReader is the subset of ethclient.Client the collector uses.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ ChainReader = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return c, nil
}

// Collector reads native balances on the activity chain and bridge token
// liquidity on the bridge chain.
type Collector struct {
	chain       ChainReader
	bridge      ChainReader
	symbol      string
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

var _ activity.Collector = (*Collector)(nil)

func NewCollector(chain, bridge ChainReader, nativeSymbol string, timeout time.Duration, concurrency int, logger *slog.Logger) *Collector {
	if timeout <= 0 {
		timeout = activity.DefaultCallTimeout
	}
	if concurrency <= 0 {
		concurrency = activity.DefaultConcurrency
	}
	return &Collector{
		chain:       chain,
		bridge:      bridge,
		symbol:      nativeSymbol,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Balances returns one record per configured contract, in project then
// label order.
func (c *Collector) Balances(ctx context.Context, projects []registry.Project) []activity.BalanceRecord {
	var out []activity.BalanceRecord
	for _, p := range projects {
		for _, ct := range p.Contracts() {
			out = append(out, activity.BalanceRecord{Project: p.Name, Name: ct.Label, Address: ct.Address, Symbol: c.symbol})
		}
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range out {
		i := i
		g.Go(func() error {
			c.nativeBalance(ctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Collector) nativeBalance(ctx context.Context, rec *activity.BalanceRecord) {
	rec.Balance = "0"
	if !common.IsHexAddress(rec.Address) {
		setError(&rec.Error, &rec.Detail, fmt.Errorf("%w: %q", activity.ErrInvalidAddress, rec.Address))
		return
	}
	if c.chain == nil {
		setError(&rec.Error, &rec.Detail, fmt.Errorf("%w: no chain rpc configured", activity.ErrUpstreamUnavailable))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	wei, err := c.chain.BalanceAt(ctx, common.HexToAddress(rec.Address), nil)
	observe("balance", start, err)
	if err != nil {
		err = activity.Upstream("balance", err)
		c.logger.Warn("balance query failed", "project", rec.Project, "address", rec.Address, "error", err)
		setError(&rec.Error, &rec.Detail, err)
		return
	}
	rec.Balance = FormatUnits(wei, nativeDecimals)
}

// Liquidity returns one record per bridge, in registry order.
func (c *Collector) Liquidity(ctx context.Context, bridges []registry.Bridge) []activity.LiquidityRecord {
	out := make([]activity.LiquidityRecord, len(bridges))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, b := range bridges {
		i := i
		out[i] = activity.LiquidityRecord{Name: b.Name, Address: b.LiquidityMonitor(), Token: b.Token(), Balance: "0"}
		g.Go(func() error {
			c.bridgeLiquidity(ctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Collector) bridgeLiquidity(ctx context.Context, rec *activity.LiquidityRecord) {
	if !common.IsHexAddress(rec.Address) || !common.IsHexAddress(rec.Token) {
		setError(&rec.Error, &rec.Detail, fmt.Errorf("%w: monitor %q token %q", activity.ErrInvalidAddress, rec.Address, rec.Token))
		return
	}
	if c.bridge == nil {
		setError(&rec.Error, &rec.Detail, fmt.Errorf("%w: no bridge rpc configured", activity.ErrUpstreamUnavailable))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token := erc20{reader: c.bridge, token: common.HexToAddress(rec.Token)}
	start := time.Now()
	bal, decimals, symbol, err := c.readToken(ctx, token, common.HexToAddress(rec.Address))
	observe("liquidity", start, err)
	if err != nil {
		err = activity.Upstream("liquidity", err)
		c.logger.Warn("liquidity query failed", "bridge", rec.Name, "address", rec.Address, "error", err)
		setError(&rec.Error, &rec.Detail, err)
		return
	}

	rec.RawBalance = bal.String()
	rec.Balance = FormatUnits(bal, decimals)
	rec.Symbol = symbol
	metrics.LiquidityBalance.WithLabelValues(rec.Name, symbol).Set(decimal.NewFromBigInt(bal, -int32(decimals)).InexactFloat64())
}

func (c *Collector) readToken(ctx context.Context, token erc20, owner common.Address) (*big.Int, uint8, string, error) {
	var (
		bal      *big.Int
		decimals uint8
		symbol   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bal, err = token.BalanceOf(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		decimals, err = token.Decimals(gctx)
		return err
	})
	g.Go(func() (err error) {
		symbol, err = token.Symbol(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, "", err
	}
	return bal, decimals, symbol, nil
}

// FormatUnits renders an integer amount with the given number of decimals
// as a plain decimal string without trailing zeros.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// setError records err's kind and message on a balance record.
func setError(kind, detail *string, err error) {
	*kind = string(activity.Classify(err))
	*detail = err.Error()
	metrics.DegradedTotal.WithLabelValues(*kind).Inc()
}

func observe(call string, start time.Time, err error) {
	metrics.UpstreamDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(call, status).Inc()
}
