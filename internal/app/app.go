// Package app assembles the aggregation engine from configuration. It is
// shared by the HTTP server and the command-line client.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/blockscout"
	"github.com/web3-frozen/chain-activity/internal/config"
	"github.com/web3-frozen/chain-activity/internal/evm"
	"github.com/web3-frozen/chain-activity/internal/registry"
)

// Engine is the assembled read side plus the resources it owns.
type Engine struct {
	Registry   registry.Registry
	Aggregator *activity.Aggregator
	Location   *time.Location

	closers []func()
}

// Close releases RPC connections.
func (e *Engine) Close() {
	for _, c := range e.closers {
		c()
	}
}

// Location loads the reporting timezone, falling back to the default zone
// and then to a fixed UTC+8 offset.
func Location(name string, logger *slog.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	logger.Warn("unknown report timezone, using default", "timezone", name, "error", err)
	if loc, err = time.LoadLocation(activity.DefaultTimezone); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}

// Build wires the indexer client, block resolver, fetcher, snapshot
// builder and balance collector into an Aggregator. RPC endpoints that
// cannot be dialed leave the corresponding balance reads reporting
// UpstreamUnavailable.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) *Engine {
	e := &Engine{
		Registry: registry.Files{ProjectsPath: cfg.ProjectsPath, BridgesPath: cfg.BridgesPath},
		Location: Location(cfg.ReportTimezone, logger),
	}

	indexer := blockscout.New(cfg.BlockscoutGraphQLURL, cfg.BlockscoutAPIURL, cfg.PageSize, cfg.RequestTimeout)

	resolver := activity.NewResolver(indexer, logger,
		activity.WithBlockInterval(cfg.BlockInterval),
		activity.WithFallbackHead(cfg.FallbackChainHead),
		activity.WithHeadTimeout(cfg.RequestTimeout),
	)
	fetcher := activity.NewFetcher(indexer, logger,
		activity.WithMaxPages(cfg.MaxPages),
		activity.WithCallTimeout(cfg.RequestTimeout),
	)
	snapshots := activity.NewSnapshotBuilder(fetcher, cfg.FetchConcurrency, logger)

	var chain, bridge evm.ChainReader
	if c := e.dial(ctx, cfg.ChainRPCURL, "chain", logger); c != nil {
		chain = c
	}
	if c := e.dial(ctx, cfg.BridgeRPCURL, "bridge", logger); c != nil {
		bridge = c
	}
	collector := evm.NewCollector(chain, bridge, cfg.NativeSymbol, cfg.RequestTimeout, cfg.FetchConcurrency, logger)

	e.Aggregator = activity.NewAggregator(e.Registry, resolver, snapshots, collector, logger,
		activity.WithLocation(e.Location),
	)
	return e
}

type closableReader interface {
	evm.ChainReader
	Close()
}

func (e *Engine) dial(ctx context.Context, url, name string, logger *slog.Logger) closableReader {
	if url == "" {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := evm.Dial(dialCtx, url)
	if err != nil {
		logger.Warn("rpc dial failed, balance reads disabled", "rpc", name, "error", err)
		return nil
	}
	e.closers = append(e.closers, c.Close)
	return c
}
