// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xsoniclabs/forkchain/chain"
	"github.com/0xsoniclabs/forkchain/database/cachestore"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/0xsoniclabs/forkchain/executor/transfer"
	"github.com/0xsoniclabs/forkchain/filters"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	forkUrlFlag = cli.StringFlag{
		Name:  "fork-url",
		Usage: "JSON-RPC endpoint of the chain to fork; an in-memory chain is started if empty",
	}
	forkBlockFlag = cli.Uint64Flag{
		Name:  "fork-block",
		Usage: "block of the remote chain to fork from, latest if not set",
	}
	chainIdFlag = cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "chain id of an in-memory chain",
		Value: chain.DefaultConfig().ChainID,
	}
	blockTimeFlag = cli.DurationFlag{
		Name:  "block-time",
		Usage: "interval between mined blocks",
		Value: time.Second,
	}
	blocksFlag = cli.Uint64Flag{
		Name:  "blocks",
		Usage: "number of blocks to mine before exiting, 0 to run until interrupted",
	}
	cacheKindFlag = cli.StringFlag{
		Name:  "cache-kind",
		Usage: "store persisting fetched remote state: leveldb, sqlite or memory",
		Value: string(cachestore.LevelDb),
	}
	cacheDirFlag = cli.StringFlag{
		Name:  "cache-dir",
		Usage: "location of the persistent fork cache; no cache is used if empty",
	}
	keepaliveFlag = cli.DurationFlag{
		Name:  "filter-keepalive",
		Usage: "time after which filters not polled are evicted",
		Value: filters.DefaultConfig().Keepalive,
	}
)

var Run = cli.Command{
	Action: addPerformanceDiagnoses(run),
	Name:   "run",
	Usage:  "mines blocks on a local or forked chain",
	Flags: []cli.Flag{
		&forkUrlFlag,
		&forkBlockFlag,
		&chainIdFlag,
		&blockTimeFlag,
		&blocksFlag,
		&cacheKindFlag,
		&cacheDirFlag,
		&keepaliveFlag,
		&cpuProfileFlag,
	},
}

func run(context *cli.Context) (err error) {
	ctx, stop := signal.NotifyContext(context.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := chain.DefaultConfig()
	cfg.ChainID = context.Uint64(chainIdFlag.Name)

	var fork chain.Fork
	if url := context.String(forkUrlFlag.Name); url != "" {
		remoteCfg := remote.DefaultConfig()
		remoteCfg.URL = url
		if context.IsSet(forkBlockFlag.Name) {
			block := context.Uint64(forkBlockFlag.Name)
			remoteCfg.BlockNumber = &block
		}
		fetcher, release, dialErr := dialFork(ctx, remoteCfg, context.String(cacheKindFlag.Name), context.String(cacheDirFlag.Name))
		if dialErr != nil {
			return dialErr
		}
		defer func() {
			err = errors.Join(err, release())
		}()
		fork = fetcher
	}

	backend, err := chain.NewBackend(ctx, cfg, transfer.Interpreter{}, fork)
	if err != nil {
		return err
	}
	defer backend.Close()

	filterCfg := filters.DefaultConfig()
	filterCfg.Keepalive = context.Duration(keepaliveFlag.Name)
	engine, err := filters.New(backend, filterCfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	go engine.Run(ctx)

	err = mine(ctx, backend, engine, context.Duration(blockTimeFlag.Name), context.Uint64(blocksFlag.Name))
	return errors.Join(err, backend.FlushCache())
}

func openCacheStore(kind, dir string) (cachestore.Store, error) {
	if dir == "" {
		return nil, nil
	}
	return cachestore.Open(cachestore.Kind(kind), dir)
}

// dialFork connects to the remote chain, loading previously fetched state
// from the cache store if one is configured. The returned function releases
// the connection and the store.
func dialFork(ctx context.Context, cfg remote.Config, cacheKind, cacheDir string) (*remote.Fetcher, func() error, error) {
	store, err := openCacheStore(cacheKind, cacheDir)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() error {
		if store == nil {
			return nil
		}
		return store.Close()
	}
	fetcher, err := remote.Dial(ctx, cfg, store)
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}
	log.Info("Forked remote chain", "url", cfg.URL, "chain", fetcher.ChainID(), "block", fetcher.PinnedBlock())
	return fetcher, func() error {
		fetcher.Close()
		return closeStore()
	}, nil
}

// mine produces a block per interval until the given number of blocks is
// reached or the context is cancelled.
func mine(ctx context.Context, backend *chain.Backend, engine *filters.Engine, interval time.Duration, limit uint64) error {
	heads := engine.NewBlockFilter()
	defer engine.UninstallFilter(heads)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for mined := uint64(0); limit == 0 || mined < limit; mined++ {
		select {
		case <-ctx.Done():
			log.Info("Interrupted", "head", backend.BestNumber())
			return nil
		case <-ticker.C:
		}
		if _, err := backend.Mine(ctx, nil); err != nil {
			return err
		}
		changes := engine.GetFilterChanges(heads)
		log.Debug("Observed new blocks", "count", len(changes.Hashes), "filters", engine.FilterCount())
	}
	return nil
}
