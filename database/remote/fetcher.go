// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package remote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/common/future"
	"github.com/0xsoniclabs/forkchain/database/cachestore"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	ErrMissingCode = common.ConstError("code not found")
)

var (
	requestCounter = metrics.NewRegisteredCounter("forkchain/remote/requests", nil)
	retryCounter   = metrics.NewRegisteredCounter("forkchain/remote/retries", nil)
	hitCounter     = metrics.NewRegisteredCounter("forkchain/remote/hits", nil)
	missCounter    = metrics.NewRegisteredCounter("forkchain/remote/misses", nil)
)

// Config defines how a Fetcher talks to the remote chain.
type Config struct {
	URL               string        // < endpoint, only used by Dial
	BlockNumber       *uint64       // < pinned block; nil for the latest block
	Retries           uint64        // < retries of failed requests
	InitialBackoff    time.Duration // < delay before the first retry
	RequestsPerSecond float64       // < 0 disables rate limiting
	RequestTimeout    time.Duration // < timeout of a single lookup including retries
	PrefetchParallel  int           // < concurrent requests of Prefetch
}

func DefaultConfig() Config {
	return Config{
		Retries:          5,
		InitialBackoff:   500 * time.Millisecond,
		RequestTimeout:   time.Minute,
		PrefetchParallel: 16,
	}
}

// Fetcher is a state source resolving accounts, storage slots and block
// hashes from a remote chain at a pinned block. All fetched data is memoized
// in a BlockchainDb. Concurrent lookups of the same key are collapsed into a
// single remote request.
type Fetcher struct {
	provider Provider
	cfg      Config
	db       *BlockchainDb
	store    cachestore.Store // < optional persistent cache
	limiter  *rate.Limiter
	group    singleflight.Group
	close    func()

	mu      sync.RWMutex // < guards pinned
	pinned  uint64
	chainID uint64
	epoch   atomic.Uint64 // < incremented whenever the cache is dropped
}

// Dial connects to the JSON-RPC endpoint named in the config and creates a
// Fetcher on top of it.
func Dial(ctx context.Context, cfg Config, store cachestore.Store) (*Fetcher, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}
	fetcher, err := NewFetcher(ctx, client, cfg, store)
	if err != nil {
		client.Close()
		return nil, err
	}
	fetcher.close = client.Close
	return fetcher, nil
}

// NewFetcher creates a Fetcher resolving its data through the given provider.
// If a store is given, data persisted by an earlier run for the same chain
// and block is loaded into the cache.
func NewFetcher(ctx context.Context, provider Provider, cfg Config, store cachestore.Store) (*Fetcher, error) {
	res := &Fetcher{
		provider: provider,
		cfg:      cfg,
		store:    store,
		limiter:  newLimiter(cfg.RequestsPerSecond),
	}

	chainID, err := retry(ctx, res, func(ctx context.Context) (*big.Int, error) {
		return provider.ChainID(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	res.chainID = chainID.Uint64()

	var number *big.Int
	if cfg.BlockNumber != nil {
		number = new(big.Int).SetUint64(*cfg.BlockNumber)
	}
	header, err := retry(ctx, res, func(ctx context.Context) (*types.Header, error) {
		return provider.HeaderByNumber(ctx, number)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get fork block header: %w", err)
	}
	res.pinned = header.Number.Uint64()
	res.db = NewBlockchainDb(Meta{ChainID: res.chainID, Block: res.pinned})
	res.db.SetBlockHash(res.pinned, header.Hash())

	if store != nil {
		if err := res.Load(); err != nil {
			log.Warn("Ignoring unreadable fork cache", "chain", res.chainID, "block", res.pinned, "err", err)
		}
	}
	return res, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// ChainID returns the id of the remote chain.
func (f *Fetcher) ChainID() uint64 {
	return f.chainID
}

// PinnedBlock returns the number of the block all lookups are performed at.
func (f *Fetcher) PinnedBlock() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pinned
}

// Db provides access to the memoization cache.
func (f *Fetcher) Db() *BlockchainDb {
	return f.db
}

// Close releases the connection to the remote chain, if owned.
func (f *Fetcher) Close() {
	if f.close != nil {
		f.close()
	}
}

// Reset drops all fetched data. If a block number is given, the fetcher is
// re-pinned to this block after verifying that the block exists. The given
// accounts are fetched at the new block before anything is dropped, so they
// are cached once Reset returns. On error, nothing is changed.
func (f *Fetcher) Reset(ctx context.Context, blockNumber *uint64, preload ...common.Address) error {
	number := f.PinnedBlock()
	if blockNumber != nil {
		number = *blockNumber
	}
	header, err := f.Header(ctx, number)
	if err != nil {
		return err
	}
	accounts, err := f.resolveAll(preload, func(address common.Address) (*common.AccountInfo, error) {
		return f.fetchAccount(address, number)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch accounts at block %d: %w", number, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch.Add(1)
	f.pinned = number
	f.db.Clear()
	f.db.SetMeta(Meta{ChainID: f.chainID, Block: number})
	f.db.SetBlockHash(number, header.Hash())
	for i, address := range preload {
		f.db.SetAccount(address, accounts[i])
	}
	log.Info("Fork reset", "block", number, "hash", header.Hash(), "preloaded", len(preload))
	return nil
}

// Header fetches the header of the given block from the remote chain.
func (f *Fetcher) Header(ctx context.Context, number uint64) (*types.Header, error) {
	header, err := retry(ctx, f, func(ctx context.Context) (*types.Header, error) {
		return f.provider.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get header of block %d: %w", number, err)
	}
	return header, nil
}

func (f *Fetcher) Basic(address common.Address) (*common.AccountInfo, error) {
	if info, found := f.db.Account(address); found {
		hitCounter.Inc(1)
		return info.Copy(), nil
	}
	epoch := f.epoch.Load()
	res, err, _ := f.group.Do(fmt.Sprintf("a/%d/%x", epoch, address), func() (any, error) {
		if info, found := f.db.Account(address); found {
			return info, nil
		}
		missCounter.Inc(1)
		info, err := f.fetchAccount(address, f.PinnedBlock())
		if err != nil {
			return nil, err
		}
		if f.epoch.Load() == epoch {
			f.db.SetAccount(address, info)
		}
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %v: %w", address, err)
	}
	return res.(*common.AccountInfo).Copy(), nil
}

// fetchAccount resolves balance, nonce and code of an account at the given
// block in parallel.
func (f *Fetcher) fetchAccount(address common.Address, number uint64) (*common.AccountInfo, error) {
	ctx, cancel := f.lookupContext()
	defer cancel()
	block := new(big.Int).SetUint64(number)

	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		balance, err = retry(ctx, f, func(ctx context.Context) (*big.Int, error) {
			return f.provider.BalanceAt(ctx, address, block)
		})
		return err
	})
	group.Go(func() (err error) {
		nonce, err = retry(ctx, f, func(ctx context.Context) (uint64, error) {
			return f.provider.NonceAt(ctx, address, block)
		})
		return err
	})
	group.Go(func() (err error) {
		code, err = retry(ctx, f, func(ctx context.Context) ([]byte, error) {
			return f.provider.CodeAt(ctx, address, block)
		})
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	value, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("balance of %v exceeds 256 bits", address)
	}
	info := &common.AccountInfo{
		Balance:  value,
		Nonce:    nonce,
		CodeHash: common.EmptyCodeHash,
	}
	if len(code) > 0 {
		info.Code = code
		info.CodeHash = common.Keccak256(code)
	}
	return info, nil
}

// Prefetch loads the given accounts into the cache with a bounded number of
// concurrent requests.
func (f *Fetcher) Prefetch(addresses []common.Address) error {
	_, err := f.resolveAll(addresses, f.Basic)
	return err
}

// resolveAll runs resolve for all addresses, at most PrefetchParallel at a
// time. Results are returned in the order of the addresses.
func (f *Fetcher) resolveAll(
	addresses []common.Address,
	resolve func(common.Address) (*common.AccountInfo, error),
) ([]*common.AccountInfo, error) {
	parallel := max(1, f.cfg.PrefetchParallel)
	tokens := make(chan struct{}, parallel)
	results := make([]future.Result[*common.AccountInfo], len(addresses))
	var wg sync.WaitGroup
	for i, address := range addresses {
		wg.Add(1)
		tokens <- struct{}{}
		go func() {
			defer func() {
				<-tokens
				wg.Done()
			}()
			info, err := resolve(address)
			if err != nil {
				results[i] = future.Err[*common.AccountInfo](err)
				return
			}
			results[i] = future.Ok(info)
		}()
	}
	wg.Wait()
	return future.Collect(results...)
}

func (f *Fetcher) CodeByHash(hash common.Hash) ([]byte, error) {
	if hash == common.EmptyCodeHash || hash == (common.Hash{}) {
		return nil, nil
	}
	if code, found := f.db.Code(hash); found {
		return code, nil
	}
	// Codes are fetched alongside their accounts; there is no remote lookup
	// by hash.
	return nil, fmt.Errorf("%w: %v", ErrMissingCode, hash)
}

func (f *Fetcher) Storage(address common.Address, key common.Hash) (common.Hash, error) {
	if value, found := f.db.StorageValue(address, key); found {
		hitCounter.Inc(1)
		return value, nil
	}
	epoch := f.epoch.Load()
	res, err, _ := f.group.Do(fmt.Sprintf("s/%d/%x/%x", epoch, address, key), func() (any, error) {
		if value, found := f.db.StorageValue(address, key); found {
			return value, nil
		}
		missCounter.Inc(1)
		ctx, cancel := f.lookupContext()
		defer cancel()
		block := new(big.Int).SetUint64(f.PinnedBlock())
		data, err := retry(ctx, f, func(ctx context.Context) ([]byte, error) {
			return f.provider.StorageAt(ctx, address, key, block)
		})
		if err != nil {
			return nil, err
		}
		value := common.BytesToHash(data)
		if f.epoch.Load() == epoch {
			f.db.SetStorageValue(address, key, value)
		}
		return value, nil
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch storage %v/%v: %w", address, key, err)
	}
	return res.(common.Hash), nil
}

// BlockHash resolves the hash of a remote block. Unknown blocks yield the
// hash of empty code.
func (f *Fetcher) BlockHash(number uint64) (common.Hash, error) {
	if hash, found := f.db.BlockHash(number); found {
		hitCounter.Inc(1)
		return hash, nil
	}
	epoch := f.epoch.Load()
	res, err, _ := f.group.Do(fmt.Sprintf("h/%d/%d", epoch, number), func() (any, error) {
		if hash, found := f.db.BlockHash(number); found {
			return hash, nil
		}
		missCounter.Inc(1)
		ctx, cancel := f.lookupContext()
		defer cancel()
		header, err := f.Header(ctx, number)
		if errors.Is(err, ethereum.NotFound) {
			log.Warn("Block not found on remote chain", "number", number)
			return common.EmptyCodeHash, nil
		}
		if err != nil {
			return nil, err
		}
		hash := header.Hash()
		if f.epoch.Load() == epoch {
			f.db.SetBlockHash(number, hash)
		}
		return hash, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return res.(common.Hash), nil
}

func (f *Fetcher) lookupContext() (context.Context, context.CancelFunc) {
	if f.cfg.RequestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), f.cfg.RequestTimeout)
}

// retry runs the given remote request with exponential backoff. Missing data
// is not retried.
func retry[T any](ctx context.Context, f *Fetcher, op func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	if f.cfg.InitialBackoff > 0 {
		policy.InitialInterval = f.cfg.InitialBackoff
		policy.MaxInterval = 16 * f.cfg.InitialBackoff
	}
	policy.MaxElapsedTime = 0

	var res T
	attempts := 0
	err := backoff.Retry(func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if attempts > 0 {
			retryCounter.Inc(1)
		}
		attempts++
		requestCounter.Inc(1)
		value, err := op(ctx)
		if errors.Is(err, ethereum.NotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Debug("Remote request failed", "attempt", attempts, "err", err)
			return err
		}
		res = value
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, f.cfg.Retries), ctx))
	return res, err
}
