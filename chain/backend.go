// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/layered"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
)

// NewBlockEvent is posted whenever a block is mined.
type NewBlockEvent struct {
	Hash   common.Hash
	Number uint64
}

// NewPendingTxsEvent is posted whenever transactions enter the pending pool.
type NewPendingTxsEvent struct {
	Hashes []common.Hash
}

// Fork is the remote chain a backend is forked from.
type Fork interface {
	layered.Fetcher
	ChainID() uint64
	PinnedBlock() uint64
	Header(ctx context.Context, number uint64) (*types.Header, error)
	Prefetch(addresses []common.Address) error
}

var _ Fork = (*remote.Fetcher)(nil)

// blockMark records the chain head at the time a snapshot was taken.
type blockMark struct {
	number    uint64
	hash      common.Hash
	timestamp uint64
}

// Backend is a local chain, either starting from an in-memory genesis block
// or forked from a remote chain. Mining, reverts and resets are serialized.
type Backend struct {
	cfg      Config
	chainID  uint64
	fork     Fork         // < nil for in-memory chains
	genesis  *types.Block // < nil for forked chains
	store    *layered.Store
	executor *executor.Executor
	time     *TimeManager

	mu      sync.Mutex
	storage atomic.Pointer[Storage]
	marks   map[uint256.Int]blockMark

	blockFeed event.Feed
	txFeed    event.Feed
	scope     event.SubscriptionScope
}

// NewBackend creates a chain running the given interpreter. If fork is nil,
// an in-memory chain with a fresh genesis block is created.
func NewBackend(ctx context.Context, cfg Config, interpreter executor.Interpreter, fork Fork) (*Backend, error) {
	res := &Backend{
		cfg:     cfg,
		chainID: cfg.ChainID,
		fork:    fork,
		marks:   map[uint256.Int]blockMark{},
	}

	if fork == nil {
		timestamp := cfg.Timestamp
		if timestamp == 0 {
			timestamp = uint64(time.Now().Unix())
		}
		res.store = layered.NewMemoryStore()
		if err := res.applyGenesis(); err != nil {
			return nil, err
		}
		root, err := res.store.StateRoot(0)
		if err != nil {
			return nil, err
		}
		res.genesis = newGenesisBlock(cfg, timestamp, root)
		res.store.InsertBlockHash(0, res.genesis.Hash())
		res.storage.Store(NewStorage(res.genesis))
		res.time = NewTimeManager(timestamp)
		res.executor = executor.NewExecutor(interpreter, res.store)
	} else {
		res.chainID = fork.ChainID()
		header, err := fork.Header(ctx, fork.PinnedBlock())
		if err != nil {
			return nil, err
		}
		res.store = layered.NewStore(fork)
		if err := res.applyGenesis(); err != nil {
			return nil, err
		}
		res.storage.Store(NewForkedStorage(header.Number.Uint64(), header.Hash()))
		res.time = NewTimeManager(header.Time)
		// the state of forks is not fully known, so no state root is computed
		res.executor = executor.NewExecutor(interpreter, nil)
	}

	storage := res.storage.Load()
	log.Info("Chain created", "chain", res.chainID, "forked", fork != nil,
		"head", storage.BestNumber(), "hash", storage.BestHash())
	return res, nil
}

func newGenesisBlock(cfg Config, timestamp uint64, root common.Hash) *types.Block {
	header := &types.Header{
		Number:     new(big.Int),
		Time:       timestamp,
		GasLimit:   cfg.GasLimit,
		Difficulty: new(big.Int),
		Root:       root,
	}
	if cfg.BaseFee != nil {
		header.BaseFee = cfg.BaseFee.ToBig()
	}
	return types.NewBlock(header, &types.Body{}, nil, trie.NewStackTrie(nil))
}

// applyGenesis funds the genesis accounts. On forks, only balances are set;
// nonces and code of existing remote accounts are retained.
func (b *Backend) applyGenesis() error {
	genesis := b.cfg.Genesis
	balance := genesis.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	if b.fork == nil {
		for _, address := range genesis.Accounts {
			b.store.InsertAccount(address, &common.AccountInfo{Balance: balance})
		}
		return nil
	}
	if len(genesis.Accounts) == 0 {
		return nil
	}
	if err := b.fork.Prefetch(genesis.Accounts); err != nil {
		return fmt.Errorf("failed to load genesis accounts: %w", err)
	}
	update := common.Update{}
	for _, address := range genesis.Accounts {
		update.Balances = append(update.Balances, common.BalanceUpdate{Account: address, Balance: balance})
	}
	return b.store.Apply(update)
}

// ChainID returns the id of the chain.
func (b *Backend) ChainID() uint64 {
	return b.chainID
}

// IsForked reports whether the chain is forked from a remote chain.
func (b *Backend) IsForked() bool {
	return b.fork != nil
}

// Store provides access to the world state of the chain.
func (b *Backend) Store() *layered.Store {
	return b.store
}

// Storage provides access to the blocks of the chain.
func (b *Backend) Storage() *Storage {
	return b.storage.Load()
}

// Time provides access to the clock used for block timestamps.
func (b *Backend) Time() *TimeManager {
	return b.time
}

// Mine builds the next block from the given pending transactions, stores it
// and notifies all block subscribers.
func (b *Backend) Mine(ctx context.Context, pending []*executor.PendingTransaction) (*executor.BlockInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	storage := b.storage.Load()
	env := executor.BlockEnv{
		Number:    storage.BestNumber() + 1,
		Coinbase:  b.cfg.Coinbase,
		Timestamp: b.time.NextTimestamp(),
		GasLimit:  b.cfg.GasLimit,
		BaseFee:   b.cfg.BaseFee,
		ChainID:   b.chainID,
	}
	info, err := b.executor.Mine(ctx, env, storage.BestHash(), pending, b.store)
	if err != nil {
		return nil, fmt.Errorf("failed to mine block %d: %w", env.Number, err)
	}

	hash := info.Block.Hash()
	storage.Insert(info)
	b.store.InsertBlockHash(env.Number, hash)
	log.Info("Mined block", "number", env.Number, "hash", hash,
		"txs", len(info.Transactions), "invalid", len(info.Invalid), "gas", info.Block.GasUsed())

	b.blockFeed.Send(NewBlockEvent{Hash: hash, Number: env.Number})
	return info, nil
}

// AnnouncePending notifies subscribers about new pending transactions.
func (b *Backend) AnnouncePending(txs []*types.Transaction) {
	if len(txs) == 0 {
		return
	}
	hashes := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash())
	}
	b.txFeed.Send(NewPendingTxsEvent{Hashes: hashes})
}

// Snapshot records the state and the chain head. The returned id can be
// used to revert to this point.
func (b *Backend) Snapshot() *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	storage := b.storage.Load()
	id := b.store.Snapshot()
	b.marks[*id] = blockMark{
		number:    storage.BestNumber(),
		hash:      storage.BestHash(),
		timestamp: b.time.LastTimestamp(),
	}
	return id
}

// Revert restores the state and chain head recorded by a snapshot. Blocks
// mined after the snapshot are removed, and so are all snapshots taken after
// it. Returns false if the id is unknown or was already reverted to.
func (b *Backend) Revert(id *uint256.Int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.store.Revert(id) {
		return false
	}
	// later snapshots may refer to blocks removed below
	for _, later := range b.store.DiscardSnapshotsAfter(id) {
		delete(b.marks, *later)
	}
	mark, found := b.marks[*id]
	if !found {
		return true
	}
	delete(b.marks, *id)
	removed := b.storage.Load().UnwindTo(mark.number, mark.hash)
	b.time.Reset(mark.timestamp)
	log.Info("Reverted chain", "snapshot", id, "head", mark.number, "removed", len(removed))
	return true
}

// Reset drops all local blocks and state. Forked chains are re-pinned to the
// given remote block, or to the current fork block if none is given.
func (b *Backend) Reset(ctx context.Context, blockNumber *uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fork == nil {
		if err := b.store.Reset(ctx, blockNumber); err != nil {
			return err
		}
		if err := b.applyGenesis(); err != nil {
			return err
		}
		b.store.InsertBlockHash(0, b.genesis.Hash())
		b.storage.Store(NewStorage(b.genesis))
		b.time.Reset(b.genesis.Time())
	} else {
		number := b.fork.PinnedBlock()
		if blockNumber != nil {
			number = *blockNumber
		}
		header, err := b.fork.Header(ctx, number)
		if err != nil {
			return err
		}
		// genesis accounts are fetched before anything is dropped, so a
		// failing remote leaves the chain untouched
		if err := b.store.Reset(ctx, &number, b.cfg.Genesis.Accounts...); err != nil {
			return err
		}
		b.storage.Store(NewForkedStorage(number, header.Hash()))
		b.time.Reset(header.Time)
		clear(b.marks)
		return b.applyGenesis()
	}
	clear(b.marks)
	return nil
}

// FlushCache persists the data fetched from the remote chain.
func (b *Backend) FlushCache() error {
	return b.store.FlushCache()
}

// SubscribeNewBlocks registers a channel receiving an event per mined block.
func (b *Backend) SubscribeNewBlocks(ch chan<- NewBlockEvent) event.Subscription {
	return b.scope.Track(b.blockFeed.Subscribe(ch))
}

// SubscribePendingTxs registers a channel receiving new pending transactions.
func (b *Backend) SubscribePendingTxs(ch chan<- NewPendingTxsEvent) event.Subscription {
	return b.scope.Track(b.txFeed.Subscribe(ch))
}

// Close terminates all subscriptions.
func (b *Backend) Close() {
	b.scope.Close()
}

func (b *Backend) BestNumber() uint64 {
	return b.storage.Load().BestNumber()
}

func (b *Backend) HashByNumber(number uint64) (common.Hash, bool) {
	return b.storage.Load().HashByNumber(number)
}

func (b *Backend) BlockByHash(hash common.Hash) *types.Block {
	return b.storage.Load().BlockByHash(hash)
}

func (b *Backend) Receipts(hash common.Hash) []*types.Receipt {
	return b.storage.Load().Receipts(hash)
}
