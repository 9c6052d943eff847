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
	"math/big"
	"slices"
	"testing"
	"time"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/0xsoniclabs/forkchain/executor/transfer"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = common.Address{0xa1}
	bob   = common.Address{0xb0}
)

func testConfig() Config {
	return Config{
		ChainID:   1337,
		GasLimit:  30_000_000,
		BaseFee:   uint256.NewInt(1),
		Timestamp: 1_000,
		Genesis: GenesisConfig{
			Accounts: []common.Address{alice},
			Balance:  uint256.NewInt(1_000_000_000),
		},
	}
}

func newMemoryBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := NewBackend(context.Background(), testConfig(), transfer.Interpreter{}, nil)
	require.NoError(t, err)
	t.Cleanup(backend.Close)
	return backend
}

func transferTx(nonce uint64, value int64) *executor.PendingTransaction {
	to := bob
	return &executor.PendingTransaction{
		Tx: types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: big.NewInt(1),
			Gas:      21000,
			To:       &to,
			Value:    big.NewInt(value),
		}),
		Sender: alice,
	}
}

func balanceOf(t *testing.T, b *Backend, address common.Address) uint64 {
	t.Helper()
	info, err := b.Store().Basic(address)
	require.NoError(t, err)
	if info == nil {
		return 0
	}
	return info.Balance.Uint64()
}

func TestBackend_GenesisAccountsAreFunded(t *testing.T) {
	backend := newMemoryBackend(t)
	require.Equal(t, uint64(1_000_000_000), balanceOf(t, backend, alice))
	require.Equal(t, uint64(0), backend.BestNumber())
	require.False(t, backend.IsForked())
	require.Equal(t, uint64(1337), backend.ChainID())

	hash, err := backend.Store().BlockHash(0)
	require.NoError(t, err)
	require.Equal(t, backend.Storage().GenesisHash(), hash)
}

func TestBackend_BlockNumbersAreStrictlyIncreasing(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	parent := backend.Storage().BestHash()
	for i := uint64(1); i <= 5; i++ {
		info, err := backend.Mine(context.Background(), nil)
		require.NoError(err)
		require.Equal(i, info.Block.NumberU64())
		require.Equal(parent, info.Block.ParentHash())
		require.Greater(info.Block.Time(), uint64(0))
		parent = info.Block.Hash()

		hash, err := backend.Store().BlockHash(i)
		require.NoError(err)
		require.Equal(parent, hash)
	}
	require.Equal(uint64(5), backend.BestNumber())
	require.Equal(parent, backend.Storage().BestHash())
}

func TestBackend_MinedTransactionsAreStored(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	tx := transferTx(0, 100)
	info, err := backend.Mine(context.Background(), []*executor.PendingTransaction{tx})
	require.NoError(err)
	require.Len(info.Receipts, 1)
	require.Equal(uint64(100), balanceOf(t, backend, bob))

	mined := backend.Storage().Transaction(tx.Hash())
	require.NotNil(mined)
	require.Equal(info.Block.Hash(), mined.BlockHash)
	require.Equal(uint64(1), mined.BlockNumber)
	require.Equal(info.Receipts, backend.Receipts(info.Block.Hash()))
	require.Equal(info.Block, backend.BlockByHash(info.Block.Hash()))
}

func TestBackend_RevertUnwindsBlocksAndState(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	_, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	headHash := backend.Storage().BestHash()

	id := backend.Snapshot()
	tx := transferTx(0, 100)
	var mined []common.Hash
	for i := 0; i < 3; i++ {
		pending := []*executor.PendingTransaction{}
		if i == 0 {
			pending = append(pending, tx)
		}
		info, err := backend.Mine(context.Background(), pending)
		require.NoError(err)
		mined = append(mined, info.Block.Hash())
	}
	require.Equal(uint64(4), backend.BestNumber())

	require.True(backend.Revert(id))
	require.Equal(uint64(1), backend.BestNumber())
	require.Equal(headHash, backend.Storage().BestHash())
	require.Equal(uint64(0), balanceOf(t, backend, bob))
	require.Nil(backend.Storage().Transaction(tx.Hash()))
	for _, hash := range mined {
		require.Nil(backend.BlockByHash(hash))
	}

	require.False(backend.Revert(id))

	// mining continues on top of the restored head
	info, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	require.Equal(uint64(2), info.Block.NumberU64())
	require.Equal(headHash, info.Block.ParentHash())
}

func TestBackend_RevertDiscardsLaterSnapshots(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)
	genesis := backend.Storage().BestHash()

	early := backend.Snapshot()
	for i := 0; i < 2; i++ {
		_, err := backend.Mine(context.Background(), nil)
		require.NoError(err)
	}
	late := backend.Snapshot()

	require.True(backend.Revert(early))
	require.Equal(uint64(0), backend.BestNumber())
	require.False(backend.Revert(late))
	require.Equal(uint64(0), backend.BestNumber())
	require.Empty(backend.Store().ActiveSnapshots())

	// the chain stays contiguous
	info, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	require.Equal(uint64(1), info.Block.NumberU64())
	require.Equal(genesis, info.Block.ParentHash())
}

func TestBackend_RevertKeepsEarlierSnapshots(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	early := backend.Snapshot()
	_, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	late := backend.Snapshot()
	_, err = backend.Mine(context.Background(), nil)
	require.NoError(err)

	require.True(backend.Revert(late))
	require.Equal(uint64(1), backend.BestNumber())
	require.True(backend.Revert(early))
	require.Equal(uint64(0), backend.BestNumber())
}

func TestBackend_MinedBlocksAreAnnounced(t *testing.T) {
	backend := newMemoryBackend(t)
	ch := make(chan NewBlockEvent, 1)
	sub := backend.SubscribeNewBlocks(ch)
	defer sub.Unsubscribe()

	info, err := backend.Mine(context.Background(), nil)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		require.Equal(t, NewBlockEvent{Hash: info.Block.Hash(), Number: 1}, ev)
	case <-time.After(time.Second):
		t.Fatal("no block event received")
	}
}

func TestBackend_PendingTransactionsAreAnnounced(t *testing.T) {
	backend := newMemoryBackend(t)
	ch := make(chan NewPendingTxsEvent, 1)
	sub := backend.SubscribePendingTxs(ch)
	defer sub.Unsubscribe()

	tx := transferTx(0, 1)
	backend.AnnouncePending([]*types.Transaction{tx.Tx})
	backend.AnnouncePending(nil)

	ev := <-ch
	require.Equal(t, []common.Hash{tx.Hash()}, ev.Hashes)
}

func TestBackend_ResetOfMemoryChainRestoresGenesis(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	_, err := backend.Mine(context.Background(), []*executor.PendingTransaction{transferTx(0, 100)})
	require.NoError(err)
	id := backend.Snapshot()

	require.NoError(backend.Reset(context.Background(), nil))
	require.Equal(uint64(0), backend.BestNumber())
	require.Equal(uint64(1_000_000_000), balanceOf(t, backend, alice))
	require.Equal(uint64(0), balanceOf(t, backend, bob))
	require.False(backend.Revert(id))

	block := uint64(5)
	require.Error(backend.Reset(context.Background(), &block))
}

func forkHeader(number uint64) *types.Header {
	return &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Difficulty: new(big.Int),
		Time:       10_000 + number,
	}
}

var errUpstreamDown = common.ConstError("upstream down")

// newForkedBackend creates a chain forked at the given block. Balance lookups
// of alice fail at the unavailable blocks.
func newForkedBackend(t *testing.T, provider *remote.MockProvider, block uint64, unavailable ...uint64) *Backend {
	t.Helper()
	provider.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(250), nil)
	provider.EXPECT().HeaderByNumber(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, number *big.Int) (*types.Header, error) {
			return forkHeader(number.Uint64()), nil
		}).AnyTimes()

	cfg := remote.DefaultConfig()
	cfg.BlockNumber = &block
	cfg.Retries = 1
	cfg.InitialBackoff = time.Millisecond
	fetcher, err := remote.NewFetcher(context.Background(), provider, cfg, nil)
	require.NoError(t, err)

	// alice exists on the remote chain with a nonce and some balance
	provider.EXPECT().BalanceAt(gomock.Any(), alice, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ common.Address, number *big.Int) (*big.Int, error) {
			if slices.Contains(unavailable, number.Uint64()) {
				return nil, errUpstreamDown
			}
			return big.NewInt(5), nil
		}).AnyTimes()
	provider.EXPECT().NonceAt(gomock.Any(), alice, gomock.Any()).Return(uint64(7), nil).AnyTimes()
	provider.EXPECT().CodeAt(gomock.Any(), alice, gomock.Any()).Return(nil, nil).AnyTimes()

	backend, err := NewBackend(context.Background(), testConfig(), transfer.Interpreter{}, fetcher)
	require.NoError(t, err)
	t.Cleanup(backend.Close)
	return backend
}

func TestBackend_ForkStartsAtPinnedBlock(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	backend := newForkedBackend(t, provider, 100)

	require.True(backend.IsForked())
	require.Equal(uint64(250), backend.ChainID())
	require.Equal(uint64(100), backend.BestNumber())
	require.Equal(forkHeader(100).Hash(), backend.Storage().BestHash())

	// genesis only sets balances on forks
	info, err := backend.Store().Basic(alice)
	require.NoError(err)
	require.Equal(uint64(1_000_000_000), info.Balance.Uint64())
	require.Equal(uint64(7), info.Nonce)

	block, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	require.Equal(uint64(101), block.Block.NumberU64())
	require.Equal(forkHeader(100).Hash(), block.Block.ParentHash())
	require.Greater(block.Block.Time(), forkHeader(100).Time)
}

func TestBackend_ResetOfForkRepinsBlock(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	backend := newForkedBackend(t, provider, 100)

	_, err := backend.Mine(context.Background(), nil)
	require.NoError(err)

	block := uint64(200)
	require.NoError(backend.Reset(context.Background(), &block))
	require.Equal(uint64(200), backend.BestNumber())
	require.Equal(forkHeader(200).Hash(), backend.Storage().BestHash())
	require.Equal(uint64(1_000_000_000), balanceOf(t, backend, alice))
	require.NoError(backend.FlushCache())
}

func TestBackend_FailedResetOfForkLeavesChainUntouched(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	backend := newForkedBackend(t, provider, 100, 200)

	info, err := backend.Mine(context.Background(), nil)
	require.NoError(err)
	id := backend.Snapshot()

	block := uint64(200)
	require.ErrorIs(backend.Reset(context.Background(), &block), errUpstreamDown)
	require.Equal(uint64(100), backend.fork.PinnedBlock())
	require.Equal(uint64(101), backend.BestNumber())
	require.Equal(info.Block.Hash(), backend.Storage().BestHash())
	require.Equal(uint64(1_000_000_000), balanceOf(t, backend, alice))
	require.True(backend.Revert(id))
}

func TestBackend_InMemoryBlocksCommitToState(t *testing.T) {
	require := require.New(t)
	backend := newMemoryBackend(t)

	genesis := backend.BlockByHash(backend.Storage().GenesisHash())
	require.NotNil(genesis)
	require.NotEqual(types.EmptyRootHash, genesis.Root())

	info, err := backend.Mine(context.Background(), []*executor.PendingTransaction{transferTx(0, 100)})
	require.NoError(err)
	require.NotEqual(genesis.Root(), info.Block.Root())

	root, err := backend.Store().StateRoot(1)
	require.NoError(err)
	require.Equal(root, info.Block.Root())
}
