// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package layered

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newForkedStore(t *testing.T, provider *remote.MockProvider, block uint64) (*Store, *remote.Fetcher) {
	t.Helper()
	provider.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(1), nil)
	provider.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(int64(block))).Return(
		&types.Header{Number: new(big.Int).SetUint64(block), Difficulty: big.NewInt(0)}, nil)

	cfg := remote.DefaultConfig()
	cfg.BlockNumber = &block
	cfg.Retries = 0
	cfg.InitialBackoff = time.Millisecond
	fetcher, err := remote.NewFetcher(context.Background(), provider, cfg, nil)
	require.NoError(t, err)
	return NewStore(fetcher), fetcher
}

func expectRemoteAccount(provider *remote.MockProvider, address common.Address, block uint64, balance int64) {
	number := big.NewInt(int64(block))
	provider.EXPECT().BalanceAt(gomock.Any(), address, number).Return(big.NewInt(balance), nil)
	provider.EXPECT().NonceAt(gomock.Any(), address, number).Return(uint64(0), nil)
	provider.EXPECT().CodeAt(gomock.Any(), address, number).Return(nil, nil)
}

func balanceOf(t *testing.T, s *Store, address common.Address) uint64 {
	t.Helper()
	info, err := s.Basic(address)
	require.NoError(t, err)
	if info == nil {
		return 0
	}
	return info.Balance.Uint64()
}

func storageOf(t *testing.T, s *Store, address common.Address, key common.Hash) common.Hash {
	t.Helper()
	value, err := s.Storage(address, key)
	require.NoError(t, err)
	return value
}

func TestStore_WritesLandInOverlayOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, fetcher := newForkedStore(t, provider, 10)

	addr := common.Address{1}
	expectRemoteAccount(provider, addr, 10, 100)
	require.Equal(t, uint64(100), balanceOf(t, store, addr))

	require.NoError(t, store.SetBalance(addr, uint256.NewInt(5)))
	require.Equal(t, uint64(5), balanceOf(t, store, addr))

	cached, found := fetcher.Db().Account(addr)
	require.True(t, found)
	require.Equal(t, uint64(100), cached.Balance.Uint64())
}

func TestStore_SettersKeepOtherFields(t *testing.T) {
	require := require.New(t)
	store := NewMemoryStore()
	addr := common.Address{1}

	require.NoError(store.SetBalance(addr, uint256.NewInt(5)))
	require.NoError(store.SetNonce(addr, 3))
	require.NoError(store.SetCode(addr, []byte{1, 2}))

	info, err := store.Basic(addr)
	require.NoError(err)
	require.Equal(uint64(5), info.Balance.Uint64())
	require.Equal(uint64(3), info.Nonce)
	require.Equal(common.Keccak256([]byte{1, 2}), info.CodeHash)

	code, err := store.CodeByHash(info.CodeHash)
	require.NoError(err)
	require.Equal([]byte{1, 2}, code)
}

func TestStore_SnapshotRoundTripRestoresState(t *testing.T) {
	require := require.New(t)
	store := NewMemoryStore()
	a := common.Address{1}
	b := common.Address{2}
	store.InsertAccount(a, &common.AccountInfo{Balance: uint256.NewInt(10)})
	require.NoError(store.SetStorageAt(a, common.Hash{1}, common.Hash{1}))

	id := store.Snapshot()

	require.NoError(store.SetBalance(a, uint256.NewInt(20)))
	require.NoError(store.SetBalance(a, uint256.NewInt(30)))
	require.NoError(store.SetStorageAt(a, common.Hash{1}, common.Hash{2}))
	require.NoError(store.SetStorageAt(a, common.Hash{2}, common.Hash{2}))
	store.InsertAccount(b, &common.AccountInfo{Balance: uint256.NewInt(1)})
	store.InsertBlockHash(7, common.Hash{7})

	require.True(store.Revert(id))
	require.Equal(uint64(10), balanceOf(t, store, a))
	require.Equal(uint64(0), balanceOf(t, store, b))
	require.Equal(common.Hash{1}, storageOf(t, store, a, common.Hash{1}))
	require.Equal(common.Hash{}, storageOf(t, store, a, common.Hash{2}))

	hash, err := store.BlockHash(7)
	require.NoError(err)
	require.NotEqual(common.Hash{7}, hash)
}

func TestStore_SnapshotIdsIncrease(t *testing.T) {
	store := NewMemoryStore()
	first := store.Snapshot()
	second := store.Snapshot()
	require.Equal(t, uint64(1), first.Uint64())
	require.Equal(t, uint64(2), second.Uint64())

	require.True(t, store.Revert(first))
	third := store.Snapshot()
	require.Equal(t, uint64(3), third.Uint64())
	require.Equal(t, []*uint256.Int{second, third}, store.ActiveSnapshots())
}

func TestStore_RevertIsSingleUse(t *testing.T) {
	store := NewMemoryStore()
	id := store.Snapshot()
	require.True(t, store.Revert(id))
	require.False(t, store.Revert(id))
	require.False(t, store.Revert(uint256.NewInt(42)))
	require.False(t, store.Revert(nil))
}

func TestStore_SnapshotsAreIsolatedFromEachOther(t *testing.T) {
	require := require.New(t)
	store := NewMemoryStore()
	addr := common.Address{1}

	require.NoError(store.SetBalance(addr, uint256.NewInt(1)))
	first := store.Snapshot()
	require.NoError(store.SetBalance(addr, uint256.NewInt(2)))
	second := store.Snapshot()
	require.NoError(store.SetBalance(addr, uint256.NewInt(3)))

	require.True(store.Revert(second))
	require.Equal(uint64(2), balanceOf(t, store, addr))

	// mutations after a revert do not leak into older snapshots
	require.NoError(store.SetBalance(addr, uint256.NewInt(4)))
	require.True(store.Revert(first))
	require.Equal(uint64(1), balanceOf(t, store, addr))
}

func TestStore_RevertRestoresFetchedCache(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, fetcher := newForkedStore(t, provider, 10)

	id := store.Snapshot()

	addr := common.Address{1}
	expectRemoteAccount(provider, addr, 10, 100)
	require.Equal(uint64(100), balanceOf(t, store, addr))
	_, found := fetcher.Db().Account(addr)
	require.True(found)

	require.True(store.Revert(id))
	_, found = fetcher.Db().Account(addr)
	require.False(found)
}

func TestStore_ResetRefetchesAndDropsOverlay(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, fetcher := newForkedStore(t, provider, 10)

	a := common.Address{1}
	b := common.Address{2}
	expectRemoteAccount(provider, a, 10, 100)
	require.Equal(uint64(100), balanceOf(t, store, a))
	store.InsertAccount(b, &common.AccountInfo{Balance: uint256.NewInt(7)})
	id := store.Snapshot()

	provider.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(20)).Return(
		&types.Header{Number: big.NewInt(20), Difficulty: big.NewInt(0)}, nil)
	block := uint64(20)
	require.NoError(store.Reset(context.Background(), &block))
	require.Equal(uint64(20), fetcher.PinnedBlock())

	expectRemoteAccount(provider, a, 20, 200)
	expectRemoteAccount(provider, b, 20, 0)
	require.Equal(uint64(200), balanceOf(t, store, a))
	require.Equal(uint64(0), balanceOf(t, store, b))

	// snapshots do not survive a reset
	require.False(store.Revert(id))
}

func TestStore_FailedResetKeepsState(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, _ := newForkedStore(t, provider, 10)

	addr := common.Address{1}
	store.InsertAccount(addr, &common.AccountInfo{Balance: uint256.NewInt(7)})

	provider.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(99)).Return(nil, ethereum.NotFound)
	block := uint64(99)
	require.Error(t, store.Reset(context.Background(), &block))
	require.Equal(t, uint64(7), balanceOf(t, store, addr))
}

func TestStore_ResetWithFailingPreloadKeepsState(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, fetcher := newForkedStore(t, provider, 10)

	addr := common.Address{1}
	store.InsertAccount(addr, &common.AccountInfo{Balance: uint256.NewInt(7)})
	id := store.Snapshot()

	injectedErr := fmt.Errorf("upstream down")
	provider.EXPECT().HeaderByNumber(gomock.Any(), big.NewInt(20)).Return(
		&types.Header{Number: big.NewInt(20), Difficulty: big.NewInt(0)}, nil)
	provider.EXPECT().BalanceAt(gomock.Any(), addr, big.NewInt(20)).Return(nil, injectedErr).AnyTimes()
	provider.EXPECT().NonceAt(gomock.Any(), addr, big.NewInt(20)).Return(uint64(0), nil).AnyTimes()
	provider.EXPECT().CodeAt(gomock.Any(), addr, big.NewInt(20)).Return(nil, nil).AnyTimes()

	block := uint64(20)
	require.ErrorIs(store.Reset(context.Background(), &block, addr), injectedErr)
	require.Equal(uint64(10), fetcher.PinnedBlock())
	require.Equal(uint64(7), balanceOf(t, store, addr))
	require.Equal([]*uint256.Int{id}, store.ActiveSnapshots())
}

func TestStore_DiscardSnapshotsAfterKeepsOlderSnapshots(t *testing.T) {
	require := require.New(t)
	store := NewMemoryStore()
	first := store.Snapshot()
	second := store.Snapshot()
	third := store.Snapshot()

	require.Equal([]*uint256.Int{third}, store.DiscardSnapshotsAfter(second))
	require.Equal([]*uint256.Int{first, second}, store.ActiveSnapshots())
	require.False(store.Revert(third))

	require.Empty(store.DiscardSnapshotsAfter(second))
	require.Nil(store.DiscardSnapshotsAfter(nil))
	require.True(store.Revert(first))
}

func TestStore_MemoryStoreCanOnlyResetWithoutBlock(t *testing.T) {
	store := NewMemoryStore()
	store.InsertAccount(common.Address{1}, &common.AccountInfo{Balance: uint256.NewInt(7)})

	block := uint64(1)
	require.ErrorIs(t, store.Reset(context.Background(), &block), ErrNotForked)
	require.Equal(t, uint64(7), balanceOf(t, store, common.Address{1}))

	require.NoError(t, store.Reset(context.Background(), nil))
	require.Equal(t, uint64(0), balanceOf(t, store, common.Address{1}))
	require.False(t, store.IsForked())
	require.NoError(t, store.FlushCache())
}

func TestStore_StateRootCoversMemoryState(t *testing.T) {
	require := require.New(t)
	store := NewMemoryStore()
	empty, err := store.StateRoot(0)
	require.NoError(err)
	require.Equal(types.EmptyRootHash, empty)

	store.InsertAccount(common.Address{1}, &common.AccountInfo{Balance: uint256.NewInt(7)})
	withAccount, err := store.StateRoot(0)
	require.NoError(err)
	require.NotEqual(empty, withAccount)

	require.NoError(store.SetStorageAt(common.Address{1}, common.Hash{1}, common.Hash{2}))
	withSlot, err := store.StateRoot(0)
	require.NoError(err)
	require.NotEqual(withAccount, withSlot)

	id := store.Snapshot()
	require.NoError(store.SetBalance(common.Address{1}, uint256.NewInt(8)))
	require.True(store.Revert(id))
	restored, err := store.StateRoot(0)
	require.NoError(err)
	require.Equal(withSlot, restored)
}

func TestStore_StateRootOfForkIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := remote.NewMockProvider(ctrl)
	store, _ := newForkedStore(t, provider, 10)
	_, err := store.StateRoot(10)
	require.ErrorIs(t, err, ErrPartialState)
}
