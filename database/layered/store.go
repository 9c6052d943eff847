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
	"sync"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/mpt"
	"github.com/0xsoniclabs/forkchain/database/overlay"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/0xsoniclabs/forkchain/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const (
	ErrNotForked    = common.ConstError("store is not backed by a remote chain")
	ErrPartialState = common.ConstError("state of forked chains is only partially known")
)

// Fetcher is the remote state source a Store is layered on.
type Fetcher interface {
	state.StateSource
	// Reset drops all fetched data and optionally re-pins the block. The
	// given accounts are fetched at the new block before anything is dropped.
	Reset(ctx context.Context, blockNumber *uint64, preload ...common.Address) error
	// Db provides access to the cache of fetched data.
	Db() *remote.BlockchainDb
	// Flush persists the cache of fetched data.
	Flush() error
}

var _ Fetcher = (*remote.Fetcher)(nil)

// Store is the world state of a local chain: a write overlay on top of a
// remote fetcher, or on top of an empty state if there is no fetcher. Reads
// may run concurrently; writes are serialized.
type Store struct {
	fetcher Fetcher // < nil for in-memory chains

	mu      sync.RWMutex // < guards overlay
	overlay *overlay.State

	snapshots *snapshots
}

var (
	_ state.State             = (*Store)(nil)
	_ executor.StateCommitter = (*Store)(nil)
)

// NewStore creates a store layered on the given fetcher.
func NewStore(fetcher Fetcher) *Store {
	var source state.StateSource = state.EmptySource{}
	if fetcher != nil {
		source = fetcher
	}
	return &Store{
		fetcher:   fetcher,
		overlay:   overlay.NewState(source),
		snapshots: newSnapshots(),
	}
}

// NewMemoryStore creates a store without a remote chain.
func NewMemoryStore() *Store {
	return NewStore(nil)
}

// IsForked reports whether the store is backed by a remote chain.
func (s *Store) IsForked() bool {
	return s.fetcher != nil
}

func (s *Store) Basic(address common.Address) (*common.AccountInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.Basic(address)
}

func (s *Store) CodeByHash(hash common.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.CodeByHash(hash)
}

func (s *Store) Storage(address common.Address, key common.Hash) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.Storage(address, key)
}

func (s *Store) BlockHash(number uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.BlockHash(number)
}

// Apply commits a change set to the overlay.
func (s *Store) Apply(update common.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.Apply(update)
}

func (s *Store) InsertAccount(address common.Address, info *common.AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.InsertAccount(address, info)
}

func (s *Store) SetStorageAt(address common.Address, key, value common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.SetStorageAt(address, key, value)
}

func (s *Store) InsertBlockHash(number uint64, hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.InsertBlockHash(number, hash)
}

// SetBalance sets the balance of an account, keeping all other fields.
func (s *Store) SetBalance(address common.Address, balance *uint256.Int) error {
	return s.Apply(common.Update{
		Balances: []common.BalanceUpdate{{Account: address, Balance: balance}},
	})
}

// SetNonce sets the nonce of an account, keeping all other fields.
func (s *Store) SetNonce(address common.Address, nonce uint64) error {
	return s.Apply(common.Update{
		Nonces: []common.NonceUpdate{{Account: address, Nonce: nonce}},
	})
}

// SetCode sets the code of an account, keeping all other fields.
func (s *Store) SetCode(address common.Address, code []byte) error {
	return s.Apply(common.Update{
		Codes: []common.CodeUpdate{{Account: address, Code: code}},
	})
}

// Reset drops all local modifications and all fetched data. If a block
// number is given, the fetcher is re-pinned to this block, and the preload
// accounts are fetched from it. All snapshots are invalidated. If re-pinning
// or preloading fails, nothing is changed.
func (s *Store) Reset(ctx context.Context, blockNumber *uint64, preload ...common.Address) error {
	if s.fetcher == nil && blockNumber != nil {
		return ErrNotForked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetcher != nil {
		if err := s.fetcher.Reset(ctx, blockNumber, preload...); err != nil {
			return err
		}
	}
	s.overlay = overlay.NewState(s.overlay.Source())
	s.snapshots.clear()
	return nil
}

// FlushCache persists the data fetched from the remote chain.
func (s *Store) FlushCache() error {
	if s.fetcher == nil {
		return nil
	}
	return s.fetcher.Flush()
}

// StateRoot computes the root hash of the world state. Only in-memory
// stores hold the full state required for this.
func (s *Store) StateRoot(uint64) (common.Hash, error) {
	if s.fetcher != nil {
		return common.Hash{}, ErrPartialState
	}
	s.mu.RLock()
	accounts := s.overlay.Accounts()
	s.mu.RUnlock()
	return mpt.StateRoot(accounts)
}

// Size summarizes the content of the local overlay.
func (s *Store) Size() overlay.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay.Size()
}

// Snapshot records the current state and returns an id to revert to it.
// Ids start at 1 and increase with every snapshot.
func (s *Store) Snapshot() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &snapshot{overlay: s.overlay.Clone()}
	if s.fetcher != nil {
		cache := s.fetcher.Db().Snapshot()
		snap.cache = &cache
	}
	id := s.snapshots.add(snap)
	log.Debug("Created state snapshot", "id", id)
	return id
}

// Revert restores the state recorded by the snapshot with the given id. A
// snapshot can only be reverted to once. Returns false if the id is unknown.
func (s *Store) Revert(id *uint256.Int) bool {
	snap, found := s.snapshots.remove(id)
	if !found {
		log.Warn("No snapshot to revert to", "id", id)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.cache != nil {
		s.fetcher.Db().Restore(*snap.cache)
	}
	s.overlay = snap.overlay
	log.Debug("Reverted state snapshot", "id", id)
	return true
}

// DiscardSnapshotsAfter drops all snapshots created after the one with the
// given id, and returns their ids.
func (s *Store) DiscardSnapshotsAfter(id *uint256.Int) []*uint256.Int {
	if id == nil {
		return nil
	}
	return s.snapshots.removeAfter(id)
}

// ActiveSnapshots lists the ids of all snapshots that can be reverted to, in
// creation order.
func (s *Store) ActiveSnapshots() []*uint256.Int {
	return s.snapshots.ids()
}
