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
	"maps"
	"sync"

	"github.com/0xsoniclabs/forkchain/common"
)

// Meta identifies the remote chain and block a BlockchainDb was filled from.
type Meta struct {
	ChainID uint64
	Block   uint64
}

// BlockchainDb is the memoization cache of all data fetched from a remote
// chain. Accounts (with their codes), storage and block hashes are guarded by
// independent locks so that lookups of different kinds do not contend.
// Stored account infos are never modified in place.
type BlockchainDb struct {
	metaMu sync.RWMutex
	meta   Meta

	accountsMu sync.RWMutex
	accounts   map[common.Address]*common.AccountInfo
	codes      map[common.Hash][]byte

	storageMu sync.RWMutex
	storage   map[common.Address]map[common.Hash]common.Hash

	hashesMu    sync.RWMutex
	blockHashes map[uint64]common.Hash
}

// CacheSnapshot is a full copy of the content of a BlockchainDb.
type CacheSnapshot struct {
	accounts    map[common.Address]*common.AccountInfo
	codes       map[common.Hash][]byte
	storage     map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash
}

func NewBlockchainDb(meta Meta) *BlockchainDb {
	return &BlockchainDb{
		meta:        meta,
		accounts:    map[common.Address]*common.AccountInfo{},
		codes:       map[common.Hash][]byte{},
		storage:     map[common.Address]map[common.Hash]common.Hash{},
		blockHashes: map[uint64]common.Hash{},
	}
}

func (db *BlockchainDb) Meta() Meta {
	db.metaMu.RLock()
	defer db.metaMu.RUnlock()
	return db.meta
}

func (db *BlockchainDb) SetMeta(meta Meta) {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	db.meta = meta
}

func (db *BlockchainDb) Account(address common.Address) (*common.AccountInfo, bool) {
	db.accountsMu.RLock()
	defer db.accountsMu.RUnlock()
	info, found := db.accounts[address]
	return info, found
}

// SetAccount records the account and, if present, its code.
func (db *BlockchainDb) SetAccount(address common.Address, info *common.AccountInfo) {
	db.accountsMu.Lock()
	defer db.accountsMu.Unlock()
	db.accounts[address] = info
	if len(info.Code) > 0 {
		db.codes[info.CodeHash] = info.Code
	}
}

func (db *BlockchainDb) Code(hash common.Hash) ([]byte, bool) {
	db.accountsMu.RLock()
	defer db.accountsMu.RUnlock()
	code, found := db.codes[hash]
	return code, found
}

func (db *BlockchainDb) StorageValue(address common.Address, key common.Hash) (common.Hash, bool) {
	db.storageMu.RLock()
	defer db.storageMu.RUnlock()
	value, found := db.storage[address][key]
	return value, found
}

func (db *BlockchainDb) SetStorageValue(address common.Address, key, value common.Hash) {
	db.storageMu.Lock()
	defer db.storageMu.Unlock()
	slots, found := db.storage[address]
	if !found {
		slots = map[common.Hash]common.Hash{}
		db.storage[address] = slots
	}
	slots[key] = value
}

func (db *BlockchainDb) BlockHash(number uint64) (common.Hash, bool) {
	db.hashesMu.RLock()
	defer db.hashesMu.RUnlock()
	hash, found := db.blockHashes[number]
	return hash, found
}

func (db *BlockchainDb) SetBlockHash(number uint64, hash common.Hash) {
	db.hashesMu.Lock()
	defer db.hashesMu.Unlock()
	db.blockHashes[number] = hash
}

// Size returns the number of cached accounts, storage slots and block hashes.
func (db *BlockchainDb) Size() (accounts, slots, hashes int) {
	db.accountsMu.RLock()
	accounts = len(db.accounts)
	db.accountsMu.RUnlock()

	db.storageMu.RLock()
	for _, cur := range db.storage {
		slots += len(cur)
	}
	db.storageMu.RUnlock()

	db.hashesMu.RLock()
	hashes = len(db.blockHashes)
	db.hashesMu.RUnlock()
	return accounts, slots, hashes
}

// Clear drops all cached entries. The meta data is retained.
func (db *BlockchainDb) Clear() {
	db.accountsMu.Lock()
	db.accounts = map[common.Address]*common.AccountInfo{}
	db.codes = map[common.Hash][]byte{}
	db.accountsMu.Unlock()

	db.storageMu.Lock()
	db.storage = map[common.Address]map[common.Hash]common.Hash{}
	db.storageMu.Unlock()

	db.hashesMu.Lock()
	db.blockHashes = map[uint64]common.Hash{}
	db.hashesMu.Unlock()
}

// Snapshot copies the current content of the cache. Each partition is copied
// under its own read lock.
func (db *BlockchainDb) Snapshot() CacheSnapshot {
	db.accountsMu.RLock()
	accounts := maps.Clone(db.accounts)
	codes := maps.Clone(db.codes)
	db.accountsMu.RUnlock()

	db.storageMu.RLock()
	storage := cloneStorage(db.storage)
	db.storageMu.RUnlock()

	db.hashesMu.RLock()
	hashes := maps.Clone(db.blockHashes)
	db.hashesMu.RUnlock()

	return CacheSnapshot{
		accounts:    accounts,
		codes:       codes,
		storage:     storage,
		blockHashes: hashes,
	}
}

// Restore replaces the content of the cache by the content of the snapshot.
// The live maps are cleared and refilled rather than swapped. The snapshot
// remains valid and may be restored again.
func (db *BlockchainDb) Restore(snapshot CacheSnapshot) {
	db.accountsMu.Lock()
	clear(db.accounts)
	maps.Copy(db.accounts, snapshot.accounts)
	clear(db.codes)
	maps.Copy(db.codes, snapshot.codes)
	db.accountsMu.Unlock()

	db.storageMu.Lock()
	clear(db.storage)
	for address, slots := range snapshot.storage {
		db.storage[address] = maps.Clone(slots)
	}
	db.storageMu.Unlock()

	db.hashesMu.Lock()
	clear(db.blockHashes)
	maps.Copy(db.blockHashes, snapshot.blockHashes)
	db.hashesMu.Unlock()
}

func cloneStorage(storage map[common.Address]map[common.Hash]common.Hash) map[common.Address]map[common.Hash]common.Hash {
	res := make(map[common.Address]map[common.Hash]common.Hash, len(storage))
	for address, slots := range storage {
		res[address] = maps.Clone(slots)
	}
	return res
}
