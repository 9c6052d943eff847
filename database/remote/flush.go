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
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/cachestore"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/holiman/uint256"
)

// cacheFile is the persistent form of a BlockchainDb. Entries are sorted to
// make the encoding deterministic.
type cacheFile struct {
	ChainID  uint64
	Block    uint64
	Accounts []accountEntry
	Slots    []slotEntry
	Hashes   []hashEntry
}

type accountEntry struct {
	Address  common.Address
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

type slotEntry struct {
	Address common.Address
	Key     common.Hash
	Value   common.Hash
}

type hashEntry struct {
	Number uint64
	Hash   common.Hash
}

// CacheKey is the key under which the cache for the given chain and block is
// persisted.
func CacheKey(meta Meta) []byte {
	return []byte(fmt.Sprintf("forkchain/cache/%d/%d", meta.ChainID, meta.Block))
}

// Encode serializes the content of the cache using RLP and snappy.
func (db *BlockchainDb) Encode() ([]byte, error) {
	meta := db.Meta()
	snapshot := db.Snapshot()

	file := cacheFile{ChainID: meta.ChainID, Block: meta.Block}
	for address, info := range snapshot.accounts {
		entry := accountEntry{
			Address:  address,
			Balance:  new(big.Int),
			Nonce:    info.Nonce,
			CodeHash: info.CodeHash,
			Code:     info.Code,
		}
		if info.Balance != nil {
			entry.Balance = info.Balance.ToBig()
		}
		if entry.Code == nil {
			entry.Code = snapshot.codes[info.CodeHash]
		}
		file.Accounts = append(file.Accounts, entry)
	}
	slices.SortFunc(file.Accounts, func(a, b accountEntry) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})

	for address, slots := range snapshot.storage {
		for key, value := range slots {
			file.Slots = append(file.Slots, slotEntry{address, key, value})
		}
	}
	slices.SortFunc(file.Slots, func(a, b slotEntry) int {
		if c := bytes.Compare(a.Address[:], b.Address[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.Key[:], b.Key[:])
	})

	for number, hash := range snapshot.blockHashes {
		file.Hashes = append(file.Hashes, hashEntry{number, hash})
	}
	slices.SortFunc(file.Hashes, func(a, b hashEntry) int {
		switch {
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		}
		return 0
	})

	data, err := rlp.EncodeToBytes(&file)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

// Decode adds the entries of an encoded cache to this cache. Data recorded
// for a different chain or block is rejected.
func (db *BlockchainDb) Decode(data []byte) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("failed to decompress cache: %w", err)
	}
	var file cacheFile
	if err := rlp.DecodeBytes(raw, &file); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	meta := db.Meta()
	if file.ChainID != meta.ChainID || file.Block != meta.Block {
		return fmt.Errorf("cache is for chain %d block %d, expected chain %d block %d",
			file.ChainID, file.Block, meta.ChainID, meta.Block)
	}
	for _, entry := range file.Accounts {
		balance, overflow := uint256.FromBig(entry.Balance)
		if overflow {
			return fmt.Errorf("invalid balance of %v", entry.Address)
		}
		info := &common.AccountInfo{
			Balance:  balance,
			Nonce:    entry.Nonce,
			CodeHash: entry.CodeHash,
		}
		if len(entry.Code) > 0 {
			info.Code = entry.Code
		}
		db.SetAccount(entry.Address, info)
	}
	for _, entry := range file.Slots {
		db.SetStorageValue(entry.Address, entry.Key, entry.Value)
	}
	for _, entry := range file.Hashes {
		db.SetBlockHash(entry.Number, entry.Hash)
	}
	return nil
}

// Flush writes the cache to the persistent store, if there is one.
func (f *Fetcher) Flush() error {
	if f.store == nil {
		return nil
	}
	// a concurrent Reset would change the block between encoding and keying
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := f.db.Encode()
	if err != nil {
		return err
	}
	meta := f.db.Meta()
	if err := f.store.Set(CacheKey(meta), data); err != nil {
		return fmt.Errorf("failed to flush fork cache: %w", err)
	}
	accounts, slots, hashes := f.db.Size()
	log.Info("Flushed fork cache", "chain", meta.ChainID, "block", meta.Block,
		"accounts", accounts, "slots", slots, "hashes", hashes, "size", len(data))
	return nil
}

// Load fills the cache with data flushed by an earlier run. A missing entry
// is not an error.
func (f *Fetcher) Load() error {
	if f.store == nil {
		return nil
	}
	data, err := f.store.Get(CacheKey(f.db.Meta()))
	if errors.Is(err, cachestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return f.db.Decode(data)
}
