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
	"sync"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/ethereum/go-ethereum/core/types"
)

// MinedTransaction is a transaction included in a locally mined block.
type MinedTransaction struct {
	Info        *executor.TransactionInfo
	Receipt     *types.Receipt
	BlockHash   common.Hash
	BlockNumber uint64
}

// Storage keeps the blocks, receipts and transactions of the local chain.
// For forked chains, only blocks mined locally are stored; the fork block is
// recorded as the best block without content.
type Storage struct {
	mu           sync.RWMutex
	blocks       map[common.Hash]*types.Block
	hashes       map[uint64]common.Hash
	receipts     map[common.Hash][]*types.Receipt
	transactions map[common.Hash]*MinedTransaction
	bestNumber   uint64
	bestHash     common.Hash
	genesisHash  common.Hash
}

// NewStorage creates a storage holding only the given genesis block.
func NewStorage(genesis *types.Block) *Storage {
	res := newStorage(genesis.NumberU64(), genesis.Hash())
	res.blocks[genesis.Hash()] = genesis
	return res
}

// NewForkedStorage creates a storage starting at the given remote block.
func NewForkedStorage(number uint64, hash common.Hash) *Storage {
	return newStorage(number, hash)
}

func newStorage(number uint64, hash common.Hash) *Storage {
	return &Storage{
		blocks:       map[common.Hash]*types.Block{},
		hashes:       map[uint64]common.Hash{number: hash},
		receipts:     map[common.Hash][]*types.Receipt{},
		transactions: map[common.Hash]*MinedTransaction{},
		bestNumber:   number,
		bestHash:     hash,
		genesisHash:  hash,
	}
}

// Insert adds a mined block and makes it the best block.
func (s *Storage) Insert(info *executor.BlockInfo) {
	block := info.Block
	hash := block.Hash()
	number := block.NumberU64()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[hash] = block
	s.hashes[number] = hash
	s.receipts[hash] = info.Receipts
	for i, tx := range info.Transactions {
		s.transactions[tx.Hash] = &MinedTransaction{
			Info:        tx,
			Receipt:     info.Receipts[i],
			BlockHash:   hash,
			BlockNumber: number,
		}
	}
	s.bestNumber = number
	s.bestHash = hash
}

// UnwindTo removes all blocks above the given block, which becomes the best
// block. The removed blocks are returned in ascending order.
func (s *Storage) UnwindTo(number uint64, hash common.Hash) []*types.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*types.Block
	for n := number + 1; n <= s.bestNumber; n++ {
		h, found := s.hashes[n]
		if !found {
			continue
		}
		delete(s.hashes, n)
		block, found := s.blocks[h]
		if !found {
			continue
		}
		for _, tx := range block.Transactions() {
			delete(s.transactions, tx.Hash())
		}
		delete(s.blocks, h)
		delete(s.receipts, h)
		removed = append(removed, block)
	}
	s.bestNumber = number
	s.bestHash = hash
	return removed
}

func (s *Storage) BestNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestNumber
}

func (s *Storage) BestHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestHash
}

func (s *Storage) GenesisHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisHash
}

func (s *Storage) HashByNumber(number uint64) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, found := s.hashes[number]
	return hash, found
}

func (s *Storage) BlockByHash(hash common.Hash) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[hash]
}

func (s *Storage) BlockByNumber(number uint64) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[s.hashes[number]]
}

func (s *Storage) Receipts(hash common.Hash) []*types.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receipts[hash]
}

func (s *Storage) Transaction(hash common.Hash) *MinedTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactions[hash]
}
