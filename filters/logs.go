// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package filters

import (
	"github.com/0xsoniclabs/forkchain/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ChainReader provides access to the blocks and receipts of the local chain.
type ChainReader interface {
	BestNumber() uint64
	HashByNumber(number uint64) (common.Hash, bool)
	BlockByHash(hash common.Hash) *types.Block
	Receipts(hash common.Hash) []*types.Receipt
}

// logSource resolves the logs of local blocks. The logs of recently used
// blocks are cached and shared among all filters and subscriptions.
type logSource struct {
	chain ChainReader
	cache *lru.Cache[common.Hash, []*types.Log]
}

func newLogSource(chain ChainReader, size int) (*logSource, error) {
	cache, err := lru.New[common.Hash, []*types.Log](max(1, size))
	if err != nil {
		return nil, err
	}
	return &logSource{chain: chain, cache: cache}, nil
}

// blockLogs returns all logs of the given block in receipt order, and nil if
// the block is not part of the chain.
func (s *logSource) blockLogs(block *types.Block) []*types.Log {
	hash := block.Hash()
	if logs, found := s.cache.Get(hash); found {
		return logs
	}
	logs := []*types.Log{}
	for _, receipt := range s.chain.Receipts(hash) {
		logs = append(logs, receipt.Logs...)
	}
	s.cache.Add(hash, logs)
	return logs
}

// blockMatches returns the logs of the given block matched by m.
func (s *logSource) blockMatches(hash common.Hash, m *matcher) []*types.Log {
	block := s.chain.BlockByHash(hash)
	if block == nil {
		// unwound by a revert or reset
		s.cache.Remove(hash)
		return nil
	}
	if m.criteria.BlockHash != nil && *m.criteria.BlockHash != hash {
		return nil
	}
	if !m.inRange(block.NumberU64()) || !m.mayContain(block.Bloom()) {
		return nil
	}
	return m.filter(s.blockLogs(block))
}

// rangeMatches returns the logs matched by m in the blocks [from, to]. The
// range is clamped to the head of the chain.
func (s *logSource) rangeMatches(from, to uint64, m *matcher) []*types.Log {
	to = min(to, s.chain.BestNumber())
	var res []*types.Log
	for number := from; number <= to; number++ {
		hash, found := s.chain.HashByNumber(number)
		if !found {
			continue
		}
		res = append(res, s.blockMatches(hash, m)...)
	}
	return res
}

// query resolves the logs matched by m. Without explicit bounds, the range
// starts at the given default and ends at the head of the chain.
func (s *logSource) query(m *matcher, defaultFrom uint64) []*types.Log {
	crit := m.criteria
	if crit.BlockHash != nil {
		return s.blockMatches(*crit.BlockHash, m)
	}
	best := s.chain.BestNumber()
	from, to := defaultFrom, best
	if crit.FromBlock != nil {
		from = *crit.FromBlock
	}
	if crit.ToBlock != nil {
		to = *crit.ToBlock
	}
	return s.rangeMatches(from, to, m)
}
