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
	"fmt"
	"slices"

	"github.com/0xsoniclabs/forkchain/common"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	ErrInvalidCriteria = common.ConstError("invalid log criteria")
	ErrUnknownKind     = common.ConstError("unknown filter kind")
)

// Criteria selects logs by block range, emitting address and topics.
//
// Topics are matched by position. An empty position matches any topic, a
// non-empty one matches if the topic at this position is one of the listed
// values. Logs with fewer topics than positions listed never match.
type Criteria struct {
	BlockHash *common.Hash // < restricts the criteria to a single block
	FromBlock *uint64      // < nil for the head at the time of use
	ToBlock   *uint64      // < nil for the latest block
	Addresses []common.Address
	Topics    [][]common.Hash
}

// Check verifies that the criteria are consistent.
func (c *Criteria) Check() error {
	if c.BlockHash != nil && (c.FromBlock != nil || c.ToBlock != nil) {
		return fmt.Errorf("%w: block hash and block range are mutually exclusive", ErrInvalidCriteria)
	}
	if c.FromBlock != nil && c.ToBlock != nil && *c.FromBlock > *c.ToBlock {
		return fmt.Errorf("%w: from block %d is after to block %d", ErrInvalidCriteria, *c.FromBlock, *c.ToBlock)
	}
	return nil
}

// Copy creates a deep copy of the criteria.
func (c *Criteria) Copy() *Criteria {
	res := &Criteria{
		Addresses: slices.Clone(c.Addresses),
		Topics:    make([][]common.Hash, len(c.Topics)),
	}
	if c.BlockHash != nil {
		hash := *c.BlockHash
		res.BlockHash = &hash
	}
	if c.FromBlock != nil {
		from := *c.FromBlock
		res.FromBlock = &from
	}
	if c.ToBlock != nil {
		to := *c.ToBlock
		res.ToBlock = &to
	}
	for i, topics := range c.Topics {
		res.Topics[i] = slices.Clone(topics)
	}
	return res
}

// matcher is the compiled form of a Criteria used for filtering logs.
type matcher struct {
	criteria  *Criteria
	addresses mapset.Set[common.Address] // < empty for any address
}

func newMatcher(criteria *Criteria) *matcher {
	if criteria == nil {
		criteria = &Criteria{}
	}
	return &matcher{
		criteria:  criteria,
		addresses: mapset.NewThreadUnsafeSet(criteria.Addresses...),
	}
}

// inRange reports whether the given block is covered by the block range of
// the criteria. Block hash restrictions are not considered.
func (m *matcher) inRange(number uint64) bool {
	if from := m.criteria.FromBlock; from != nil && number < *from {
		return false
	}
	if to := m.criteria.ToBlock; to != nil && number > *to {
		return false
	}
	return true
}

// mayContain checks the bloom of a block for any logs possibly matching.
func (m *matcher) mayContain(bloom types.Bloom) bool {
	if m.addresses.Cardinality() > 0 {
		found := false
		m.addresses.Each(func(address common.Address) bool {
			found = types.BloomLookup(bloom, address)
			return found
		})
		if !found {
			return false
		}
	}
	for _, topics := range m.criteria.Topics {
		if len(topics) == 0 {
			continue
		}
		if !slices.ContainsFunc(topics, func(topic common.Hash) bool {
			return types.BloomLookup(bloom, topic)
		}) {
			return false
		}
	}
	return true
}

func (m *matcher) matches(log *types.Log) bool {
	if m.addresses.Cardinality() > 0 && !m.addresses.Contains(log.Address) {
		return false
	}
	if len(m.criteria.Topics) > len(log.Topics) {
		return false
	}
	for i, topics := range m.criteria.Topics {
		if len(topics) > 0 && !slices.Contains(topics, log.Topics[i]) {
			return false
		}
	}
	return true
}

func (m *matcher) filter(logs []*types.Log) []*types.Log {
	var res []*types.Log
	for _, log := range logs {
		if m.matches(log) {
			res = append(res, log)
		}
	}
	return res
}
