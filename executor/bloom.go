// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package executor

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// LogsBloom computes the bloom filter of the given logs, covering emitting
// addresses and all topics.
func LogsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, log := range logs {
		bloom.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}

// mergeBloom adds all entries of src to dst.
func mergeBloom(dst *types.Bloom, src types.Bloom) {
	for i := range dst {
		dst[i] |= src[i]
	}
}
