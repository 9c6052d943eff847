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

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind distinguishes the variants of filters and subscriptions.
type Kind int

const (
	LogsKind                Kind = iota + 1 // logs matching a Criteria
	BlocksKind                              // hashes or headers of new blocks
	PendingTransactionsKind                 // hashes of new pending transactions
)

func (k Kind) String() string {
	switch k {
	case LogsKind:
		return "logs"
	case BlocksKind:
		return "blocks"
	case PendingTransactionsKind:
		return "pending"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func (k Kind) valid() bool {
	return k >= LogsKind && k <= PendingTransactionsKind
}

// Changes is the result of polling a filter. Logs are filled for logs
// filters, Hashes for block and pending transaction filters.
type Changes struct {
	Kind   Kind
	Logs   []*types.Log
	Hashes []common.Hash
}

// IsEmpty is true if there are no changes.
func (c Changes) IsEmpty() bool {
	return len(c.Logs) == 0 && len(c.Hashes) == 0
}

// filter accumulates the events observed since its last poll.
type filter struct {
	kind     Kind
	matcher  *matcher     // < nil unless kind is LogsKind
	start    uint64       // < first block mined after installation
	historic []*types.Log // < logs present at installation, reported by the first poll
	blocks   []common.Hash
	txs      []common.Hash
}

// onBlock queues a new block. Blocks mined before the filter was installed
// are already covered by the historic logs, or not of interest.
func (f *filter) onBlock(hash common.Hash, number uint64) {
	if number < f.start {
		return
	}
	if f.kind == LogsKind || f.kind == BlocksKind {
		f.blocks = append(f.blocks, hash)
	}
}

func (f *filter) onPending(hashes []common.Hash) {
	if f.kind == PendingTransactionsKind {
		f.txs = append(f.txs, hashes...)
	}
}

// drain returns and forgets everything observed since the last call.
func (f *filter) drain(source *logSource) Changes {
	res := Changes{Kind: f.kind}
	switch f.kind {
	case LogsKind:
		res.Logs = append(res.Logs, f.historic...)
		for _, hash := range f.blocks {
			res.Logs = append(res.Logs, source.blockMatches(hash, f.matcher)...)
		}
		f.historic = nil
		f.blocks = nil
	case BlocksKind:
		res.Hashes, f.blocks = f.blocks, nil
	case PendingTransactionsKind:
		res.Hashes, f.txs = f.txs, nil
	}
	return res
}
