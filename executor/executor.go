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
	"context"
	"fmt"
	"math/big"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	includedTxCounter = metrics.NewRegisteredCounter("forkchain/executor/included", nil)
	invalidTxCounter  = metrics.NewRegisteredCounter("forkchain/executor/invalid", nil)
	revertedTxCounter = metrics.NewRegisteredCounter("forkchain/executor/reverted", nil)
)

// StateCommitter computes the state root of a block after all of its
// transactions have been applied.
type StateCommitter interface {
	StateRoot(number uint64) (common.Hash, error)
}

// TransactionInfo records the outcome of a transaction included in a block.
type TransactionInfo struct {
	Hash            common.Hash
	Index           uint64
	From            common.Address
	To              *common.Address
	ContractAddress *common.Address
	Success         bool
	Output          []byte
	GasUsed         uint64
	Logs            []*types.Log
}

// BlockInfo is the result of mining a block.
type BlockInfo struct {
	Block        *types.Block
	Transactions []*TransactionInfo
	Receipts     []*types.Receipt
	// Invalid lists transactions that could not be included, for instance
	// because they exceed the remaining block gas.
	Invalid []*PendingTransaction
}

// Executor builds blocks by running pending transactions through an
// interpreter.
type Executor struct {
	interpreter Interpreter
	committer   StateCommitter // < optional, empty root hash if nil
}

func NewExecutor(interpreter Interpreter, committer StateCommitter) *Executor {
	return &Executor{interpreter: interpreter, committer: committer}
}

// Mine executes the given transactions in order on top of the given state
// and seals the result into a block. Transactions that do not fit into the
// block are skipped and reported as invalid. An interpreter error aborts the
// whole operation; state changes of already executed transactions are not
// rolled back.
func (e *Executor) Mine(
	ctx context.Context,
	env BlockEnv,
	parent common.Hash,
	pending []*PendingTransaction,
	st state.State,
) (*BlockInfo, error) {
	var (
		res        = &BlockInfo{}
		txs        []*types.Transaction
		bloom      types.Bloom
		cumulative uint64
		logIndex   uint
	)
	for _, cur := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx := cur.Tx
		if reason := e.checkInclusion(env, cumulative, tx); reason != "" {
			log.Debug("Skipping transaction", "hash", tx.Hash(), "reason", reason)
			invalidTxCounter.Inc(1)
			res.Invalid = append(res.Invalid, cur)
			continue
		}

		txEnv := newTxEnv(cur, env.BaseFee)
		result, err := e.interpreter.Execute(&Environment{Block: env, Tx: txEnv}, st)
		if err != nil {
			return nil, fmt.Errorf("failed to execute transaction %v: %w", tx.Hash(), err)
		}
		cumulative += result.GasUsed

		index := uint(len(txs))
		logs := []*types.Log{}
		status := types.ReceiptStatusFailed
		if result.Success {
			status = types.ReceiptStatusSuccessful
			logs = append(logs, result.Logs...)
		} else {
			revertedTxCounter.Inc(1)
		}
		for _, l := range logs {
			l.TxHash = txEnv.Hash
			l.TxIndex = index
			l.Index = logIndex
			l.BlockNumber = env.Number
			logIndex++
		}

		receipt := &types.Receipt{
			Type:              tx.Type(),
			Status:            status,
			CumulativeGasUsed: cumulative,
			Logs:              logs,
			TxHash:            txEnv.Hash,
			GasUsed:           result.GasUsed,
			EffectiveGasPrice: txEnv.GasPrice.ToBig(),
			BlockNumber:       new(big.Int).SetUint64(env.Number),
			TransactionIndex:  index,
		}
		receipt.Bloom = LogsBloom(logs)
		mergeBloom(&bloom, receipt.Bloom)
		if result.ContractAddress != nil {
			receipt.ContractAddress = *result.ContractAddress
		}

		txs = append(txs, tx)
		res.Receipts = append(res.Receipts, receipt)
		res.Transactions = append(res.Transactions, &TransactionInfo{
			Hash:            txEnv.Hash,
			Index:           uint64(index),
			From:            cur.Sender,
			To:              txEnv.To,
			ContractAddress: result.ContractAddress,
			Success:         result.Success,
			Output:          result.Output,
			GasUsed:         result.GasUsed,
			Logs:            logs,
		})
		includedTxCounter.Inc(1)
	}

	root := types.EmptyRootHash
	if e.committer != nil {
		var err error
		root, err = e.committer.StateRoot(env.Number)
		if err != nil {
			return nil, fmt.Errorf("failed to compute state root of block %d: %w", env.Number, err)
		}
	}

	header := &types.Header{
		ParentHash: parent,
		Coinbase:   env.Coinbase,
		Root:       root,
		Bloom:      bloom,
		Difficulty: new(big.Int),
		Number:     new(big.Int).SetUint64(env.Number),
		GasLimit:   env.GasLimit,
		GasUsed:    cumulative,
		Time:       env.Timestamp,
		MixDigest:  env.PrevRandao,
	}
	if env.Difficulty != nil {
		header.Difficulty = env.Difficulty.ToBig()
	}
	if env.BaseFee != nil {
		header.BaseFee = env.BaseFee.ToBig()
	}
	block := types.NewBlock(header, &types.Body{Transactions: txs}, res.Receipts, trie.NewStackTrie(nil))

	hash := block.Hash()
	for _, receipt := range res.Receipts {
		receipt.BlockHash = hash
		for _, l := range receipt.Logs {
			l.BlockHash = hash
		}
	}
	res.Block = block
	return res, nil
}

// checkInclusion returns a non-empty reason if the transaction can not be
// part of the block.
func (e *Executor) checkInclusion(env BlockEnv, used uint64, tx *types.Transaction) string {
	if used+tx.Gas() > env.GasLimit || used+tx.Gas() < used {
		return "block gas limit reached"
	}
	if env.BaseFee != nil && tx.GasFeeCapIntCmp(env.BaseFee.ToBig()) < 0 {
		return "fee cap below base fee"
	}
	return ""
}
