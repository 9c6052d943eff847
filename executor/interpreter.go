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

//go:generate mockgen -source interpreter.go -destination interpreter_mock.go -package executor

import (
	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Interpreter is an interface for a component capable of executing
// transactions against a world state. Implementations commit all state
// changes caused by a transaction, including fees, into the given state.
type Interpreter interface {
	// Execute runs the transaction described by the environment. A reverted
	// execution is reported through the result; an error signals that the
	// transaction could not be processed at all.
	Execute(env *Environment, state state.State) (*ExecutionResult, error)
}

// Environment is the full context of a single transaction execution.
type Environment struct {
	Block BlockEnv
	Tx    TxEnv
}

// BlockEnv summarizes the block-level parameters shared by all transactions
// of a block.
type BlockEnv struct {
	Number     uint64         // the number of the block being built
	Coinbase   common.Address // the beneficiary of transaction tips
	Timestamp  uint64         // the block time in seconds since the epoch
	GasLimit   uint64         // the maximum amount of gas all transactions may use
	BaseFee    *uint256.Int   // the base fee per gas, nil if not enabled
	Difficulty *uint256.Int   // the block difficulty, nil for zero
	PrevRandao common.Hash    // the randomness beacon value
	ChainID    uint64         // the id of the chain
}

// TxKind distinguishes calls from contract creations.
type TxKind int

const (
	Call TxKind = iota
	Create
)

func (k TxKind) String() string {
	if k == Create {
		return "create"
	}
	return "call"
}

// TxEnv summarizes the parameters of the transaction to be executed.
type TxEnv struct {
	Hash       common.Hash      // the hash of the transaction
	Type       uint8            // the envelope type of the transaction
	Caller     common.Address   // the sender of the transaction, paying for its execution
	Kind       TxKind           // whether a contract is called or created
	To         *common.Address  // the receiver of the transaction, nil for creations
	Value      *uint256.Int     // the amount of network currency to transfer
	Input      []byte           // the call data or the init code
	Nonce      uint64           // the nonce of the sender account
	GasLimit   uint64           // the maximum amount of gas that can be used
	GasPrice   *uint256.Int     // the effective price of a unit of gas
	GasTipCap  *uint256.Int     // the maximum tip per gas, equal to GasPrice for legacy transactions
	GasFeeCap  *uint256.Int     // the maximum fee per gas, equal to GasPrice for legacy transactions
	AccessList types.AccessList // the accounts and slots expected to be accessed
}

// ExecutionResult summarizes the outcome of a transaction execution.
type ExecutionResult struct {
	Success         bool            // false if the execution ended in a revert
	Output          []byte          // the output produced by the transaction
	ContractAddress *common.Address // filled if a contract was created
	GasUsed         uint64          // the gas consumed, including intrinsic gas
	Logs            []*types.Log    // logs emitted by the transaction
}

// PendingTransaction is a validated transaction ready to be included in a
// block, along with its recovered sender.
type PendingTransaction struct {
	Tx     *types.Transaction
	Sender common.Address
}

// NewPendingTransaction recovers the sender of a signed transaction.
func NewPendingTransaction(tx *types.Transaction, signer types.Signer) (*PendingTransaction, error) {
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	return &PendingTransaction{Tx: tx, Sender: sender}, nil
}

// Hash returns the hash of the wrapped transaction.
func (p *PendingTransaction) Hash() common.Hash {
	return p.Tx.Hash()
}

// effectiveGasPrice is the price per gas charged for the transaction given
// the base fee of the block.
func effectiveGasPrice(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int {
	if baseFee == nil {
		return uint256.MustFromBig(tx.GasPrice())
	}
	tip := uint256.MustFromBig(tx.GasTipCap())
	feeCap := uint256.MustFromBig(tx.GasFeeCap())
	price := new(uint256.Int).Add(baseFee, tip)
	if price.Gt(feeCap) {
		return feeCap
	}
	return price
}

func newTxEnv(pending *PendingTransaction, baseFee *uint256.Int) TxEnv {
	tx := pending.Tx
	env := TxEnv{
		Hash:       tx.Hash(),
		Type:       tx.Type(),
		Caller:     pending.Sender,
		Kind:       Call,
		To:         tx.To(),
		Value:      uint256.MustFromBig(tx.Value()),
		Input:      tx.Data(),
		Nonce:      tx.Nonce(),
		GasLimit:   tx.Gas(),
		GasPrice:   effectiveGasPrice(tx, baseFee),
		GasTipCap:  uint256.MustFromBig(tx.GasTipCap()),
		GasFeeCap:  uint256.MustFromBig(tx.GasFeeCap()),
		AccessList: tx.AccessList(),
	}
	if env.To == nil {
		env.Kind = Create
	}
	return env
}
