// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package transfer provides an interpreter supporting plain value transfers
// and the deployment of code. It does not execute contract code; calls into
// accounts with code are reverted.
package transfer

import (
	"fmt"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/0xsoniclabs/forkchain/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

const (
	ErrNonceMismatch     = common.ConstError("nonce mismatch")
	ErrIntrinsicGas      = common.ConstError("intrinsic gas too low")
	ErrInsufficientFunds = common.ConstError("insufficient funds for gas * price + value")
)

// Interpreter is an executor.Interpreter for value transfers.
type Interpreter struct{}

var _ executor.Interpreter = Interpreter{}

func (Interpreter) Execute(env *executor.Environment, st state.State) (*executor.ExecutionResult, error) {
	tx := &env.Tx
	ctxt := newBalances(st)

	sender, err := st.Basic(tx.Caller)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		sender = common.NewAccountInfo()
	}
	if sender.Nonce != tx.Nonce {
		return nil, fmt.Errorf("%w: account %v has nonce %d, transaction %d", ErrNonceMismatch, tx.Caller, sender.Nonce, tx.Nonce)
	}

	gas := IntrinsicGas(tx)
	if gas > tx.GasLimit {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.GasLimit, gas)
	}

	price := tx.GasPrice
	if price == nil {
		price = new(uint256.Int)
	}
	value := tx.Value
	if value == nil {
		value = new(uint256.Int)
	}
	maxCost, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(tx.GasLimit))
	if _, o := maxCost.AddOverflow(maxCost, value); o || overflow {
		return nil, ErrInsufficientFunds
	}
	balance, err := ctxt.get(tx.Caller)
	if err != nil {
		return nil, err
	}
	if balance.Lt(maxCost) {
		return nil, fmt.Errorf("%w: address %v have %v want %v", ErrInsufficientFunds, tx.Caller, balance, maxCost)
	}

	update := common.Update{
		Nonces: []common.NonceUpdate{{Account: tx.Caller, Nonce: sender.Nonce + 1}},
	}
	result := &executor.ExecutionResult{Success: true, GasUsed: gas}

	fee := new(uint256.Int).Mul(price, uint256.NewInt(gas))
	if err := ctxt.sub(tx.Caller, fee); err != nil {
		return nil, err
	}

	switch tx.Kind {
	case executor.Create:
		address := crypto.CreateAddress(tx.Caller, tx.Nonce)
		existing, err := st.Basic(address)
		if err != nil {
			return nil, err
		}
		if existing != nil && (existing.Nonce != 0 || hasCode(existing)) {
			result.Success = false
			break
		}
		if err := ctxt.transfer(tx.Caller, address, value); err != nil {
			return nil, err
		}
		update.CreatedAccounts = append(update.CreatedAccounts, address)
		update.Nonces = append(update.Nonces, common.NonceUpdate{Account: address, Nonce: 1})
		if len(tx.Input) > 0 {
			update.Codes = append(update.Codes, common.CodeUpdate{Account: address, Code: tx.Input})
		}
		result.ContractAddress = &address
	case executor.Call:
		recipient, err := st.Basic(*tx.To)
		if err != nil {
			return nil, err
		}
		if recipient != nil && hasCode(recipient) {
			result.Success = false
			break
		}
		if err := ctxt.transfer(tx.Caller, *tx.To, value); err != nil {
			return nil, err
		}
	}

	tip := new(uint256.Int).Set(price)
	if baseFee := env.Block.BaseFee; baseFee != nil {
		if tip.Lt(baseFee) {
			tip.Clear()
		} else {
			tip.Sub(tip, baseFee)
		}
	}
	if err := ctxt.add(env.Block.Coinbase, tip.Mul(tip, uint256.NewInt(gas))); err != nil {
		return nil, err
	}

	// balance updates are applied after account creations
	update.Balances = ctxt.updates()
	if err := st.Apply(update); err != nil {
		return nil, err
	}
	return result, nil
}

func hasCode(info *common.AccountInfo) bool {
	return info.CodeHash != common.EmptyCodeHash && info.CodeHash != (common.Hash{})
}

// IntrinsicGas computes the gas charged for a transaction before any code is
// executed.
func IntrinsicGas(tx *executor.TxEnv) uint64 {
	gas := params.TxGas
	if tx.Kind == executor.Create {
		gas = params.TxGasContractCreation
	}
	for _, b := range tx.Input {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	for _, tuple := range tx.AccessList {
		gas += params.TxAccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * params.TxAccessListStorageKeyGas
	}
	return gas
}

// balances tracks the balances modified by a transaction in the order they
// were first touched.
type balances struct {
	source  state.StateSource
	order   []common.Address
	current map[common.Address]*uint256.Int
}

func newBalances(source state.StateSource) *balances {
	return &balances{source: source, current: map[common.Address]*uint256.Int{}}
}

func (b *balances) get(address common.Address) (*uint256.Int, error) {
	if balance, found := b.current[address]; found {
		return balance, nil
	}
	info, err := b.source.Basic(address)
	if err != nil {
		return nil, err
	}
	balance := new(uint256.Int)
	if info != nil && info.Balance != nil {
		balance.Set(info.Balance)
	}
	b.current[address] = balance
	b.order = append(b.order, address)
	return balance, nil
}

func (b *balances) add(address common.Address, amount *uint256.Int) error {
	balance, err := b.get(address)
	if err != nil {
		return err
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return fmt.Errorf("balance overflow for %v", address)
	}
	return nil
}

func (b *balances) sub(address common.Address, amount *uint256.Int) error {
	balance, err := b.get(address)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: address %v", ErrInsufficientFunds, address)
	}
	balance.Sub(balance, amount)
	return nil
}

func (b *balances) transfer(from, to common.Address, amount *uint256.Int) error {
	if err := b.sub(from, amount); err != nil {
		return err
	}
	return b.add(to, amount)
}

func (b *balances) updates() []common.BalanceUpdate {
	res := make([]common.BalanceUpdate, 0, len(b.order))
	for _, address := range b.order {
		res = append(res, common.BalanceUpdate{Account: address, Balance: b.current[address]})
	}
	return res
}
