// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package mpt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
)

// Account is the content of an account contributing to a state root.
type Account struct {
	Address common.Address
	Info    *common.AccountInfo // < nil for deleted accounts, which are skipped
	Storage map[common.Hash]common.Hash
}

// StateRoot computes the root hash of the Merkle-Patricia-Trie holding the
// given accounts, using the key and value layout of Ethereum's world state.
func StateRoot(accounts []Account) (common.Hash, error) {
	type leaf struct {
		key   common.Hash
		value []byte
	}
	leaves := make([]leaf, 0, len(accounts))
	for _, account := range accounts {
		if account.Info == nil {
			continue
		}
		storageRoot, err := StorageRoot(account.Storage)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to hash storage of %v: %w", account.Address, err)
		}
		value, err := encodeAccount(account.Info, storageRoot)
		if err != nil {
			return common.Hash{}, err
		}
		leaves = append(leaves, leaf{key: common.Keccak256(account.Address[:]), value: value})
	}

	// the stack trie requires keys in ascending order
	slices.SortFunc(leaves, func(a, b leaf) int {
		return bytes.Compare(a.key[:], b.key[:])
	})
	hasher := trie.NewStackTrie(nil)
	for _, cur := range leaves {
		if err := hasher.Update(cur.key[:], cur.value); err != nil {
			return common.Hash{}, err
		}
	}
	return hasher.Hash(), nil
}

// StorageRoot computes the root hash of an account's storage trie. Zero
// values are not part of the trie.
func StorageRoot(storage map[common.Hash]common.Hash) (common.Hash, error) {
	keys := make([]common.Hash, 0, len(storage))
	values := make(map[common.Hash][]byte, len(storage))
	for key, value := range storage {
		if value == (common.Hash{}) {
			continue
		}
		encoded, err := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
		if err != nil {
			return common.Hash{}, err
		}
		hashed := common.Keccak256(key[:])
		keys = append(keys, hashed)
		values[hashed] = encoded
	}
	slices.SortFunc(keys, func(a, b common.Hash) int {
		return bytes.Compare(a[:], b[:])
	})

	hasher := trie.NewStackTrie(nil)
	for _, key := range keys {
		if err := hasher.Update(key[:], values[key]); err != nil {
			return common.Hash{}, err
		}
	}
	return hasher.Hash(), nil
}

func encodeAccount(info *common.AccountInfo, storageRoot common.Hash) ([]byte, error) {
	balance := info.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	codeHash := info.CodeHash
	if codeHash == (common.Hash{}) {
		codeHash = common.EmptyCodeHash
	}
	return rlp.EncodeToBytes(&types.StateAccount{
		Nonce:    info.Nonce,
		Balance:  balance,
		Root:     storageRoot,
		CodeHash: codeHash[:],
	})
}
