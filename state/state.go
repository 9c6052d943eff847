// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

//go:generate mockgen -source state.go -destination state_mock.go -package state

import (
	"strconv"

	"github.com/0xsoniclabs/forkchain/common"
)

// StateSource provides read access to the world state. Implementations must
// be safe for concurrent use.
type StateSource interface {
	// Basic returns the basic information of an account or nil if the
	// account does not exist.
	Basic(address common.Address) (*common.AccountInfo, error)
	// CodeByHash returns the code with the given hash.
	CodeByHash(hash common.Hash) ([]byte, error)
	// Storage returns the value of a storage slot; missing slots are zero.
	Storage(address common.Address, key common.Hash) (common.Hash, error)
	// BlockHash returns the hash of the block with the given number.
	BlockHash(number uint64) (common.Hash, error)
}

// State is a StateSource accepting updates.
type State interface {
	StateSource
	// Apply commits the given changes. Either all changes are applied or,
	// in case of an error, none of them.
	Apply(update common.Update) error
}

// EmptySource is a StateSource without any accounts. Block hashes are the
// hash of the decimal representation of the block number.
type EmptySource struct{}

func (EmptySource) Basic(common.Address) (*common.AccountInfo, error) {
	return nil, nil
}

func (EmptySource) CodeByHash(common.Hash) ([]byte, error) {
	return nil, nil
}

func (EmptySource) Storage(common.Address, common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}

func (EmptySource) BlockHash(number uint64) (common.Hash, error) {
	return common.Keccak256([]byte(strconv.FormatUint(number, 10))), nil
}
