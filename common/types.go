// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Address and Hash are shared with go-ethereum so values can flow into
// receipts, logs and headers without conversion.
type (
	Address = gethcommon.Address
	Hash    = gethcommon.Hash
)

var (
	// EmptyCodeHash is the Keccak256 hash of empty code.
	EmptyCodeHash = Hash(types.EmptyCodeHash)
)

// Keccak256 computes the Keccak256 hash of the given data.
func Keccak256(data []byte) Hash {
	return crypto.Keccak256Hash(data)
}

// BytesToHash converts b to a hash, left-padding or cropping it to 32 bytes.
func BytesToHash(b []byte) Hash {
	return gethcommon.BytesToHash(b)
}

// BytesToAddress converts b to an address, left-padding or cropping it to
// 20 bytes.
func BytesToAddress(b []byte) Address {
	return gethcommon.BytesToAddress(b)
}

// AccountInfo is the basic information of an account. Code is optional; if it
// is nil, the code can be looked up through CodeHash.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash Hash
	Code     []byte
}

// NewAccountInfo creates an empty account with no code.
func NewAccountInfo() *AccountInfo {
	return &AccountInfo{
		Balance:  new(uint256.Int),
		CodeHash: EmptyCodeHash,
	}
}

// Copy returns a deep copy of the account info.
func (a *AccountInfo) Copy() *AccountInfo {
	if a == nil {
		return nil
	}
	res := &AccountInfo{
		Balance:  new(uint256.Int),
		Nonce:    a.Nonce,
		CodeHash: a.CodeHash,
	}
	if a.Balance != nil {
		res.Balance.Set(a.Balance)
	}
	if a.Code != nil {
		res.Code = append([]byte{}, a.Code...)
	}
	return res
}

// IsEmpty reports whether the account has no balance, no nonce and no code.
func (a *AccountInfo) IsEmpty() bool {
	if a == nil {
		return true
	}
	noCode := a.CodeHash == EmptyCodeHash || a.CodeHash == (Hash{})
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && noCode
}
