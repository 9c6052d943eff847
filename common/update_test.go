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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestUpdate_EmptyUpdateIsEmpty(t *testing.T) {
	update := Update{}
	require.True(t, update.IsEmpty())
	require.NoError(t, update.Check())
}

func TestUpdate_NonEmptyUpdatesAreDetected(t *testing.T) {
	tests := map[string]Update{
		"deleted": {DeletedAccounts: []Address{{1}}},
		"created": {CreatedAccounts: []Address{{1}}},
		"balance": {Balances: []BalanceUpdate{{Address{1}, uint256.NewInt(1)}}},
		"nonce":   {Nonces: []NonceUpdate{{Address{1}, 1}}},
		"code":    {Codes: []CodeUpdate{{Address{1}, []byte{1}}}},
		"slot":    {Slots: []SlotUpdate{{Address{1}, Hash{1}, Hash{2}}}},
	}
	for name, update := range tests {
		t.Run(name, func(t *testing.T) {
			require.False(t, update.IsEmpty())
		})
	}
}

func TestUpdate_CheckDetectsConflicts(t *testing.T) {
	update := Update{
		DeletedAccounts: []Address{{1}},
		CreatedAccounts: []Address{{1}},
	}
	require.Error(t, update.Check())

	update = Update{Balances: []BalanceUpdate{{Account: Address{1}}}}
	require.Error(t, update.Check())
}

func TestAccountInfo_CopyIsIndependent(t *testing.T) {
	info := NewAccountInfo()
	info.Balance.SetUint64(12)
	info.Code = []byte{1, 2, 3}

	copy := info.Copy()
	copy.Balance.SetUint64(14)
	copy.Code[0] = 7

	require.Equal(t, uint64(12), info.Balance.Uint64())
	require.Equal(t, byte(1), info.Code[0])
}

func TestAccountInfo_IsEmpty(t *testing.T) {
	var missing *AccountInfo
	require.True(t, missing.IsEmpty())
	require.True(t, NewAccountInfo().IsEmpty())

	info := NewAccountInfo()
	info.Nonce = 1
	require.False(t, info.IsEmpty())

	info = NewAccountInfo()
	info.CodeHash = Keccak256([]byte{1})
	require.False(t, info.IsEmpty())
}

func TestKeccak256_EmptyInputMatchesEmptyCodeHash(t *testing.T) {
	require.Equal(t, EmptyCodeHash, Keccak256(nil))
}
