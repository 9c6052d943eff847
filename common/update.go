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
	"fmt"

	"github.com/holiman/uint256"
)

// Update summarizes the effective changes to the state of a chain caused by
// a transaction or a block. Entries are applied in field order: deletions
// first, then creations, then balances, nonces, codes and storage slots.
type Update struct {
	DeletedAccounts []Address
	CreatedAccounts []Address
	Balances        []BalanceUpdate
	Nonces          []NonceUpdate
	Codes           []CodeUpdate
	Slots           []SlotUpdate
}

type BalanceUpdate struct {
	Account Address
	Balance *uint256.Int
}

type NonceUpdate struct {
	Account Address
	Nonce   uint64
}

type CodeUpdate struct {
	Account Address
	Code    []byte
}

type SlotUpdate struct {
	Account Address
	Key     Hash
	Value   Hash
}

// IsEmpty is true if there is no change covered by this update.
func (u *Update) IsEmpty() bool {
	return len(u.DeletedAccounts) == 0 &&
		len(u.CreatedAccounts) == 0 &&
		len(u.Balances) == 0 &&
		len(u.Nonces) == 0 &&
		len(u.Codes) == 0 &&
		len(u.Slots) == 0
}

// Check verifies that no account is both deleted and created within the same
// update and that every balance is set.
func (u *Update) Check() error {
	deleted := make(map[Address]struct{}, len(u.DeletedAccounts))
	for _, addr := range u.DeletedAccounts {
		deleted[addr] = struct{}{}
	}
	for _, addr := range u.CreatedAccounts {
		if _, found := deleted[addr]; found {
			return fmt.Errorf("account %v is deleted and created in the same update", addr)
		}
	}
	for _, cur := range u.Balances {
		if cur.Balance == nil {
			return fmt.Errorf("missing balance for account %v", cur.Account)
		}
	}
	return nil
}
