// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import (
	"github.com/0xsoniclabs/forkchain/common"
	"github.com/holiman/uint256"
)

// Config defines the parameters of a local chain.
type Config struct {
	ChainID   uint64         // < ignored for forks, which use the remote chain id
	GasLimit  uint64         // < gas limit of mined blocks
	BaseFee   *uint256.Int   // < base fee of mined blocks, nil to disable
	Coinbase  common.Address // < beneficiary of mined blocks
	Timestamp uint64         // < genesis timestamp of in-memory chains, 0 for now
	Genesis   GenesisConfig
}

// GenesisConfig lists the accounts funded when the chain is created.
type GenesisConfig struct {
	Accounts []common.Address
	Balance  *uint256.Int
}

// DefaultConfig returns the configuration of a development chain with ten
// funded accounts.
func DefaultConfig() Config {
	accounts := make([]common.Address, 10)
	for i := range accounts {
		accounts[i] = common.BytesToAddress([]byte{0xde, 0xad, byte(i + 1)})
	}
	return Config{
		ChainID:  31337,
		GasLimit: 30_000_000,
		BaseFee:  uint256.NewInt(1_000_000_000),
		Genesis: GenesisConfig{
			Accounts: accounts,
			Balance:  new(uint256.Int).Mul(uint256.NewInt(10_000), uint256.NewInt(1e18)),
		},
	}
}
