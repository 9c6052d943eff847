// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package overlay

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/database/mpt"
	"github.com/0xsoniclabs/forkchain/state"
	"github.com/holiman/uint256"
)

// State is an in-memory write layer on top of a read-only state source. All
// modifications are recorded in the overlay; reads of data not touched by
// the overlay are forwarded to the source. A State is not safe for
// concurrent use.
type State struct {
	source      state.StateSource
	accounts    map[common.Address]*account
	codes       map[common.Hash][]byte
	blockHashes map[uint64]common.Hash
}

type account struct {
	info *common.AccountInfo // < nil if the account does not exist
	// If set, slots not listed in storage are zero instead of being looked
	// up in the source. This is the case for deleted and re-created accounts.
	cleared bool
	storage map[common.Hash]common.Hash
}

func NewState(source state.StateSource) *State {
	if source == nil {
		source = state.EmptySource{}
	}
	return &State{
		source:      source,
		accounts:    make(map[common.Address]*account),
		codes:       make(map[common.Hash][]byte),
		blockHashes: make(map[uint64]common.Hash),
	}
}

// Source returns the state source the overlay is layered on.
func (s *State) Source() state.StateSource {
	return s.source
}

func (s *State) Basic(address common.Address) (*common.AccountInfo, error) {
	if acc, found := s.accounts[address]; found {
		return acc.info.Copy(), nil
	}
	return s.source.Basic(address)
}

func (s *State) CodeByHash(hash common.Hash) ([]byte, error) {
	if code, found := s.codes[hash]; found {
		return code, nil
	}
	return s.source.CodeByHash(hash)
}

func (s *State) Storage(address common.Address, key common.Hash) (common.Hash, error) {
	if acc, found := s.accounts[address]; found {
		if value, found := acc.storage[key]; found {
			return value, nil
		}
		if acc.cleared || acc.info == nil {
			return common.Hash{}, nil
		}
	}
	return s.source.Storage(address, key)
}

func (s *State) BlockHash(number uint64) (common.Hash, error) {
	if hash, found := s.blockHashes[number]; found {
		return hash, nil
	}
	return s.source.BlockHash(number)
}

// InsertAccount replaces the basic information of an account. Existing
// storage of the account is retained. A nil info inserts an empty account.
func (s *State) InsertAccount(address common.Address, info *common.AccountInfo) {
	if info == nil {
		info = common.NewAccountInfo()
	}
	info = info.Copy()
	if info.Balance == nil {
		info.Balance = new(uint256.Int)
	}
	if len(info.Code) > 0 {
		info.CodeHash = common.Keccak256(info.Code)
		s.codes[info.CodeHash] = info.Code
	} else if info.CodeHash == (common.Hash{}) {
		info.CodeHash = common.EmptyCodeHash
	}
	if acc, found := s.accounts[address]; found {
		acc.info = info
		return
	}
	s.accounts[address] = &account{info: info, storage: map[common.Hash]common.Hash{}}
}

// SetStorageAt sets a single storage slot. An account not yet present in
// the overlay is loaded from the source first.
func (s *State) SetStorageAt(address common.Address, key, value common.Hash) error {
	acc, err := s.load(address)
	if err != nil {
		return err
	}
	acc.storage[key] = value
	return nil
}

// InsertBlockHash records the hash of a locally mined block.
func (s *State) InsertBlockHash(number uint64, hash common.Hash) {
	s.blockHashes[number] = hash
}

// load returns the overlay entry of an account, creating it from the source
// if needed. Non-existing accounts are created empty.
func (s *State) load(address common.Address) (*account, error) {
	if acc, found := s.accounts[address]; found {
		if acc.info == nil {
			acc.info = common.NewAccountInfo()
		}
		return acc, nil
	}
	info, err := s.source.Basic(address)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %v: %w", address, err)
	}
	cleared := false
	if info == nil {
		info = common.NewAccountInfo()
		cleared = true
	}
	acc := &account{info: info, cleared: cleared, storage: map[common.Hash]common.Hash{}}
	s.accounts[address] = acc
	return acc, nil
}

// Apply records the given update in the overlay. Accounts modified by the
// update that are not yet present are loaded from the source first; if this
// fails, the overlay is not modified.
func (s *State) Apply(update common.Update) error {
	if err := update.Check(); err != nil {
		return err
	}

	// Resolve all touched accounts before modifying anything.
	touched := map[common.Address]struct{}{}
	for _, cur := range update.Balances {
		touched[cur.Account] = struct{}{}
	}
	for _, cur := range update.Nonces {
		touched[cur.Account] = struct{}{}
	}
	for _, cur := range update.Codes {
		touched[cur.Account] = struct{}{}
	}
	for _, cur := range update.Slots {
		touched[cur.Account] = struct{}{}
	}
	for _, address := range update.DeletedAccounts {
		delete(touched, address)
	}
	for _, address := range update.CreatedAccounts {
		delete(touched, address)
	}
	loaded := map[common.Address]*common.AccountInfo{}
	for address := range touched {
		if _, found := s.accounts[address]; found {
			continue
		}
		info, err := s.source.Basic(address)
		if err != nil {
			return fmt.Errorf("failed to load account %v: %w", address, err)
		}
		loaded[address] = info
	}
	for address, info := range loaded {
		acc := &account{info: info, storage: map[common.Hash]common.Hash{}}
		if info == nil {
			acc.info = common.NewAccountInfo()
			acc.cleared = true
		}
		s.accounts[address] = acc
	}

	for _, address := range update.DeletedAccounts {
		s.accounts[address] = &account{cleared: true, storage: map[common.Hash]common.Hash{}}
	}

	// init potentially empty accounts with empty code hash
	for _, address := range update.CreatedAccounts {
		s.accounts[address] = &account{
			info:    common.NewAccountInfo(),
			cleared: true,
			storage: map[common.Hash]common.Hash{},
		}
	}

	for _, cur := range update.Balances {
		acc := s.existing(cur.Account)
		acc.info.Balance = new(uint256.Int).Set(cur.Balance)
	}

	for _, cur := range update.Nonces {
		s.existing(cur.Account).info.Nonce = cur.Nonce
	}

	for _, cur := range update.Codes {
		acc := s.existing(cur.Account)
		hash := common.Keccak256(cur.Code)
		acc.info.CodeHash = hash
		acc.info.Code = cur.Code
		s.codes[hash] = cur.Code
	}

	for _, cur := range update.Slots {
		s.existing(cur.Account).storage[cur.Key] = cur.Value
	}
	return nil
}

// existing returns the overlay entry of an account known to be present,
// reviving deleted accounts.
func (s *State) existing(address common.Address) *account {
	acc := s.accounts[address]
	if acc.info == nil {
		acc.info = common.NewAccountInfo()
	}
	return acc
}

// Accounts lists all accounts recorded by the overlay, including deleted
// ones, which have no info. The result shares no data with the overlay.
func (s *State) Accounts() []mpt.Account {
	res := make([]mpt.Account, 0, len(s.accounts))
	for address, acc := range s.accounts {
		res = append(res, mpt.Account{
			Address: address,
			Info:    acc.info.Copy(),
			Storage: maps.Clone(acc.storage),
		})
	}
	return res
}

// Clone creates a deep copy of the overlay sharing the same source.
func (s *State) Clone() *State {
	res := &State{
		source:      s.source,
		accounts:    make(map[common.Address]*account, len(s.accounts)),
		codes:       maps.Clone(s.codes),
		blockHashes: maps.Clone(s.blockHashes),
	}
	for address, acc := range s.accounts {
		res.accounts[address] = &account{
			info:    acc.info.Copy(),
			cleared: acc.cleared,
			storage: maps.Clone(acc.storage),
		}
	}
	return res
}

// Size summarizes the number of entries held by the overlay.
type Size struct {
	Accounts    int
	Slots       int
	Codes       int
	BlockHashes int
	Bytes       uintptr // < rough estimate of the memory used by map entries
}

func (s *State) Size() Size {
	res := Size{
		Accounts:    len(s.accounts),
		Codes:       len(s.codes),
		BlockHashes: len(s.blockHashes),
	}
	res.Bytes = memoryOfMap(s.accounts) + memoryOfMap(s.codes) + memoryOfMap(s.blockHashes)
	for _, acc := range s.accounts {
		res.Slots += len(acc.storage)
		res.Bytes += memoryOfMap(acc.storage)
	}
	for _, code := range s.codes {
		res.Bytes += uintptr(len(code))
	}
	return res
}

func memoryOfMap[A comparable, B any](m map[A]B) uintptr {
	entrySize :=
		reflect.TypeFor[A]().Size() +
			reflect.TypeFor[B]().Size()
	return uintptr(len(m)) * entrySize
}
