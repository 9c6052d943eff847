// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cachestore

import (
	"fmt"

	"github.com/0xsoniclabs/forkchain/common"
)

const (
	ErrNotFound = common.ConstError("not found")
)

// Store is a key-value store used to persist the fetched remote state
// between runs.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key []byte, value []byte) error
	Close() error
}

// Kind selects the backend of a Store.
type Kind string

const (
	Memory  Kind = "memory"
	LevelDb Kind = "leveldb"
	Sqlite  Kind = "sqlite"
)

// Open creates a store of the given kind. The path is ignored for in-memory
// stores.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case Memory, "":
		return NewMemoryStore(), nil
	case LevelDb:
		return OpenLevelDbStore(path)
	case Sqlite:
		return OpenSqliteStore(path)
	}
	return nil, fmt.Errorf("unknown cache store kind: %q", kind)
}
