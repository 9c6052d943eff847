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
	"github.com/pbnjay/memory"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	minBlockCache = 8 << 20
	maxBlockCache = 256 << 20
)

// levelDbStore is a Store backed by LevelDB. Values are compressed by the
// callers, so LevelDB's own compression is disabled.
type levelDbStore struct {
	db *leveldb.DB
}

func OpenLevelDbStore(path string) (Store, error) {
	return newLevelDbStore(path)
}

func newLevelDbStore(path string) (*levelDbStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: blockCacheCapacity(memory.TotalMemory()),
		Compression:        opt.NoCompression,
	})
	if err != nil {
		return nil, err
	}
	return &levelDbStore{db: db}, nil
}

// blockCacheCapacity uses 1/256 of the system memory, clamped to a sane range.
func blockCacheCapacity(total uint64) int {
	size := total / 256
	if size < minBlockCache {
		return minBlockCache
	}
	if size > maxBlockCache {
		return maxBlockCache
	}
	return int(size)
}

func (s *levelDbStore) Get(key []byte) ([]byte, error) {
	data, err := s.db.Get(key, &opt.ReadOptions{})
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *levelDbStore) Set(key []byte, value []byte) error {
	return s.db.Put(key, value, &opt.WriteOptions{Sync: true})
}

func (s *levelDbStore) Close() error {
	return s.db.Close()
}
