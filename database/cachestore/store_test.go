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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ Store = (*levelDbStore)(nil)
var _ Store = (*sqliteStore)(nil)
var _ Store = (*memoryStore)(nil)

func TestPersistentStores_CanKeepDataPersistent(t *testing.T) {
	kinds := map[Kind]func(dir string) string{
		LevelDb: func(dir string) string { return dir },
		Sqlite:  func(dir string) string { return filepath.Join(dir, "cache.sqlite") },
	}
	for kind, pathOf := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			key1 := []byte("key1")
			value1 := []byte("value1")
			key2 := []byte("key2")
			value2 := []byte("value2")

			path := pathOf(t.TempDir())

			store, err := Open(kind, path)
			require.NoError(t, err)

			require.NoError(t, store.Set(key1, value1))
			require.NoError(t, store.Set(key2, value2))
			require.NoError(t, store.Close())

			store2, err := Open(kind, path)
			require.NoError(t, err)

			val, err := store2.Get(key1)
			require.NoError(t, err)
			require.Equal(t, value1, val)

			val, err = store2.Get(key2)
			require.NoError(t, err)
			require.Equal(t, value2, val)

			require.NoError(t, store2.Close())
		})
	}
}

func TestStores_ReturnNotFoundForMissingKey(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]func() (Store, error){
		"memory":  func() (Store, error) { return Open(Memory, "") },
		"leveldb": func() (Store, error) { return Open(LevelDb, filepath.Join(dir, "ldb")) },
		"sqlite":  func() (Store, error) { return Open(Sqlite, filepath.Join(dir, "db.sqlite")) },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store, err := open()
			require.NoError(t, err)

			_, err = store.Get([]byte("nonexistent"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Close())
		})
	}
}

func TestStores_OverwriteExistingValues(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]func() (Store, error){
		"memory":  func() (Store, error) { return Open(Memory, "") },
		"leveldb": func() (Store, error) { return Open(LevelDb, filepath.Join(dir, "ldb")) },
		"sqlite":  func() (Store, error) { return Open(Sqlite, filepath.Join(dir, "db.sqlite")) },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			store, err := open()
			require.NoError(err)

			require.NoError(store.Set([]byte("k"), []byte("a")))
			require.NoError(store.Set([]byte("k"), []byte("b")))
			val, err := store.Get([]byte("k"))
			require.NoError(err)
			require.Equal([]byte("b"), val)

			require.NoError(store.Close())
		})
	}
}

func TestMemoryStore_CopiesStoredValues(t *testing.T) {
	require := require.New(t)
	store := newMemoryStore()

	value := []byte{1, 2, 3}
	require.NoError(store.Set([]byte("k"), value))
	value[0] = 9

	got, err := store.Get([]byte("k"))
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, got)
}

func TestOpen_UnknownKindFails(t *testing.T) {
	_, err := Open("unknown", t.TempDir())
	require.Error(t, err)
}

func TestBlockCacheCapacity_IsClamped(t *testing.T) {
	require.Equal(t, minBlockCache, blockCacheCapacity(0))
	require.Equal(t, maxBlockCache, blockCacheCapacity(1<<50))
	require.Equal(t, 64<<20, blockCacheCapacity(16<<30))
}
