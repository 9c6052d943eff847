// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package layered

import (
	"sync"

	"github.com/0xsoniclabs/forkchain/database/overlay"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/holiman/uint256"
)

// snapshot is a full copy of the local overlay and of the fetched cache.
type snapshot struct {
	overlay *overlay.State
	cache   *remote.CacheSnapshot // < nil for in-memory stores
}

// snapshots maintains the active snapshots in creation order.
type snapshots struct {
	mu      sync.Mutex
	last    uint256.Int
	entries *linkedhashmap.Map // < uint256.Int => *snapshot
}

func newSnapshots() *snapshots {
	return &snapshots{entries: linkedhashmap.New()}
}

func (s *snapshots) add(snap *snapshot) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last.AddUint64(&s.last, 1)
	s.entries.Put(s.last, snap)
	return new(uint256.Int).Set(&s.last)
}

func (s *snapshots) remove(id *uint256.Int) (*snapshot, bool) {
	if id == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, found := s.entries.Get(*id)
	if !found {
		return nil, false
	}
	s.entries.Remove(*id)
	return value.(*snapshot), true
}

// removeAfter drops all snapshots with an id above the given one.
func (s *snapshots) removeAfter(id *uint256.Int) []*uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*uint256.Int
	for _, key := range s.entries.Keys() {
		cur := key.(uint256.Int)
		if cur.Gt(id) {
			s.entries.Remove(cur)
			res = append(res, &cur)
		}
	}
	return res
}

// ids lists the active snapshot ids in creation order.
func (s *snapshots) ids() []*uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]*uint256.Int, 0, s.entries.Size())
	for _, key := range s.entries.Keys() {
		id := key.(uint256.Int)
		res = append(res, &id)
	}
	return res
}

// clear drops all snapshots. Ids are not reused.
func (s *snapshots) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Clear()
}
