// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package filters

import (
	"sync"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Notification is a single item pushed to a subscription.
type Notification struct {
	Log    *types.Log    // < set for logs subscriptions
	Header *types.Header // < set for block subscriptions
	Hash   common.Hash   // < the hash of the block or the pending transaction
}

// Subscription is the push counterpart of a filter. Items are queued as
// blocks are mined or transactions become pending, in production order, and
// are drained by the transport layer. If the queue is full, the oldest item
// is dropped.
type Subscription struct {
	ID      rpc.ID
	Kind    Kind
	matcher *matcher // < nil unless Kind is LogsKind
	limit   int

	mu    sync.Mutex
	queue []Notification
	ready chan struct{}
}

func newSubscription(kind Kind, criteria *Criteria, limit int) *Subscription {
	res := &Subscription{
		ID:    rpc.NewID(),
		Kind:  kind,
		limit: max(1, limit),
		ready: make(chan struct{}, 1),
	}
	if kind == LogsKind {
		res.matcher = newMatcher(criteria)
	}
	return res
}

// Criteria returns the log criteria of a logs subscription, nil otherwise.
func (s *Subscription) Criteria() *Criteria {
	if s.matcher == nil {
		return nil
	}
	return s.matcher.criteria.Copy()
}

// Ready returns a channel signalled whenever new items are queued.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Drain returns all queued items and empties the queue. It never blocks.
func (s *Subscription) Drain() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.queue
	s.queue = nil
	return res
}

func (s *Subscription) push(items ...Notification) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, items...)
	if dropped := len(s.queue) - s.limit; dropped > 0 {
		log.Warn("Subscription queue full, dropping oldest items", "id", s.ID, "dropped", dropped)
		droppedCounter.Inc(int64(dropped))
		s.queue = append(s.queue[:0:0], s.queue[dropped:]...)
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}
