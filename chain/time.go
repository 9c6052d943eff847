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
	"fmt"
	"sync"
	"time"

	"github.com/0xsoniclabs/forkchain/common"
)

const ErrTimestampTooLow = common.ConstError("timestamp not after the last block")

// TimeManager hands out block timestamps. Timestamps follow the wall clock
// shifted by an adjustable offset, or advance by a fixed interval if one is
// set, and are strictly increasing. The clock starts at the timestamp of the
// chain head.
type TimeManager struct {
	mu       sync.Mutex
	last     uint64
	offset   time.Duration
	interval uint64  // < zero if not set
	next     *uint64 // < exact timestamp of the next block, if set
	now      func() time.Time
}

func NewTimeManager(start uint64) *TimeManager {
	return newTimeManager(start, time.Now)
}

func newTimeManager(start uint64, now func() time.Time) *TimeManager {
	res := &TimeManager{now: now}
	res.Reset(start)
	return res
}

// NextTimestamp returns the timestamp for the next block.
func (t *TimeManager) NextTimestamp() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next != nil {
		next := *t.next
		t.next = nil
		t.last = next
		t.offset = time.Unix(int64(next), 0).Sub(t.now())
		return next
	}
	next := uint64(t.now().Add(t.offset).Unix())
	if t.interval > 0 {
		next = t.last + t.interval
	}
	if next <= t.last {
		next = t.last + 1
	}
	t.last = next
	return next
}

// LastTimestamp returns the timestamp of the last block.
func (t *TimeManager) LastTimestamp() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// IncreaseTime shifts all future timestamps by the given duration.
func (t *TimeManager) IncreaseTime(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset += d
}

// SetInterval makes consecutive blocks exactly the given number of seconds
// apart. Zero restores wall-clock timestamps.
func (t *TimeManager) SetInterval(seconds uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = seconds
}

// SetNextTimestamp fixes the timestamp of the next block. Later blocks
// continue from there.
func (t *TimeManager) SetNextTimestamp(timestamp uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timestamp <= t.last {
		return fmt.Errorf("%w: %d <= %d", ErrTimestampTooLow, timestamp, t.last)
	}
	t.next = &timestamp
	return nil
}

// Reset sets the timestamp of the last block and moves the clock such that
// the current time equals this timestamp.
func (t *TimeManager) Reset(last uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = last
	t.next = nil
	t.offset = time.Unix(int64(last), 0).Sub(t.now())
}
