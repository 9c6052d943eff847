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
	"context"
	"sync"
	"time"

	"github.com/0xsoniclabs/forkchain/chain"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/jellydator/ttlcache/v3"
)

var (
	installedCounter = metrics.NewRegisteredCounter("forkchain/filters/installed", nil)
	evictedCounter   = metrics.NewRegisteredCounter("forkchain/filters/evicted", nil)
	droppedCounter   = metrics.NewRegisteredCounter("forkchain/filters/dropped", nil)
)

// Backend is the chain observed by an Engine.
type Backend interface {
	ChainReader
	SubscribeNewBlocks(ch chan<- chain.NewBlockEvent) event.Subscription
	SubscribePendingTxs(ch chan<- chain.NewPendingTxsEvent) event.Subscription
}

var _ Backend = (*chain.Backend)(nil)

// Config defines the lifecycle parameters of filters and subscriptions.
type Config struct {
	Keepalive          time.Duration // < filters not polled for this long are evicted
	EvictionInterval   time.Duration // < period of the eviction loop started by Run
	SubscriptionBuffer int           // < maximum number of queued items per subscription
	LogCacheSize       int           // < number of blocks whose logs are cached
}

func DefaultConfig() Config {
	return Config{
		Keepalive:          5 * time.Minute,
		EvictionInterval:   time.Minute,
		SubscriptionBuffer: 1024,
		LogCacheSize:       128,
	}
}

// Engine maintains the filters and subscriptions of a chain.
//
// All filter and subscription operations are executed by a single dispatcher
// goroutine which also receives the block and transaction events of the
// chain. Since events are delivered synchronously, a poll issued after a block
// was mined observes this block.
type Engine struct {
	cfg     Config
	backend Backend
	logs    *logSource
	filters *ttlcache.Cache[rpc.ID, *filter]
	subs    map[rpc.ID]*Subscription

	mu       sync.Mutex // < held while an operation is executed
	requests chan func()
	blockSub event.Subscription
	txSub    event.Subscription
	quit     chan struct{}
	done     chan struct{}
	closed   sync.Once
}

// New creates an engine observing the given chain. The engine must be
// closed to release its dispatcher goroutine.
func New(backend Backend, cfg Config) (*Engine, error) {
	source, err := newLogSource(backend, cfg.LogCacheSize)
	if err != nil {
		return nil, err
	}
	res := &Engine{
		cfg:     cfg,
		backend: backend,
		logs:    source,
		filters: ttlcache.New[rpc.ID, *filter](
			ttlcache.WithTTL[rpc.ID, *filter](cfg.Keepalive),
			ttlcache.WithDisableTouchOnHit[rpc.ID, *filter](),
		),
		subs:     map[rpc.ID]*Subscription{},
		requests: make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	res.filters.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[rpc.ID, *filter]) {
		if reason == ttlcache.EvictionReasonExpired {
			evictedCounter.Inc(1)
			log.Debug("Evicted filter", "id", item.Key(), "kind", item.Value().kind)
		}
	})

	blocks := make(chan chain.NewBlockEvent)
	txs := make(chan chain.NewPendingTxsEvent)
	res.blockSub = backend.SubscribeNewBlocks(blocks)
	res.txSub = backend.SubscribePendingTxs(txs)
	go res.dispatch(blocks, txs)
	return res, nil
}

func (e *Engine) dispatch(blocks <-chan chain.NewBlockEvent, txs <-chan chain.NewPendingTxsEvent) {
	defer close(e.done)
	blockErr, txErr := e.blockSub.Err(), e.txSub.Err()
	for {
		select {
		case ev := <-blocks:
			e.mu.Lock()
			e.onBlock(ev)
			e.mu.Unlock()
		case ev := <-txs:
			e.mu.Lock()
			e.onPending(ev)
			e.mu.Unlock()
		case fn := <-e.requests:
			e.mu.Lock()
			fn()
			e.mu.Unlock()
		case <-blockErr:
			blocks, blockErr = nil, nil
		case <-txErr:
			txs, txErr = nil, nil
		case <-e.quit:
			return
		}
	}
}

// do runs fn in the dispatcher, or directly if the engine is closed.
func (e *Engine) do(fn func()) {
	finished := make(chan struct{})
	select {
	case e.requests <- func() { fn(); close(finished) }:
		<-finished
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		fn()
	}
}

func (e *Engine) onBlock(ev chain.NewBlockEvent) {
	for _, item := range e.filters.Items() {
		item.Value().onBlock(ev.Hash, ev.Number)
	}
	if len(e.subs) == 0 {
		return
	}
	block := e.backend.BlockByHash(ev.Hash)
	if block == nil {
		return
	}
	for _, sub := range e.subs {
		switch sub.Kind {
		case LogsKind:
			logs := e.logs.blockMatches(ev.Hash, sub.matcher)
			items := make([]Notification, 0, len(logs))
			for _, l := range logs {
				items = append(items, Notification{Log: l, Hash: ev.Hash})
			}
			sub.push(items...)
		case BlocksKind:
			sub.push(Notification{Header: block.Header(), Hash: ev.Hash})
		}
	}
}

func (e *Engine) onPending(ev chain.NewPendingTxsEvent) {
	for _, item := range e.filters.Items() {
		item.Value().onPending(ev.Hashes)
	}
	for _, sub := range e.subs {
		if sub.Kind != PendingTransactionsKind {
			continue
		}
		items := make([]Notification, 0, len(ev.Hashes))
		for _, hash := range ev.Hashes {
			items = append(items, Notification{Hash: hash})
		}
		sub.push(items...)
	}
}

// AddFilter installs a filter of the given kind and returns its id. The
// criteria are only used by logs filters. If the criteria name a block hash
// or a start block, logs already present on the chain are reported by the
// first poll.
func (e *Engine) AddFilter(kind Kind, criteria *Criteria) (rpc.ID, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	f := &filter{kind: kind}
	if kind == LogsKind {
		if criteria == nil {
			criteria = &Criteria{}
		}
		if err := criteria.Check(); err != nil {
			return "", err
		}
		f.matcher = newMatcher(criteria.Copy())
	}

	id := rpc.NewID()
	e.do(func() {
		f.start = e.backend.BestNumber() + 1
		if kind == LogsKind && (criteria.BlockHash != nil || criteria.FromBlock != nil) {
			f.historic = e.logs.query(f.matcher, f.start)
		}
		e.filters.Set(id, f, ttlcache.DefaultTTL)
	})
	installedCounter.Inc(1)
	log.Debug("Installed filter", "id", id, "kind", kind)
	return id, nil
}

func (e *Engine) NewLogFilter(criteria *Criteria) (rpc.ID, error) {
	return e.AddFilter(LogsKind, criteria)
}

func (e *Engine) NewBlockFilter() rpc.ID {
	id, _ := e.AddFilter(BlocksKind, nil)
	return id
}

func (e *Engine) NewPendingTransactionFilter() rpc.ID {
	id, _ := e.AddFilter(PendingTransactionsKind, nil)
	return id
}

// GetFilterChanges returns everything the filter observed since it was last
// polled, and extends its lifetime. Unknown filters yield empty changes.
func (e *Engine) GetFilterChanges(id rpc.ID) Changes {
	var (
		res   Changes
		found bool
	)
	e.do(func() {
		item := e.filters.Get(id)
		if item == nil {
			return
		}
		found = true
		f := item.Value()
		res = f.drain(e.logs)
		e.filters.Set(id, f, ttlcache.DefaultTTL)
	})
	if !found {
		log.Warn("Polled unknown filter", "id", id)
	}
	return res
}

// GetLogFilter returns the criteria of a logs filter. The lifetime of the
// filter is not extended.
func (e *Engine) GetLogFilter(id rpc.ID) (*Criteria, bool) {
	var res *Criteria
	e.do(func() {
		if item := e.filters.Get(id); item != nil && item.Value().kind == LogsKind {
			res = item.Value().matcher.criteria.Copy()
		}
	})
	if res == nil {
		log.Warn("No log filter", "id", id)
		return nil, false
	}
	return res, true
}

// GetFilterLogs returns all logs matched by a logs filter so far, without
// affecting the changes reported by GetFilterChanges. Without a start block,
// the range starts at the first block mined after installation.
func (e *Engine) GetFilterLogs(id rpc.ID) ([]*types.Log, bool) {
	var (
		res   []*types.Log
		found bool
	)
	e.do(func() {
		item := e.filters.Get(id)
		if item == nil || item.Value().kind != LogsKind {
			return
		}
		found = true
		f := item.Value()
		res = e.logs.query(f.matcher, f.start)
	})
	if !found {
		log.Warn("No log filter", "id", id)
	}
	return res, found
}

// Logs returns the logs on the local chain matched by the criteria. Without
// a start block, only the head block is searched.
func (e *Engine) Logs(criteria *Criteria) ([]*types.Log, error) {
	if criteria == nil {
		criteria = &Criteria{}
	}
	if err := criteria.Check(); err != nil {
		return nil, err
	}
	var res []*types.Log
	e.do(func() {
		res = e.logs.query(newMatcher(criteria), e.backend.BestNumber())
	})
	return res, nil
}

// UninstallFilter removes a filter. Returns false if it is unknown.
func (e *Engine) UninstallFilter(id rpc.ID) bool {
	found := false
	e.do(func() {
		if e.filters.Get(id) != nil {
			found = true
			e.filters.Delete(id)
		}
	})
	if found {
		log.Debug("Uninstalled filter", "id", id)
	}
	return found
}

// Evict removes all filters which have not been polled within the keepalive
// period.
func (e *Engine) Evict() {
	e.do(e.filters.DeleteExpired)
}

// FilterCount returns the number of installed filters.
func (e *Engine) FilterCount() int {
	count := 0
	e.do(func() {
		count = e.filters.Len()
	})
	return count
}

// Subscribe registers a subscription of the given kind. The criteria are
// only used by logs subscriptions.
func (e *Engine) Subscribe(kind Kind, criteria *Criteria) (*Subscription, error) {
	if !kind.valid() {
		return nil, ErrUnknownKind
	}
	if criteria != nil {
		if err := criteria.Check(); err != nil {
			return nil, err
		}
		criteria = criteria.Copy()
	}
	sub := newSubscription(kind, criteria, e.cfg.SubscriptionBuffer)
	e.do(func() {
		e.subs[sub.ID] = sub
	})
	log.Debug("Created subscription", "id", sub.ID, "kind", kind)
	return sub, nil
}

// Unsubscribe removes a subscription. Returns false if it is unknown.
func (e *Engine) Unsubscribe(id rpc.ID) bool {
	found := false
	e.do(func() {
		if _, found = e.subs[id]; found {
			delete(e.subs, id)
		}
	})
	if !found {
		log.Warn("Unknown subscription", "id", id)
	}
	return found
}

// Run evicts stale filters periodically until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.EvictionInterval
	if interval <= 0 {
		interval = DefaultConfig().EvictionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Evict()
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

// Close stops the dispatcher. Filters and subscriptions remain accessible
// but no longer observe the chain.
func (e *Engine) Close() {
	e.closed.Do(func() {
		e.blockSub.Unsubscribe()
		e.txSub.Unsubscribe()
		close(e.quit)
		<-e.done
	})
}
