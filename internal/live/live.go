// Package live re-runs read queries whenever the store tables they
// depend on change. It is an invalidate-and-recompute model: a write
// marks every subscription that references a touched table dirty, and
// each dirty subscription runs its query again on its own goroutine.
// Bursts of writes coalesce into one re-run; a re-run always happens
// after the last write that dirtied it.
package live

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/alexjbarnes/marginalio/internal/store"
)

// Status distinguishes a query that has not produced a result yet from
// one that produced an empty result.
type Status int

const (
	Loading Status = iota
	Empty
	Populated
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	default:
		return "unknown"
	}
}

// Result is a snapshot of a subscription. Generation increases by one
// for every completed evaluation. A failed evaluation keeps the previous
// Value and Status and sets Err.
type Result[T any] struct {
	Status     Status
	Value      T
	Err        error
	Generation uint64
}

// Source is the change feed a Hub listens to. *store.Store satisfies it.
type Source interface {
	Observe(fn func(store.Table)) (cancel func())
}

type invalidator interface {
	invalidate(store.Table)
	stop()
}

// Hub fans store change notifications out to subscriptions.
type Hub struct {
	logger *slog.Logger
	cancel func()

	mu     sync.Mutex
	subs   map[uint64]invalidator
	nextID uint64
	closed bool
}

// NewHub starts observing src.
func NewHub(src Source, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	h := &Hub{
		logger: logger,
		subs:   make(map[uint64]invalidator),
	}
	h.cancel = src.Observe(h.dispatch)

	return h
}

func (h *Hub) dispatch(t store.Table) {
	h.mu.Lock()
	subs := make([]invalidator, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.invalidate(t)
	}
}

// Close stops observing the source and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]invalidator)
	h.mu.Unlock()

	h.cancel()

	for _, s := range subs {
		s.stop()
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

func (h *Hub) add(s invalidator) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, false
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = s

	return id, true
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription holds the latest result of one query.
type Subscription[T any] struct {
	hub    *Hub
	id     uint64
	tables store.Table
	run    func() (T, error)

	mu  sync.Mutex
	cur Result[T]

	// changed is closed and replaced after each evaluation, waking
	// every Next waiter independently of the Updates channel.
	changed chan struct{}

	dirty   chan struct{}
	updates chan struct{}
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

// Subscribe registers run as a live query over tables. The first
// evaluation starts immediately; until it completes Current reports
// Loading. run must only read from the store.
func Subscribe[T any](h *Hub, tables store.Table, run func() (T, error)) *Subscription[T] {
	s := &Subscription[T]{
		hub:     h,
		tables:  tables,
		run:     run,
		changed: make(chan struct{}),
		dirty:   make(chan struct{}, 1),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	id, ok := h.add(s)
	if !ok {
		close(s.done)
		close(s.exited)

		return s
	}

	s.id = id
	s.dirty <- struct{}{}

	go s.loop()

	return s
}

func (s *Subscription[T]) loop() {
	defer close(s.exited)

	for {
		select {
		case <-s.done:
			return
		case <-s.dirty:
			s.evaluate()
		}
	}
}

func (s *Subscription[T]) evaluate() {
	v, err := s.run()

	s.mu.Lock()
	next := s.cur
	next.Generation++

	if err != nil {
		next.Err = err
		s.hub.logger.Debug("live query failed", slog.String("tables", s.tables.String()), slog.String("error", err.Error()))
	} else {
		next.Value = v
		next.Err = nil
		next.Status = Populated

		if isEmpty(v) {
			next.Status = Empty
		}
	}

	s.cur = next
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) invalidate(t store.Table) {
	if !s.tables.Has(t) {
		return
	}

	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Current returns the latest snapshot.
func (s *Subscription[T]) Current() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cur
}

// Updates signals after each evaluation. Signals coalesce and are
// meant for a single reader; read Current to get the latest value.
// Next does not consume these signals.
func (s *Subscription[T]) Updates() <-chan struct{} {
	return s.updates
}

// Next waits until the subscription has a result newer than the given
// generation and returns it. Any number of goroutines may wait.
func (s *Subscription[T]) Next(ctx context.Context, after uint64) (Result[T], error) {
	for {
		s.mu.Lock()
		cur, changed := s.cur, s.changed
		s.mu.Unlock()

		if cur.Generation > after {
			return cur, nil
		}

		select {
		case <-ctx.Done():
			return cur, ctx.Err()
		case <-s.done:
			return cur, context.Canceled
		case <-changed:
		}
	}
}

// Close stops re-evaluation and waits for an in-flight evaluation to
// finish.
func (s *Subscription[T]) Close() {
	s.hub.remove(s.id)
	s.stop()
}

func (s *Subscription[T]) stop() {
	s.once.Do(func() { close(s.done) })
	<-s.exited
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
