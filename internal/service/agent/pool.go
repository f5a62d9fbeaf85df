// Package agent tracks the load of backend accounts and hands out leases on
// the least-loaded one.
package agent

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
)

// ErrNoCapacity is returned by Acquire when every account is at its
// connection limit or the pool is empty.
var ErrNoCapacity = errors.New("no backend account has capacity")

// Handle is one backend account together with its load counters.
//
// connections counts every in-flight allocation. connected counts only the
// allocations whose backend session was actually established.
type Handle[T any] struct {
	Name           string
	MaxConnections int64 // 0 means unlimited
	Client         T

	connections atomic.Int64
	connected   atomic.Int64
}

// NewHandle creates a handle for the named account.
func NewHandle[T any](name string, maxConnections int64, client T) *Handle[T] {
	return &Handle[T]{Name: name, MaxConnections: maxConnections, Client: client}
}

// Connections returns the number of in-flight allocations.
func (h *Handle[T]) Connections() int64 { return h.connections.Load() }

// Connected returns the number of established backend sessions.
func (h *Handle[T]) Connected() int64 { return h.connected.Load() }

func (h *Handle[T]) hasCapacity() bool {
	return h.MaxConnections <= 0 || h.connections.Load() < h.MaxConnections
}

// Less orders handles for selection. The first handle after sorting wins.
type Less[T any] func(a, b *Handle[T]) bool

// LeastLoaded prefers fewer connections, then fewer connected sessions, then
// the lexically smaller name.
func LeastLoaded[T any](a, b *Handle[T]) bool {
	if ac, bc := a.Connections(), b.Connections(); ac != bc {
		return ac < bc
	}
	if ac, bc := a.Connected(), b.Connected(); ac != bc {
		return ac < bc
	}
	return a.Name < b.Name
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithLess replaces the selection order.
func WithLess[T any](less Less[T]) Option[T] {
	return func(p *Pool[T]) { p.less = less }
}

// WithMetrics replaces the metrics sink.
func WithMetrics[T any](m *metrics.Metrics) Option[T] {
	return func(p *Pool[T]) { p.metrics = m }
}

// Pool selects among a fixed set of handles.
type Pool[T any] struct {
	name    string
	handles []*Handle[T]
	less    Less[T]
	metrics *metrics.Metrics

	// mu serialises selection with the increment so two acquirers cannot
	// both take the last free slot of an account.
	mu sync.Mutex
}

// NewPool creates a pool over handles.
func NewPool[T any](name string, handles []*Handle[T], opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		name:    name,
		handles: handles,
		less:    LeastLoaded[T],
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pool name.
func (p *Pool[T]) Name() string { return p.name }

// Handles returns the handles of the pool in configuration order.
func (p *Pool[T]) Handles() []*Handle[T] {
	out := make([]*Handle[T], len(p.handles))
	copy(out, p.handles)
	return out
}

// Acquire picks a handle with capacity and increments its connections
// counter. The returned lease must be released exactly once.
func (p *Pool[T]) Acquire() (*Lease[T], error) {
	p.mu.Lock()
	candidates := make([]*Handle[T], 0, len(p.handles))
	for _, h := range p.handles {
		if h.hasCapacity() {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		p.mu.Unlock()
		p.metrics.RecordAgentRejected(p.name)
		logger := logging.WithComponent("agent")
		logger.Warn().Str("pool", p.name).Msg("No backend account has capacity")
		return nil, ErrNoCapacity
	}
	sort.SliceStable(candidates, func(i, j int) bool { return p.less(candidates[i], candidates[j]) })
	h := candidates[0]
	h.connections.Add(1)
	p.mu.Unlock()

	p.publish(h)
	return &Lease[T]{pool: p, handle: h}, nil
}

func (p *Pool[T]) publish(h *Handle[T]) {
	p.metrics.SetAgentLoad(p.name, h.Name, h.Connections(), h.Connected())
}

// Stats is a point-in-time view of one handle.
type Stats struct {
	Name           string `json:"name"`
	Connections    int64  `json:"connections"`
	Connected      int64  `json:"connected"`
	MaxConnections int64  `json:"maxConnections"`
}

// Stats returns the counters of every handle.
func (p *Pool[T]) Stats() []Stats {
	out := make([]Stats, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, Stats{
			Name:           h.Name,
			Connections:    h.Connections(),
			Connected:      h.Connected(),
			MaxConnections: h.MaxConnections,
		})
	}
	return out
}

// Lease is one allocation on a handle.
type Lease[T any] struct {
	pool      *Pool[T]
	handle    *Handle[T]
	connected atomic.Bool
	released  atomic.Bool
}

// Client returns the backend client of the leased account.
func (l *Lease[T]) Client() T { return l.handle.Client }

// Name returns the leased account name.
func (l *Lease[T]) Name() string { return l.handle.Name }

// Handle returns the leased handle.
func (l *Lease[T]) Handle() *Handle[T] { return l.handle }

// MarkConnected records that the backend session was established. Only the
// first call increments the connected counter, and calls after Release are
// ignored.
func (l *Lease[T]) MarkConnected() {
	if l.released.Load() {
		return
	}
	if l.connected.CompareAndSwap(false, true) {
		l.handle.connected.Add(1)
		l.pool.publish(l.handle)
	}
}

// Release returns the allocation. It decrements connections once and
// connected only if MarkConnected was called. Extra calls are no-ops.
func (l *Lease[T]) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	// a MarkConnected racing with Release may still have won the latch
	if l.connected.Swap(true) {
		l.handle.connected.Add(-1)
	}
	l.handle.connections.Add(-1)
	l.pool.publish(l.handle)
}
