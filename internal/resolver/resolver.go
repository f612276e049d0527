// Package resolver implements C3, the resolve pool: it decouples "we need
// this content before we can execute" from the physical transport used to
// fetch it. Every operation that touches the shared status map holds the
// pool's mutex, so add/merge is atomic.
package resolver

import (
	"container/list"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Key identifies one piece of content to resolve, scoped to the subnet it
// was referenced from.
type Key struct {
	SubnetID  string
	ContentID string
}

// Status is the resolve-pool's bookkeeping for one Key. Multiple logical
// items may share a key; they all unblock together when it resolves.
type Status[T comparable] struct {
	mu           sync.Mutex
	resolved     bool
	useOwnSubnet bool
	items        mapset.Set[T]
}

// IsResolved reports whether the underlying content has been fetched.
func (s *Status[T]) IsResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// UseOwnSubnet reports whether any caller asked the pool to also try
// fetching from the local subnet.
func (s *Status[T]) UseOwnSubnet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useOwnSubnet
}

// Items returns a snapshot of the logical items waiting on this key.
func (s *Status[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.ToSlice()
}

func (s *Status[T]) merge(item T, useOwnSubnet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Add(item)
	if useOwnSubnet {
		s.useOwnSubnet = true
	}
}

func (s *Status[T]) markResolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = true
}

// Task is one unit of dispatch handed to a resolver worker by Next.
type Task[T comparable] struct {
	Key          Key
	UseOwnSubnet bool
}

// Pool is the resolve pool itself: a dedup map from Key to Status, plus a
// FIFO queue of tasks awaiting a worker.
type Pool[T comparable] struct {
	mu       sync.Mutex
	status   map[Key]*Status[T]
	queue    *list.List // of Key
	notEmpty *sync.Cond
	closed   bool
}

// New returns an empty resolve pool.
func New[T comparable]() *Pool[T] {
	p := &Pool[T]{
		status: make(map[Key]*Status[T]),
		queue:  list.New(),
	}
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

// Add enqueues item under key, merging with any existing outstanding
// status for the same key, and returns that status. The operation is
// atomic: a concurrent Add/GetStatus for the same key never observes a
// half-merged state.
func (p *Pool[T]) Add(key Key, item T, useOwnSubnet bool) *Status[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.status[key]; ok {
		st.merge(item, useOwnSubnet)
		return st
	}

	st := &Status[T]{
		useOwnSubnet: useOwnSubnet,
		items:        mapset.NewSet(item),
	}
	p.status[key] = st
	p.queue.PushBack(key)
	p.notEmpty.Signal()
	return st
}

// GetStatus inspects the outstanding status for key, if any.
func (p *Pool[T]) GetStatus(key Key) (*Status[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.status[key]
	return st, ok
}

// CollectResolved returns every item whose key has resolved. Entries are
// retained (not removed) so a caller proposing content can re-propose it
// across rounds until it is explicitly garbage collected.
func (p *Pool[T]) CollectResolved() []T {
	p.mu.Lock()
	statuses := make([]*Status[T], 0, len(p.status))
	for _, st := range p.status {
		statuses = append(statuses, st)
	}
	p.mu.Unlock()

	var out []T
	for _, st := range statuses {
		if st.IsResolved() {
			out = append(out, st.Items()...)
		}
	}
	return out
}

// GC drops the status entry for key, e.g. once the block applier has
// acknowledged execution of everything that depended on it.
func (p *Pool[T]) GC(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.status, key)
}

// Next blocks until a task is available and returns it. It returns
// (Task{}, false) if the pool has been closed and drained.
func (p *Pool[T]) Next() (Task[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.queue.Len() == 0 && !p.closed {
		p.notEmpty.Wait()
	}
	if p.queue.Len() == 0 {
		return Task[T]{}, false
	}
	front := p.queue.Remove(p.queue.Front()).(Key)
	st := p.status[front]
	useOwn := false
	if st != nil {
		useOwn = st.UseOwnSubnet()
	}
	return Task[T]{Key: front, UseOwnSubnet: useOwn}, true
}

// Requeue puts key back on the queue, e.g. after a failed fetch round.
func (p *Pool[T]) Requeue(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue.PushBack(key)
	p.notEmpty.Signal()
}

// MarkResolved marks key's status resolved. Called by a worker once a
// fetch against either the content's own subnet or the local subnet (per
// UseOwnSubnet) succeeds.
func (p *Pool[T]) MarkResolved(key Key) {
	p.mu.Lock()
	st, ok := p.status[key]
	p.mu.Unlock()
	if ok {
		st.markResolved()
	}
}

// Close stops Next from blocking forever; already-queued tasks still
// drain, but no new wakeups are expected after the queue empties.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.notEmpty.Broadcast()
}
