// Package kvstore implements C2, an in-memory, snapshot-isolated
// transactional key-value store. It is standalone: no other package of
// this module imports it; the resolve pool (C3) and vote tally (C7) keep
// their state under their own mutexes.
//
// Grounded in the teacher lineage's copy-on-write-map backend: a write
// transaction clones the current namespace map, mutates the clone, and
// publishes it atomically on commit; a read transaction just takes a
// reference to the map as it stood at the moment read() was called, so
// concurrent writers never block it.
package kvstore

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Namespace partitions the keyspace, e.g. one per logical table.
type Namespace string

// Error is the KV taxonomy from spec §4.2/§7.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("kvstore: %s: %s", e.Kind, e.Reason) }

// ErrorKind enumerates the reserved error kinds.
type ErrorKind int

const (
	// ErrConflict is reserved for optimistic-concurrency backends; the
	// in-memory backend here serializes writers so it never occurs.
	ErrConflict ErrorKind = iota
	ErrAbort
	ErrCodec
	ErrUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConflict:
		return "conflict"
	case ErrAbort:
		return "abort"
	case ErrCodec:
		return "codec"
	default:
		return "unexpected"
	}
}

func abortErr(reason string) error { return &Error{Kind: ErrAbort, Reason: reason} }
func codecErr(reason string) error { return &Error{Kind: ErrCodec, Reason: reason} }

// nsMap is the immutable-by-convention snapshot: namespace -> (key -> value).
// Maps are shallow-cloned (one level) on each write transaction so readers
// holding an older snapshot are unaffected by subsequent writes.
type nsMap map[Namespace]map[string][]byte

func (m nsMap) clone() nsMap {
	out := make(nsMap, len(m))
	for ns, kv := range m {
		cp := make(map[string][]byte, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		out[ns] = cp
	}
	return out
}

// Backend is the transactional store itself.
type Backend struct {
	mu         sync.Mutex // guards data
	data       nsMap
	writeToken chan struct{} // capacity-1 semaphore; nil when lockWrites is false
	lockWrites bool
}

// New returns a Backend. When lockWrites is true (the default via
// NewDefault), write transactions are serialized one-at-a-time; when
// false, the caller guarantees writes never happen concurrently (e.g.
// single-threaded use), and the backend skips the serialization lock.
func New(lockWrites bool) *Backend {
	b := &Backend{data: make(nsMap)}
	if lockWrites {
		b.writeToken = make(chan struct{}, 1)
		b.writeToken <- struct{}{}
	}
	b.lockWrites = lockWrites
	return b
}

// NewDefault returns a Backend with write-serialization enabled, the only
// safe default for use from multiple goroutines.
func NewDefault() *Backend { return New(true) }

func (b *Backend) snapshot() nsMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// ReadTx is an immutable snapshot supporting Get and ordered Iterate.
// Reads never block writes and vice versa: a ReadTx simply holds a
// reference to the nsMap as it stood when Read was called.
type ReadTx struct {
	data nsMap
}

// Read opens a read transaction over the current snapshot.
func (b *Backend) Read() *ReadTx {
	return &ReadTx{data: b.snapshot()}
}

// Get returns the value stored at (ns, key).
func (t *ReadTx) Get(ns Namespace, key []byte) ([]byte, bool) {
	m, ok := t.data[ns]
	if !ok {
		return nil, false
	}
	v, ok := m[string(key)]
	return v, ok
}

// Iterate returns all (key, value) pairs in ns, ordered by the serialized
// key bytes (spec §4.2).
func (t *ReadTx) Iterate(ns Namespace) []KV {
	m := t.data[ns]
	out := make([]KV, 0, len(m))
	for k, v := range m {
		out = append(out, KV{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Key) < string(out[j].Key)
	})
	return out
}

// KV is one entry returned by Iterate.
type KV struct {
	Key, Value []byte
}

// WriteTx is a read/write transaction over a private clone of the store,
// published atomically on Commit. Per spec §4.2, a WriteTx that is
// abandoned without Commit or Rollback is a programming error; a
// finalizer panics if that happens (best-effort, since Go has no
// deterministic destructors, but it catches the common case of a
// goroutine forgetting to close out a transaction before it is GC'd).
type WriteTx struct {
	backend *Backend
	data    nsMap
	token   bool // true if this tx holds backend.writeToken
	done    bool
}

// Write opens a write transaction, cloning the current snapshot and, in
// the default locking mode, acquiring the single-writer token first (so
// a blocked writer never holds the data mutex while waiting).
func (b *Backend) Write() *WriteTx {
	held := false
	if b.lockWrites {
		<-b.writeToken
		held = true
	}
	tx := &WriteTx{backend: b, data: b.snapshot().clone(), token: held}
	runtime.SetFinalizer(tx, func(t *WriteTx) {
		if !t.done {
			panic("kvstore: write transaction dropped without Commit or Rollback")
		}
	})
	return tx
}

// Get reads through the transaction's own pending writes.
func (t *WriteTx) Get(ns Namespace, key []byte) ([]byte, bool) {
	m, ok := t.data[ns]
	if !ok {
		return nil, false
	}
	v, ok := m[string(key)]
	return v, ok
}

// Iterate returns the transaction's pending view of ns, key-ordered.
func (t *WriteTx) Iterate(ns Namespace) []KV {
	m := t.data[ns]
	out := make([]KV, 0, len(m))
	for k, v := range m {
		out = append(out, KV{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out
}

// Put stages a write.
func (t *WriteTx) Put(ns Namespace, key, value []byte) {
	m, ok := t.data[ns]
	if !ok {
		m = make(map[string][]byte)
		t.data[ns] = m
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m[string(key)] = cp
}

// Delete stages a deletion.
func (t *WriteTx) Delete(ns Namespace, key []byte) {
	if m, ok := t.data[ns]; ok {
		delete(m, string(key))
	}
}

// Commit publishes the transaction's changes atomically and releases the
// writer token.
func (t *WriteTx) Commit() error {
	if t.done {
		return abortErr("transaction already finalized")
	}
	t.backend.mu.Lock()
	t.backend.data = t.data
	t.backend.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the transaction's changes and releases the writer
// token.
func (t *WriteTx) Rollback() error {
	if t.done {
		return abortErr("transaction already finalized")
	}
	t.finish()
	return nil
}

func (t *WriteTx) finish() {
	t.done = true
	runtime.SetFinalizer(t, nil)
	if t.token {
		t.backend.writeToken <- struct{}{}
	}
}
