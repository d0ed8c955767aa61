package store

import (
	"context"
	"fmt"
	"sync"
)

// Kind names a store adapter family for Pool keys and config selection.
type Kind string

const (
	KindRelational Kind = "relational"
	KindVector     Kind = "vector"
	KindGraph      Kind = "graph"
)

// Backend names a concrete adapter implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPGVector Backend = "pgvector"
	BackendFalkorDB Backend = "falkordb"
)

// openFunc constructs a fresh backend connection for one DSN.
type openFunc func(ctx context.Context, dsn string) (ioCloser, error)

type ioCloser interface {
	Close() error
}

type poolEntry struct {
	conn  ioCloser
	refs  int
}

// Pool is a process-wide, refcounted cache of adapter connections keyed by
// (kind, backend, dsn), so that two callers opening the same
// instance-root path share one underlying connection. Release only tears
// the connection down once its last reference drops.
//
// Adapted from the teacher's embedded-library loader, which shares native
// library handles process-wide by refcount instead of connection handles.
type Pool struct {
	mu      sync.Mutex
	openers map[string]openFunc
	entries map[string]*poolEntry
}

// NewPool creates an empty pool. Register backend constructors with
// Register before calling Open.
func NewPool() *Pool {
	return &Pool{
		openers: make(map[string]openFunc),
		entries: make(map[string]*poolEntry),
	}
}

func key(kind Kind, backend Backend, dsn string) string {
	return fmt.Sprintf("%s|%s|%s", kind, backend, dsn)
}

// Register installs the constructor used for (kind, backend) pairs. Call
// once per backend during engine start-up.
func (p *Pool) Register(kind Kind, backend Backend, open func(ctx context.Context, dsn string) (ioCloser, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openers[string(kind)+"|"+string(backend)] = func(ctx context.Context, dsn string) (ioCloser, error) {
		return open(ctx, dsn)
	}
}

// Open returns the shared connection for (kind, backend, dsn), opening it
// on first use and incrementing its reference count on every call.
// Callers must call Release exactly once per successful Open.
func (p *Pool) Open(ctx context.Context, kind Kind, backend Backend, dsn string) (ioCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key(kind, backend, dsn)
	if e, ok := p.entries[k]; ok {
		e.refs++
		return e.conn, nil
	}

	open, ok := p.openers[string(kind)+"|"+string(backend)]
	if !ok {
		return nil, fmt.Errorf("store: no opener registered for %s/%s", kind, backend)
	}
	conn, err := open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s/%s %q: %w", kind, backend, dsn, err)
	}
	p.entries[k] = &poolEntry{conn: conn, refs: 1}
	return conn, nil
}

// Release decrements the reference count for (kind, backend, dsn),
// closing the underlying connection once the count reaches zero. Release
// is idempotent against double-release beyond zero (a no-op).
func (p *Pool) Release(kind Kind, backend Backend, dsn string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key(kind, backend, dsn)
	e, ok := p.entries[k]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(p.entries, k)
	return e.conn.Close()
}

// Drain closes every remaining connection regardless of reference count.
// The grizabella launcher defers this so shutdown closes whatever is left.
func (p *Pool) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for k, e := range p.entries {
		if err := e.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.entries, k)
	}
	return firstErr
}
