package store

import (
	"context"
	"fmt"

	"github.com/pwilkin/grizabella/internal/store/falkordbstore"
	"github.com/pwilkin/grizabella/internal/store/pgvectorstore"
	"github.com/pwilkin/grizabella/internal/store/sqlitestore"
)

// BackendConfig selects which concrete backend serves each store kind and
// the DSN/path each one connects to. The relational store is always
// sqlitestore today (spec §4.2 treats it as the authoritative metadata and
// property store, and no alternate relational backend is in the domain
// stack); vector and graph each independently default to the embedded
// sqlitestore file but may be pointed at pgvector / FalkorDB.
type BackendConfig struct {
	RelationalPath string // sqlite file path, e.g. <instance_root>/relational/data.db

	VectorBackend Backend // BackendSQLite or BackendPGVector
	VectorDSN     string  // sqlite path or Postgres DSN

	GraphBackend Backend // BackendSQLite or BackendFalkorDB
	GraphDSN     string  // sqlite path or "host:port|graphName" for FalkorDB
}

// Adapters bundles the three opened stores plus the pool that owns their
// lifecycle.
type Adapters struct {
	Relational RelationalStore
	Vector     VectorStore
	Graph      GraphStore

	pool *Pool
	cfg  BackendConfig
}

// Close releases every adapter connection this Adapters opened, via the
// owning Pool's refcounted Release.
func (a *Adapters) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(a.pool.Release(KindRelational, BackendSQLite, a.cfg.RelationalPath))
	record(a.pool.Release(KindVector, a.cfg.VectorBackend, a.cfg.VectorDSN))
	record(a.pool.Release(KindGraph, a.cfg.GraphBackend, a.cfg.GraphDSN))
	return firstErr
}

// Open builds the three adapters per cfg, registering backend
// constructors with pool on first use and sharing connections across
// calls that target the same (kind, backend, dsn).
func Open(ctx context.Context, pool *Pool, cfg BackendConfig) (*Adapters, error) {
	registerBackends(pool)

	relConn, err := pool.Open(ctx, KindRelational, BackendSQLite, cfg.RelationalPath)
	if err != nil {
		return nil, fmt.Errorf("store: open relational adapter: %w", err)
	}
	relational := relConn.(*sqlitestore.Store)

	// sqlite-backed vector/graph pointed at the same file as the relational
	// store share the one *sqlitestore.Store instance instead of opening a
	// second pool entry for the identical DSN.
	var vector VectorStore
	if cfg.VectorBackend == BackendSQLite && cfg.VectorDSN == cfg.RelationalPath {
		vector = relational
	} else {
		vecConn, err := pool.Open(ctx, KindVector, cfg.VectorBackend, cfg.VectorDSN)
		if err != nil {
			return nil, fmt.Errorf("store: open vector adapter: %w", err)
		}
		switch cfg.VectorBackend {
		case BackendSQLite:
			vector = vecConn.(*sqlitestore.Store)
		case BackendPGVector:
			vector = vecConn.(*pgvectorstore.Store)
		default:
			return nil, fmt.Errorf("store: unknown vector backend %q", cfg.VectorBackend)
		}
	}

	var graph GraphStore
	if cfg.GraphBackend == BackendSQLite && cfg.GraphDSN == cfg.RelationalPath {
		graph = relational
	} else {
		graphConn, err := pool.Open(ctx, KindGraph, cfg.GraphBackend, cfg.GraphDSN)
		if err != nil {
			return nil, fmt.Errorf("store: open graph adapter: %w", err)
		}
		switch cfg.GraphBackend {
		case BackendSQLite:
			graph = graphConn.(*sqlitestore.Store)
		case BackendFalkorDB:
			graph = graphConn.(*falkordbstore.Store)
		default:
			return nil, fmt.Errorf("store: unknown graph backend %q", cfg.GraphBackend)
		}
	}

	return &Adapters{Relational: relational, Vector: vector, Graph: graph, pool: pool, cfg: cfg}, nil
}

func registerBackends(pool *Pool) {
	pool.Register(KindRelational, BackendSQLite, func(ctx context.Context, dsn string) (ioCloser, error) {
		return sqlitestore.Open(ctx, dsn)
	})
	pool.Register(KindVector, BackendSQLite, func(ctx context.Context, dsn string) (ioCloser, error) {
		return sqlitestore.Open(ctx, dsn)
	})
	pool.Register(KindVector, BackendPGVector, func(ctx context.Context, dsn string) (ioCloser, error) {
		return pgvectorstore.Open(ctx, dsn)
	})
	pool.Register(KindGraph, BackendSQLite, func(ctx context.Context, dsn string) (ioCloser, error) {
		return sqlitestore.Open(ctx, dsn)
	})
	pool.Register(KindGraph, BackendFalkorDB, func(ctx context.Context, dsn string) (ioCloser, error) {
		addr, graphName := splitFalkorDSN(dsn)
		return falkordbstore.Open(ctx, addr, graphName)
	})
}

func splitFalkorDSN(dsn string) (addr, graphName string) {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '|' {
			return dsn[:i], dsn[i+1:]
		}
	}
	return dsn, "grizabella"
}
