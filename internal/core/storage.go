package core

import (
	"calendarcore/internal/config"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/internal/infra/persistence/postgres"
	"calendarcore/internal/infra/persistence/sqlite"
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend from cfg.Storage. Durable backends
// implement io.Closer; callers should close them on shutdown.
//
//	memory   ephemeral, state lost on exit
//	sqlite   embedded file at cfg.SQLite.Path
//	postgres server at cfg.Postgres.DSN
func OpenPersistentStore(ctx context.Context, cfg config.Config, engine *RulesEngine, opts ...memory.Option) (PersistentStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case config.StorageSQLite, "":
		return NewSQLiteStore(cfg.SQLite.Path, engine, opts...)
	case config.StoragePostgres:
		return NewPostgresStore(ctx, cfg.Postgres.DSN, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
}

// NewSQLiteStore constructs a SQLite-backed store at path (empty selects the
// default file).
func NewSQLiteStore(path string, engine *RulesEngine, opts ...memory.Option) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine, opts...)
}

// NewPostgresStore constructs a Postgres-backed store from dsn.
func NewPostgresStore(ctx context.Context, dsn string, engine *RulesEngine, opts ...memory.Option) (*postgres.Store, error) {
	return postgres.NewStore(ctx, dsn, engine, opts...)
}
