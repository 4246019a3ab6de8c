package core

import (
	"compliancedash/internal/infra/persistence/jsonfile"
	"compliancedash/internal/infra/persistence/memory"
	"compliancedash/internal/infra/persistence/postgres"
	"compliancedash/internal/infra/persistence/sqlite"
	"compliancedash/internal/infra/persistence/sqlstore"
	"compliancedash/pkg/domain"
	"context"
	"fmt"
	"time"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageJSON     StorageDriver = "json"     // single JSON document on disk
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	Driver      StorageDriver
	JSONPath    string
	SQLitePath  string
	PostgresDSN string
	// Now overrides the store clock; nil uses UTC wall time.
	Now func() time.Time
}

// OpenPersistentStore opens the backend named by cfg.Driver. An empty driver
// selects postgres when a DSN is configured and the JSON document otherwise.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig) (domain.PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageJSON
		if cfg.PostgresDSN != "" {
			driver = StoragePostgres
		}
	}
	var (
		store domain.PersistentStore
		err   error
	)
	switch driver {
	case StorageMemory:
		return memory.NewStore(memory.WithClock(cfg.Now)), nil
	case StorageJSON:
		store, err = jsonStore(cfg)
	case StorageSQLite:
		store, err = sqliteStore(ctx, cfg)
	case StoragePostgres:
		store, err = postgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func jsonStore(cfg StorageConfig) (domain.PersistentStore, error) {
	s, err := jsonfile.NewStore(cfg.JSONPath, memory.WithClock(cfg.Now))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func sqliteStore(ctx context.Context, cfg StorageConfig) (domain.PersistentStore, error) {
	s, err := sqlite.NewStore(ctx, cfg.SQLitePath, sqlstore.WithClock(cfg.Now))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func postgresStore(ctx context.Context, cfg StorageConfig) (domain.PersistentStore, error) {
	s, err := postgres.NewStore(ctx, cfg.PostgresDSN, sqlstore.WithClock(cfg.Now))
	if err != nil {
		return nil, err
	}
	return s, nil
}
