package core

import (
	"fmt"
	"os"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/internal/infra/persistence/postgres"
	"estatecore/internal/infra/persistence/sqlite"
	"estatecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and parameterises a persistent store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the storage selection from the environment.
// Defaults to sqlite when unset.
//
//	ESTATECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ESTATECORE_SQLITE_PATH: path to sqlite file (default ./estatecore.db)
//	ESTATECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("ESTATECORE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("ESTATECORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("ESTATECORE_POSTGRES_DSN"),
	}
}

// OpenPersistentStore selects a backend using environment variables.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	return OpenStore(StorageConfigFromEnv(), engine)
}

// OpenStore opens the backend described by cfg.
func OpenStore(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		ps, err := postgres.NewStore(cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
