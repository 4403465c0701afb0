package core

import (
	"fmt"
	"os"

	"fleetcore/internal/infra/persistence/memory"
	"fleetcore/internal/infra/persistence/postgres"
	"fleetcore/internal/infra/persistence/sqlite"
	"fleetcore/pkg/compute"
	"fleetcore/pkg/objects"
)

// StorageDriver identifies a concrete persistence bridge implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenBridge selects a persistence bridge using environment variables.
// Defaults to sqlite when unset. The optional-column routing follows the
// compute schema's lazy fields.
//
//	FLEETCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FLEETCORE_SQLITE_PATH: path to sqlite file (default ./fleetcore.db)
//	FLEETCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenBridge() (objects.Bridge, error) {
	driver := os.Getenv("FLEETCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	optional := compute.InstanceOptionalFields
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(optional...), nil
	case StorageSQLite:
		path := os.Getenv("FLEETCORE_SQLITE_PATH")
		if path == "" {
			path = "fleetcore.db"
		}
		return sqlite.NewStore(path, optional...)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("FLEETCORE_POSTGRES_DSN"), optional...)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
