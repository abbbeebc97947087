package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"voxelcore.ai/internal/persistence/indexdb"
	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/tuning"
	"voxelcore.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.EditLogger
	superchunk.SaveObserver
	Close() error
	UpsertCatalogs(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error
	Stats() indexdb.Stats
}

// indexPath is where the read-model index lives inside a world directory.
func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

func openRuntimeIndex(worldDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled (VC_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(worldDir))
	default:
		return nil, fmt.Errorf("unsupported VC_INDEX_BACKEND: %s", backend)
	}
}
