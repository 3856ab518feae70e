package database

import (
	"fmt"
	"os"
	"path/filepath"

	"abus-go/internal/abus"
	"abus-go/internal/config"
)

// NewCatalogFromConfig opens the catalog named by cfg.IndexDB, creating its
// directory when needed. ":memory:" gives a throwaway catalog.
func NewCatalogFromConfig(cfg *config.Config, logger abus.Logger) (*SQLiteCatalog, error) {
	switch cfg.IndexDB {
	case "":
		return nil, fmt.Errorf("index_db required")
	case ":memory:":
		return NewSQLiteCatalog(":memory:", logger)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.IndexDB), 0755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	return NewSQLiteCatalog(cfg.IndexDB, logger)
}
