// Package sqlite registers the SQLite persistence driver (GORM).
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/relational"
)

// DatabaseFile is the file created under data_dir.
const DatabaseFile = "campusmesh.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// NewDriver creates a new SQLite driver instance.
// SQLite allows a single writer, so the pool is capped at one connection;
// concurrent callers queue on the pool instead of failing with SQLITE_BUSY.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	dataDir := cfg.DataDir

	dialector := func() (gorm.Dialector, error) {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		dsn := filepath.Join(dataDir, DatabaseFile) + "?_busy_timeout=5000&_foreign_keys=on"
		return sqlite.Open(dsn), nil
	}

	return relational.New("sqlite", dialector, relational.Options{MaxOpenConns: 1}), nil
}
