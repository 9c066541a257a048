// Package postgres registers the PostgreSQL persistence driver (GORM).
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/relational"
)

func init() {
	store.Register("postgres", NewDriver)
}

// NewDriver creates a new PostgreSQL driver instance from cfg.DSN.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required for postgres driver")
	}
	dsn := cfg.DSN

	dialector := func() (gorm.Dialector, error) {
		return postgres.Open(dsn), nil
	}

	return relational.New("postgres", dialector, relational.Options{}), nil
}
