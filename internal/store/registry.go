package store

import (
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/registry"
)

// DriverConfig holds configuration for driver selection and initialization.
type DriverConfig struct {
	// Driver is the driver name: memory, json, sqlite, postgres, mongo
	Driver string `json:"driver"`

	// DataDir is the directory for data files (json files, sqlite db)
	DataDir string `json:"data_dir"`

	// DSN is the connection string for postgres.
	DSN string `json:"dsn"`

	// Mongo configuration (only used when Driver == "mongo")
	Mongo MongoConfig `json:"mongo"`
}

// MongoConfig holds configuration for the document store driver.
type MongoConfig struct {
	URI            string        `json:"uri"`
	Database       string        `json:"database"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// DriverFactory is a function that creates a driver instance.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var drivers = registry.New[DriverFactory]("store driver")

// Register registers a driver factory by name from init().
func Register(name string, factory DriverFactory) {
	drivers.MustRegister(name, factory)
}

// New creates a driver instance based on the configuration.
func New(cfg *DriverConfig) (Driver, error) {
	factory, err := drivers.Resolve(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return factory(cfg)
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	return drivers.Names()
}
