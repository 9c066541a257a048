// Package json implements a JSON file-based persistence driver.
// State is held by a memory driver and written out after every mutation
// using atomic writes (temp file + fsync + rename).
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/memory"
)

func init() {
	store.Register("json", NewDriver)
}

const (
	profilesFile      = "profiles.json"
	accountsFile      = "accounts.json"
	connectionsFile   = "connections.json"
	notificationsFile = "notifications.json"
)

// Driver implements store.Store on top of JSON files.
type Driver struct {
	*memory.Driver
	dataDir string
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	d := &Driver{dataDir: cfg.DataDir}
	d.Driver = memory.NewPersistent("json", d.save)
	return d, nil
}

// Init loads data from JSON files.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	var state memory.State
	if err := d.loadFile(profilesFile, &state.Profiles); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := d.loadFile(accountsFile, &state.Accounts); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	if err := d.loadFile(connectionsFile, &state.Connections); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load connections: %w", err)
	}
	if err := d.loadFile(notificationsFile, &state.Notifications); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load notifications: %w", err)
	}

	d.Driver.Load(state)
	return nil
}

// save writes every collection. Called by the memory driver with its lock held.
func (d *Driver) save(s *memory.State) error {
	if err := d.saveFile(profilesFile, s.Profiles); err != nil {
		return err
	}
	if err := d.saveFile(accountsFile, s.Accounts); err != nil {
		return err
	}
	if err := d.saveFile(connectionsFile, s.Connections); err != nil {
		return err
	}
	return d.saveFile(notificationsFile, s.Notifications)
}

// loadFile loads a JSON file into the target map.
func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// saveFile atomically writes data to a JSON file.
func (d *Driver) saveFile(filename string, data interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

var _ store.Store = (*Driver)(nil)
