package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/overhaul/internal/backup"
	"github.com/blackwell-systems/overhaul/internal/config"
	"github.com/blackwell-systems/overhaul/internal/ledger"
	"github.com/blackwell-systems/overhaul/internal/release"
	"github.com/blackwell-systems/overhaul/internal/service"
	"github.com/blackwell-systems/overhaul/internal/store"
	"github.com/blackwell-systems/overhaul/internal/updater"
)

// loadConfig loads the manifest honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens (creating if needed) the update-attempt history database.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath()), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newUpdater wires a fully real orchestrator. The caller owns st and must
// close it after use; st may be nil when history recording is unavailable.
func newUpdater(cfg *config.Config, st *store.Store) *updater.Updater {
	services := service.New()
	u := updater.New(
		cfg,
		release.NewClient(cfg.BaseURL, cfg.HTTPTimeout),
		backup.New(cfg.BackupDir, cfg.InstallRoot, cfg.KeepBackups, services),
		services,
		ledger.New(),
	)
	if st != nil {
		u.Attempts = st
	}
	return u
}
