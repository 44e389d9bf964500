// Package config defines the component manifest and orchestrator settings
// for overhaul.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the manifest location used when --config is not given.
const DefaultPath = "/etc/overhaul/overhaul.yaml"

// DefaultEnvFile is loaded (if present) before environment overrides are applied.
const DefaultEnvFile = "/etc/overhaul/overhaul.env"

// Component is one independently-versioned unit managed by overhaul.
// The set of components is fixed by configuration; components are never
// created or destroyed at runtime.
type Component struct {
	Name       string   `yaml:"name"`
	InstallDir string   `yaml:"install_dir"`
	Services   []string `yaml:"services"`

	// Prebuilt marks components shipped as a ready-to-run binary.
	// Binary is the executable path relative to InstallDir that must be
	// re-marked executable after every swap or restore.
	Prebuilt bool   `yaml:"prebuilt"`
	Binary   string `yaml:"binary"`

	// Preserve lists paths relative to InstallDir that must survive an
	// update: env files, and for stateful components the embedded
	// database plus its journal files.
	Preserve []string `yaml:"preserve"`
}

// Config holds all orchestrator settings. The Components slice order is the
// bulk-update order: components whose failure is least disruptive first, the
// most foundational component last.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	InstallRoot string        `yaml:"install_root"`
	StateDir    string        `yaml:"state_dir"`
	BackupDir   string        `yaml:"backup_dir"`
	StagingDir  string        `yaml:"staging_dir"`
	KeepBackups int           `yaml:"keep_backups"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Components  []Component   `yaml:"components"`
}

// Default returns the built-in configuration for a stock appliance:
// a frontend static bundle and a backend service binary under
// /opt/overhaul. The tool is usable with no manifest on disk.
func Default() *Config {
	return &Config{
		BaseURL:     "https://releases.blackwell-systems.com/overhaul",
		InstallRoot: "/opt/overhaul",
		StateDir:    "/var/lib/overhaul",
		KeepBackups: 5,
		HTTPTimeout: 2 * time.Minute,
		Components: []Component{
			{
				Name:     "frontend",
				Services: []string{"overhaul-frontend"},
				Preserve: []string{".env"},
			},
			{
				Name:     "backend",
				Services: []string{"overhaul-backend"},
				Prebuilt: true,
				Binary:   "backend",
				Preserve: []string{
					".env",
					"data/app.db",
					"data/app.db-wal",
					"data/app.db-shm",
				},
			},
		},
	}
}

// Load reads the manifest at path (DefaultPath when empty), overlays it on
// the built-in defaults, applies env-file and environment overrides, and
// validates the result. A missing file at the default location is not an
// error; a missing file at an explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No manifest, run on defaults.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Env file is optional; variables already set in the environment win.
	if err := godotenv.Load(DefaultEnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file %s: %w", DefaultEnvFile, err)
	}
	cfg.applyEnv()

	cfg.fillDerived()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies OVERHAUL_* environment overrides on top of the manifest.
func (c *Config) applyEnv() {
	if v := os.Getenv("OVERHAUL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("OVERHAUL_INSTALL_ROOT"); v != "" {
		c.InstallRoot = v
	}
	if v := os.Getenv("OVERHAUL_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("OVERHAUL_KEEP_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.KeepBackups = n
		}
	}
}

// fillDerived fills paths that default relative to InstallRoot and StateDir.
func (c *Config) fillDerived() {
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.StateDir, "backups")
	}
	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(c.StateDir, "staging")
	}
	for i := range c.Components {
		if c.Components[i].InstallDir == "" {
			c.Components[i].InstallDir = filepath.Join(c.InstallRoot, c.Components[i].Name)
		}
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: base_url must not be empty")
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("config: at least one component must be defined")
	}
	seen := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("config: component with empty name")
		}
		if seen[comp.Name] {
			return fmt.Errorf("config: duplicate component %q", comp.Name)
		}
		seen[comp.Name] = true
		if len(comp.Services) == 0 {
			return fmt.Errorf("config: component %q has no services", comp.Name)
		}
	}
	return nil
}

// Lookup returns the named component. Component names form a closed set;
// unknown names are an error, never created on the fly.
func (c *Config) Lookup(name string) (Component, error) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp, nil
		}
	}
	return Component{}, fmt.Errorf("unknown component %q", name)
}

// DBPath returns the location of the update-attempt history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.StateDir, "overhaul.db")
}
