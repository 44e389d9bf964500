package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_FrontendBeforeBackend(t *testing.T) {
	cfg := Default()
	if len(cfg.Components) != 2 {
		t.Fatalf("Default() has %d components; want 2", len(cfg.Components))
	}
	// Bulk-update order: the static bundle first, the stateful service last.
	if cfg.Components[0].Name != "frontend" || cfg.Components[1].Name != "backend" {
		t.Errorf("component order = %s, %s; want frontend, backend",
			cfg.Components[0].Name, cfg.Components[1].Name)
	}
}

func TestDefault_BackendPreservesDatabaseJournals(t *testing.T) {
	cfg := Default()
	backend, err := cfg.Lookup("backend")
	if err != nil {
		t.Fatalf("Lookup(backend) failed: %v", err)
	}
	want := map[string]bool{
		"data/app.db": false, "data/app.db-wal": false, "data/app.db-shm": false,
	}
	for _, p := range backend.Preserve {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("backend.Preserve missing %s; journals must survive updates", p)
		}
	}
	if !backend.Prebuilt || backend.Binary != "backend" {
		t.Errorf("backend not marked prebuilt with binary name: %+v", backend)
	}
}

func TestLoad_MissingDefaultManifest_UsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() with no manifest failed: %v", err)
	}
	if cfg.InstallRoot != "/opt/overhaul" {
		t.Errorf("InstallRoot = %q; want built-in default", cfg.InstallRoot)
	}
}

func TestLoad_MissingExplicitManifest_IsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() with an explicit missing path should fail")
	}
}

func TestLoad_ManifestOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overhaul.yaml")
	manifest := `
base_url: http://releases.example.test
install_root: /srv/app
keep_backups: 2
components:
  - name: frontend
    services: [app-frontend]
  - name: backend
    services: [app-backend]
    prebuilt: true
    binary: backend
`
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.BaseURL != "http://releases.example.test" {
		t.Errorf("BaseURL = %q; manifest value not applied", cfg.BaseURL)
	}
	if cfg.KeepBackups != 2 {
		t.Errorf("KeepBackups = %d; want 2", cfg.KeepBackups)
	}
	// StateDir was not overridden, so the default survives the overlay.
	if cfg.StateDir != "/var/lib/overhaul" {
		t.Errorf("StateDir = %q; default should survive partial manifest", cfg.StateDir)
	}
}

func TestLoad_DerivedPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overhaul.yaml")
	manifest := `
install_root: /srv/app
state_dir: /srv/state
components:
  - name: backend
    services: [app-backend]
`
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.BackupDir != "/srv/state/backups" {
		t.Errorf("BackupDir = %q; want derived from state_dir", cfg.BackupDir)
	}
	if cfg.StagingDir != "/srv/state/staging" {
		t.Errorf("StagingDir = %q; want derived from state_dir", cfg.StagingDir)
	}
	comp, err := cfg.Lookup("backend")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if comp.InstallDir != "/srv/app/backend" {
		t.Errorf("InstallDir = %q; want derived from install_root", comp.InstallDir)
	}
	if cfg.DBPath() != "/srv/state/overhaul.db" {
		t.Errorf("DBPath() = %q; want under state_dir", cfg.DBPath())
	}
}

func TestLoad_EnvOverridesManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overhaul.yaml")
	manifest := `
base_url: http://manifest.example.test
components:
  - name: backend
    services: [app-backend]
`
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	t.Setenv("OVERHAUL_BASE_URL", "http://env.example.test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.BaseURL != "http://env.example.test" {
		t.Errorf("BaseURL = %q; environment should win over manifest", cfg.BaseURL)
	}
}

func TestLoad_RejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"duplicate component", `
components:
  - name: backend
    services: [a]
  - name: backend
    services: [b]
`},
		{"component without services", `
components:
  - name: backend
`},
		{"empty component name", `
components:
  - name: ""
    services: [a]
`},
		{"empty base url", `
base_url: ""
components:
  - name: backend
    services: [a]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "overhaul.yaml")
			if err := os.WriteFile(path, []byte(tt.manifest), 0644); err != nil {
				t.Fatalf("failed to write manifest: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() accepted an invalid manifest")
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Lookup("database"); err == nil {
		t.Error("Lookup() should reject unknown component names")
	}
}
