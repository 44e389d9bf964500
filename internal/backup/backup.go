// Package backup snapshots a component's installation directory before any
// destructive step and restores it on rollback. Backups are the only
// recovery mechanism: if one cannot be created, the update must abort
// before anything is touched.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/overhaul/internal/archive"
	"github.com/blackwell-systems/overhaul/internal/config"
)

// ErrOutsideRoot means a component's installation directory resolves
// outside the managed install root. Neither snapshot nor restore will
// touch such a path.
var ErrOutsideRoot = errors.New("install directory outside managed root")

// timestampLayout orders backup filenames lexicographically by creation time.
const timestampLayout = "20060102-150405"

// Handle identifies one backup archive on disk.
type Handle struct {
	Component string
	Path      string
	CreatedAt time.Time
}

// ServiceController is the slice of the service layer restore needs.
type ServiceController interface {
	Stop(unit string) error
	Start(unit string) error
	IsRunning(unit string) (bool, error)
}

// Manager creates, restores, lists, and prunes backups.
type Manager struct {
	dir      string
	root     string
	keep     int
	services ServiceController
}

// New creates a Manager writing archives to dir. Components whose install
// directory is not under managedRoot are refused. Prune keeps the newest
// keep archives per component.
func New(dir, managedRoot string, keep int, services ServiceController) *Manager {
	return &Manager{dir: dir, root: managedRoot, keep: keep, services: services}
}

// Snapshot archives the component's current installation directory to a new
// timestamped backup. The directory is created if missing so a fresh
// install still yields a restorable (empty) snapshot.
func (m *Manager) Snapshot(c config.Component) (Handle, error) {
	if err := m.checkRoot(c); err != nil {
		return Handle{}, err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return Handle{}, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.MkdirAll(c.InstallDir, 0755); err != nil {
		return Handle{}, fmt.Errorf("failed to create install dir for %s: %w", c.Name, err)
	}

	now := time.Now()
	path := filepath.Join(m.dir, fmt.Sprintf("%s-%s.tar.gz", c.Name, now.Format(timestampLayout)))
	if err := archive.Create(c.InstallDir, path); err != nil {
		return Handle{}, fmt.Errorf("failed to snapshot %s: %w", c.Name, err)
	}
	return Handle{Component: c.Name, Path: path, CreatedAt: now}, nil
}

// Restore puts the component back to the snapshotted state: stop its
// services if running, replace the (possibly half-updated) installation
// directory with the backup contents, re-mark the binary executable, and
// start the services again. This is the single rollback primitive used by
// every failure branch of the orchestrator.
func (m *Manager) Restore(h Handle, c config.Component) error {
	if err := m.checkRoot(c); err != nil {
		return err
	}
	if _, err := os.Stat(h.Path); err != nil {
		return fmt.Errorf("backup archive for %s unusable: %w", c.Name, err)
	}

	for _, unit := range c.Services {
		running, err := m.services.IsRunning(unit)
		if err != nil {
			return fmt.Errorf("restore %s: %w", c.Name, err)
		}
		if running {
			if err := m.services.Stop(unit); err != nil {
				return fmt.Errorf("restore %s: %w", c.Name, err)
			}
		}
	}

	if err := os.RemoveAll(c.InstallDir); err != nil {
		return fmt.Errorf("restore %s: failed to clear install dir: %w", c.Name, err)
	}
	if err := archive.Extract(h.Path, c.InstallDir); err != nil {
		return fmt.Errorf("restore %s: failed to extract backup: %w", c.Name, err)
	}

	if c.Prebuilt && c.Binary != "" {
		bin := filepath.Join(c.InstallDir, c.Binary)
		if err := os.Chmod(bin, 0755); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restore %s: failed to mark %s executable: %w", c.Name, c.Binary, err)
		}
	}

	for _, unit := range c.Services {
		if err := m.services.Start(unit); err != nil {
			return fmt.Errorf("restore %s: %w", c.Name, err)
		}
	}
	return nil
}

// List returns the component's backups, newest first.
func (m *Manager) List(component string) ([]Handle, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	prefix := component + "-"
	var handles []Handle
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".tar.gz")
		created, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
		if err != nil {
			continue
		}
		handles = append(handles, Handle{
			Component: component,
			Path:      filepath.Join(m.dir, name),
			CreatedAt: created,
		})
	}

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].CreatedAt.After(handles[j].CreatedAt)
	})
	return handles, nil
}

// Prune removes all but the newest keep backups for the component. This is
// non-critical housekeeping; it never runs mid-update.
func (m *Manager) Prune(component string) error {
	if m.keep <= 0 {
		return nil
	}
	handles, err := m.List(component)
	if err != nil {
		return err
	}
	for _, h := range handles[min(m.keep, len(handles)):] {
		if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune backup %s: %w", filepath.Base(h.Path), err)
		}
	}
	return nil
}

// checkRoot refuses to operate on install directories outside the managed
// root, guarding against a misconfigured or hostile path causing deletion
// elsewhere in the tree.
func (m *Manager) checkRoot(c config.Component) error {
	root, err := filepath.Abs(m.root)
	if err != nil {
		return fmt.Errorf("backup %s: %w", c.Name, err)
	}
	dir, err := filepath.Abs(c.InstallDir)
	if err != nil {
		return fmt.Errorf("backup %s: %w", c.Name, err)
	}
	if dir != root && !strings.HasPrefix(dir, root+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s resolves to %s, managed root is %s", ErrOutsideRoot, c.Name, dir, root)
	}
	return nil
}
