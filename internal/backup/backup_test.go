package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/blackwell-systems/overhaul/internal/config"
)

// fakeController records service operations and reports units as running
// until stopped.
type fakeController struct {
	mu      sync.Mutex
	running map[string]bool
	calls   []string
}

func newFakeController(runningUnits ...string) *fakeController {
	running := make(map[string]bool)
	for _, u := range runningUnits {
		running[u] = true
	}
	return &fakeController{running: running}
}

func (f *fakeController) Stop(unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop "+unit)
	f.running[unit] = false
	return nil
}

func (f *fakeController) Start(unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start "+unit)
	f.running[unit] = true
	return nil
}

func (f *fakeController) IsRunning(unit string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[unit], nil
}

// testSetup returns a Manager, its managed root, and a backend component
// with a populated install tree.
func testSetup(t *testing.T, svc ServiceController) (*Manager, config.Component) {
	t.Helper()
	root := t.TempDir()
	comp := config.Component{
		Name:       "backend",
		InstallDir: filepath.Join(root, "backend"),
		Services:   []string{"overhaul-backend"},
		Prebuilt:   true,
		Binary:     "backend",
	}

	if err := os.MkdirAll(filepath.Join(comp.InstallDir, "data"), 0755); err != nil {
		t.Fatalf("failed to create install tree: %v", err)
	}
	for name, content := range map[string]string{
		"backend":     "old binary",
		".env":        "PORT=8080\n",
		"data/app.db": "user data",
	} {
		if err := os.WriteFile(filepath.Join(comp.InstallDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	return New(filepath.Join(t.TempDir(), "backups"), root, 3, svc), comp
}

func TestSnapshot_CreatesTimestampedArchive(t *testing.T) {
	m, comp := testSetup(t, newFakeController())

	h, err := m.Snapshot(comp)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if h.Component != "backend" {
		t.Errorf("Handle.Component = %q; want backend", h.Component)
	}
	base := filepath.Base(h.Path)
	if !strings.HasPrefix(base, "backend-") || !strings.HasSuffix(base, ".tar.gz") {
		t.Errorf("backup filename %q not in component-timestamp form", base)
	}
	if _, err := os.Stat(h.Path); err != nil {
		t.Errorf("backup archive missing on disk: %v", err)
	}
}

func TestSnapshot_OutsideManagedRoot_Refused(t *testing.T) {
	m, comp := testSetup(t, newFakeController())
	comp.InstallDir = filepath.Join(t.TempDir(), "elsewhere")

	_, err := m.Snapshot(comp)
	if !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Snapshot() outside root = %v; want ErrOutsideRoot", err)
	}
}

func TestSnapshot_TraversalOutOfRoot_Refused(t *testing.T) {
	m, comp := testSetup(t, newFakeController())
	comp.InstallDir = comp.InstallDir + "/../../../etc"

	if _, err := m.Snapshot(comp); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Snapshot() with traversal path = %v; want ErrOutsideRoot", err)
	}
}

func TestSnapshot_FreshInstall_EmptyDirStillSnapshots(t *testing.T) {
	svc := newFakeController()
	m, comp := testSetup(t, svc)
	comp.Name = "frontend"
	comp.InstallDir = filepath.Join(filepath.Dir(comp.InstallDir), "frontend")

	h, err := m.Snapshot(comp)
	if err != nil {
		t.Fatalf("Snapshot() of fresh component failed: %v", err)
	}
	if _, err := os.Stat(h.Path); err != nil {
		t.Errorf("fresh-install backup missing: %v", err)
	}
}

func TestRestore_PutsOldTreeBack(t *testing.T) {
	svc := newFakeController("overhaul-backend")
	m, comp := testSetup(t, svc)

	h, err := m.Snapshot(comp)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	// Simulate a half-finished update: new binary, user data gone.
	if err := os.RemoveAll(comp.InstallDir); err != nil {
		t.Fatalf("failed to wreck install dir: %v", err)
	}
	if err := os.MkdirAll(comp.InstallDir, 0755); err != nil {
		t.Fatalf("failed to recreate install dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(comp.InstallDir, "backend"), []byte("broken new binary"), 0644); err != nil {
		t.Fatalf("failed to write new binary: %v", err)
	}

	if err := m.Restore(h, comp); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(comp.InstallDir, "backend"))
	if err != nil {
		t.Fatalf("restored tree missing binary: %v", err)
	}
	if string(data) != "old binary" {
		t.Errorf("restored binary content = %q; want the snapshotted one", data)
	}
	if _, err := os.ReadFile(filepath.Join(comp.InstallDir, "data/app.db")); err != nil {
		t.Errorf("restored tree missing user data: %v", err)
	}

	info, err := os.Stat(filepath.Join(comp.InstallDir, "backend"))
	if err != nil {
		t.Fatalf("failed to stat restored binary: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("restored binary not re-marked executable: %v", info.Mode())
	}

	want := []string{"stop overhaul-backend", "start overhaul-backend"}
	if len(svc.calls) != len(want) || svc.calls[0] != want[0] || svc.calls[1] != want[1] {
		t.Errorf("Restore() service calls = %v; want %v", svc.calls, want)
	}
}

func TestRestore_ServiceNotRunning_SkipsStop(t *testing.T) {
	svc := newFakeController() // nothing running
	m, comp := testSetup(t, svc)

	h, err := m.Snapshot(comp)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if err := m.Restore(h, comp); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	for _, c := range svc.calls {
		if strings.HasPrefix(c, "stop ") {
			t.Errorf("Restore() stopped a unit that was not running: %v", svc.calls)
		}
	}
}

func TestRestore_MissingArchive_Fails(t *testing.T) {
	m, comp := testSetup(t, newFakeController())

	h := Handle{Component: "backend", Path: filepath.Join(t.TempDir(), "gone.tar.gz")}
	if err := m.Restore(h, comp); err == nil {
		t.Error("Restore() should fail when the backup archive is missing")
	}
}

func TestList_NewestFirst(t *testing.T) {
	m, comp := testSetup(t, newFakeController())

	// Distinct timestamps come from the filename, so fabricate them.
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		t.Fatalf("failed to create backup dir: %v", err)
	}
	for _, stamp := range []string{"20260101-000000", "20260301-000000", "20260201-000000"} {
		path := filepath.Join(m.dir, fmt.Sprintf("backend-%s.tar.gz", stamp))
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write fake backup: %v", err)
		}
	}

	handles, err := m.List(comp.Name)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("List() returned %d handles; want 3", len(handles))
	}
	if !strings.Contains(handles[0].Path, "20260301") {
		t.Errorf("List() not newest first: %v", handles[0].Path)
	}
}

func TestPrune_KeepsNewestN(t *testing.T) {
	m, comp := testSetup(t, newFakeController())

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		t.Fatalf("failed to create backup dir: %v", err)
	}
	stamps := []string{"20260101-000000", "20260102-000000", "20260103-000000", "20260104-000000", "20260105-000000"}
	for _, stamp := range stamps {
		path := filepath.Join(m.dir, fmt.Sprintf("backend-%s.tar.gz", stamp))
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write fake backup: %v", err)
		}
	}
	// Another component's backups must be untouched.
	other := filepath.Join(m.dir, "frontend-20260101-000000.tar.gz")
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write other backup: %v", err)
	}

	if err := m.Prune(comp.Name); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	handles, err := m.List(comp.Name)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(handles) != 3 {
		t.Errorf("Prune() left %d backups; want keep=3", len(handles))
	}
	for _, h := range handles {
		if strings.Contains(h.Path, "20260101") || strings.Contains(h.Path, "20260102") {
			t.Errorf("Prune() kept old backup %s", h.Path)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("Prune() touched another component's backup: %v", err)
	}
}
