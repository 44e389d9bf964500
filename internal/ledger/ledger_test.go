package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/overhaul/internal/config"
)

func testComponent(t *testing.T) config.Component {
	t.Helper()
	return config.Component{
		Name:       "backend",
		InstallDir: filepath.Join(t.TempDir(), "backend"),
		Services:   []string{"overhaul-backend"},
	}
}

func TestRead_MissingRecord_ReturnsUnknown(t *testing.T) {
	comp := testComponent(t)

	v, err := New().Read(comp)
	if err != nil {
		t.Fatalf("Read() on fresh install should not error: %v", err)
	}
	if v != Unknown {
		t.Errorf("Read() = %q; want %q for a fresh install", v, Unknown)
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	comp := testComponent(t)
	led := New()

	if err := led.Write(comp, "v0.7.2"); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	v, err := led.Read(comp)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if v != "v0.7.2" {
		t.Errorf("Read() = %q; want v0.7.2", v)
	}
}

func TestWrite_IsSingleLinePlainText(t *testing.T) {
	comp := testComponent(t)
	led := New()

	if err := led.Write(comp, "v1.0.0"); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	// External health tooling reads this file directly; it must stay a
	// single plain-text line.
	data, err := os.ReadFile(led.Path(comp))
	if err != nil {
		t.Fatalf("failed to read ledger file: %v", err)
	}
	if string(data) != "v1.0.0\n" {
		t.Errorf("ledger file content = %q; want single line with trailing newline", data)
	}
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	comp := testComponent(t)
	led := New()

	if err := led.Write(comp, "v1.0.0"); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := led.Write(comp, "v1.0.1"); err != nil {
		t.Fatalf("second Write() failed: %v", err)
	}

	entries, err := os.ReadDir(comp.InstallDir)
	if err != nil {
		t.Fatalf("failed to read install dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".version-") {
			t.Errorf("temp file %s left behind after Write()", e.Name())
		}
	}
}

func TestRead_EmptyFile_ReturnsUnknown(t *testing.T) {
	comp := testComponent(t)
	if err := os.MkdirAll(comp.InstallDir, 0755); err != nil {
		t.Fatalf("failed to create install dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(comp.InstallDir, Filename), []byte("  \n"), 0644); err != nil {
		t.Fatalf("failed to write empty ledger: %v", err)
	}

	v, err := New().Read(comp)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if v != Unknown {
		t.Errorf("Read() of blank file = %q; want %q", v, Unknown)
	}
}
