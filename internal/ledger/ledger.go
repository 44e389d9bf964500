// Package ledger is the durable record of what version of each component is
// currently installed. The ledger file is intentionally the last write of a
// successful update and the first thing left untouched by a failed one, so
// it always names the version whose files are actually serving traffic.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/overhaul/internal/config"
)

// Unknown is returned by Read when a component has no recorded version,
// which is the normal state of a fresh install.
const Unknown = "unknown"

// Filename is the ledger file kept in each component's installation
// directory. It is a single line of plain text so external health tooling
// can read it without any library.
const Filename = "VERSION"

// Ledger reads and writes per-component version files.
type Ledger struct{}

// New creates a Ledger.
func New() *Ledger {
	return &Ledger{}
}

// Path returns the ledger file location for a component.
func (l *Ledger) Path(c config.Component) string {
	return filepath.Join(c.InstallDir, Filename)
}

// Read returns the recorded version for the component, or Unknown when no
// record exists. A missing record is not an error.
func (l *Ledger) Read(c config.Component) (string, error) {
	data, err := os.ReadFile(l.Path(c))
	if err != nil {
		if os.IsNotExist(err) {
			return Unknown, nil
		}
		return "", fmt.Errorf("failed to read version ledger for %s: %w", c.Name, err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return Unknown, nil
	}
	return v, nil
}

// Write durably records the component's version. The write is atomic:
// temp file, fsync, rename, parent-dir fsync. It must only be called after
// the component's service has been confirmed running at that version.
func (l *Ledger) Write(c config.Component, version string) error {
	if err := os.MkdirAll(c.InstallDir, 0755); err != nil {
		return fmt.Errorf("failed to create install dir for %s: %w", c.Name, err)
	}

	tmp, err := os.CreateTemp(c.InstallDir, ".version-*")
	if err != nil {
		return fmt.Errorf("failed to create ledger temp file for %s: %w", c.Name, err)
	}
	tmpName := tmp.Name()

	_, err = tmp.WriteString(version + "\n")
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write version ledger for %s: %w", c.Name, err)
	}

	if err := os.Rename(tmpName, l.Path(c)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit version ledger for %s: %w", c.Name, err)
	}

	// Rename durability needs the directory flushed too.
	if dir, err := os.Open(c.InstallDir); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}
