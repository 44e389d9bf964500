package updater

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/overhaul/internal/config"
)

// swap replaces the installation directory contents with the staged release
// tree, carrying the component's durable files (env, embedded database and
// its journals) across the replacement. Services are already stopped and a
// backup already exists when swap runs.
func (u *Updater) swap(comp config.Component, stagedDir string, attemptID string) error {
	preserved, err := preserveOut(comp)
	if err != nil {
		return fmt.Errorf("failed to preserve durable files: %w", err)
	}
	defer os.RemoveAll(preserved)

	if err := os.RemoveAll(comp.InstallDir); err != nil {
		return fmt.Errorf("failed to clear install dir: %w", err)
	}

	// Rename is atomic for any reader when staging shares a filesystem
	// with the install root; otherwise fall back to a tree copy into the
	// (now empty) directory.
	if err := os.Rename(stagedDir, comp.InstallDir); err != nil {
		if err := copyTree(stagedDir, comp.InstallDir); err != nil {
			return fmt.Errorf("failed to install new release tree: %w", err)
		}
	}

	u.stage(attemptID, StageRestoringConfig)
	if err := preserveIn(comp, preserved); err != nil {
		return fmt.Errorf("failed to restore durable files: %w", err)
	}

	if comp.Prebuilt && comp.Binary != "" {
		bin := filepath.Join(comp.InstallDir, comp.Binary)
		if err := os.Chmod(bin, 0755); err != nil {
			return fmt.Errorf("failed to mark %s executable: %w", comp.Binary, err)
		}
	}

	return syncDir(filepath.Dir(comp.InstallDir))
}

// preserveOut copies the component's preserved paths to a temp directory,
// keeping their relative structure. Missing paths are skipped; a fresh
// install has none of them yet.
func preserveOut(comp config.Component) (string, error) {
	tmp, err := os.MkdirTemp("", "overhaul-preserve-*")
	if err != nil {
		return "", err
	}
	for _, rel := range comp.Preserve {
		src := filepath.Join(comp.InstallDir, rel)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			os.RemoveAll(tmp)
			return "", err
		}
		dst := filepath.Join(tmp, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}
		if err := copyFile(src, dst); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}
	}
	return tmp, nil
}

// preserveIn copies the preserved files back into the freshly installed
// tree, overwriting anything the release shipped at those paths.
func preserveIn(comp config.Component, tmp string) error {
	for _, rel := range comp.Preserve {
		src := filepath.Join(tmp, rel)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		dst := filepath.Join(comp.InstallDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dst preserving mode, fsyncing dst before close.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// copyTree copies the tree rooted at src into dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return copyFile(path, target)
		}
	})
}

// syncDir fsyncs a directory so renames beneath it are durable before the
// next stage begins.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer f.Close()
	f.Sync()
	return nil
}
