// Package updater sequences one component's update: resolve, download,
// verify, back up, stop, swap, start, commit — and rolls back from every
// failure branch at or after the backup. It transitions the host between
// two consistent states (old-version-running and new-version-running)
// without ever leaving it in a third.
package updater

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blackwell-systems/overhaul/internal/backup"
	"github.com/blackwell-systems/overhaul/internal/config"
	"github.com/blackwell-systems/overhaul/internal/release"
	"github.com/blackwell-systems/overhaul/internal/store"
)

// ErrRollbackFailed means an update failed and the restore of the previous
// version also failed. This is a fatal, operator-visible condition; the
// orchestrator makes exactly one restore attempt and never retries it.
var ErrRollbackFailed = errors.New("rollback failed, manual recovery required")

// Stage names the steps of an update attempt.
type Stage string

const (
	StageResolving       Stage = "resolving"
	StageDownloading     Stage = "downloading"
	StageVerifying       Stage = "verifying"
	StageBackingUp       Stage = "backing-up"
	StageStopping        Stage = "stopping"
	StageSwapping        Stage = "swapping"
	StageRestoringConfig Stage = "restoring-config"
	StageStarting        Stage = "starting"
	StageCommitting      Stage = "committing"
	StageDone            Stage = "done"
	StageRollingBack     Stage = "rolling-back"
	StageRolledBack      Stage = "rolled-back"
)

// ReleaseClient resolves and stages release artifacts.
type ReleaseClient interface {
	Resolve(component, spec string) (*release.Release, error)
	Stage(rel *release.Release, stagingRoot string) (*release.Staged, error)
}

// BackupManager snapshots and restores installation directories.
type BackupManager interface {
	Snapshot(c config.Component) (backup.Handle, error)
	Restore(h backup.Handle, c config.Component) error
	Prune(component string) error
}

// ServiceController stops, starts, and observes component services.
type ServiceController interface {
	Stop(unit string) error
	Start(unit string) error
	IsRunning(unit string) (bool, error)
}

// VersionLedger records the installed version per component.
type VersionLedger interface {
	Read(c config.Component) (string, error)
	Write(c config.Component, version string) error
}

// AttemptLog records update attempts for the history command. Recording is
// best-effort: a broken audit log never fails an update.
type AttemptLog interface {
	BeginAttempt(component, fromVersion, toVersion string) (string, error)
	UpdateStage(id, stage string) error
	FinishAttempt(id, outcome, detail string) error
}

// Updater is the top-level orchestrator. It is sequential by design: one
// component at a time, one attempt per component, in one process.
type Updater struct {
	Config   *config.Config
	Releases ReleaseClient
	Backups  BackupManager
	Services ServiceController
	Ledger   VersionLedger
	Attempts AttemptLog // optional
	Out      io.Writer  // defaults to os.Stdout
}

// New wires an Updater from its collaborators.
func New(cfg *config.Config, releases ReleaseClient, backups BackupManager,
	services ServiceController, ledger VersionLedger) *Updater {
	return &Updater{
		Config:   cfg,
		Releases: releases,
		Backups:  backups,
		Services: services,
		Ledger:   ledger,
	}
}

func (u *Updater) out() io.Writer {
	if u.Out != nil {
		return u.Out
	}
	return os.Stdout
}

func (u *Updater) printf(format string, args ...any) {
	fmt.Fprintf(u.out(), format+"\n", args...)
}

// Update performs one update attempt for the named component to the given
// version specifier ("latest" or an explicit version). It returns nil only
// when the component ends up running the target version with the ledger
// committed, or was already there.
func (u *Updater) Update(name, spec string) error {
	comp, err := u.Config.Lookup(name)
	if err != nil {
		return err
	}

	u.printf("==> %s: resolving %s", name, spec)
	rel, err := u.Releases.Resolve(name, spec)
	if err != nil {
		return fmt.Errorf("update %s: %s: %w", name, StageResolving, err)
	}

	current, err := u.Ledger.Read(comp)
	if err != nil {
		return fmt.Errorf("update %s: %s: %w", name, StageResolving, err)
	}
	if release.Same(current, rel.Version) {
		u.printf("==> %s: already at %s, nothing to do", name, rel.Version)
		u.record(name, current, rel.Version, store.OutcomeNoop, "already at target version")
		return nil
	}

	u.printf("==> %s: updating %s -> %s", name, current, rel.Version)
	attemptID := u.begin(name, current, rel.Version)

	err = u.attempt(comp, rel, attemptID)
	if err != nil {
		outcome := store.OutcomeFailed
		if errors.Is(err, ErrRollbackFailed) {
			outcome = store.OutcomeRollbackFailed
		} else if errors.Is(err, errRolledBack) {
			outcome = store.OutcomeRolledBack
		}
		u.finish(attemptID, outcome, err.Error())
		return err
	}

	u.finish(attemptID, store.OutcomeSucceeded, "")
	u.printf("==> %s: now at %s", name, rel.Version)

	// Housekeeping only; an update that got this far succeeded.
	if err := u.Backups.Prune(name); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to prune old backups for %s: %v\n", name, err)
	}
	return nil
}

// errRolledBack tags failures where the previous version was successfully
// restored, so outcomes can be recorded precisely.
var errRolledBack = errors.New("rolled back to previous version")

// attempt runs the destructive portion of an update. The staging directory
// is released on every exit path; installed state is only mutated between
// a successful backup and either commit or rollback.
func (u *Updater) attempt(comp config.Component, rel *release.Release, attemptID string) error {
	u.stage(attemptID, StageDownloading)
	u.printf("    downloading %s (%s)", rel.URL, rel.Version)
	staged, err := u.Releases.Stage(rel, u.Config.StagingDir)
	if err != nil {
		// Covers download, checksum, and archive validation failures;
		// nothing installed has been touched.
		return fmt.Errorf("update %s to %s: %s: %w", comp.Name, rel.Version, StageVerifying, err)
	}
	defer staged.Discard()

	u.stage(attemptID, StageBackingUp)
	u.printf("    backing up %s", comp.InstallDir)
	handle, err := u.Backups.Snapshot(comp)
	if err != nil {
		// Pre-mutation: no service stopped, no file replaced.
		return fmt.Errorf("update %s to %s: %s: %w", comp.Name, rel.Version, StageBackingUp, err)
	}

	u.stage(attemptID, StageStopping)
	for _, unit := range comp.Services {
		u.printf("    stopping %s", unit)
		if err := u.Services.Stop(unit); err != nil {
			return u.rollback(comp, rel, handle, attemptID, StageStopping, err)
		}
	}

	u.stage(attemptID, StageSwapping)
	u.printf("    installing %s into %s", rel.Version, comp.InstallDir)
	if err := u.swap(comp, staged.Dir, attemptID); err != nil {
		return u.rollback(comp, rel, handle, attemptID, StageSwapping, err)
	}

	u.stage(attemptID, StageStarting)
	for _, unit := range comp.Services {
		u.printf("    starting %s", unit)
		if err := u.Services.Start(unit); err != nil {
			return u.rollback(comp, rel, handle, attemptID, StageStarting, err)
		}
	}

	// Point of no return: the service is confirmed running the new
	// version, so the ledger may now name it.
	u.stage(attemptID, StageCommitting)
	if err := u.Ledger.Write(comp, rel.Version); err != nil {
		return u.rollback(comp, rel, handle, attemptID, StageCommitting, err)
	}

	u.stage(attemptID, StageDone)
	return nil
}

// rollback restores the component from the backup taken at the start of
// this attempt. A failed restore is fatal and reported with enough context
// for manual recovery from the backup archive.
func (u *Updater) rollback(comp config.Component, rel *release.Release, h backup.Handle, attemptID string, failed Stage, cause error) error {
	u.stage(attemptID, StageRollingBack)
	u.printf("    %s failed, rolling back from %s", failed, h.Path)

	if rerr := u.Backups.Restore(h, comp); rerr != nil {
		fmt.Fprintf(os.Stderr,
			"FATAL: %s: update to %s failed during %s (%v) and rollback also failed (%v); backup archive retained at %s\n",
			comp.Name, rel.Version, failed, cause, rerr, h.Path)
		return fmt.Errorf("%w: %s: update to %s failed during %s: %v; restore error: %v (backup: %s)",
			ErrRollbackFailed, comp.Name, rel.Version, failed, cause, rerr, h.Path)
	}

	u.stage(attemptID, StageRolledBack)
	return fmt.Errorf("update %s to %s failed during %s: %w (%w)",
		comp.Name, rel.Version, failed, cause, errRolledBack)
}

// UpdateAll updates every configured component to latest, in manifest
// order: least disruptive first, most foundational last. A component's
// failure does not stop the remaining components from being attempted.
func (u *Updater) UpdateAll() error {
	var errs []error
	for _, comp := range u.Config.Components {
		if err := u.Update(comp.Name, "latest"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) begin(component, from, to string) string {
	if u.Attempts == nil {
		return ""
	}
	id, err := u.Attempts.BeginAttempt(component, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record update attempt: %v\n", err)
		return ""
	}
	return id
}

func (u *Updater) stage(attemptID string, s Stage) {
	if u.Attempts == nil || attemptID == "" {
		return
	}
	if err := u.Attempts.UpdateStage(attemptID, string(s)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record attempt stage: %v\n", err)
	}
}

func (u *Updater) finish(attemptID, outcome, detail string) {
	if u.Attempts == nil || attemptID == "" {
		return
	}
	if err := u.Attempts.FinishAttempt(attemptID, outcome, detail); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record attempt outcome: %v\n", err)
	}
}

// record writes a complete attempt in one shot, for short-circuited runs.
func (u *Updater) record(component, from, to, outcome, detail string) {
	id := u.begin(component, from, to)
	u.finish(id, outcome, detail)
}
