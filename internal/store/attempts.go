package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attempt outcomes. An attempt stays OutcomeRunning until finished.
const (
	OutcomeRunning        = "running"
	OutcomeSucceeded      = "succeeded"
	OutcomeNoop           = "noop"
	OutcomeFailed         = "failed"
	OutcomeRolledBack     = "rolled-back"
	OutcomeRollbackFailed = "rollback-failed"
)

// Attempt is one recorded run of the orchestrator for a component and
// target version.
type Attempt struct {
	ID          string
	Component   string
	FromVersion string
	ToVersion   string
	Stage       string
	Outcome     string
	Detail      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
}

// BeginAttempt records the start of an update attempt and returns its ID.
func (s *Store) BeginAttempt(component, fromVersion, toVersion string) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO update_attempts
		(id, component, from_version, to_version, stage, outcome, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, id, component, fromVersion, toVersion,
		"resolving", OutcomeRunning, time.Now().Format(time.RFC3339))
	if err != nil {
		return "", wrapErr(fmt.Errorf("failed to record attempt for %s: %w", component, err))
	}
	return id, nil
}

// UpdateStage records the stage an attempt has reached.
func (s *Store) UpdateStage(id, stage string) error {
	_, err := s.db.Exec(`UPDATE update_attempts SET stage = ? WHERE id = ?`, stage, id)
	if err != nil {
		return wrapErr(fmt.Errorf("failed to update attempt stage: %w", err))
	}
	return nil
}

// FinishAttempt records an attempt's final outcome and detail message.
func (s *Store) FinishAttempt(id, outcome, detail string) error {
	query := `UPDATE update_attempts SET outcome = ?, detail = ?, finished_at = ? WHERE id = ?`
	_, err := s.db.Exec(query, outcome, detail, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return wrapErr(fmt.Errorf("failed to finish attempt: %w", err))
	}
	return nil
}

// ListAttempts returns attempts newest first, filtered by component when
// non-empty, capped at limit when positive.
func (s *Store) ListAttempts(component string, limit int) ([]*Attempt, error) {
	query := `
		SELECT id, component, from_version, to_version, stage, outcome, detail, started_at, finished_at
		FROM update_attempts
	`
	var args []any
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr(fmt.Errorf("failed to list attempts: %w", err))
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// LastSuccess returns the most recent successful attempt for the component
// whose installed version differs from excludeVersion, or nil when there is
// none. It is how the rollback command picks its target.
func (s *Store) LastSuccess(component, excludeVersion string) (*Attempt, error) {
	query := `
		SELECT id, component, from_version, to_version, stage, outcome, detail, started_at, finished_at
		FROM update_attempts
		WHERE component = ? AND outcome = ? AND to_version != ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	row := s.db.QueryRow(query, component, OutcomeSucceeded, excludeVersion)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(fmt.Errorf("failed to query last success for %s: %w", component, err))
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var startedAt string
	var finishedAt sql.NullString

	err := row.Scan(&a.ID, &a.Component, &a.FromVersion, &a.ToVersion,
		&a.Stage, &a.Outcome, &a.Detail, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, wrapErr(fmt.Errorf("failed to scan attempt: %w", err))
	}

	if a.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse attempt start time: %w", err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		if a.FinishedAt, err = time.Parse(time.RFC3339, finishedAt.String); err != nil {
			return nil, fmt.Errorf("failed to parse attempt finish time: %w", err)
		}
	}
	return &a, nil
}
