package dispatch

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/errors"
)

// RunStore handles persistence of function runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new function run store.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// StartRun records a new RUNNING row for one execution of functionName.
func (s *RunStore) StartRun(functionName, runKey string) (*FunctionRun, error) {
	run := &FunctionRun{
		ID:           uuid.NewString(),
		FunctionName: functionName,
		RunKey:       runKey,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO function_runs (id, function_name, run_key, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, run.ID, run.FunctionName, run.RunKey, run.Status, run.StartedAt); err != nil {
		return nil, errors.Wrap(err, "failed to start function run")
	}
	return run, nil
}

// FinishRun transitions a run to its terminal status. A nil runErr records
// SUCCEEDED; otherwise FAILED with the error message.
func (s *RunStore) FinishRun(id string, runErr error) error {
	status := RunStatusSucceeded
	var lastError interface{}
	if runErr != nil {
		status = RunStatusFailed
		lastError = runErr.Error()
	}

	query := `
		UPDATE function_runs
		SET status = ?, finished_at = ?, last_error = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query, status, time.Now().UTC(), lastError, id)
	if err != nil {
		return errors.Wrap(err, "failed to finish function run")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("function run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(id string) (*FunctionRun, error) {
	query := `
		SELECT id, function_name, run_key, status, started_at, finished_at, last_error
		FROM function_runs WHERE id = ?
	`
	var run FunctionRun
	err := s.db.QueryRow(query, id).Scan(
		&run.ID,
		&run.FunctionName,
		&run.RunKey,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.LastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("function run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get function run")
	}
	return &run, nil
}

// RecoverStaleRuns finds up to limit RUNNING rows for functionName whose
// started_at predates now - staleMinutes, oldest first, and force-fails them
// with a diagnostic error. A crashed execution leaves a RUNNING row no other
// process can finish; without this sweep such a row would permanently block
// any single-concurrent-run invariant built on the status.
func (s *RunStore) RecoverStaleRuns(functionName string, staleMinutes, limit int, reason string) (RecoveryResult, error) {
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().UTC().Add(-time.Duration(staleMinutes) * time.Minute)

	rows, err := s.db.Query(`
		SELECT id, run_key FROM function_runs
		WHERE function_name = ? AND status = ? AND started_at < ?
		ORDER BY started_at ASC
		LIMIT ?
	`, functionName, RunStatusRunning, cutoff, limit)
	if err != nil {
		return RecoveryResult{}, errors.Wrap(err, "failed to list stale function runs")
	}
	defer rows.Close()

	var ids, runKeys []string
	for rows.Next() {
		var id, runKey string
		if err := rows.Scan(&id, &runKey); err != nil {
			return RecoveryResult{}, errors.Wrap(err, "failed to scan stale function run")
		}
		ids = append(ids, id)
		runKeys = append(runKeys, runKey)
	}
	if err := rows.Err(); err != nil {
		return RecoveryResult{}, errors.Wrap(err, "error iterating stale function runs")
	}

	if len(ids) == 0 {
		return RecoveryResult{}, nil
	}

	diagnostic := "force-failed by stale run recovery"
	if reason != "" {
		diagnostic += ": " + reason
	}

	now := time.Now().UTC()
	for _, id := range ids {
		// Conditional on status so a run that finished between the scan and
		// this update is left alone.
		if _, err := s.db.Exec(`
			UPDATE function_runs
			SET status = ?, finished_at = ?, last_error = ?
			WHERE id = ? AND status = ?
		`, RunStatusFailed, now, diagnostic, id, RunStatusRunning); err != nil {
			return RecoveryResult{}, errors.Wrapf(err, "failed to force-fail function run %s", id)
		}
	}

	return RecoveryResult{Recovered: len(ids), RunKeys: runKeys}, nil
}

// OldestRunningAge returns the age of the oldest RUNNING row for
// functionName. ok=false means no RUNNING rows exist.
func (s *RunStore) OldestRunningAge(functionName string) (time.Duration, bool, error) {
	var startedAt time.Time
	err := s.db.QueryRow(`
		SELECT started_at FROM function_runs
		WHERE function_name = ? AND status = ?
		ORDER BY started_at ASC
		LIMIT 1
	`, functionName, RunStatusRunning).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to get oldest running function run")
	}
	return time.Since(startedAt), true, nil
}

// CleanupOldRuns removes terminal runs older than the retention window,
// capped at limit rows to bound transaction size.
func (s *RunStore) CleanupOldRuns(olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		DELETE FROM function_runs
		WHERE id IN (
			SELECT id FROM function_runs
			WHERE status IN (?, ?) AND started_at < ?
			ORDER BY started_at ASC
			LIMIT ?
		)
	`, RunStatusSucceeded, RunStatusFailed, cutoff, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old function runs")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}
